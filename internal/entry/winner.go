package entry

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/showoff-life/showoff-backend/internal/coin"
	"github.com/showoff-life/showoff-backend/internal/competition"
	"github.com/showoff-life/showoff-backend/internal/period"
	"github.com/showoff-life/showoff-backend/internal/users"
)

var (
	// ErrInvalidPosition indicates a winner position outside 1..3.
	ErrInvalidPosition = errors.New("entry: winner position must be 1, 2 or 3")
	// ErrWinnerConflict indicates the entry already won at a different position.
	ErrWinnerConflict = errors.New("entry: already declared winner at a different position")
	// ErrNoPrizeForPosition indicates the competition's schedule has no prize at the position.
	ErrNoPrizeForPosition = errors.New("entry: no prize configured for position")
)

// PrizeSource is the slice of the competition registry winner disbursement
// reads amounts from. The schedule is read through the declaration's own
// transaction so the lookup never waits on a second pooled connection.
type PrizeSource interface {
	PrizeScheduleTx(tx *gorm.DB, competitionType period.Type, periodID string) ([]competition.Prize, error)
}

// Ledger is the slice of the coin ledger winner disbursement awards through.
type Ledger interface {
	AwardTx(tx *gorm.DB, userID users.UserID, amount int64, reason coin.Reason, description string, refs coin.RelatedRefs) (coin.Transaction, error)
}

// DeclareWinner performs the one-way winner transition for an entry. The
// prize amount comes from the competition's own schedule. Declaring again
// with the same position is a no-op; a different position fails. The entry
// mutation and the coin award share one transaction, so a declared winner
// always has exactly one matching ledger row.
func (s *Service) DeclareWinner(ctx context.Context, entryID string, position int, prizes PrizeSource, ledger Ledger) (Entry, error) {
	if position < 1 || position > 3 {
		return Entry{}, fmt.Errorf("%w: %d", ErrInvalidPosition, position)
	}
	if prizes == nil || ledger == nil {
		return Entry{}, errors.New("entry: prize source and ledger are required")
	}

	var record Entry
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("entry_id = ?", entryID).
			Take(&record).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		if record.IsWinner {
			if record.WinnerPosition == position {
				return nil
			}
			return ErrWinnerConflict
		}

		schedule, err := prizes.PrizeScheduleTx(tx, record.CompetitionType, record.PeriodID)
		if err != nil {
			return err
		}
		var prizeCoins int64 = -1
		for _, prize := range schedule {
			if prize.Position == position {
				prizeCoins = prize.Coins
				break
			}
		}
		if prizeCoins < 0 {
			return fmt.Errorf("%w: %d", ErrNoPrizeForPosition, position)
		}

		updates := map[string]interface{}{
			"is_winner":       true,
			"winner_position": position,
			"prize_coins":     prizeCoins,
		}
		if err := tx.Model(&Entry{}).Where("entry_id = ?", entryID).Updates(updates).Error; err != nil {
			return err
		}

		ownerID, err := users.NewUserID(record.OwnerID)
		if err != nil {
			return err
		}
		description := fmt.Sprintf("Competition prize for position %d (%s)", position, record.PeriodID)
		if _, err := ledger.AwardTx(tx, ownerID, prizeCoins, coin.ReasonCompetitionPrize, description, coin.RelatedRefs{EntryID: entryID}); err != nil {
			return err
		}

		record.IsWinner = true
		record.WinnerPosition = position
		record.PrizeCoins = prizeCoins

		s.logger.Info("winner declared",
			zap.String("entry_id", entryID),
			zap.Int("position", position),
			zap.Int64("prize_coins", prizeCoins))
		return nil
	})
	if txErr != nil {
		return Entry{}, txErr
	}
	return record, nil
}
