package vote

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/showoff-life/showoff-backend/internal/coin"
	"github.com/showoff-life/showoff-backend/internal/entry"
	"github.com/showoff-life/showoff-backend/internal/period"
	"github.com/showoff-life/showoff-backend/internal/selfie"
	"github.com/showoff-life/showoff-backend/internal/users"
)

const (
	// Showcase votes cost the voter one coin and earn the owner one coin.
	entryVoteCost  = 1
	entryVoteAward = 1
	// Selfie votes are free but capped per calendar day.
	selfieVoteAward    = 1
	selfieDailyVoteCap = 5
)

var (
	// ErrAlreadyVoted indicates a second ballot for the same target today.
	ErrAlreadyVoted = errors.New("vote: already voted today")
	// ErrRateLimitExceeded indicates the daily cap across targets is spent.
	ErrRateLimitExceeded = errors.New("vote: daily voting limit reached")
	// ErrTargetNotVotable indicates the target is hidden or unapproved.
	ErrTargetNotVotable = errors.New("vote: target not open for voting")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingLedger     = errors.New("coin ledger is required")
	noOpLogger           = zap.NewNop()
)

// IDProvider issues vote identifiers.
type IDProvider interface {
	NewID() (string, error)
}

// Ledger is the slice of the coin ledger vote settlement runs through, in
// the same transaction as the ballot insert and the counter bumps.
type Ledger interface {
	AwardTx(tx *gorm.DB, userID users.UserID, amount int64, reason coin.Reason, description string, refs coin.RelatedRefs) (coin.Transaction, error)
	DebitTx(tx *gorm.DB, userID users.UserID, amount int64, reason coin.Reason, description string, refs coin.RelatedRefs) (coin.Transaction, error)
}

// ServiceConfig describes the vote ledger dependencies.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Ledger     Ledger
	Logger     *zap.Logger
}

// Service records ballots and settles their coin side effects atomically.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	ledger     Ledger
	logger     *zap.Logger
}

// NewService constructs the vote ledger service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	if cfg.Ledger == nil {
		return nil, errMissingLedger
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		ledger:     cfg.Ledger,
		logger:     logger,
	}, nil
}

// Receipt reports a recorded ballot.
type Receipt struct {
	VoteID       string
	TargetVotes  int64
	CoinsCharged int64
	CoinsAwarded int64
}

// CastEntryVote records a ballot on a showcase entry. One transaction covers
// the ballot insert, the voter's coin charge, the entry counters, and the
// owner's coin award: a crash cannot leave a vote without its coin effects.
func (s *Service) CastEntryVote(ctx context.Context, voter users.UserID, entryID string) (Receipt, error) {
	now := s.clock().UTC()
	voteDay := period.Day(now)

	var receipt Receipt
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var target entry.Entry
		err := tx.Where("entry_id = ?", entryID).Take(&target).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entry.ErrNotFound
		}
		if err != nil {
			return err
		}
		if !target.Approved || !target.Active {
			return ErrTargetNotVotable
		}

		voteID, err := s.idProvider.NewID()
		if err != nil {
			return err
		}
		ballot := Vote{
			VoteID:    voteID,
			VoterID:   voter.String(),
			Kind:      KindEntry,
			TargetID:  entryID,
			VoteDay:   voteDay,
			CreatedAt: now,
		}
		if err := tx.Create(&ballot).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrAlreadyVoted
			}
			return err
		}

		if _, err := s.ledger.DebitTx(tx, voter, entryVoteCost, coin.ReasonVoteCast,
			"Voted for showcase entry", coin.RelatedRefs{EntryID: entryID}); err != nil {
			return err
		}

		if err := tx.Model(&entry.Entry{}).
			Where("entry_id = ?", entryID).
			Updates(map[string]interface{}{
				"votes_count":   gorm.Expr("votes_count + 1"),
				"coins_accrued": gorm.Expr("coins_accrued + 1"),
			}).Error; err != nil {
			return err
		}

		ownerID, err := users.NewUserID(target.OwnerID)
		if err != nil {
			return err
		}
		if _, err := s.ledger.AwardTx(tx, ownerID, entryVoteAward, coin.ReasonVoteReceived,
			"Vote received on showcase entry", coin.RelatedRefs{UserID: voter.String(), EntryID: entryID}); err != nil {
			return err
		}

		receipt = Receipt{
			VoteID:       voteID,
			TargetVotes:  target.VotesCount + 1,
			CoinsCharged: entryVoteCost,
			CoinsAwarded: entryVoteAward,
		}
		return nil
	})
	if txErr != nil {
		return Receipt{}, txErr
	}

	s.logger.Debug("entry vote recorded",
		zap.String("voter_id", voter.String()),
		zap.String("entry_id", entryID),
		zap.String("vote_day", voteDay))

	return receipt, nil
}

// CastSelfieVote records a ballot on a daily selfie. Selfie ballots are
// free, capped at five per voter per calendar day across all selfies.
func (s *Service) CastSelfieVote(ctx context.Context, voter users.UserID, selfieID string) (Receipt, error) {
	now := s.clock().UTC()
	voteDay := period.Day(now)

	var receipt Receipt
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var target selfie.Selfie
		err := tx.Where("selfie_id = ?", selfieID).Take(&target).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return selfie.ErrNotFound
		}
		if err != nil {
			return err
		}
		if !target.Active {
			return ErrTargetNotVotable
		}

		var castToday int64
		err = tx.Model(&Vote{}).
			Where("voter_id = ? AND kind = ? AND vote_day = ?", voter.String(), KindSelfie, voteDay).
			Count(&castToday).Error
		if err != nil {
			return err
		}
		if castToday >= selfieDailyVoteCap {
			return ErrRateLimitExceeded
		}

		voteID, err := s.idProvider.NewID()
		if err != nil {
			return err
		}
		ballot := Vote{
			VoteID:    voteID,
			VoterID:   voter.String(),
			Kind:      KindSelfie,
			TargetID:  selfieID,
			VoteDay:   voteDay,
			CreatedAt: now,
		}
		if err := tx.Create(&ballot).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrAlreadyVoted
			}
			return err
		}

		if err := tx.Model(&selfie.Selfie{}).
			Where("selfie_id = ?", selfieID).
			Update("votes_count", gorm.Expr("votes_count + 1")).Error; err != nil {
			return err
		}

		ownerID, err := users.NewUserID(target.OwnerID)
		if err != nil {
			return err
		}
		if _, err := s.ledger.AwardTx(tx, ownerID, selfieVoteAward, coin.ReasonSelfieVoteReceived,
			"Vote received on daily selfie", coin.RelatedRefs{UserID: voter.String()}); err != nil {
			return err
		}

		receipt = Receipt{
			VoteID:       voteID,
			TargetVotes:  target.VotesCount + 1,
			CoinsAwarded: selfieVoteAward,
		}
		return nil
	})
	if txErr != nil {
		return Receipt{}, txErr
	}

	s.logger.Debug("selfie vote recorded",
		zap.String("voter_id", voter.String()),
		zap.String("selfie_id", selfieID),
		zap.String("vote_day", voteDay))

	return receipt, nil
}

// CountForTarget returns the number of ballots referencing a target. The
// entry and selfie vote counters must always equal this value.
func (s *Service) CountForTarget(ctx context.Context, kind Kind, targetID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Vote{}).
		Where("kind = ? AND target_id = ?", kind, targetID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "UNIQUE constraint failed")
}
