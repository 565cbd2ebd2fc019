package coin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/showoff-life/showoff-backend/internal/period"
	"github.com/showoff-life/showoff-backend/internal/users"
)

var (
	// ErrInsufficientBalance indicates a debit larger than the current balance.
	// Balances are never allowed to go negative.
	ErrInsufficientBalance = errors.New("coin: insufficient balance")
	// ErrUserNotFound indicates the ledger target account does not exist.
	ErrUserNotFound = errors.New("coin: user not found")
	// ErrInvalidAmount indicates a non-positive award or debit amount.
	ErrInvalidAmount = errors.New("coin: amount must be positive")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// IDProvider issues ledger row identifiers.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies of the coin ledger.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
	// Rand returns a value in [0, n); defaults to math/rand. Injected so the
	// spin wheel can be tested deterministically.
	Rand func(n int) int
}

// Service is the single mutation point for coin balances. Every balance
// change goes through Award or Debit: an atomic counter update plus an
// appended ledger row in one storage transaction.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
	randInt    func(n int) int
}

// NewService constructs the coin ledger service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	randInt := cfg.Rand
	if randInt == nil {
		randInt = defaultRand
	}
	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
		randInt:    randInt,
	}, nil
}

// Award credits the user inside its own transaction.
func (s *Service) Award(ctx context.Context, userID users.UserID, amount int64, reason Reason, description string, refs RelatedRefs) (Transaction, error) {
	var row Transaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		row, txErr = s.AwardTx(tx, userID, amount, reason, description, refs)
		return txErr
	})
	return row, err
}

// AwardTx credits the user within the caller's transaction: atomic
// balance/earned increments followed by the ledger append.
func (s *Service) AwardTx(tx *gorm.DB, userID users.UserID, amount int64, reason Reason, description string, refs RelatedRefs) (Transaction, error) {
	if amount <= 0 {
		return Transaction{}, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}

	result := tx.Model(&users.User{}).
		Where("user_id = ?", userID.String()).
		Updates(map[string]interface{}{
			"coin_balance":       gorm.Expr("coin_balance + ?", amount),
			"total_coins_earned": gorm.Expr("total_coins_earned + ?", amount),
		})
	if result.Error != nil {
		return Transaction{}, result.Error
	}
	if result.RowsAffected == 0 {
		return Transaction{}, ErrUserNotFound
	}

	return s.appendRow(tx, userID, amount, reason, description, refs)
}

// Debit removes coins inside its own transaction.
func (s *Service) Debit(ctx context.Context, userID users.UserID, amount int64, reason Reason, description string, refs RelatedRefs) (Transaction, error) {
	var row Transaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		row, txErr = s.DebitTx(tx, userID, amount, reason, description, refs)
		return txErr
	})
	return row, err
}

// DebitTx removes coins within the caller's transaction. The update is
// conditional on the balance covering the amount, so the balance can never
// go negative regardless of interleaving.
func (s *Service) DebitTx(tx *gorm.DB, userID users.UserID, amount int64, reason Reason, description string, refs RelatedRefs) (Transaction, error) {
	if amount <= 0 {
		return Transaction{}, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}

	result := tx.Model(&users.User{}).
		Where("user_id = ? AND coin_balance >= ?", userID.String(), amount).
		Update("coin_balance", gorm.Expr("coin_balance - ?", amount))
	if result.Error != nil {
		return Transaction{}, result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := tx.Model(&users.User{}).Where("user_id = ?", userID.String()).Count(&count).Error; err != nil {
			return Transaction{}, err
		}
		if count == 0 {
			return Transaction{}, ErrUserNotFound
		}
		return Transaction{}, ErrInsufficientBalance
	}

	return s.appendRow(tx, userID, -amount, reason, description, refs)
}

func (s *Service) appendRow(tx *gorm.DB, userID users.UserID, signedAmount int64, reason Reason, description string, refs RelatedRefs) (Transaction, error) {
	var account users.User
	if err := tx.Where("user_id = ?", userID.String()).Take(&account).Error; err != nil {
		return Transaction{}, err
	}

	rowID, err := s.idProvider.NewID()
	if err != nil {
		return Transaction{}, err
	}

	row := Transaction{
		TransactionID:  rowID,
		UserID:         userID.String(),
		Reason:         reason,
		Amount:         signedAmount,
		BalanceAfter:   account.CoinBalance,
		Description:    description,
		RelatedUserID:  refs.UserID,
		RelatedEntryID: refs.EntryID,
		Status:         StatusCompleted,
		CreatedAt:      s.clock().UTC(),
	}
	if err := tx.Create(&row).Error; err != nil {
		return Transaction{}, err
	}

	s.logger.Debug("coin ledger row appended",
		zap.String("user_id", userID.String()),
		zap.String("reason", string(reason)),
		zap.Int64("amount", signedAmount),
		zap.Int64("balance_after", account.CoinBalance))

	return row, nil
}

// Balance returns the denormalized balance for the account.
func (s *Service) Balance(ctx context.Context, userID users.UserID) (int64, error) {
	var account users.User
	err := s.db.WithContext(ctx).Where("user_id = ?", userID.String()).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, err
	}
	return account.CoinBalance, nil
}

// History returns the most recent ledger rows for the account.
func (s *Service) History(ctx context.Context, userID users.UserID, limit, offset int) ([]Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	var rows []Transaction
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID.String()).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// LedgerSum returns the sum of all ledger amounts for the account. Used by
// consistency checks: it must always equal the denormalized balance.
func (s *Service) LedgerSum(ctx context.Context, userID users.UserID) (int64, error) {
	var total struct {
		Sum int64
	}
	err := s.db.WithContext(ctx).Model(&Transaction{}).
		Select("COALESCE(SUM(amount), 0) AS sum").
		Where("user_id = ?", userID.String()).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total.Sum, nil
}

// SpinWheel grants the once-per-day wheel reward, between 5 and 50 coins.
func (s *Service) SpinWheel(ctx context.Context, userID users.UserID) (Transaction, error) {
	today := period.Day(s.clock())
	var row Transaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Claim today's spin atomically; zero rows means it was already spent.
		result := tx.Model(&users.User{}).
			Where("user_id = ? AND last_spin_day <> ?", userID.String(), today).
			Update("last_spin_day", today)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&users.User{}).Where("user_id = ?", userID.String()).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ErrUserNotFound
			}
			return ErrAlreadySpunToday
		}

		coinsWon := int64(s.randInt(46) + 5)
		var txErr error
		row, txErr = s.AwardTx(tx, userID, coinsWon, ReasonSpinWheel, "Daily spin wheel reward", RelatedRefs{})
		return txErr
	})
	return row, err
}

// ErrAlreadySpunToday indicates the daily wheel reward was already claimed.
var ErrAlreadySpunToday = errors.New("coin: wheel already spun today")
