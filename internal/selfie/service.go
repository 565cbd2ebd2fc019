package selfie

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/showoff-life/showoff-backend/internal/coin"
	"github.com/showoff-life/showoff-backend/internal/media"
	"github.com/showoff-life/showoff-backend/internal/period"
	"github.com/showoff-life/showoff-backend/internal/users"
)

// Coins granted for taking part in the daily challenge.
const participationCoins = 5

var (
	// ErrDuplicateSubmission indicates the owner already submitted today.
	ErrDuplicateSubmission = errors.New("selfie: already submitted today")
	// ErrNotFound indicates the selfie does not exist.
	ErrNotFound = errors.New("selfie: not found")
	// ErrMissingImage indicates a submission without an image upload.
	ErrMissingImage = errors.New("selfie: image upload is required")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingMediaStore = errors.New("media store is required")
	errMissingLedger     = errors.New("coin ledger is required")
	noOpLogger           = zap.NewNop()
)

// IDProvider issues selfie identifiers.
type IDProvider interface {
	NewID() (string, error)
}

// Ledger is the slice of the coin ledger the participation award uses.
type Ledger interface {
	AwardTx(tx *gorm.DB, userID users.UserID, amount int64, reason coin.Reason, description string, refs coin.RelatedRefs) (coin.Transaction, error)
}

// ServiceConfig describes the daily selfie store dependencies.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Media      media.Store
	Ledger     Ledger
	Logger     *zap.Logger
}

// Service manages daily selfie challenge submissions.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	media      media.Store
	ledger     Ledger
	logger     *zap.Logger
}

// NewService constructs the daily selfie service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	if cfg.Media == nil {
		return nil, errMissingMediaStore
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
		media:      cfg.Media,
		ledger:     cfg.Ledger,
		logger:     logger,
	}, nil
}

// Upload carries the image blob.
type Upload struct {
	Filename    string
	ContentType string
	Content     io.Reader
}

// Submit stores today's selfie for the owner and grants the participation
// award inside the same transaction as the insert.
func (s *Service) Submit(ctx context.Context, owner users.UserID, upload *Upload) (Selfie, error) {
	if upload == nil || upload.Content == nil {
		return Selfie{}, ErrMissingImage
	}

	now := s.clock().UTC()
	challengeDate := period.Day(now)

	selfieID, err := s.idProvider.NewID()
	if err != nil {
		return Selfie{}, err
	}

	ext := strings.ToLower(path.Ext(path.Base(strings.TrimSpace(upload.Filename))))
	if ext == "" {
		ext = ".jpg"
	}
	imageKey := fmt.Sprintf("selfies/%s/%s%s", challengeDate, selfieID, ext)
	imageURL, err := s.media.Put(ctx, imageKey, upload.ContentType, upload.Content)
	if err != nil {
		return Selfie{}, err
	}

	record := Selfie{
		SelfieID:      selfieID,
		OwnerID:       owner.String(),
		ChallengeDate: challengeDate,
		Theme:         ThemeFor(now),
		ImageURL:      imageURL,
		MediaKey:      imageKey,
		Active:        true,
		CreatedAt:     now,
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		_, err := s.ledger.AwardTx(tx, owner, participationCoins, coin.ReasonDailySelfie,
			"Daily selfie challenge participation", coin.RelatedRefs{})
		return err
	})
	if txErr != nil {
		if derr := s.media.Delete(ctx, imageKey); derr != nil {
			s.logger.Warn("failed to discard selfie media", zap.String("key", imageKey), zap.Error(derr))
		}
		if errors.Is(txErr, gorm.ErrDuplicatedKey) || strings.Contains(txErr.Error(), "UNIQUE constraint failed") {
			return Selfie{}, ErrDuplicateSubmission
		}
		return Selfie{}, txErr
	}

	s.logger.Info("daily selfie submitted",
		zap.String("selfie_id", selfieID),
		zap.String("owner_id", owner.String()),
		zap.String("challenge_date", challengeDate))

	return record, nil
}

// Get returns one selfie.
func (s *Service) Get(ctx context.Context, selfieID string) (Selfie, error) {
	var record Selfie
	err := s.db.WithContext(ctx).Where("selfie_id = ?", selfieID).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Selfie{}, ErrNotFound
	}
	if err != nil {
		return Selfie{}, err
	}
	return record, nil
}

// ListForDay returns active selfies for a challenge day, newest first.
func (s *Service) ListForDay(ctx context.Context, challengeDate string, limit int) ([]Selfie, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var records []Selfie
	err := s.db.WithContext(ctx).
		Where("challenge_date = ? AND active = ?", challengeDate, true).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Leaderboard returns the top-voted selfies for a challenge day.
func (s *Service) Leaderboard(ctx context.Context, challengeDate string, limit int) ([]Selfie, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	var records []Selfie
	err := s.db.WithContext(ctx).
		Where("challenge_date = ? AND active = ?", challengeDate, true).
		Order("votes_count DESC, created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
