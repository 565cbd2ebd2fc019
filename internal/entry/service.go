package entry

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

	"github.com/showoff-life/showoff-backend/internal/competition"
	"github.com/showoff-life/showoff-backend/internal/media"
	"github.com/showoff-life/showoff-backend/internal/period"
	"github.com/showoff-life/showoff-backend/internal/users"
)

var (
	// ErrDuplicateSubmission indicates the owner already has an entry in the period.
	ErrDuplicateSubmission = errors.New("entry: already submitted for this period")
	// ErrNotFound indicates the entry does not exist.
	ErrNotFound = errors.New("entry: not found")
	// ErrMissingVideo indicates a submission without a video upload.
	ErrMissingVideo = errors.New("entry: video upload is required")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingRegistry   = errors.New("competition registry is required")
	errMissingMediaStore = errors.New("media store is required")
	noOpLogger           = zap.NewNop()
)

// IDProvider issues entry identifiers.
type IDProvider interface {
	NewID() (string, error)
}

// Registry is the slice of the competition registry submissions depend on.
type Registry interface {
	GetActive(ctx context.Context, competitionType period.Type, now time.Time) (competition.Competition, error)
}

// Enqueuer schedules background enrichment for a submitted entry inside the
// submission transaction.
type Enqueuer interface {
	EnqueueTx(tx *gorm.DB, kind string, payload interface{}) error
}

// ServiceConfig describes the entry store dependencies.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Registry   Registry
	Media      media.Store
	// Enqueuer is optional; without it submissions skip enrichment.
	Enqueuer Enqueuer
	Logger   *zap.Logger
}

// Service is the entry store.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	registry   Registry
	media      media.Store
	enqueuer   Enqueuer
	logger     *zap.Logger
}

// NewService constructs the entry store.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	if cfg.Registry == nil {
		return nil, errMissingRegistry
	}
	if cfg.Media == nil {
		return nil, errMissingMediaStore
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
		registry:   cfg.Registry,
		media:      cfg.Media,
		enqueuer:   cfg.Enqueuer,
		logger:     logger,
	}, nil
}

// Upload carries one uploaded blob.
type Upload struct {
	Filename    string
	ContentType string
	Content     io.Reader
}

// SubmitParams carries a showcase submission.
type SubmitParams struct {
	Owner           users.UserID
	CompetitionType period.Type
	Title           string
	Description     string
	Category        Category
	Video           *Upload
	Thumbnail       *Upload
}

// EnrichJobKind names the background enrichment task scheduled per entry.
const EnrichJobKind = "entry.enrich"

// EnrichPayload is the enrichment job payload, keyed by entity id so
// re-delivery is idempotent.
type EnrichPayload struct {
	EntryID string `json:"entry_id"`
}

// Submit stores the media, then inserts the entry under the active
// competition's period. The composite unique constraint is the duplicate
// guard: a concurrent second submission loses at the storage layer, not at
// an earlier existence check.
func (s *Service) Submit(ctx context.Context, params SubmitParams) (Entry, error) {
	if params.Video == nil || params.Video.Content == nil {
		return Entry{}, ErrMissingVideo
	}
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return Entry{}, fmt.Errorf("entry: title is required")
	}

	now := s.clock().UTC()
	active, err := s.registry.GetActive(ctx, params.CompetitionType, now)
	if err != nil {
		return Entry{}, err
	}

	entryID, err := s.idProvider.NewID()
	if err != nil {
		return Entry{}, err
	}

	videoKey := fmt.Sprintf("showcase/%s/video%s", entryID, safeExt(params.Video.Filename, ".mp4"))
	videoURL, err := s.media.Put(ctx, videoKey, params.Video.ContentType, params.Video.Content)
	if err != nil {
		return Entry{}, err
	}

	thumbnailURL := ""
	if params.Thumbnail != nil && params.Thumbnail.Content != nil {
		thumbKey := fmt.Sprintf("showcase/%s/thumb%s", entryID, safeExt(params.Thumbnail.Filename, ".jpg"))
		thumbnailURL, err = s.media.Put(ctx, thumbKey, params.Thumbnail.ContentType, params.Thumbnail.Content)
		if err != nil {
			s.discardMedia(ctx, videoKey)
			return Entry{}, err
		}
	}

	record := Entry{
		EntryID:         entryID,
		OwnerID:         params.Owner.String(),
		CompetitionType: params.CompetitionType,
		PeriodID:        active.PeriodID,
		Title:           title,
		Description:     strings.TrimSpace(params.Description),
		Category:        params.Category,
		VideoURL:        videoURL,
		ThumbnailURL:    thumbnailURL,
		MediaKey:        videoKey,
		Approved:        true,
		Active:          true,
		CreatedAt:       now,
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		if s.enqueuer != nil {
			return s.enqueuer.EnqueueTx(tx, EnrichJobKind, EnrichPayload{EntryID: entryID})
		}
		return nil
	})
	if txErr != nil {
		s.discardMedia(ctx, videoKey)
		if isUniqueViolation(txErr) {
			return Entry{}, ErrDuplicateSubmission
		}
		return Entry{}, txErr
	}

	s.logger.Info("showcase entry submitted",
		zap.String("entry_id", entryID),
		zap.String("owner_id", params.Owner.String()),
		zap.String("period_id", active.PeriodID))

	return record, nil
}

func (s *Service) discardMedia(ctx context.Context, key string) {
	if err := s.media.Delete(ctx, key); err != nil {
		s.logger.Warn("failed to discard media after rejected submission",
			zap.String("key", key), zap.Error(err))
	}
}

func safeExt(filename, fallback string) string {
	ext := strings.ToLower(path.Ext(path.Base(strings.TrimSpace(filename))))
	if ext == "" || strings.ContainsAny(ext, "/\\") {
		return fallback
	}
	return ext
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// ListFilter narrows period listings.
type ListFilter string

const (
	FilterAll     ListFilter = ""
	FilterWinners ListFilter = "winners"
)

// ListForPeriod returns approved, active entries for the period sorted by
// votes descending with newest-first tie-break.
func (s *Service) ListForPeriod(ctx context.Context, competitionType period.Type, periodID string, filter ListFilter) ([]Entry, error) {
	query := s.db.WithContext(ctx).
		Where("competition_type = ? AND period_id = ? AND approved = ? AND active = ?",
			competitionType, periodID, true, true)
	if filter == FilterWinners {
		query = query.Where("is_winner = ?", true)
	}
	var records []Entry
	if err := query.Order("votes_count DESC, created_at DESC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// Leaderboard returns the top entries of the active competition's period.
func (s *Service) Leaderboard(ctx context.Context, competitionType period.Type, now time.Time, limit int) ([]Entry, string, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	active, err := s.registry.GetActive(ctx, competitionType, now)
	if err != nil {
		return nil, "", err
	}
	var records []Entry
	err = s.db.WithContext(ctx).
		Where("competition_type = ? AND period_id = ? AND approved = ? AND active = ?",
			competitionType, active.PeriodID, true, true).
		Order("votes_count DESC, created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, "", err
	}
	return records, active.PeriodID, nil
}

// Get returns one entry.
func (s *Service) Get(ctx context.Context, entryID string) (Entry, error) {
	var record Entry
	err := s.db.WithContext(ctx).Where("entry_id = ?", entryID).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}
	return record, nil
}

// Approve marks an entry as approved for public listing.
func (s *Service) Approve(ctx context.Context, entryID string) error {
	return s.setFlag(ctx, entryID, "approved", true)
}

// Reject hides an entry from public listing. Music entries lose their
// backing media file: moderation retires the audio along with the entry.
func (s *Service) Reject(ctx context.Context, entryID string) error {
	record, err := s.Get(ctx, entryID)
	if err != nil {
		return err
	}
	if err := s.setFlag(ctx, entryID, "approved", false); err != nil {
		return err
	}
	if record.Category == CategoryMusic && record.MediaKey != "" {
		s.discardMedia(ctx, record.MediaKey)
	}
	return nil
}

// SetActive toggles an entry's visibility without touching approval.
func (s *Service) SetActive(ctx context.Context, entryID string, active bool) error {
	return s.setFlag(ctx, entryID, "active", active)
}

func (s *Service) setFlag(ctx context.Context, entryID, column string, value bool) error {
	result := s.db.WithContext(ctx).Model(&Entry{}).
		Where("entry_id = ?", entryID).
		Update(column, value)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementViews bumps the view counter atomically.
func (s *Service) IncrementViews(ctx context.Context, entryID string) error {
	result := s.db.WithContext(ctx).Model(&Entry{}).
		Where("entry_id = ?", entryID).
		Update("views_count", gorm.Expr("views_count + 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStreamURL records the enrichment output for an entry. Idempotent per
// entry: re-running the job writes the same value.
func (s *Service) SetStreamURL(ctx context.Context, entryID, streamURL string) error {
	result := s.db.WithContext(ctx).Model(&Entry{}).
		Where("entry_id = ?", entryID).
		Update("stream_url", streamURL)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
