package competition

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/showoff-life/showoff-backend/internal/period"
)

var (
	// ErrNoActiveCompetition indicates no open competition covers the moment.
	ErrNoActiveCompetition = errors.New("competition: no active competition")
	// ErrNotFound indicates the competition does not exist.
	ErrNotFound = errors.New("competition: not found")
	// ErrInvalidWindow indicates the start date is not before the end date.
	ErrInvalidWindow = errors.New("competition: start must be before end")
	// ErrWindowOverlap indicates another open competition of the same type overlaps.
	ErrWindowOverlap = errors.New("competition: overlapping open competition of same type")
	// ErrMissingPeriodID indicates a custom competition was created without a period identifier.
	ErrMissingPeriodID = errors.New("competition: custom competitions require a period id")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// IDProvider issues competition identifiers.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the registry dependencies.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service is the competition registry.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService constructs the competition registry.
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
	return &Service{db: cfg.Database, clock: clock, idProvider: cfg.IDProvider, logger: logger}, nil
}

// CreateParams carries operator input for a new competition.
type CreateParams struct {
	Type        period.Type
	Title       string
	Description string
	StartAt     time.Time
	EndAt       time.Time
	// PeriodID is required for custom competitions and ignored otherwise.
	PeriodID string
	// Prizes defaults to the 1000/500/250 schedule when empty.
	Prizes []Prize
}

// Create registers a new competition window. Overlapping open windows of the
// same type are rejected so at most one competition per type is active at
// any moment.
func (s *Service) Create(ctx context.Context, params CreateParams) (Competition, error) {
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return Competition{}, fmt.Errorf("competition: title is required")
	}
	startAt := params.StartAt.UTC()
	endAt := params.EndAt.UTC()
	if !startAt.Before(endAt) {
		return Competition{}, ErrInvalidWindow
	}

	periodID := strings.TrimSpace(params.PeriodID)
	if params.Type == period.TypeCustom {
		if periodID == "" {
			return Competition{}, ErrMissingPeriodID
		}
	} else {
		resolved, err := period.Resolve(params.Type, startAt)
		if err != nil {
			return Competition{}, err
		}
		periodID = resolved
	}

	prizes := params.Prizes
	if len(prizes) == 0 {
		prizes = DefaultPrizes()
	}
	sort.Slice(prizes, func(i, j int) bool { return prizes[i].Position < prizes[j].Position })

	competitionID, err := s.idProvider.NewID()
	if err != nil {
		return Competition{}, err
	}

	record := Competition{
		CompetitionID: competitionID,
		Type:          params.Type,
		Title:         title,
		Description:   strings.TrimSpace(params.Description),
		StartAt:       startAt,
		EndAt:         endAt,
		PeriodID:      periodID,
		State:         StateOpen,
		CreatedAt:     s.clock().UTC(),
	}
	for i := range prizes {
		prizes[i].CompetitionID = competitionID
	}
	record.Prizes = prizes

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var overlapping int64
		err := tx.Model(&Competition{}).
			Where("competition_type = ? AND state = ? AND start_at <= ? AND end_at >= ?",
				params.Type, StateOpen, endAt, startAt).
			Count(&overlapping).Error
		if err != nil {
			return err
		}
		if overlapping > 0 {
			return ErrWindowOverlap
		}
		return tx.Create(&record).Error
	})
	if txErr != nil {
		return Competition{}, txErr
	}

	s.logger.Info("competition created",
		zap.String("competition_id", competitionID),
		zap.String("type", params.Type.String()),
		zap.String("period_id", periodID))

	return record, nil
}

// GetActive returns the competition of the given type whose window contains
// now and whose state is open. When several rows match, the earliest start
// date wins so the result is deterministic.
func (s *Service) GetActive(ctx context.Context, competitionType period.Type, now time.Time) (Competition, error) {
	moment := now.UTC()
	var record Competition
	err := s.db.WithContext(ctx).
		Preload("Prizes").
		Where("competition_type = ? AND state = ? AND start_at <= ? AND end_at >= ?",
			competitionType, StateOpen, moment, moment).
		Order("start_at ASC").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Competition{}, ErrNoActiveCompetition
	}
	if err != nil {
		return Competition{}, err
	}
	return record, nil
}

// ActivePeriod reports the period identifier of the active competition for
// the type. Submission and leaderboard paths key off this single check.
func (s *Service) ActivePeriod(ctx context.Context, competitionType period.Type, now time.Time) (string, error) {
	record, err := s.GetActive(ctx, competitionType, now)
	if err != nil {
		return "", err
	}
	return record.PeriodID, nil
}

// PrizeSchedule returns the ordered prize rows for the competition covering
// (type, periodID). Winner disbursement reads amounts from here; nothing is
// hardcoded in the award path.
func (s *Service) PrizeSchedule(ctx context.Context, competitionType period.Type, periodID string) ([]Prize, error) {
	return s.PrizeScheduleTx(s.db.WithContext(ctx), competitionType, periodID)
}

// PrizeScheduleTx is PrizeSchedule inside the caller's transaction. Callers
// that already hold an open transaction must read through it: the connection
// pool may be capped at one connection, and a second checkout would wait on
// the connection the transaction holds.
func (s *Service) PrizeScheduleTx(tx *gorm.DB, competitionType period.Type, periodID string) ([]Prize, error) {
	var record Competition
	err := tx.
		Preload("Prizes").
		Where("competition_type = ? AND period_id = ?", competitionType, periodID).
		Order("start_at ASC").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	prizes := record.Prizes
	sort.Slice(prizes, func(i, j int) bool { return prizes[i].Position < prizes[j].Position })
	return prizes, nil
}

// List returns all competitions, newest window first.
func (s *Service) List(ctx context.Context) ([]Competition, error) {
	var records []Competition
	err := s.db.WithContext(ctx).
		Preload("Prizes").
		Order("start_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Get returns one competition by identifier.
func (s *Service) Get(ctx context.Context, competitionID string) (Competition, error) {
	var record Competition
	err := s.db.WithContext(ctx).
		Preload("Prizes").
		Where("competition_id = ?", competitionID).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Competition{}, ErrNotFound
	}
	if err != nil {
		return Competition{}, err
	}
	return record, nil
}

// UpdateParams carries optional operator edits. Nil fields are untouched.
type UpdateParams struct {
	Title       *string
	Description *string
	StartAt     *time.Time
	EndAt       *time.Time
	State       *State
	Prizes      []Prize
}

// Update applies operator edits to a competition.
func (s *Service) Update(ctx context.Context, competitionID string, params UpdateParams) (Competition, error) {
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record Competition
		err := tx.Where("competition_id = ?", competitionID).Take(&record).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		updates := map[string]interface{}{}
		if params.Title != nil {
			updates["title"] = strings.TrimSpace(*params.Title)
		}
		if params.Description != nil {
			updates["description"] = strings.TrimSpace(*params.Description)
		}
		startAt := record.StartAt
		endAt := record.EndAt
		if params.StartAt != nil {
			startAt = params.StartAt.UTC()
			updates["start_at"] = startAt
		}
		if params.EndAt != nil {
			endAt = params.EndAt.UTC()
			updates["end_at"] = endAt
		}
		if !startAt.Before(endAt) {
			return ErrInvalidWindow
		}
		// A moved window can land in another period; standard types derive
		// the period from the start date, so keep the stored one in step.
		if params.StartAt != nil && record.Type != period.TypeCustom {
			resolved, err := period.Resolve(record.Type, startAt)
			if err != nil {
				return err
			}
			if resolved != record.PeriodID {
				updates["period_id"] = resolved
			}
		}
		if params.State != nil {
			updates["state"] = *params.State
		}
		if len(updates) > 0 {
			if err := tx.Model(&Competition{}).Where("competition_id = ?", competitionID).Updates(updates).Error; err != nil {
				return err
			}
		}

		if len(params.Prizes) > 0 {
			if err := tx.Where("competition_id = ?", competitionID).Delete(&Prize{}).Error; err != nil {
				return err
			}
			prizes := params.Prizes
			for i := range prizes {
				prizes[i].CompetitionID = competitionID
			}
			if err := tx.Create(&prizes).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if txErr != nil {
		return Competition{}, txErr
	}
	return s.Get(ctx, competitionID)
}

// Delete removes a competition and its prize schedule.
func (s *Service) Delete(ctx context.Context, competitionID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("competition_id = ?", competitionID).Delete(&Competition{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Where("competition_id = ?", competitionID).Delete(&Prize{}).Error
	})
}

// DeactivateExpired closes every open competition whose window has passed
// and returns how many rows changed. This is the only transition that
// retires a window; GetActive already refuses windows outside their dates,
// so a missed run cannot resurrect a stale competition.
func (s *Service) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Model(&Competition{}).
		Where("state = ? AND end_at < ?", StateOpen, now.UTC()).
		Update("state", StateClosed)
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		s.logger.Info("expired competitions closed", zap.Int64("count", result.RowsAffected))
	}
	return result.RowsAffected, nil
}
