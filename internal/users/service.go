package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

var (
	// ErrNotFound indicates the requested account does not exist.
	ErrNotFound = errors.New("users: not found")
	// ErrUsernameTaken indicates the requested username is already registered.
	ErrUsernameTaken = errors.New("users: username taken")

	errMissingDatabase = errors.New("users: database connection required")
)

// ServiceConfig describes the dependencies required for account management.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service manages account records.
type Service struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{db: cfg.Database, clock: clock}, nil
}

// RegisterParams carries the fields supplied when creating an account.
type RegisterParams struct {
	UserID      UserID
	Username    string
	DisplayName string
	AvatarURL   string
	IsAdmin     bool
}

// Register creates a new account. The username must be unique.
func (s *Service) Register(ctx context.Context, params RegisterParams) (User, error) {
	username := strings.TrimSpace(params.Username)
	if username == "" {
		return User{}, fmt.Errorf("%w: empty", ErrInvalidUsername)
	}
	if len(username) > 64 {
		return User{}, fmt.Errorf("%w: exceeds 64 characters", ErrInvalidUsername)
	}

	account := User{
		UserID:           params.UserID.String(),
		Username:         username,
		DisplayName:      strings.TrimSpace(params.DisplayName),
		AvatarURL:        strings.TrimSpace(params.AvatarURL),
		SubscriptionTier: "free",
		IsAdmin:          params.IsAdmin,
		CreatedAt:        s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return User{}, ErrUsernameTaken
		}
		return User{}, err
	}
	return account, nil
}

// Get returns the account for the given identifier.
func (s *Service) Get(ctx context.Context, userID UserID) (User, error) {
	var account User
	err := s.db.WithContext(ctx).Where("user_id = ?", userID.String()).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	return account, nil
}

// ProfilePatch carries optional profile field updates. Nil fields are left
// untouched.
type ProfilePatch struct {
	DisplayName *string
	AvatarURL   *string
}

// UpdateProfile applies non-nil patch fields to the account.
func (s *Service) UpdateProfile(ctx context.Context, userID UserID, patch ProfilePatch) (User, error) {
	updates := map[string]interface{}{}
	if patch.DisplayName != nil {
		updates["display_name"] = strings.TrimSpace(*patch.DisplayName)
	}
	if patch.AvatarURL != nil {
		updates["avatar_url"] = strings.TrimSpace(*patch.AvatarURL)
	}
	if len(updates) > 0 {
		result := s.db.WithContext(ctx).Model(&User{}).
			Where("user_id = ?", userID.String()).
			Updates(updates)
		if result.Error != nil {
			return User{}, result.Error
		}
		if result.RowsAffected == 0 {
			return User{}, ErrNotFound
		}
	}
	return s.Get(ctx, userID)
}
