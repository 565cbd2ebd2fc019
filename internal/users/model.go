package users

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("users: invalid user id")
	// ErrInvalidUsername indicates a username that cannot be stored.
	ErrInvalidUsername = errors.New("users: invalid username")
)

// UserID represents a validated user identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// User models an account with its denormalized coin counters. The counters
// are mutated only by the coin ledger; every other package treats them as
// read-only.
type User struct {
	UserID           string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	Username         string    `gorm:"column:username;size:64;not null;uniqueIndex:idx_users_username"`
	DisplayName      string    `gorm:"column:display_name;size:320"`
	AvatarURL        string    `gorm:"column:avatar_url;size:512"`
	CoinBalance      int64     `gorm:"column:coin_balance;not null;default:0"`
	TotalCoinsEarned int64     `gorm:"column:total_coins_earned;not null;default:0"`
	SubscriptionTier string    `gorm:"column:subscription_tier;size:16;not null;default:free"`
	DailyAdsWatched  int       `gorm:"column:daily_ads_watched;not null;default:0"`
	LastAdWatchDay   string    `gorm:"column:last_ad_watch_day;size:10;not null;default:''"`
	AdCooldownUntil  int64     `gorm:"column:ad_cooldown_until_s;not null;default:0"`
	LastSpinDay      string    `gorm:"column:last_spin_day;size:10;not null;default:''"`
	IsAdmin          bool      `gorm:"column:is_admin;not null;default:false"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (User) TableName() string {
	return "users"
}
