package entry

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/showoff-life/showoff-backend/internal/period"
)

// Category enumerates the talent showcase categories.
type Category string

const (
	CategorySinging Category = "singing"
	CategoryDancing Category = "dancing"
	CategoryComedy  Category = "comedy"
	CategoryActing  Category = "acting"
	CategoryMusic   Category = "music"
	CategoryArt     Category = "art"
	CategoryOther   Category = "other"
)

// ErrInvalidCategory indicates an unknown showcase category.
var ErrInvalidCategory = errors.New("entry: invalid category")

// ParseCategory validates raw input and returns a Category.
func ParseCategory(rawInput string) (Category, error) {
	switch candidate := Category(strings.TrimSpace(strings.ToLower(rawInput))); candidate {
	case CategorySinging, CategoryDancing, CategoryComedy, CategoryActing, CategoryMusic, CategoryArt, CategoryOther:
		return candidate, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidCategory, rawInput)
	}
}

// Entry is one user submission competing inside a single period. The
// composite unique index makes "one submission per user per period" a
// storage guarantee, not a check-then-insert race.
type Entry struct {
	EntryID         string      `gorm:"column:entry_id;primaryKey;size:190;not null"`
	OwnerID         string      `gorm:"column:owner_id;size:190;not null;uniqueIndex:idx_entries_owner_period,priority:1"`
	CompetitionType period.Type `gorm:"column:competition_type;size:16;not null;uniqueIndex:idx_entries_owner_period,priority:2;index:idx_entries_period_votes,priority:1"`
	PeriodID        string      `gorm:"column:period_id;size:64;not null;uniqueIndex:idx_entries_owner_period,priority:3;index:idx_entries_period_votes,priority:2"`
	Title           string      `gorm:"column:title;size:200;not null"`
	Description     string      `gorm:"column:description;size:1000"`
	Category        Category    `gorm:"column:category;size:16;not null"`
	VideoURL        string      `gorm:"column:video_url;size:512;not null"`
	ThumbnailURL    string      `gorm:"column:thumbnail_url;size:512;not null;default:''"`
	StreamURL       string      `gorm:"column:stream_url;size:512;not null;default:''"`
	MediaKey        string      `gorm:"column:media_key;size:512;not null;default:''"`
	ViewsCount      int64       `gorm:"column:views_count;not null;default:0"`
	VotesCount      int64       `gorm:"column:votes_count;not null;default:0;index:idx_entries_period_votes,priority:3,sort:desc"`
	CoinsAccrued    int64       `gorm:"column:coins_accrued;not null;default:0"`
	IsWinner        bool        `gorm:"column:is_winner;not null;default:false"`
	WinnerPosition  int         `gorm:"column:winner_position;not null;default:0"`
	PrizeCoins      int64       `gorm:"column:prize_coins;not null;default:0"`
	Approved        bool        `gorm:"column:approved;not null;default:true"`
	Active          bool        `gorm:"column:active;not null;default:true"`
	CreatedAt       time.Time   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time   `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Entry) TableName() string {
	return "showcase_entries"
}
