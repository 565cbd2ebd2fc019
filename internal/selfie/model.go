package selfie

import "time"

// Selfie is one daily-challenge submission. The unique index enforces one
// submission per user per challenge day at the storage layer.
type Selfie struct {
	SelfieID      string    `gorm:"column:selfie_id;primaryKey;size:190;not null"`
	OwnerID       string    `gorm:"column:owner_id;size:190;not null;uniqueIndex:idx_selfies_owner_day,priority:1"`
	ChallengeDate string    `gorm:"column:challenge_date;size:10;not null;uniqueIndex:idx_selfies_owner_day,priority:2;index:idx_selfies_day_votes,priority:1"`
	Theme         string    `gorm:"column:theme;size:64;not null"`
	ImageURL      string    `gorm:"column:image_url;size:512;not null"`
	MediaKey      string    `gorm:"column:media_key;size:512;not null;default:''"`
	VotesCount    int64     `gorm:"column:votes_count;not null;default:0;index:idx_selfies_day_votes,priority:2,sort:desc"`
	Active        bool      `gorm:"column:active;not null;default:true"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Selfie) TableName() string {
	return "daily_selfies"
}

// Themes rotate by day of year, matching the original challenge calendar.
var themes = []string{
	"Golden Hour Glow",
	"Mirror Selfie",
	"Nature Background",
	"Black & White",
	"Smile Challenge",
	"Creative Angle",
	"Outfit of the Day",
	"Morning Vibes",
	"Sunset Mood",
	"Artistic Shadow",
	"Cozy Corner",
	"Street Style",
	"Minimalist",
	"Color Pop",
	"Vintage Filter",
}

// ThemeFor returns the challenge theme for the given moment.
func ThemeFor(now time.Time) string {
	return themes[now.UTC().YearDay()%len(themes)]
}
