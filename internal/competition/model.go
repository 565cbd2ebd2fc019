package competition

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/showoff-life/showoff-backend/internal/period"
)

// ErrInvalidState indicates an unknown lifecycle state.
var ErrInvalidState = errors.New("competition: invalid state")

// State is the single lifecycle field for a competition. A competition is
// treated as active only when it is open AND the clock is inside its window;
// there is no separate boolean flag to fall out of sync with the dates.
type State string

const (
	StateScheduled State = "scheduled"
	StateOpen      State = "open"
	StateClosed    State = "closed"
)

// ParseState validates raw input against the known lifecycle states.
func ParseState(rawInput string) (State, error) {
	switch State(strings.ToLower(strings.TrimSpace(rawInput))) {
	case StateScheduled:
		return StateScheduled, nil
	case StateOpen:
		return StateOpen, nil
	case StateClosed:
		return StateClosed, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidState, rawInput)
	}
}

// Competition models one competition window.
type Competition struct {
	CompetitionID string      `gorm:"column:competition_id;primaryKey;size:190;not null"`
	Type          period.Type `gorm:"column:competition_type;size:16;not null;index:idx_competitions_type_state,priority:1"`
	Title         string      `gorm:"column:title;size:200;not null"`
	Description   string      `gorm:"column:description;size:1000"`
	StartAt       time.Time   `gorm:"column:start_at;not null;index:idx_competitions_window,priority:1"`
	EndAt         time.Time   `gorm:"column:end_at;not null;index:idx_competitions_window,priority:2"`
	PeriodID      string      `gorm:"column:period_id;size:64;not null;index:idx_competitions_period"`
	State         State       `gorm:"column:state;size:16;not null;default:scheduled;index:idx_competitions_type_state,priority:2"`
	CreatedAt     time.Time   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time   `gorm:"column:updated_at;autoUpdateTime"`

	Prizes []Prize `gorm:"foreignKey:CompetitionID;references:CompetitionID"`
}

// TableName provides the explicit table binding for GORM.
func (Competition) TableName() string {
	return "competitions"
}

// Prize is one row of a competition's ordered prize schedule.
type Prize struct {
	CompetitionID string `gorm:"column:competition_id;primaryKey;size:190;not null"`
	Position      int    `gorm:"column:position;primaryKey;not null"`
	Coins         int64  `gorm:"column:coins;not null"`
	Badge         string `gorm:"column:badge;size:64"`
}

// TableName provides the explicit table binding for GORM.
func (Prize) TableName() string {
	return "competition_prizes"
}

// DefaultPrizes returns the schedule seeded when an operator supplies none.
func DefaultPrizes() []Prize {
	return []Prize{
		{Position: 1, Coins: 1000, Badge: "Gold"},
		{Position: 2, Coins: 500, Badge: "Silver"},
		{Position: 3, Coins: 250, Badge: "Bronze"},
	}
}
