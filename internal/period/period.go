package period

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Type enumerates the supported competition cycles.
type Type string

const (
	TypeWeekly    Type = "weekly"
	TypeMonthly   Type = "monthly"
	TypeQuarterly Type = "quarterly"
	// TypeCustom competitions carry an operator-assigned period identifier
	// and cannot be resolved from a point in time.
	TypeCustom Type = "custom"
)

var (
	// ErrInvalidType indicates an unknown competition type.
	ErrInvalidType = errors.New("period: invalid competition type")
	// ErrCustomPeriod indicates a custom competition was passed to Resolve.
	ErrCustomPeriod = errors.New("period: custom competitions have operator-assigned periods")
)

// ParseType validates raw input and returns a Type.
func ParseType(rawInput string) (Type, error) {
	switch Type(strings.TrimSpace(strings.ToLower(rawInput))) {
	case TypeWeekly:
		return TypeWeekly, nil
	case TypeMonthly:
		return TypeMonthly, nil
	case TypeQuarterly:
		return TypeQuarterly, nil
	case TypeCustom:
		return TypeCustom, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidType, rawInput)
	}
}

// String returns the underlying type label.
func (t Type) String() string {
	return string(t)
}

// Resolve maps a point in time to the canonical period identifier for the
// given competition type. The moment is evaluated in UTC so every caller in
// the process buckets against the same clock.
//
// Weekly periods are anchored to January 1 of the year, not the ISO-8601
// Monday week start: week N covers days (N-1)*7..N*7-1 since Jan 1. Stored
// entries and votes carry these identifiers, so the anchor is preserved for
// compatibility rather than corrected to calendar convention.
func Resolve(competitionType Type, now time.Time) (string, error) {
	moment := now.UTC()
	year := moment.Year()

	switch competitionType {
	case TypeWeekly:
		janFirst := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		const sevenDays = 7 * 24 * time.Hour
		elapsed := moment.Sub(janFirst)
		week := int((elapsed + sevenDays - time.Nanosecond) / sevenDays)
		return fmt.Sprintf("%d-W%02d", year, week), nil
	case TypeMonthly:
		return fmt.Sprintf("%d-%02d", year, int(moment.Month())), nil
	case TypeQuarterly:
		quarter := (int(moment.Month()) + 2) / 3
		return fmt.Sprintf("%d-Q%d", year, quarter), nil
	case TypeCustom:
		return "", ErrCustomPeriod
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidType, competitionType)
	}
}

// Day returns the canonical UTC calendar-day identifier (YYYY-MM-DD) used by
// day-scoped uniqueness constraints.
func Day(now time.Time) string {
	return now.UTC().Format("2006-01-02")
}
