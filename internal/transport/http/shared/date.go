package shared

import (
	"errors"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// ErrDateHasClock rejects timestamps where a calendar day is expected.
var ErrDateHasClock = errors.New("date must not carry a time of day")

// ParseDate reads a payroll calendar day. A full RFC3339 timestamp is only
// accepted at midnight UTC, so a pay date never shifts across a day boundary.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	if !strings.Contains(value, "T") {
		return time.Parse(dateLayout, value)
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, err
	}
	parsed = parsed.UTC()
	if !parsed.Equal(parsed.Truncate(24 * time.Hour)) {
		return time.Time{}, ErrDateHasClock
	}
	return parsed, nil
}
