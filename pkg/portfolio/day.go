package portfolio

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DayBoundary is the fixed wall-clock instant (UTC) at which daily risk
// counters reset.
type DayBoundary struct {
	Hour   int
	Minute int
}

// ParseDayBoundary parses "HH:MM". An empty string means midnight UTC.
func ParseDayBoundary(raw string) (DayBoundary, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DayBoundary{}, nil
	}
	parts := strings.Split(raw, ":")
	if len(parts) != 2 {
		return DayBoundary{}, fmt.Errorf("portfolio: invalid day boundary %q, want HH:MM", raw)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return DayBoundary{}, fmt.Errorf("portfolio: invalid day boundary hour %q", parts[0])
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return DayBoundary{}, fmt.Errorf("portfolio: invalid day boundary minute %q", parts[1])
	}
	return DayBoundary{Hour: hour, Minute: minute}, nil
}

// StartFor returns the most recent boundary instant at or before t.
func (b DayBoundary) StartFor(t time.Time) time.Time {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), t.Day(), b.Hour, b.Minute, 0, 0, time.UTC)
	if start.After(t) {
		start = start.AddDate(0, 0, -1)
	}
	return start
}

// NextAfter returns the first boundary instant strictly after t.
func (b DayBoundary) NextAfter(t time.Time) time.Time {
	return b.StartFor(t).AddDate(0, 0, 1)
}
