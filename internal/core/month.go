package core

import (
	"fmt"
	"time"
)

// MonthKey identifies a calendar month as "YYYY-MM" in UTC.
// Budget spend counters are always scoped to a single MonthKey.
type MonthKey string

// MonthKeyOf returns the MonthKey containing the given instant.
func MonthKeyOf(t time.Time) MonthKey {
	return MonthKey(t.UTC().Format("2006-01"))
}

// CurrentMonthKey returns the MonthKey for the current wall clock.
func CurrentMonthKey() MonthKey {
	return MonthKeyOf(time.Now())
}

// ParseMonthKey validates a "YYYY-MM" string and returns it as a MonthKey.
func ParseMonthKey(s string) (MonthKey, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	return MonthKeyOf(t), nil
}

// Range returns the half-open interval [start, end) covered by the month.
func (mk MonthKey) Range() (time.Time, time.Time) {
	t, err := time.Parse("2006-01", string(mk))
	if err != nil {
		return time.Time{}, time.Time{}
	}
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// Before reports whether mk is an earlier month than other.
// Lexicographic order matches chronological order for the fixed format.
func (mk MonthKey) Before(other MonthKey) bool {
	return string(mk) < string(other)
}

// NeedsRollover reports whether a budget stamped with mk must have its
// spend counters reset before serving reads or applying deltas against
// the month identified by now. Any mismatch counts, including a stored
// month in the future of now (clock skew is resolved toward now).
func (mk MonthKey) NeedsRollover(now MonthKey) bool {
	return mk != now
}
