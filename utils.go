package settlement

import (
	"fmt"
	"slices"
	"time"
)

// DayKey formats the calendar day of t, ignoring the clock
func DayKey(t time.Time) string {
	return t.Format(DayLayout)
}

// ParseDay parses a YYYY-MM-DD day into midnight UTC
func ParseDay(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DayLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse day %q: %w", s, err)
	}
	return t, nil
}

// StartOfDay truncates t to midnight in its own location
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// ValidateDateRange checks start <= end and that the window spans at most maxDays days
func ValidateDateRange(start, end time.Time, maxDays int) error {
	start, end = StartOfDay(start), StartOfDay(end)
	if end.Before(start) {
		return fmt.Errorf("%w: start %s is after end %s", ErrInvalidDateRange, DayKey(start), DayKey(end))
	}
	if maxDays > 0 {
		days := int(end.Sub(start).Hours()/24) + 1
		if days > maxDays {
			return fmt.Errorf("%w: %d days exceeds limit of %d", ErrInvalidDateRange, days, maxDays)
		}
	}
	return nil
}

// ValidateDrawID validates a draw id parameter
func ValidateDrawID(drawID int64) error {
	if drawID <= 0 {
		return ErrInvalidDrawID
	}
	return nil
}

// lockKeysFor returns the sorted, de-duplicated batch lock keys of the given result keys
func lockKeysFor(keys map[ResultKey]struct{}) []string {
	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, "draw:"+k.String())
	}
	slices.Sort(out)
	return out
}
