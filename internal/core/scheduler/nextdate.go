package scheduler

import (
	"time"

	"github.com/agbanzy/Spendly-v4--sub000/internal/core/domain"
)

// NextDate computes the next firing date from a given date. Month and year
// steps are calendar-aware with end-of-month clamping, so a bill anchored on
// Jan 31 fires Feb 28 (or 29), not Mar 3, and monthly billing otherwise keeps
// its day-of-month.
func NextDate(from time.Time, freq domain.Frequency) time.Time {
	switch freq {
	case domain.Weekly:
		return from.AddDate(0, 0, 7)
	case domain.Monthly:
		return addMonths(from, 1)
	case domain.Quarterly:
		return addMonths(from, 3)
	case domain.Yearly:
		return addMonths(from, 12)
	default:
		return addMonths(from, 1)
	}
}

// addMonths avoids time.AddDate's day overflow by clamping to the last day
// of the target month.
func addMonths(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	first := time.Date(year, month+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if day > last {
		day = last
	}
	h, m, s := t.Clock()
	return time.Date(first.Year(), first.Month(), day, h, m, s, t.Nanosecond(), t.Location())
}
