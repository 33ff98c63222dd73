// Package quota holds what the daily request ledgers share. Implementations
// live in the subpackages and satisfy discovery.QuotaTracker.
package quota

import (
	"time"

	"github.com/JakeFAU/report-discovery/internal/discovery"
)

// DayLayout formats the calendar-date key of a ledger row.
const DayLayout = "2006-01-02"

// Day returns the local calendar date of clock's current time.
func Day(clock discovery.Clock) string {
	return clock.Now().Format(DayLayout)
}

// Remaining clamps limit-used at zero.
func Remaining(limit, used int) int {
	return max(limit-used, 0)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// ClockOrSystem returns c, or the wall clock when c is nil.
func ClockOrSystem(c discovery.Clock) discovery.Clock {
	if c == nil {
		return systemClock{}
	}
	return c
}
