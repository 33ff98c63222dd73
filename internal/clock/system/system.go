// Package system provides the wall clock.
package system

import "time"

// Clock reads time.Now in a fixed location. Calendar-day bookkeeping such as
// the quota ledger depends on that location.
type Clock struct {
	loc *time.Location
}

// New returns a clock in the process's local time zone.
func New() *Clock {
	return &Clock{loc: time.Local}
}

// NewIn returns a clock in loc; nil means UTC.
func NewIn(loc *time.Location) *Clock {
	if loc == nil {
		loc = time.UTC
	}
	return &Clock{loc: loc}
}

// Now implements discovery.Clock.
func (c *Clock) Now() time.Time {
	return time.Now().In(c.loc)
}
