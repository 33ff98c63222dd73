// Package memory is an in-process quota ledger for tests and dry runs.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/report-discovery/internal/discovery"
	"github.com/JakeFAU/report-discovery/internal/quota"
)

// Tracker counts requests per calendar day in memory.
type Tracker struct {
	mu     sync.Mutex
	clock  discovery.Clock
	counts map[string]int
}

// New returns an empty tracker.
func New(clock discovery.Clock) *Tracker {
	return &Tracker{clock: quota.ClockOrSystem(clock), counts: make(map[string]int)}
}

// Remaining implements discovery.QuotaTracker.
func (t *Tracker) Remaining(_ context.Context, limit int) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return quota.Remaining(limit, t.counts[quota.Day(t.clock)]), nil
}

// Consume implements discovery.QuotaTracker.
func (t *Tracker) Consume(_ context.Context) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	day := quota.Day(t.clock)
	t.counts[day]++
	return t.counts[day], nil
}

// Close is a no-op.
func (t *Tracker) Close() error { return nil }
