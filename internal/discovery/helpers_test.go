package discovery

import (
	"context"
	"sync"
	"time"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

func clockAt(year int) fixedClock {
	return fixedClock{now: time.Date(year, time.June, 1, 12, 0, 0, 0, time.UTC)}
}

type noPause struct{}

func (noPause) Pause(context.Context, time.Duration) {}

// recordingPauser counts pauses without sleeping.
type recordingPauser struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingPauser) Pause(_ context.Context, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
}

// setProber answers true for URLs in live and records every probe.
type setProber struct {
	mu     sync.Mutex
	live   map[string]bool
	probed []string
}

func newSetProber(live ...string) *setProber {
	p := &setProber{live: make(map[string]bool)}
	for _, u := range live {
		p.live[u] = true
	}
	return p
}

func (p *setProber) Probe(_ context.Context, rawURL string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probed = append(p.probed, rawURL)
	return p.live[rawURL]
}

func (p *setProber) calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.probed...)
}

// memorySink keeps every written row.
type memorySink struct {
	mu     sync.Mutex
	rows   []OutputRow
	closed bool
	err    error
}

func (s *memorySink) WriteRows(_ context.Context, rows []OutputRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.rows = append(s.rows, rows...)
	return nil
}

func (s *memorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memorySink) written() []OutputRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]OutputRow(nil), s.rows...)
}

func newTestScorer(year int) *Scorer {
	return NewScorer(DefaultScoringRules(), clockAt(year))
}
