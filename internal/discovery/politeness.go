package discovery

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"
)

// Pauser abstracts how the pipeline waits between requests.
type Pauser interface {
	Pause(ctx context.Context, delay time.Duration)
}

// TimerPauser sleeps on a timer and returns early when ctx is done.
type TimerPauser struct{}

// Pause blocks for delay or until ctx is canceled.
func (TimerPauser) Pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// DelayRange is an inclusive jitter window for politeness delays.
type DelayRange struct {
	Min time.Duration
	Max time.Duration
}

// Default politeness windows.
var (
	DefaultQueryDelay  = DelayRange{Min: 2 * time.Second, Max: 3 * time.Second}
	DefaultPageDelay   = DelayRange{Min: 2 * time.Second, Max: 3 * time.Second}
	DefaultEntityDelay = DelayRange{Min: 3 * time.Second, Max: 5 * time.Second}
)

// Pick returns a random duration in [Min, Max].
func (r DelayRange) Pick() time.Duration {
	if r.Max <= r.Min {
		return max(r.Min, 0)
	}
	span := big.NewInt(int64(r.Max-r.Min) + 1)
	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return r.Min + (r.Max-r.Min)/2
	}
	return r.Min + time.Duration(n.Int64())
}
