package discovery

import (
	"context"
	"time"
)

// Defaults for re-issuing requests answered with "accepted, still processing".
const (
	DefaultProcessingAttempts = 3
	DefaultProcessingBackoff  = 5 * time.Second
)

// ProcessingRetry re-issues a request while the remote side reports it is
// still processing, waiting a fixed interval between attempts.
type ProcessingRetry struct {
	attempts int
	backoff  time.Duration
	pauser   Pauser
}

// NewProcessingRetry builds a retry helper. A negative attempt count or a
// non-positive backoff falls back to the defaults.
func NewProcessingRetry(attempts int, backoff time.Duration, pauser Pauser) *ProcessingRetry {
	if attempts < 0 {
		attempts = DefaultProcessingAttempts
	}
	if backoff <= 0 {
		backoff = DefaultProcessingBackoff
	}
	if pauser == nil {
		pauser = TimerPauser{}
	}
	return &ProcessingRetry{attempts: attempts, backoff: backoff, pauser: pauser}
}

// Attempts returns the number of re-issues allowed after the first request.
func (p *ProcessingRetry) Attempts() int { return p.attempts }

// Do calls fn until it reports a settled answer, returns an error, or the
// retry budget is spent. It returns true when the last answer was still
// "processing".
func (p *ProcessingRetry) Do(ctx context.Context, fn func(attempt int) (processing bool, err error)) (bool, error) {
	for attempt := 0; ; attempt++ {
		processing, err := fn(attempt)
		if err != nil {
			return false, err
		}
		if !processing {
			return false, nil
		}
		if attempt >= p.attempts {
			return true, nil
		}
		p.pauser.Pause(ctx, p.backoff)
		if err := ctx.Err(); err != nil {
			return true, err
		}
	}
}
