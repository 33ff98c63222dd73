// Package search wraps pluggable search backends with the daily quota gate,
// the "still processing" retry, and redirect unwrapping.
package search

import (
	"context"
	"errors"

	"github.com/JakeFAU/report-discovery/internal/discovery"
)

// ErrMissingCredentials is returned when a backend that needs an API key has none.
var ErrMissingCredentials = errors.New("missing search credentials")

// Status classifies a backend answer.
type Status int

// Backend answer classes.
const (
	StatusOK Status = iota
	StatusProcessing
	StatusUnavailable
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusProcessing:
		return "processing"
	default:
		return "unavailable"
	}
}

// Response is one backend answer. Results may carry wrapped redirect URLs.
type Response struct {
	Status  Status
	Results []discovery.SearchResult
	// Detail explains a non-OK status.
	Detail string
}

// Backend issues exactly one remote request per Search call.
type Backend interface {
	Name() string
	Search(ctx context.Context, query string, limit int) (Response, error)
}

// Getter performs a single GET and returns the response whatever its status.
type Getter interface {
	Get(ctx context.Context, rawURL string) (discovery.Page, error)
}
