package discovery

import (
	"context"
	"time"
)

// Searcher issues one query against a search backend.
type Searcher interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

// Fetcher retrieves a page body, failing with ErrFetchFailed on any non-200 outcome.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// Prober reports whether a URL resolves with a success status.
// Network errors count as "does not exist".
type Prober interface {
	Probe(ctx context.Context, url string) bool
}

// QuotaTracker is the durable daily request counter.
type QuotaTracker interface {
	// Remaining returns how many requests are left today under limit.
	Remaining(ctx context.Context, limit int) (int, error)
	// Consume records one request and returns today's new count.
	Consume(ctx context.Context) (int, error)
}

// RowSink persists output rows as each entity completes.
type RowSink interface {
	WriteRows(ctx context.Context, rows []OutputRow) error
	Close() error
}

// PageArchiver keeps a copy of fetched pages for later inspection.
type PageArchiver interface {
	Archive(ctx context.Context, page Page) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
