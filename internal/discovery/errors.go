package discovery

import "errors"

var (
	// ErrQuotaExhausted means the daily search budget is spent. It stops the run.
	ErrQuotaExhausted = errors.New("daily request quota exhausted")
	// ErrSearchUnavailable means a search backend answered with a non-success status.
	ErrSearchUnavailable = errors.New("search backend unavailable")
	// ErrFetchFailed means a page could not be retrieved with a 200 status.
	ErrFetchFailed = errors.New("page fetch failed")
	// ErrNoCandidatesFound marks an entity for which nothing was found. It is an
	// outcome, not a failure, and never aborts a run.
	ErrNoCandidatesFound = errors.New("no candidates found")
)
