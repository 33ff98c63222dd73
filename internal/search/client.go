package search

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/report-discovery/internal/discovery"
	"github.com/JakeFAU/report-discovery/internal/metrics"
)

// Defaults for the client.
const (
	DefaultMaxResults = 10
	DefaultDailyLimit = 100
)

// Config bounds the client.
type Config struct {
	MaxResults int
	DailyLimit int
}

// Client implements discovery.Searcher on top of a Backend.
type Client struct {
	backend Backend
	quota   discovery.QuotaTracker
	retry   *discovery.ProcessingRetry
	cfg     Config
	logger  *zap.Logger
}

// NewClient wires a client. retry may be nil for the default three 5s re-issues.
func NewClient(backend Backend, quota discovery.QuotaTracker, retry *discovery.ProcessingRetry, cfg Config, logger *zap.Logger) *Client {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultMaxResults
	}
	if cfg.DailyLimit < 0 {
		cfg.DailyLimit = DefaultDailyLimit
	}
	if retry == nil {
		retry = discovery.NewProcessingRetry(discovery.DefaultProcessingAttempts, discovery.DefaultProcessingBackoff, nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{backend: backend, quota: quota, retry: retry, cfg: cfg, logger: logger}
}

// Search runs query against the backend. Every request issued, including
// re-issues of a processing answer, costs one unit of quota and is refused
// with discovery.ErrQuotaExhausted once the daily limit is reached. A query
// still processing after the last re-issue yields no results. Non-OK answers
// fail with discovery.ErrSearchUnavailable.
func (c *Client) Search(ctx context.Context, query string) ([]discovery.SearchResult, error) {
	name := c.backend.Name()
	var resp Response
	processing, err := c.retry.Do(ctx, func(attempt int) (bool, error) {
		if err := c.reserve(ctx); err != nil {
			return false, err
		}
		r, err := c.backend.Search(ctx, query, c.cfg.MaxResults)
		c.consume(ctx)
		if err != nil {
			metrics.ObserveSearch(name, "error")
			return false, err
		}
		metrics.ObserveSearch(name, r.Status.String())
		resp = r
		if r.Status == StatusProcessing {
			c.logger.Debug("search still processing",
				zap.String("backend", name),
				zap.String("query", query),
				zap.Int("attempt", attempt),
			)
			return true, nil
		}
		return false, nil
	})
	switch {
	case errors.Is(err, discovery.ErrQuotaExhausted):
		return nil, err
	case err != nil && ctx.Err() != nil:
		return nil, fmt.Errorf("search %s: %w", name, ctx.Err())
	case err != nil:
		return nil, fmt.Errorf("%w: %s: %w", discovery.ErrSearchUnavailable, name, err)
	case processing:
		c.logger.Warn("search still processing after retries, treating as no results",
			zap.String("backend", name),
			zap.String("query", query),
			zap.Int("retries", c.retry.Attempts()),
		)
		metrics.ObserveSearch(name, "abandoned")
		return nil, nil
	case resp.Status != StatusOK:
		return nil, fmt.Errorf("%w: %s: %s", discovery.ErrSearchUnavailable, name, resp.Detail)
	}
	return normalizeResults(resp.Results, c.cfg.MaxResults), nil
}

// Remaining reports today's remaining quota.
func (c *Client) Remaining(ctx context.Context) (int, error) {
	remaining, err := c.quota.Remaining(ctx, c.cfg.DailyLimit)
	if err != nil {
		return 0, fmt.Errorf("read quota: %w", err)
	}
	return remaining, nil
}

func (c *Client) reserve(ctx context.Context) error {
	remaining, err := c.Remaining(ctx)
	if err != nil {
		return err
	}
	metrics.SetQuotaRemaining(remaining)
	if remaining <= 0 {
		return discovery.ErrQuotaExhausted
	}
	return nil
}

func (c *Client) consume(ctx context.Context) {
	// The request went out; record it even if the caller is shutting down.
	count, err := c.quota.Consume(context.WithoutCancel(ctx))
	if err != nil {
		c.logger.Warn("failed to record quota usage", zap.Error(err))
		return
	}
	metrics.SetQuotaRemaining(max(c.cfg.DailyLimit-count, 0))
}

// normalizeResults unwraps redirect links, drops empty and repeated URLs, and
// caps the list.
func normalizeResults(in []discovery.SearchResult, limit int) []discovery.SearchResult {
	seen := make(map[string]struct{}, len(in))
	out := make([]discovery.SearchResult, 0, min(len(in), limit))
	for _, r := range in {
		target := UnwrapURL(r.URL)
		if target == "" {
			continue
		}
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		out = append(out, discovery.SearchResult{Title: r.Title, URL: target})
		if len(out) == limit {
			break
		}
	}
	return out
}
