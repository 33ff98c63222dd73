// Package serpapi queries Google through the SerpApi service.
package serpapi

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	g "github.com/serpapi/google-search-results-golang"

	"github.com/JakeFAU/report-discovery/internal/discovery"
	"github.com/JakeFAU/report-discovery/internal/search"
)

// placeholderKey is the value shipped in the sample configuration.
const placeholderKey = "your-serpapi-key"

// Config customises the backend.
type Config struct {
	APIKey       string
	GoogleDomain string
	Country      string
	Language     string
}

// searchFunc issues one SerpApi request.
type searchFunc func(params map[string]string, apiKey string) (map[string]any, error)

// Backend implements search.Backend.
type Backend struct {
	cfg    Config
	search searchFunc
}

// New validates the key and builds a backend.
func New(cfg Config) (*Backend, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" || key == placeholderKey {
		return nil, fmt.Errorf("%w: serpapi api key is not set", search.ErrMissingCredentials)
	}
	cfg.APIKey = key
	if cfg.GoogleDomain == "" {
		cfg.GoogleDomain = "google.com"
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	return &Backend{cfg: cfg, search: googleSearch}, nil
}

func googleSearch(params map[string]string, apiKey string) (map[string]any, error) {
	s := g.NewGoogleSearch(params, apiKey)
	results, err := s.GetJSON()
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Name implements search.Backend.
func (b *Backend) Name() string { return "serpapi" }

// Search implements search.Backend. The client library is not context aware,
// so the call runs in a goroutine and is abandoned on cancellation.
func (b *Backend) Search(ctx context.Context, query string, limit int) (search.Response, error) {
	params := map[string]string{
		"engine":        "google",
		"q":             query,
		"google_domain": b.cfg.GoogleDomain,
		"hl":            b.cfg.Language,
	}
	if b.cfg.Country != "" {
		params["gl"] = b.cfg.Country
	}
	if limit > 0 {
		params["num"] = strconv.Itoa(limit)
	}

	type outcome struct {
		results map[string]any
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		results, err := b.search(params, b.cfg.APIKey)
		done <- outcome{results: results, err: err}
	}()

	var out outcome
	select {
	case <-ctx.Done():
		return search.Response{}, ctx.Err()
	case out = <-done:
	}
	if out.err != nil {
		return search.Response{}, fmt.Errorf("serpapi search failed: %w", out.err)
	}
	return parseResponse(out.results, limit), nil
}

func parseResponse(results map[string]any, limit int) search.Response {
	if msg, ok := results["error"].(string); ok && msg != "" {
		return search.Response{Status: search.StatusUnavailable, Detail: msg}
	}
	if meta, ok := results["search_metadata"].(map[string]any); ok {
		status, _ := meta["status"].(string)
		switch strings.ToLower(status) {
		case "processing", "queued":
			return search.Response{Status: search.StatusProcessing}
		case "error":
			return search.Response{Status: search.StatusUnavailable, Detail: "search_metadata status Error"}
		}
	}

	organic, ok := results["organic_results"].([]any)
	if !ok {
		return search.Response{Status: search.StatusOK}
	}
	out := make([]discovery.SearchResult, 0, len(organic))
	for _, item := range organic {
		res, ok := item.(map[string]any)
		if !ok {
			continue
		}
		title, _ := res["title"].(string)
		link, _ := res["link"].(string)
		if link == "" {
			continue
		}
		out = append(out, discovery.SearchResult{Title: title, URL: link})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return search.Response{Status: search.StatusOK, Results: out}
}
