// Package bingrss reads Bing web results through the RSS output format.
package bingrss

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/JakeFAU/report-discovery/internal/discovery"
	"github.com/JakeFAU/report-discovery/internal/search"
)

// DefaultBaseURL is the Bing web search endpoint.
const DefaultBaseURL = "https://www.bing.com/search"

// Config customises the backend.
type Config struct {
	BaseURL string
	// Market is the mkt parameter, e.g. "en-GB".
	Market string
}

// Backend implements search.Backend.
type Backend struct {
	getter  search.Getter
	baseURL string
	market  string
}

// New builds a backend that issues its requests through getter.
func New(getter search.Getter, cfg Config) *Backend {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = DefaultBaseURL
	}
	return &Backend{getter: getter, baseURL: base, market: cfg.Market}
}

// Name implements search.Backend.
func (b *Backend) Name() string { return "bing" }

// Search implements search.Backend.
func (b *Backend) Search(ctx context.Context, query string, limit int) (search.Response, error) {
	params := url.Values{"q": {query}, "format": {"rss"}}
	if limit > 0 {
		params.Set("count", strconv.Itoa(limit))
	}
	if b.market != "" {
		params.Set("mkt", b.market)
	}
	page, err := b.getter.Get(ctx, b.baseURL+"?"+params.Encode())
	if err != nil {
		return search.Response{}, err
	}

	switch page.StatusCode {
	case http.StatusOK:
	case http.StatusAccepted:
		return search.Response{Status: search.StatusProcessing}, nil
	default:
		return search.Response{Status: search.StatusUnavailable, Detail: fmt.Sprintf("status %d", page.StatusCode)}, nil
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(page.Body))
	if err != nil {
		return search.Response{Status: search.StatusUnavailable, Detail: fmt.Sprintf("parse feed: %v", err)}, nil
	}

	results := make([]discovery.SearchResult, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil || item.Link == "" {
			continue
		}
		results = append(results, discovery.SearchResult{Title: strings.TrimSpace(item.Title), URL: item.Link})
		if limit > 0 && len(results) == limit {
			break
		}
	}
	return search.Response{Status: search.StatusOK, Results: results}, nil
}
