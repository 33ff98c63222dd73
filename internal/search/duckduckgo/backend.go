// Package duckduckgo scrapes the DuckDuckGo HTML endpoint.
package duckduckgo

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/report-discovery/internal/discovery"
	"github.com/JakeFAU/report-discovery/internal/search"
)

// DefaultBaseURL is the JavaScript-free results page.
const DefaultBaseURL = "https://html.duckduckgo.com/html/"

// Config customises the backend.
type Config struct {
	BaseURL string
	// Region is the kl parameter, e.g. "de-de". Empty means worldwide.
	Region string
}

// Backend implements search.Backend.
type Backend struct {
	getter  search.Getter
	baseURL string
	region  string
}

// New builds a backend that issues its requests through getter.
func New(getter search.Getter, cfg Config) *Backend {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = DefaultBaseURL
	}
	return &Backend{getter: getter, baseURL: base, region: cfg.Region}
}

// Name implements search.Backend.
func (b *Backend) Name() string { return "duckduckgo" }

// Search implements search.Backend.
func (b *Backend) Search(ctx context.Context, query string, limit int) (search.Response, error) {
	params := url.Values{"q": {query}}
	if b.region != "" {
		params.Set("kl", b.region)
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

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return search.Response{}, fmt.Errorf("parse results: %w", err)
	}

	var results []discovery.SearchResult
	doc.Find("a.result__a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, ok := s.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return true
		}
		results = append(results, discovery.SearchResult{
			Title: strings.Join(strings.Fields(s.Text()), " "),
			URL:   href,
		})
		return limit <= 0 || len(results) < limit
	})
	return search.Response{Status: search.StatusOK, Results: results}, nil
}
