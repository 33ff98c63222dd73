// Package tavily queries the Tavily search API.
package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/JakeFAU/report-discovery/internal/discovery"
	"github.com/JakeFAU/report-discovery/internal/search"
)

// Defaults for the Tavily API.
const (
	DefaultBaseURL = "https://api.tavily.com"
	DefaultTimeout = 30 * time.Second
)

type Config struct {
	APIKey         string
	BaseURL        string
	Timeout        time.Duration
	ExcludeDomains []string
}

type Backend struct {
	apiKey         string
	baseURL        string
	excludeDomains []string
	client         *http.Client
}

// New requires an API key.
func New(cfg Config) (*Backend, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, fmt.Errorf("%w: tavily api key is not set", search.ErrMissingCredentials)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Backend{
		apiKey:         key,
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		excludeDomains: cfg.ExcludeDomains,
		client:         &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type tavilyRequest struct {
	APIKey         string   `json:"api_key"`
	Query          string   `json:"query"`
	ExcludeDomains []string `json:"exclude_domains,omitempty"`
	MaxResults     int      `json:"max_results,omitempty"`
	SearchDepth    string   `json:"search_depth,omitempty"`
}

type tavilyResponse struct {
	Query   string         `json:"query"`
	Results []tavilyResult `json:"results"`
}

type tavilyResult struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Name implements search.Backend.
func (b *Backend) Name() string { return "tavily" }

// Search implements search.Backend.
func (b *Backend) Search(ctx context.Context, query string, limit int) (search.Response, error) {
	body, err := json.Marshal(tavilyRequest{
		APIKey:         b.apiKey,
		Query:          query,
		ExcludeDomains: b.excludeDomains,
		MaxResults:     limit,
		SearchDepth:    "basic",
	})
	if err != nil {
		return search.Response{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return search.Response{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return search.Response{}, fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return search.Response{}, fmt.Errorf("read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusAccepted:
		return search.Response{Status: search.StatusProcessing}, nil
	default:
		return search.Response{Status: search.StatusUnavailable, Detail: fmt.Sprintf("status %d", resp.StatusCode)}, nil
	}

	var payload tavilyResponse
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return search.Response{}, fmt.Errorf("unmarshal response: %w", err)
	}
	results := make([]discovery.SearchResult, 0, len(payload.Results))
	for _, r := range payload.Results {
		if r.URL == "" {
			continue
		}
		results = append(results, discovery.SearchResult{Title: r.Title, URL: r.URL})
	}
	return search.Response{Status: search.StatusOK, Results: results}, nil
}
