// Package local keeps fetched pages on the local filesystem for debugging.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/JakeFAU/report-discovery/internal/discovery"
)

// Config captures the parameters for the page archive.
type Config struct {
	// BaseDir is the root directory pages are written under.
	BaseDir string `mapstructure:"dir" yaml:"dir"`
}

// Hasher derives a stable file name from a URL.
type Hasher interface {
	HashString(s string) string
}

// Archive writes each page body to <host>/<hash>.html with a .json sidecar.
type Archive struct {
	baseDir string
	hasher  Hasher
	clock   discovery.Clock
}

type sidecar struct {
	URL        string              `json:"url"`
	FinalURL   string              `json:"final_url,omitempty"`
	StatusCode int                 `json:"status_code"`
	Headers    map[string][]string `json:"headers,omitempty"`
	Bytes      int                 `json:"bytes"`
	DurationMS int64               `json:"duration_ms"`
	ArchivedAt time.Time           `json:"archived_at"`
}

// New creates the base directory if needed and checks it is writable.
func New(cfg Config, hasher Hasher, clock discovery.Clock) (*Archive, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if hasher == nil {
		return nil, fmt.Errorf("hasher is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	probe := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(probe, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &Archive{baseDir: cfg.BaseDir, hasher: hasher, clock: clock}, nil
}

// Archive implements discovery.PageArchiver and returns a file:// URI for the body.
func (a *Archive) Archive(_ context.Context, page discovery.Page) (string, error) {
	if page.URL == "" {
		return "", fmt.Errorf("page url is required")
	}
	key := a.hasher.HashString(page.URL)
	dir := hostDir(page.BaseURL())

	bodyPath, err := a.put(filepath.Join(dir, key+".html"), page.Body)
	if err != nil {
		return "", err
	}
	meta := sidecar{
		URL:        page.URL,
		FinalURL:   page.FinalURL,
		StatusCode: page.StatusCode,
		Headers:    page.Headers,
		Bytes:      len(page.Body),
		DurationMS: page.Duration.Milliseconds(),
	}
	if a.clock != nil {
		meta.ArchivedAt = a.clock.Now()
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal sidecar: %w", err)
	}
	if _, err := a.put(filepath.Join(dir, key+".json"), data); err != nil {
		return "", err
	}
	return "file://" + bodyPath, nil
}

func (a *Archive) put(rel string, data []byte) (string, error) {
	fullPath := filepath.Join(a.baseDir, rel)

	cleanBase := filepath.Clean(a.baseDir)
	if !strings.HasPrefix(filepath.Clean(fullPath), cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", fmt.Errorf("failed to create parent directories: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return fullPath, nil
}

// hostDir returns a filesystem-safe directory name for the page host.
func hostDir(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "_unknown"
	}
	host := strings.ToLower(u.Hostname())
	var b strings.Builder
	for _, r := range host {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	name := strings.Trim(b.String(), ".")
	if name == "" {
		return "_unknown"
	}
	return name
}
