package serpapi

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/report-discovery/internal/discovery"
	"github.com/JakeFAU/report-discovery/internal/search"
)

func newTestBackend(t *testing.T, fn searchFunc) *Backend {
	t.Helper()
	b, err := New(Config{APIKey: "k", Country: "de"})
	require.NoError(t, err)
	b.search = fn
	return b
}

func TestNewRequiresKey(t *testing.T) {
	t.Parallel()

	for _, key := range []string{"", "  ", placeholderKey} {
		_, err := New(Config{APIKey: key})
		require.ErrorIs(t, err, search.ErrMissingCredentials, "key %q", key)
	}
}

func TestSearchParsesOrganicResults(t *testing.T) {
	t.Parallel()

	var gotParams map[string]string
	b := newTestBackend(t, func(params map[string]string, apiKey string) (map[string]any, error) {
		gotParams = params
		assert.Equal(t, "k", apiKey)
		return map[string]any{
			"search_metadata": map[string]any{"status": "Success"},
			"organic_results": []any{
				map[string]any{"title": "Acme Annual Report 2023", "link": "https://acme.example/ar-2023.pdf"},
				map[string]any{"title": "no link"},
				"garbage",
				map[string]any{"title": "Acme IR", "link": "https://acme.example/ir"},
			},
		}, nil
	})

	resp, err := b.Search(context.Background(), "acme annual report", 10)
	require.NoError(t, err)
	assert.Equal(t, search.StatusOK, resp.Status)
	assert.Equal(t, []discovery.SearchResult{
		{Title: "Acme Annual Report 2023", URL: "https://acme.example/ar-2023.pdf"},
		{Title: "Acme IR", URL: "https://acme.example/ir"},
	}, resp.Results)

	assert.Equal(t, "google", gotParams["engine"])
	assert.Equal(t, "acme annual report", gotParams["q"])
	assert.Equal(t, "10", gotParams["num"])
	assert.Equal(t, "de", gotParams["gl"])
	assert.Equal(t, "google.com", gotParams["google_domain"])
}

func TestSearchStatuses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload map[string]any
		want    search.Status
	}{
		{"processing", map[string]any{"search_metadata": map[string]any{"status": "Processing"}}, search.StatusProcessing},
		{"error status", map[string]any{"search_metadata": map[string]any{"status": "Error"}}, search.StatusUnavailable},
		{"error field", map[string]any{"error": "Invalid API key."}, search.StatusUnavailable},
		{"no organic results", map[string]any{"search_metadata": map[string]any{"status": "Success"}}, search.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			b := newTestBackend(t, func(map[string]string, string) (map[string]any, error) {
				return tc.payload, nil
			})
			resp, err := b.Search(context.Background(), "q", 10)
			require.NoError(t, err)
			assert.Equal(t, tc.want, resp.Status)
			assert.Empty(t, resp.Results)
		})
	}
}

func TestSearchLibraryError(t *testing.T) {
	t.Parallel()

	b := newTestBackend(t, func(map[string]string, string) (map[string]any, error) {
		return nil, errors.New("Your account has run out of searches.")
	})
	_, err := b.Search(context.Background(), "q", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run out of searches")
}

func TestSearchCanceled(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	b := newTestBackend(t, func(map[string]string, string) (map[string]any, error) {
		<-release
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.Search(ctx, "q", 10)
	require.ErrorIs(t, err, context.Canceled)
}
