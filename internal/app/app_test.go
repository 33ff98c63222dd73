package app_test

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/report-discovery/internal/app"
	"github.com/JakeFAU/report-discovery/internal/config"
	"github.com/JakeFAU/report-discovery/internal/discovery"
	memquota "github.com/JakeFAU/report-discovery/internal/quota/memory"
	"github.com/JakeFAU/report-discovery/internal/search"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type noPause struct{}

func (noPause) Pause(context.Context, time.Duration) {}

// MockBackend mocks search.Backend.
type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) Name() string { return "mock" }

func (m *MockBackend) Search(ctx context.Context, query string, limit int) (search.Response, error) {
	args := m.Called(ctx, query, limit)
	return args.Get(0).(search.Response), args.Error(1)
}

// MockQuota mocks app.QuotaTracker.
type MockQuota struct {
	mock.Mock
}

func (m *MockQuota) Remaining(ctx context.Context, limit int) (int, error) {
	args := m.Called(ctx, limit)
	return args.Int(0), args.Error(1)
}

func (m *MockQuota) Consume(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockQuota) Close() error { return m.Called().Error(0) }

const irPage = `<html><body>
<a href="/reports/acme-annual-report-2024.pdf">Annual Report</a>
<a href="/contact">Contact us</a>
<a href="/careers">Careers</a>
</body></html>`

func newIRServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/investors" {
			w.Header().Set("Content-Type", "text/html")
			_, _ = fmt.Fprint(w, irPage)
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func baseConfig(t *testing.T, dir string) config.Config {
	t.Helper()
	cfg, err := config.Load(viper.New())
	require.NoError(t, err)
	cfg.OutputPath = filepath.Join(dir, "out.csv")
	cfg.Quota.Backend = "memory"
	cfg.HTTP.RateLimitPerHost = 0
	cfg.RequestTimeoutSeconds = 5
	return cfg
}

func writeInput(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "entities.csv")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func readOutput(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestRunEndToEnd(t *testing.T) {
	t.Parallel()

	srv := newIRServer(t)
	dir := t.TempDir()
	cfg := baseConfig(t, dir)
	clock := fixedClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}

	backend := new(MockBackend)
	backend.On("Search", mock.Anything, mock.Anything, cfg.MaxResultsPerQuery).Return(search.Response{
		Status:  search.StatusOK,
		Results: []discovery.SearchResult{{Title: "Acme investor relations", URL: srv.URL + "/investors"}},
	}, nil).Once()

	quota := memquota.New(clock)
	a, err := app.New(context.Background(), cfg, nil,
		app.WithBackend(backend), app.WithQuotaTracker(quota), app.WithClock(clock), app.WithPauser(noPause{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	assert.NotEmpty(t, a.RunID())

	var reported []discovery.EntityResult
	res, err := a.Run(context.Background(), app.RunOptions{
		InputPath: writeInput(t, dir, "ID,NAME\n7,Acme AG\n"),
		Report:    func(r discovery.EntityResult) { reported = append(reported, r) },
	})
	require.NoError(t, err)
	backend.AssertExpectations(t)

	assert.True(t, res.Done())
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.WithResult)
	assert.Equal(t, 99, res.QuotaRemaining)
	require.Len(t, reported, 1)

	rows := readOutput(t, cfg.OutputPath)
	require.Len(t, rows, 1+1+cfg.MaxSecondaryResults)
	assert.Equal(t, []string{"ID", "NAME", "TYPE", "URL", "YEAR"}, rows[0])
	assert.Equal(t, []string{"7", "Acme AG", "PRIMARY", srv.URL + "/reports/acme-annual-report-2024.pdf", "2024"}, rows[1])
	for _, row := range rows[2:] {
		assert.Equal(t, "SECONDARY", row[2])
		assert.Empty(t, row[3])
	}
}

func TestRunResumeSkipsWrittenEntities(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := baseConfig(t, dir)
	require.NoError(t, os.WriteFile(cfg.OutputPath, []byte("ID,NAME,TYPE,URL,YEAR\n7,Acme AG,PRIMARY,,\n"), 0o600))

	backend := new(MockBackend)
	a, err := app.New(context.Background(), cfg, nil,
		app.WithBackend(backend), app.WithPauser(noPause{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	res, err := a.Run(context.Background(), app.RunOptions{
		InputPath: writeInput(t, dir, "ID,NAME\n7,Acme AG\n"),
		Resume:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Zero(t, res.Processed)
	assert.True(t, res.Done())
	backend.AssertNotCalled(t, "Search", mock.Anything, mock.Anything, mock.Anything)

	rows := readOutput(t, cfg.OutputPath)
	assert.Len(t, rows, 2, "existing rows are kept and nothing is appended")
}

func TestRunStopsWhenQuotaIsExhausted(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := baseConfig(t, dir)

	quota := new(MockQuota)
	quota.On("Remaining", mock.Anything, cfg.DailyRequestLimit).Return(0, nil)
	quota.On("Close").Return(nil)
	backend := new(MockBackend)

	a, err := app.New(context.Background(), cfg, nil,
		app.WithBackend(backend), app.WithQuotaTracker(quota), app.WithPauser(noPause{}))
	require.NoError(t, err)

	res, err := a.Run(context.Background(), app.RunOptions{
		InputPath: writeInput(t, dir, "NAME\nAcme AG\nBeta NV\n"),
	})
	require.NoError(t, err)
	assert.True(t, res.QuotaExhausted)
	assert.False(t, res.Done())
	assert.Equal(t, 2, res.Unprocessed)
	assert.Zero(t, res.QuotaRemaining)
	backend.AssertNotCalled(t, "Search", mock.Anything, mock.Anything, mock.Anything)
	quota.AssertNotCalled(t, "Consume", mock.Anything)

	assert.Len(t, readOutput(t, cfg.OutputPath), 1, "only the header is written")

	require.NoError(t, a.Close())
	quota.AssertCalled(t, "Close")
}

func TestRunMissingInput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a, err := app.New(context.Background(), baseConfig(t, dir), nil,
		app.WithBackend(new(MockBackend)), app.WithPauser(noPause{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	_, err = a.Run(context.Background(), app.RunOptions{InputPath: filepath.Join(dir, "missing.csv")})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "open entity table"))
}

func TestNewRequiresCredentials(t *testing.T) {
	t.Parallel()

	cfg := baseConfig(t, t.TempDir())
	cfg.Search.Backend = "tavily"
	_, err := app.New(context.Background(), cfg, nil, app.WithPauser(noPause{}))
	require.ErrorIs(t, err, search.ErrMissingCredentials)
}

func TestNewOpensCSVQuotaLedger(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := baseConfig(t, dir)
	cfg.Quota.Backend = "csv"
	cfg.Quota.Path = filepath.Join(dir, "usage.csv")

	a, err := app.New(context.Background(), cfg, nil)
	require.NoError(t, err)
	n, err := a.QuotaRemaining(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cfg.DailyRequestLimit, n)

	_, err = app.New(context.Background(), cfg, nil)
	require.Error(t, err, "the ledger is single-writer")

	require.NoError(t, a.Close())
	_, err = os.Stat(cfg.Quota.Path + ".lock")
	assert.True(t, os.IsNotExist(err))
}

func TestEntityDoesNotWriteOutput(t *testing.T) {
	t.Parallel()

	srv := newIRServer(t)
	dir := t.TempDir()
	cfg := baseConfig(t, dir)

	backend := new(MockBackend)
	backend.On("Search", mock.Anything, mock.Anything, mock.Anything).Return(search.Response{
		Status:  search.StatusOK,
		Results: []discovery.SearchResult{{Title: "Acme annual report", URL: srv.URL + "/investors"}},
	}, nil)

	a, err := app.New(context.Background(), cfg, nil,
		app.WithBackend(backend), app.WithPauser(noPause{}),
		app.WithClock(fixedClock{now: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	archive := filepath.Join(dir, "pages")
	res, err := a.Entity(context.Background(), discovery.Entity{Name: "Acme AG"}, archive)
	require.NoError(t, err)
	primary, ok := res.Primary()
	require.True(t, ok)
	assert.Equal(t, "2024", primary.Candidate.Year)

	_, err = os.Stat(cfg.OutputPath)
	assert.True(t, os.IsNotExist(err))
	entries, err := os.ReadDir(archive)
	require.NoError(t, err)
	assert.NotEmpty(t, entries, "fetched pages are archived")
}
