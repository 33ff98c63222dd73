package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/report-discovery/internal/app"
	"github.com/JakeFAU/report-discovery/internal/config"
	"github.com/JakeFAU/report-discovery/internal/discovery"
)

// MockApp mocks the App interface.
type MockApp struct {
	mock.Mock
}

func (m *MockApp) Run(ctx context.Context, opts app.RunOptions) (app.Result, error) {
	args := m.Called(ctx, opts)
	return args.Get(0).(app.Result), args.Error(1)
}

func (m *MockApp) Entity(ctx context.Context, e discovery.Entity, archiveDir string) (discovery.EntityResult, error) {
	args := m.Called(ctx, e, archiveDir)
	return args.Get(0).(discovery.EntityResult), args.Error(1)
}

func (m *MockApp) QuotaRemaining(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockApp) Close() error {
	return m.Called().Error(0)
}

// useApp swaps the factory for the duration of a test. Tests that call it
// must not run in parallel.
func useApp(t *testing.T, a App, seen *config.Config) {
	t.Helper()
	orig := newApp
	newApp = func(_ context.Context, cfg config.Config, _ *zap.Logger) (App, error) {
		if seen != nil {
			*seen = cfg
		}
		return a, nil
	}
	t.Cleanup(func() { newApp = orig })
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), err
}

func emptyConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reportfinder.yaml")
	require.NoError(t, os.WriteFile(path, []byte("quota:\n  backend: memory\n"), 0o600))
	return path
}

func TestQuotaCommandUsesFlagPrecedence(t *testing.T) {
	a := new(MockApp)
	a.On("QuotaRemaining", mock.Anything).Return(6, nil)
	a.On("Close").Return(nil)
	var cfg config.Config
	useApp(t, a, &cfg)

	out, err := execute(t, "quota", "--config", emptyConfig(t), "--daily-request-limit", "7")
	require.NoError(t, err)
	assert.Equal(t, "6/7\n", out)
	assert.Equal(t, 7, cfg.DailyRequestLimit)
	assert.Equal(t, "memory", cfg.Quota.Backend, "file value")
	assert.Equal(t, 10, cfg.MaxResultsPerQuery, "default")
	a.AssertExpectations(t)
}

func TestInvalidConfigWritesTemplate(t *testing.T) {
	a := new(MockApp)
	useApp(t, a, nil)

	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("daily_request_limit: -1\n"), 0o600))

	_, err := execute(t, "quota", "--config", path)
	require.ErrorIs(t, err, config.ErrInvalid)
	assert.FileExists(t, filepath.Join(dir, "settings.template.yaml"))
	a.AssertNotCalled(t, "QuotaRemaining", mock.Anything)
}

func TestAppFactoryErrorIsReturned(t *testing.T) {
	orig := newApp
	newApp = func(context.Context, config.Config, *zap.Logger) (App, error) {
		return nil, errors.New("missing credentials")
	}
	t.Cleanup(func() { newApp = orig })

	_, err := execute(t, "quota", "--config", emptyConfig(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing credentials")
}

func TestAppIsClosedWhenCommandFails(t *testing.T) {
	a := new(MockApp)
	a.On("QuotaRemaining", mock.Anything).Return(0, errors.New("ledger unreadable"))
	a.On("Close").Return(nil).Once()
	useApp(t, a, nil)

	_, err := execute(t, "quota", "--config", emptyConfig(t))
	require.Error(t, err)
	a.AssertExpectations(t)
}

func TestRunCommand(t *testing.T) {
	a := new(MockApp)
	a.On("Close").Return(nil)
	useApp(t, a, nil)

	found := discovery.EntityResult{
		Entity:  discovery.Entity{Name: "Acme AG"},
		Outcome: discovery.OutcomeFound,
		Ranked: []discovery.RankedResult{{
			Candidate: discovery.Candidate{URL: "https://acme.example/ar-2024.pdf", Year: "2024"},
			Rank:      1,
			Tier:      discovery.TierPrimary,
		}},
	}
	missing := discovery.EntityResult{Entity: discovery.Entity{Name: "Beta NV"}, Outcome: discovery.OutcomeNotFound}
	a.On("Run", mock.Anything, mock.MatchedBy(func(o app.RunOptions) bool {
		return o.InputPath == "entities.csv" && o.Resume && o.ArchiveDir == "pages"
	})).Run(func(args mock.Arguments) {
		opts := args.Get(1).(app.RunOptions)
		opts.Report(found)
		opts.Report(missing)
	}).Return(app.Result{
		RunSummary:     discovery.RunSummary{Processed: 2, WithResult: 1},
		Total:          2,
		QuotaRemaining: 90,
	}, nil)

	out, err := execute(t, "run", "entities.csv", "--resume", "--archive-dir", "pages", "--config", emptyConfig(t))
	require.NoError(t, err)
	assert.Contains(t, out, "found\tAcme AG\thttps://acme.example/ar-2024.pdf\t2024\n")
	assert.Contains(t, out, "not found\tBeta NV\n")
	assert.Contains(t, out, "processed 2, with result 1, skipped 0, remaining 0; quota remaining 90")
	a.AssertExpectations(t)
}

func TestRunCommandInterruptedIsNotAnError(t *testing.T) {
	a := new(MockApp)
	a.On("Close").Return(nil)
	a.On("Run", mock.Anything, mock.Anything).Return(app.Result{
		RunSummary: discovery.RunSummary{Processed: 1, Unprocessed: 3},
	}, context.Canceled)
	useApp(t, a, nil)

	out, err := execute(t, "run", "entities.csv", "--config", emptyConfig(t))
	require.NoError(t, err)
	assert.Contains(t, out, "remaining 3")
}

func TestRunCommandReportsQuotaStop(t *testing.T) {
	a := new(MockApp)
	a.On("Close").Return(nil)
	a.On("Run", mock.Anything, mock.Anything).Return(app.Result{
		RunSummary: discovery.RunSummary{QuotaExhausted: true, Unprocessed: 4},
	}, nil)
	useApp(t, a, nil)

	out, err := execute(t, "run", "entities.csv", "--config", emptyConfig(t))
	require.NoError(t, err)
	assert.Contains(t, out, "daily quota exhausted")
}

func TestRunCommandRejectsBadSchedule(t *testing.T) {
	a := new(MockApp)
	a.On("Close").Return(nil)
	useApp(t, a, nil)

	_, err := execute(t, "run", "entities.csv", "--schedule", "every tuesday", "--config", emptyConfig(t))
	require.Error(t, err)
	a.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestScheduledRunStopsWhenDone(t *testing.T) {
	a := new(MockApp)
	a.On("Close").Return(nil)
	a.On("Run", mock.Anything, mock.MatchedBy(func(o app.RunOptions) bool { return o.Resume })).
		Return(app.Result{RunSummary: discovery.RunSummary{Processed: 1}}, nil).Once()
	useApp(t, a, nil)

	cfg := filepath.Join(t.TempDir(), "reportfinder.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("metrics:\n  listen_addr: \"\"\n"), 0o600))

	out, err := execute(t, "run", "entities.csv", "--schedule", "@daily", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "processed 1")
	a.AssertExpectations(t)
}

func TestEntityCommand(t *testing.T) {
	a := new(MockApp)
	a.On("Close").Return(nil)
	a.On("Entity", mock.Anything, discovery.Entity{ID: "9", Name: "Acme AG"}, "").Return(discovery.EntityResult{
		Entity:       discovery.Entity{ID: "9", Name: "Acme AG"},
		Outcome:      discovery.OutcomeFound,
		Query:        discovery.Query{Text: "Acme AG annual report pdf"},
		PagesVisited: 2,
		Ranked: []discovery.RankedResult{
			{Candidate: discovery.Candidate{URL: "https://acme.example/ar-2024.pdf", Year: "2024", Score: 16, Step: discovery.StepDirectLink}, Rank: 1, Tier: discovery.TierPrimary},
			{Candidate: discovery.Candidate{URL: "https://acme.example/ar-2023.pdf", Year: "2023", Score: 14, Step: discovery.StepDirectLink}, Rank: 2, Tier: discovery.TierSecondary},
		},
	}, nil)
	useApp(t, a, nil)

	out, err := execute(t, "entity", "Acme", "AG", "--id", "9", "--config", emptyConfig(t))
	require.NoError(t, err)
	assert.Contains(t, out, `Acme AG: found (query "Acme AG annual report pdf", 2 pages visited)`)
	assert.Contains(t, out, "RANK")
	assert.Contains(t, out, "https://acme.example/ar-2023.pdf")
	assert.Regexp(t, `1\s+PRIMARY\s+16\s+2024\s+direct_link`, out)
}

func TestEntityCommandQuotaExhausted(t *testing.T) {
	a := new(MockApp)
	a.On("Close").Return(nil)
	a.On("Entity", mock.Anything, mock.Anything, mock.Anything).
		Return(discovery.EntityResult{Outcome: discovery.OutcomeQuotaExhausted}, discovery.ErrQuotaExhausted)
	useApp(t, a, nil)

	_, err := execute(t, "entity", "Acme", "--config", emptyConfig(t))
	require.ErrorIs(t, err, discovery.ErrQuotaExhausted)
}

func TestInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reportfinder.yaml")

	out, err := execute(t, "init-config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote")
	assert.FileExists(t, path)

	_, err = execute(t, "init-config", path)
	require.Error(t, err, "existing files are not overwritten")

	_, err = execute(t, "init-config", path, "--force")
	require.NoError(t, err)

	// the template is a loadable config
	a := new(MockApp)
	a.On("QuotaRemaining", mock.Anything).Return(100, nil)
	a.On("Close").Return(nil)
	useApp(t, a, nil)
	out, err = execute(t, "quota", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "100/100\n", out)
}

func TestConvertCommand(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "out.csv")
	require.NoError(t, os.WriteFile(in, []byte(
		"ID,NAME,TYPE,URL,YEAR\n"+
			",Acme AG,PRIMARY,https://acme.example/ar-2024.pdf,2024\n"+
			",Acme AG,SECONDARY,https://acme.example/ar-2015.pdf,2015\n"), 0o600))
	ids := filepath.Join(dir, "entities.csv")
	require.NoError(t, os.WriteFile(ids, []byte("ID,NAME\n42,Acme AG\n"), 0o600))
	dst := filepath.Join(dir, "out.tsv")

	out, err := execute(t, "convert", in, dst, "--out-delim", "tab", "--min-year", "2020",
		"--ids", ids, "--legacy", "--config", emptyConfig(t))
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 2 rows")

	raw, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t,
		"ID\tNAME\tTYPE\tSRC\tREFYEAR\n"+
			"42\tAcme AG\tFIN_REP\thttps://acme.example/ar-2024.pdf\t2024\n"+
			"42\tAcme AG\tOTHER\t\t\n",
		string(raw))
}

func TestConvertCommandValidatesFlags(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "out.csv")
	require.NoError(t, os.WriteFile(in, []byte("ID,NAME,TYPE,URL,YEAR\n"), 0o600))

	_, err := execute(t, "convert", in, filepath.Join(dir, "x.csv"), "--out-delim", "colon", "--config", emptyConfig(t))
	require.Error(t, err)

	_, err = execute(t, "convert", in, filepath.Join(dir, "x.csv"), "--min-year", "2024", "--max-year", "2020", "--config", emptyConfig(t))
	require.Error(t, err)

	_, err = execute(t, "convert", in, in, "--config", emptyConfig(t))
	require.Error(t, err)
}
