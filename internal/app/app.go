// Package app initializes and holds long-lived application services, acting
// as the dependency container for the CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/JakeFAU/report-discovery/internal/clock/system"
	"github.com/JakeFAU/report-discovery/internal/config"
	"github.com/JakeFAU/report-discovery/internal/discovery"
	collyfetcher "github.com/JakeFAU/report-discovery/internal/fetcher/colly"
	"github.com/JakeFAU/report-discovery/internal/hash/sha256"
	"github.com/JakeFAU/report-discovery/internal/id/uuid"
	"github.com/JakeFAU/report-discovery/internal/metrics"
	"github.com/JakeFAU/report-discovery/internal/policy/ratelimit"
	csvquota "github.com/JakeFAU/report-discovery/internal/quota/csvfile"
	memquota "github.com/JakeFAU/report-discovery/internal/quota/memory"
	pgquota "github.com/JakeFAU/report-discovery/internal/quota/postgres"
	sqlitequota "github.com/JakeFAU/report-discovery/internal/quota/sqlite"
	"github.com/JakeFAU/report-discovery/internal/search"
	"github.com/JakeFAU/report-discovery/internal/search/bingrss"
	"github.com/JakeFAU/report-discovery/internal/search/duckduckgo"
	"github.com/JakeFAU/report-discovery/internal/search/serpapi"
	"github.com/JakeFAU/report-discovery/internal/search/tavily"
	"github.com/JakeFAU/report-discovery/internal/storage/local"
	pgstore "github.com/JakeFAU/report-discovery/internal/storage/postgres"
	"github.com/JakeFAU/report-discovery/internal/table"
)

// QuotaTracker is a durable quota ledger that must be released.
type QuotaTracker interface {
	discovery.QuotaTracker
	io.Closer
}

// App holds the shared services for one process.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	runID  string
	clock  discovery.Clock

	quota     QuotaTracker
	backend   search.Backend
	fetcher   *collyfetcher.Fetcher
	searcher  *search.Client
	queries   *discovery.QueryBuilder
	extractor *discovery.Extractor
	pauser    discovery.Pauser

	closers []io.Closer
}

// Option overrides a collaborator, mainly for tests.
type Option func(*App)

// WithClock replaces the wall clock.
func WithClock(c discovery.Clock) Option {
	return func(a *App) { a.clock = c }
}

// WithQuotaTracker replaces the configured quota ledger.
func WithQuotaTracker(q QuotaTracker) Option {
	return func(a *App) { a.quota = q }
}

// WithBackend replaces the configured search backend.
func WithBackend(b search.Backend) Option {
	return func(a *App) { a.backend = b }
}

// WithPauser replaces the timer used for politeness and retry delays.
func WithPauser(p discovery.Pauser) Option {
	return func(a *App) { a.pauser = p }
}

// New builds every service named by cfg. It fails fast on anything a run
// cannot do without: the quota ledger, backend credentials, the template table.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()

	a := &App{
		cfg:    cfg,
		runID:  uuid.NewUUIDGenerator().MustNewID(),
		clock:  system.New(),
		pauser: discovery.TimerPauser{},
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = logger.With(zap.String("run_id", a.runID))

	templates, err := config.LoadTemplates(cfg.Discovery.TemplatesFile)
	if err != nil {
		return nil, err
	}

	if a.quota == nil {
		q, err := openQuota(ctx, cfg.Quota, a.clock)
		if err != nil {
			return nil, err
		}
		a.quota = q
	}
	a.closers = append(a.closers, a.quota)

	retry := discovery.NewProcessingRetry(cfg.Search.ProcessingRetries, cfg.Search.ProcessingBackoff, a.pauser)
	limiter := ratelimit.New(ratelimit.Config{RPS: cfg.HTTP.RateLimitPerHost, Burst: cfg.HTTP.Burst})
	a.fetcher = collyfetcher.New(collyfetcher.Config{
		UserAgent:      cfg.HTTP.UserAgent,
		AcceptLanguage: cfg.HTTP.AcceptLanguage,
		RespectRobots:  cfg.HTTP.RespectRobots,
		Timeout:        cfg.RequestTimeout(),
		MaxBodySize:    cfg.HTTP.MaxBodyBytes,
	}, limiter, retry, a.logger.Named("fetcher"))

	if a.backend == nil {
		b, err := newBackend(cfg, a.fetcher)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.backend = b
	}
	a.searcher = search.NewClient(a.backend, a.quota, retry, search.Config{
		MaxResults: cfg.MaxResultsPerQuery,
		DailyLimit: cfg.DailyRequestLimit,
	}, a.logger.Named("search"))

	a.queries = discovery.NewQueryBuilder(templates.QueryTemplates())

	xcfg := discovery.DefaultExtractorConfig()
	if len(cfg.Discovery.ReportKeywords) > 0 {
		xcfg.ReportKeywords = cfg.Discovery.ReportKeywords
	}
	xcfg.Templates = templates.Templates
	scorer := discovery.NewScorer(discovery.DefaultScoringRules(), a.clock)
	a.extractor = discovery.NewExtractor(xcfg, scorer, a.fetcher, a.clock, a.logger.Named("extractor"))

	a.logger.Info("application services initialized",
		zap.String("backend", a.backend.Name()),
		zap.String("quota", cfg.Quota.Backend),
		zap.Int("templates", len(templates.Templates)),
	)
	return a, nil
}

func openQuota(ctx context.Context, cfg config.QuotaConfig, clock discovery.Clock) (QuotaTracker, error) {
	var (
		q   QuotaTracker
		err error
	)
	switch cfg.Backend {
	case "memory":
		q = memquota.New(clock)
	case "sqlite":
		q, err = sqlitequota.Open(ctx, cfg.Path, clock)
	case "postgres":
		q, err = pgquota.Open(ctx, pgquota.Config{DSN: cfg.DSN, Table: cfg.Table}, clock)
	case "csv", "":
		q, err = csvquota.Open(cfg.Path, clock)
	default:
		return nil, fmt.Errorf("unknown quota backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s quota ledger: %w", cfg.Backend, err)
	}
	return q, nil
}

func newBackend(cfg config.Config, getter search.Getter) (search.Backend, error) {
	s := cfg.Search
	switch s.Backend {
	case "serpapi":
		return serpapi.New(serpapi.Config{
			APIKey:       s.SerpAPI.APIKey,
			GoogleDomain: s.SerpAPI.GoogleDomain,
			Country:      s.SerpAPI.Country,
			Language:     s.SerpAPI.Language,
		})
	case "tavily":
		return tavily.New(tavily.Config{
			APIKey:         s.Tavily.APIKey,
			BaseURL:        s.Tavily.BaseURL,
			Timeout:        cfg.RequestTimeout(),
			ExcludeDomains: cfg.Discovery.ExcludedDomains,
		})
	case "bing":
		return bingrss.New(getter, bingrss.Config{BaseURL: s.Bing.BaseURL, Market: s.Bing.Market}), nil
	case "duckduckgo", "":
		return duckduckgo.New(getter, duckduckgo.Config{BaseURL: s.DuckDuckGo.BaseURL, Region: s.DuckDuckGo.Region}), nil
	default:
		return nil, fmt.Errorf("unknown search backend %q", s.Backend)
	}
}

// Logger returns the run-scoped logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// RunID identifies this process's run in logs and the Postgres mirror.
func (a *App) RunID() string { return a.runID }

// PipelineConfig maps configuration onto the orchestrator settings.
func (a *App) PipelineConfig() discovery.PipelineConfig {
	pc := discovery.DefaultPipelineConfig()
	pc.MaxPages = a.cfg.Pipeline.MaxPages
	pc.GoodEnoughScore = a.cfg.Pipeline.GoodEnoughScore
	pc.MaxSecondary = a.cfg.MaxSecondaryResults
	pc.ExcludedDomains = a.cfg.Discovery.ExcludedDomains
	pc.RelevanceKeywords = a.cfg.Discovery.RelevanceKeywords
	pc.QueryDelay = a.cfg.Pipeline.QueryDelay.Range()
	pc.PageDelay = a.cfg.Pipeline.PageDelay.Range()
	pc.EntityDelay = a.cfg.Pipeline.EntityDelay.Range()
	return pc
}

// Pipeline builds an orchestrator writing to sink. An archive directory,
// when set, keeps every fetched page.
func (a *App) Pipeline(sink discovery.RowSink, archiveDir string) (*discovery.Pipeline, error) {
	opts := []discovery.Option{discovery.WithPauser(a.pauser)}
	if archiveDir != "" {
		archive, err := local.New(local.Config{BaseDir: archiveDir}, sha256.New(), a.clock)
		if err != nil {
			return nil, fmt.Errorf("open page archive: %w", err)
		}
		opts = append(opts, discovery.WithArchiver(archive))
	}
	return discovery.NewPipeline(
		a.PipelineConfig(), a.queries, a.searcher, a.fetcher, a.extractor, sink,
		a.logger.Named("pipeline"), opts...,
	), nil
}

// OpenSink opens the output table, mirrored into Postgres when configured.
// With appendRows set an existing table is extended.
func (a *App) OpenSink(ctx context.Context, path string, appendRows bool) (discovery.RowSink, error) {
	delim, err := table.ParseDelimiter(a.cfg.Output.Delimiter)
	if err != nil {
		return nil, err
	}
	w, err := table.Create(path, delim, appendRows)
	if err != nil {
		return nil, err
	}
	pg := a.cfg.Output.Postgres
	if pg.DSN == "" {
		return w, nil
	}
	mirror, err := pgstore.NewRowStore(ctx, pgstore.RowStoreConfig{DSN: pg.DSN, Table: pg.Table}, a.runID, a.clock)
	if err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("open postgres mirror: %w", err)
	}
	return discovery.NewMultiSink(w, mirror), nil
}

// QuotaRemaining reports today's remaining requests and updates the gauge.
func (a *App) QuotaRemaining(ctx context.Context) (int, error) {
	n, err := a.quota.Remaining(ctx, a.cfg.DailyRequestLimit)
	if err != nil {
		return 0, fmt.Errorf("read quota: %w", err)
	}
	metrics.SetQuotaRemaining(n)
	return n, nil
}

// WriteMetrics exports the registry to metrics.textfile_path, if set.
func (a *App) WriteMetrics() error {
	if a.cfg.Metrics.TextfilePath == "" {
		return nil
	}
	return metrics.WriteTextfile(a.cfg.Metrics.TextfilePath)
}

// Close releases every service in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("error closing application services", zap.Error(err))
		return err
	}
	return nil
}
