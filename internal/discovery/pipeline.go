package discovery

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/report-discovery/internal/metrics"
)

// Defaults for the page-visiting stage.
const (
	DefaultMaxPages        = 3
	DefaultGoodEnoughScore = 8
)

// Outcome describes how one entity finished.
type Outcome string

// Entity outcomes.
const (
	OutcomeFound          Outcome = "found"
	OutcomeNotFound       Outcome = "not_found"
	OutcomeQuotaExhausted Outcome = "quota_exhausted"
	OutcomeCanceled       Outcome = "canceled"
)

// PipelineConfig tunes the orchestrator.
type PipelineConfig struct {
	MaxPages          int
	GoodEnoughScore   int
	MaxSecondary      int
	ExcludedDomains   []string
	RelevanceKeywords []string
	QueryDelay        DelayRange
	PageDelay         DelayRange
	EntityDelay       DelayRange
}

// DefaultPipelineConfig returns the stock orchestrator settings.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		MaxPages:          DefaultMaxPages,
		GoodEnoughScore:   DefaultGoodEnoughScore,
		MaxSecondary:      DefaultMaxSecondary,
		ExcludedDomains:   DefaultExcludedDomains,
		RelevanceKeywords: DefaultRelevanceKeywords,
		QueryDelay:        DefaultQueryDelay,
		PageDelay:         DefaultPageDelay,
		EntityDelay:       DefaultEntityDelay,
	}
}

// EntityResult is the outcome of processing one entity.
type EntityResult struct {
	Entity       Entity
	Outcome      Outcome
	Query        Query
	PagesVisited int
	Ranked       []RankedResult
	Rows         []OutputRow
}

// Primary returns the best candidate, if any.
func (r EntityResult) Primary() (RankedResult, bool) {
	if len(r.Ranked) == 0 {
		return RankedResult{}, false
	}
	return r.Ranked[0], true
}

// Err maps the outcome to a sentinel for callers that prefer errors.Is.
func (r EntityResult) Err() error {
	switch r.Outcome {
	case OutcomeNotFound:
		return ErrNoCandidatesFound
	case OutcomeQuotaExhausted:
		return ErrQuotaExhausted
	case OutcomeCanceled:
		return context.Canceled
	default:
		return nil
	}
}

// RunSummary is the end-of-run tally.
type RunSummary struct {
	Processed      int
	WithResult     int
	Skipped        int
	Unprocessed    int
	QuotaExhausted bool
}

// Pipeline drives entities through search, fetch, extraction and ranking.
type Pipeline struct {
	cfg       PipelineConfig
	queries   *QueryBuilder
	searcher  Searcher
	fetcher   Fetcher
	extractor *Extractor
	sink      RowSink
	archiver  PageArchiver
	pauser    Pauser
	logger    *zap.Logger
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithArchiver stores every fetched page through a.
func WithArchiver(a PageArchiver) Option {
	return func(p *Pipeline) { p.archiver = a }
}

// WithPauser replaces the timer used for politeness delays.
func WithPauser(pauser Pauser) Option {
	return func(p *Pipeline) { p.pauser = pauser }
}

// NewPipeline wires the orchestrator. sink may be nil when only ProcessEntity is used.
func NewPipeline(
	cfg PipelineConfig,
	queries *QueryBuilder,
	searcher Searcher,
	fetcher Fetcher,
	extractor *Extractor,
	sink RowSink,
	logger *zap.Logger,
	opts ...Option,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if cfg.MaxSecondary < 0 {
		cfg.MaxSecondary = 0
	}
	p := &Pipeline{
		cfg:       cfg,
		queries:   queries,
		searcher:  searcher,
		fetcher:   fetcher,
		extractor: extractor,
		sink:      sink,
		pauser:    TimerPauser{},
		logger:    logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes entities in order, writing each entity's rows before moving
// on. skip holds Entity.Key values already present in the output. report, if
// set, is called after each entity's rows are written. A quota stop ends the
// run without error. Cancellation returns the context error; the in-flight
// entity is written only if it already had candidates.
func (p *Pipeline) Run(ctx context.Context, entities []Entity, skip map[string]struct{}, report func(EntityResult)) (RunSummary, error) {
	var summary RunSummary
	if p.sink == nil {
		return summary, errors.New("pipeline has no row sink")
	}
	started := false
	for i, e := range entities {
		if _, done := skip[e.Key()]; done {
			summary.Skipped++
			continue
		}
		if err := ctx.Err(); err != nil {
			summary.Unprocessed = len(entities) - i
			return summary, err
		}
		if started {
			p.pauser.Pause(ctx, p.cfg.EntityDelay.Pick())
		}
		started = true

		res := p.ProcessEntity(ctx, e)
		metrics.ObserveEntity(string(res.Outcome))
		if res.Outcome == OutcomeQuotaExhausted {
			summary.QuotaExhausted = true
			summary.Unprocessed = len(entities) - i
			p.logger.Warn("daily quota exhausted, stopping run",
				zap.String("entity", e.Name),
				zap.Int("unprocessed", summary.Unprocessed),
			)
			return summary, nil
		}

		// An entity canceled before anything was found is left for a resumed run.
		if res.Outcome == OutcomeCanceled && len(res.Ranked) == 0 {
			summary.Unprocessed = len(entities) - i
			p.logger.Info("run canceled before entity produced candidates", zap.String("entity", e.Name))
			return summary, ctx.Err()
		}
		// Rows of a canceled entity with candidates are still flushed.
		if err := p.sink.WriteRows(context.WithoutCancel(ctx), res.Rows); err != nil {
			return summary, fmt.Errorf("write rows for %q: %w", e.Name, err)
		}
		summary.Processed++
		if res.Outcome == OutcomeFound {
			summary.WithResult++
		}
		if report != nil {
			report(res)
		}
		if res.Outcome == OutcomeCanceled {
			summary.Unprocessed = len(entities) - i - 1
			return summary, ctx.Err()
		}
	}
	return summary, nil
}

// ProcessEntity runs one entity through the state machine and returns its
// ranked candidates and fixed-width rows. It never writes to the sink.
func (p *Pipeline) ProcessEntity(ctx context.Context, e Entity) EntityResult {
	logger := p.logger.With(zap.String("entity", e.Name), zap.String("entity_id", e.ID))
	res := EntityResult{Entity: e}

	results, query, err := p.search(ctx, e, logger)
	res.Query = query
	switch {
	case errors.Is(err, ErrQuotaExhausted):
		res.Outcome = OutcomeQuotaExhausted
		return res
	case err != nil:
		return p.finish(res, nil, OutcomeCanceled)
	}

	extractor := p.extractor
	if extractor.prober != nil {
		extractor = extractor.WithProber(newMemoProber(extractor.prober))
	}

	visited := make(map[string]struct{})
	candidates := p.visit(ctx, e, extractor, results, visited, &res, logger)
	if ctx.Err() != nil {
		return p.finish(res, candidates, OutcomeCanceled)
	}

	// Pages were found but held nothing: try the broader query once.
	if len(candidates) == 0 && query.Strategy != StrategyFallback {
		q := p.queries.Fallback(e)
		p.pauser.Pause(ctx, p.cfg.QueryDelay.Pick())
		more, err := p.query(ctx, q, logger)
		switch {
		case errors.Is(err, ErrQuotaExhausted):
			res.Outcome = OutcomeQuotaExhausted
			return res
		case err != nil:
			return p.finish(res, nil, OutcomeCanceled)
		}
		res.Query = q
		logger.Debug("fallback query finished", zap.String("query", q.Text), zap.Int("results", len(more)))
		candidates = p.visit(ctx, e, extractor, more, visited, &res, logger)
		if ctx.Err() != nil {
			return p.finish(res, candidates, OutcomeCanceled)
		}
	}

	if len(candidates) == 0 {
		candidates = extractor.ProbeTemplates(ctx, e.Name)
	}
	if ctx.Err() != nil {
		return p.finish(res, candidates, OutcomeCanceled)
	}
	return p.finish(res, candidates, OutcomeFound)
}

// visit fetches up to MaxPages result pages not already in visited and
// extracts candidates from them, stopping early on a good-enough page.
func (p *Pipeline) visit(
	ctx context.Context,
	e Entity,
	extractor *Extractor,
	results []SearchResult,
	visited map[string]struct{},
	res *EntityResult,
	logger *zap.Logger,
) []Candidate {
	fresh := make([]SearchResult, 0, len(results))
	for _, r := range results {
		if _, ok := visited[r.URL]; !ok {
			fresh = append(fresh, r)
		}
	}

	var candidates []Candidate
	for i, r := range uniqueResults(fresh, p.cfg.MaxPages) {
		if i > 0 {
			p.pauser.Pause(ctx, p.cfg.PageDelay.Pick())
		}
		if ctx.Err() != nil {
			return candidates
		}
		visited[r.URL] = struct{}{}
		page, err := p.fetcher.Fetch(ctx, r.URL)
		res.PagesVisited++
		if err != nil {
			logger.Warn("skipping page", zap.String("url", r.URL), zap.Error(err))
			continue
		}
		p.archive(ctx, page, logger)
		found := extractor.Extract(ctx, page.Body, page.BaseURL(), e.Name)
		candidates = append(candidates, found...)
		if best := maxScore(found); best >= p.cfg.GoodEnoughScore {
			logger.Debug("good enough candidate found", zap.String("url", r.URL), zap.Int("score", best))
			break
		}
	}
	return candidates
}

// search tries queries in order and stops at the first that survives
// filtering. When none does, one fallback query runs with only the domain
// exclusion applied.
func (p *Pipeline) search(ctx context.Context, e Entity, logger *zap.Logger) ([]SearchResult, Query, error) {
	issued := 0
	next := func(q Query) ([]SearchResult, error) {
		if issued > 0 {
			p.pauser.Pause(ctx, p.cfg.QueryDelay.Pick())
		}
		issued++
		return p.query(ctx, q, logger)
	}

	for q := range p.queries.Build(e) {
		results, err := next(q)
		if err != nil {
			return nil, q, err
		}
		relevant := FilterRelevant(results, p.cfg.RelevanceKeywords)
		logger.Debug("query finished",
			zap.String("query", q.Text),
			zap.String("strategy", string(q.Strategy)),
			zap.Int("results", len(relevant)),
		)
		if len(relevant) > 0 {
			return relevant, q, nil
		}
	}

	q := p.queries.Fallback(e)
	results, err := next(q)
	if err != nil {
		return nil, q, err
	}
	logger.Debug("fallback query finished", zap.String("query", q.Text), zap.Int("results", len(results)))
	return results, q, nil
}

// query issues one search. Only quota exhaustion and cancellation are
// returned; other failures count as an empty answer.
func (p *Pipeline) query(ctx context.Context, q Query, logger *zap.Logger) ([]SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	results, err := p.searcher.Search(ctx, q.Text)
	switch {
	case errors.Is(err, ErrQuotaExhausted):
		return nil, err
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case err != nil:
		logger.Warn("search failed", zap.String("query", q.Text), zap.Error(err))
		return nil, nil
	}
	return FilterExcluded(results, p.cfg.ExcludedDomains), nil
}

// finish ranks what was collected. A found outcome with nothing to rank
// becomes not found.
func (p *Pipeline) finish(res EntityResult, candidates []Candidate, outcome Outcome) EntityResult {
	res.Ranked = Rank(candidates, p.cfg.MaxSecondary)
	res.Rows = BuildRows(res.Entity, res.Ranked, p.cfg.MaxSecondary)
	res.Outcome = outcome
	if outcome == OutcomeFound && len(res.Ranked) == 0 {
		res.Outcome = OutcomeNotFound
	}
	return res
}

func (p *Pipeline) archive(ctx context.Context, page Page, logger *zap.Logger) {
	if p.archiver == nil {
		return
	}
	if _, err := p.archiver.Archive(ctx, page); err != nil {
		logger.Warn("failed to archive page", zap.String("url", page.URL), zap.Error(err))
	}
}

func maxScore(candidates []Candidate) int {
	best := 0
	for _, c := range candidates {
		best = max(best, c.Score)
	}
	return best
}
