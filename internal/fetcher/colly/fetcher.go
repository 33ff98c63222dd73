// Package collyfetcher fetches pages and probes URLs using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/report-discovery/internal/discovery"
	"github.com/JakeFAU/report-discovery/internal/metrics"
)

// Browser-like defaults; several report hosts reject obvious bots.
const (
	DefaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	DefaultAcceptLanguage = "en-US,en;q=0.9"
	DefaultAccept         = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	DefaultTimeout        = 30 * time.Second

	// probeBodyLimit caps the GET fallback of an existence probe.
	probeBodyLimit = 512
)

// Config controls collector behavior.
type Config struct {
	UserAgent      string
	AcceptLanguage string
	Accept         string
	RespectRobots  bool
	Timeout        time.Duration
	// MaxBodySize caps page bodies in bytes. Zero keeps colly's default.
	MaxBodySize int
}

type waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Fetcher implements discovery.Fetcher and discovery.Prober using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	limiter       waiter
	retry         *discovery.ProcessingRetry
	logger        *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. limiter may be nil; retry defaults to three 5s re-issues.
func New(cfg Config, limiter waiter, retry *discovery.ProcessingRetry, logger *zap.Logger) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.AcceptLanguage == "" {
		cfg.AcceptLanguage = DefaultAcceptLanguage
	}
	if cfg.Accept == "" {
		cfg.Accept = DefaultAccept
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if retry == nil {
		retry = discovery.NewProcessingRetry(discovery.DefaultProcessingAttempts, discovery.DefaultProcessingBackoff, nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	// Every status reaches OnResponse so callers can inspect 202s and 404s.
	c.ParseHTTPErrorResponse = true
	c.IgnoreRobotsTxt = !cfg.RespectRobots

	var transport http.RoundTripper = newHTTPTransport()
	if cfg.RespectRobots {
		transport = newRobotsTransport(transport, logger)
	}
	c.WithTransport(transport)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		limiter:       limiter,
		retry:         retry,
		logger:        logger,
	}
}

// Get issues a single GET and returns the response whatever its status.
func (f *Fetcher) Get(ctx context.Context, rawURL string) (discovery.Page, error) {
	return f.do(ctx, http.MethodGet, rawURL, f.cfg.MaxBodySize)
}

// Fetch retrieves a page, re-issuing while the server answers 202. Anything
// other than a final 200 fails with discovery.ErrFetchFailed.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (discovery.Page, error) {
	var page discovery.Page
	processing, err := f.retry.Do(ctx, func(attempt int) (bool, error) {
		var getErr error
		page, getErr = f.Get(ctx, rawURL)
		if getErr != nil {
			return false, getErr
		}
		if page.StatusCode == http.StatusAccepted {
			f.logger.Debug("page still processing", zap.String("url", rawURL), zap.Int("attempt", attempt))
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return discovery.Page{}, fmt.Errorf("%w: %s: %w", discovery.ErrFetchFailed, rawURL, err)
	}
	if processing || page.StatusCode != http.StatusOK {
		return discovery.Page{}, fmt.Errorf("%w: %s: status %d", discovery.ErrFetchFailed, rawURL, page.StatusCode)
	}
	return page, nil
}

// Probe reports whether rawURL answers 200 to a HEAD, or failing that to a
// GET whose body is discarded. Network errors count as missing.
func (f *Fetcher) Probe(ctx context.Context, rawURL string) bool {
	live := f.settle(ctx, http.MethodHead, rawURL, 0) == http.StatusOK
	if !live && ctx.Err() == nil {
		live = f.settle(ctx, http.MethodGet, rawURL, probeBodyLimit) == http.StatusOK
	}
	metrics.ObserveProbe(live)
	return live
}

// settle returns the final status after 202 re-issues, or 0 on error.
func (f *Fetcher) settle(ctx context.Context, method, rawURL string, bodyLimit int) int {
	status := 0
	_, err := f.retry.Do(ctx, func(int) (bool, error) {
		page, err := f.do(ctx, method, rawURL, bodyLimit)
		if err != nil {
			return false, err
		}
		status = page.StatusCode
		return status == http.StatusAccepted, nil
	})
	if err != nil {
		f.logger.Debug("probe request failed", zap.String("method", method), zap.String("url", rawURL), zap.Error(err))
		return 0
	}
	return status
}

func (f *Fetcher) do(ctx context.Context, method, rawURL string, bodyLimit int) (discovery.Page, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, rawURL); err != nil {
			return discovery.Page{}, err
		}
	}
	var (
		result   discovery.Page
		fetchErr error
	)
	collector := f.buildCollector(rawURL, bodyLimit, time.Now(), &result, &fetchErr)
	if err := f.runCollector(ctx, collector, method, rawURL, &fetchErr); err != nil {
		return discovery.Page{}, err
	}
	if method == http.MethodGet {
		metrics.ObserveFetch(rawURL, result.StatusCode, len(result.Body))
	}
	return result, nil
}

func (f *Fetcher) buildCollector(
	rawURL string,
	bodyLimit int,
	start time.Time,
	result *discovery.Page,
	fetchErr *error,
) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.UserAgent = f.cfg.UserAgent
	collector.SetRequestTimeout(f.cfg.Timeout)
	if bodyLimit > 0 {
		collector.MaxBodySize = bodyLimit
	}
	f.configureCollectorHooks(collector, rawURL, start, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	rawURL string,
	start time.Time,
	result *discovery.Page,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", f.cfg.Accept)
		r.Headers.Set("Accept-Language", f.cfg.AcceptLanguage)
	})

	hooks.OnResponse(func(r *colly.Response) {
		page := discovery.Page{
			URL:        rawURL,
			FinalURL:   rawURL,
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
		if r.Request != nil && r.Request.URL != nil {
			page.FinalURL = r.Request.URL.String()
		}
		if r.Headers != nil {
			page.Headers = r.Headers.Clone()
		}
		*result = page
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, method, rawURL string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		if method == http.MethodHead {
			done <- collector.Head(rawURL)
			return
		}
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
