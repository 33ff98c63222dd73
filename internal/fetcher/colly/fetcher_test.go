package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/report-discovery/internal/discovery"
)

type noPause struct{}

func (noPause) Pause(context.Context, time.Duration) {}

func newTestFetcher() *Fetcher {
	return New(Config{Timeout: 5 * time.Second}, nil, discovery.NewProcessingRetry(3, time.Millisecond, noPause{}), nil)
}

func TestFetchReturnsBodyAndSendsBrowserHeaders(t *testing.T) {
	t.Parallel()

	var (
		mu             sync.Mutex
		gotUA, gotLang string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotUA = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		mu.Unlock()
		_, _ = w.Write([]byte("<html><a href='/ar.pdf'>Annual Report</a></html>"))
	}))
	defer srv.Close()

	page, err := newTestFetcher().Fetch(context.Background(), srv.URL+"/investors")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Contains(t, string(page.Body), "Annual Report")
	assert.Equal(t, srv.URL+"/investors", page.URL)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, DefaultUserAgent, gotUA)
	assert.Equal(t, DefaultAcceptLanguage, gotLang)
}

func TestFetchFollowsRedirects(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new/", http.StatusFound)
	})
	mux.HandleFunc("/new/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("moved"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	page, err := newTestFetcher().Fetch(context.Background(), srv.URL+"/old")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/new/", page.FinalURL)
	assert.Equal(t, srv.URL+"/new/", page.BaseURL())
}

func TestFetchRetriesAccepted(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		_, _ = w.Write([]byte("ready"))
	}))
	defer srv.Close()

	page, err := newTestFetcher().Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "ready", string(page.Body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchFailures(t *testing.T) {
	t.Parallel()

	var accepted atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/missing", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/busy", func(w http.ResponseWriter, _ *http.Request) {
		accepted.Add(1)
		w.WriteHeader(http.StatusAccepted)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := newTestFetcher()
	_, err := f.Fetch(context.Background(), srv.URL+"/missing")
	assert.ErrorIs(t, err, discovery.ErrFetchFailed)

	_, err = f.Fetch(context.Background(), srv.URL+"/busy")
	assert.ErrorIs(t, err, discovery.ErrFetchFailed)
	assert.Equal(t, int32(4), accepted.Load(), "one request plus three re-issues")

	_, err = f.Fetch(context.Background(), "http://127.0.0.1:1/unreachable")
	assert.ErrorIs(t, err, discovery.ErrFetchFailed)
}

func TestFetchHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := newTestFetcher().Fetch(ctx, srv.URL)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestProbe(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var methods []string
	mux := http.NewServeMux()
	mux.HandleFunc("/head-ok.pdf", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		methods = append(methods, r.Method+" head-ok")
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/get-only.pdf", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		methods = append(methods, r.Method+" get-only")
		mu.Unlock()
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_, _ = w.Write(make([]byte, 4096))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := newTestFetcher()
	ctx := context.Background()
	assert.True(t, f.Probe(ctx, srv.URL+"/head-ok.pdf"))
	assert.True(t, f.Probe(ctx, srv.URL+"/get-only.pdf"))
	assert.False(t, f.Probe(ctx, srv.URL+"/missing.pdf"))
	assert.False(t, f.Probe(ctx, "http://127.0.0.1:1/nothing.pdf"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"HEAD head-ok", "HEAD get-only", "GET get-only"}, methods)
}

type recordingLimiter struct {
	mu   sync.Mutex
	urls []string
	err  error
}

func (l *recordingLimiter) Wait(_ context.Context, rawURL string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.urls = append(l.urls, rawURL)
	return l.err
}

func TestFetchWaitsOnLimiter(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	limiter := &recordingLimiter{}
	f := New(Config{}, limiter, discovery.NewProcessingRetry(0, time.Millisecond, noPause{}), nil)
	_, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []string{srv.URL}, limiter.urls)

	limiter.err = errors.New("limited")
	_, err = f.Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, discovery.ErrFetchFailed)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := newTestFetcher()
	var result discovery.Page
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, "https://example.com/a", time.Unix(0, 0), &result, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	assert.Equal(t, DefaultAcceptLanguage, collyReq.Headers.Get("Accept-Language"))
	assert.Equal(t, DefaultAccept, collyReq.Headers.Get("Accept"))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusCreated,
		Body:       []byte("body"),
		Headers:    &http.Header{"X-Resp": {"ok"}},
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com/b")},
	})
	assert.Equal(t, http.StatusCreated, result.StatusCode)
	assert.Equal(t, "body", string(result.Body))
	assert.Equal(t, "https://example.com/a", result.URL)
	assert.Equal(t, "https://example.com/b", result.FinalURL)
	assert.Equal(t, []string{"ok"}, result.Headers["X-Resp"])

	hooks.onError(nil, errors.New("boom"))
	assert.EqualError(t, fetchErr, "boom")
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
