package collyfetcher

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/report-discovery/internal/metrics"
)

const allowAllRobots = "User-agent: *\nAllow: /"

var defaultRobotsBackoff = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

// robotsTransport sits under colly's robots.txt check. A robots.txt lookup
// that keeps timing out is answered with an allow-all file, and the host is
// remembered so later pages on it skip the waits.
type robotsTransport struct {
	next    http.RoundTripper
	backoff []time.Duration
	logger  *zap.Logger

	mu          sync.Mutex
	unreachable map[string]struct{}
}

func newRobotsTransport(next http.RoundTripper, logger *zap.Logger) *robotsTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &robotsTransport{
		next:        next,
		backoff:     defaultRobotsBackoff,
		logger:      logger,
		unreachable: make(map[string]struct{}),
	}
}

func (t *robotsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil || req.URL == nil {
		return nil, errors.New("robots transport: nil request")
	}
	if !strings.EqualFold(req.URL.Path, "/robots.txt") {
		return t.next.RoundTrip(req)
	}

	host := strings.ToLower(req.URL.Host)
	if t.known(host) {
		return allowAll(req), nil
	}

	for attempt := 0; ; attempt++ {
		resp, err := t.next.RoundTrip(req.Clone(req.Context()))
		if err == nil {
			return resp, nil
		}
		if !isTimeout(err) {
			return nil, err
		}
		if attempt >= len(t.backoff) {
			t.remember(host)
			t.logger.Warn("robots.txt unreachable, allowing all", zap.String("host", host), zap.Error(err))
			metrics.ObserveRobotsFallback()
			return allowAll(req), nil
		}
		if err := wait(req.Context(), t.backoff[attempt]); err != nil {
			return nil, err
		}
	}
}

func (t *robotsTransport) known(host string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.unreachable[host]
	return ok
}

func (t *robotsTransport) remember(host string) {
	t.mu.Lock()
	t.unreachable[host] = struct{}{}
	t.mu.Unlock()
}

func allowAll(req *http.Request) *http.Response {
	return &http.Response{
		StatusCode:    http.StatusOK,
		Status:        "200 OK",
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Body:          io.NopCloser(strings.NewReader(allowAllRobots)),
		ContentLength: int64(len(allowAllRobots)),
		Header:        http.Header{"Content-Type": []string{"text/plain"}},
		Request:       req,
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "handshake timeout")
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
