// Package metrics exposes Prometheus collectors for discovery runs.
package metrics

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	searchRequestsTotal        *prometheus.CounterVec
	pageFetchesTotal           *prometheus.CounterVec
	pageBytesTotal             *prometheus.CounterVec
	probesTotal                *prometheus.CounterVec
	candidatesTotal            *prometheus.CounterVec
	entitiesTotal              *prometheus.CounterVec
	robotsFallbacksTotal       prometheus.Counter
	quotaRemaining             prometheus.Gauge
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		searchRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reportfinder_search_requests_total",
				Help: "Search backend requests, labeled by backend and status.",
			},
			[]string{"backend", "status"},
		)

		pageFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reportfinder_page_fetches_total",
				Help: "Page fetches, labeled by site and status code.",
			},
			[]string{"site", "status"},
		)

		pageBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reportfinder_page_bytes_total",
				Help: "Bytes of page bodies fetched, labeled by site.",
			},
			[]string{"site"},
		)

		probesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reportfinder_probes_total",
				Help: "URL existence probes, labeled by result.",
			},
			[]string{"result"},
		)

		candidatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reportfinder_candidates_total",
				Help: "Candidates extracted, labeled by extraction step.",
			},
			[]string{"step"},
		)

		entitiesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reportfinder_entities_total",
				Help: "Entities processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		robotsFallbacksTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "reportfinder_robots_fallbacks_total",
				Help: "robots.txt probes that timed out and fell back to allow-all.",
			},
		)

		quotaRemaining = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "reportfinder_quota_remaining",
				Help: "Search requests left in today's quota.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reportfinder_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests served, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// WriteTextfile dumps the default registry in the node_exporter textfile format.
func WriteTextfile(path string) error {
	Init()
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// ObserveSearch counts one backend request.
func ObserveSearch(backend, status string) {
	Init()
	searchRequestsTotal.WithLabelValues(backend, status).Inc()
}

// ObserveFetch counts one page fetch and its body size.
func ObserveFetch(site string, statusCode int, bytesFetched int) {
	Init()
	sanitizedSite := SanitizeSite(site)
	pageFetchesTotal.WithLabelValues(sanitizedSite, strconv.Itoa(statusCode)).Inc()
	if bytesFetched > 0 {
		pageBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
}

// ObserveProbe counts one existence probe.
func ObserveProbe(live bool) {
	Init()
	result := "missing"
	if live {
		result = "live"
	}
	probesTotal.WithLabelValues(result).Inc()
}

// ObserveRobotsFallback counts a robots.txt probe that fell back to allow-all.
func ObserveRobotsFallback() {
	Init()
	robotsFallbacksTotal.Inc()
}

// ObserveCandidates adds n candidates found by step.
func ObserveCandidates(step string, n int) {
	Init()
	if n > 0 {
		candidatesTotal.WithLabelValues(step).Add(float64(n))
	}
}

// ObserveEntity counts one finished entity.
func ObserveEntity(outcome string) {
	Init()
	entitiesTotal.WithLabelValues(outcome).Inc()
}

// SetQuotaRemaining publishes the remaining daily quota.
func SetQuotaRemaining(n int) {
	Init()
	quotaRemaining.Set(float64(n))
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest records one request served by the metrics server.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
