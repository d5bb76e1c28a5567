// Package metrics exposes Prometheus collectors for the batch crawler.
package metrics

import (
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
	crawlerPagesTotal           *prometheus.CounterVec
	crawlerBatchesTotal         prometheus.Counter
	crawlerBatchDurationSeconds prometheus.Histogram
	crawlerInFlightTasks        prometheus.Gauge
	crawlerMemoryBytes          prometheus.Gauge
	crawlerMemoryPeakBytes      prometheus.Gauge
	sitemapFailuresTotal        *prometheus.CounterVec
	sitemapURLsTotal            prometheus.Counter
	sinkWritesTotal             *prometheus.CounterVec
	httpRequestsTotal           *prometheus.CounterVec
	httpRequestDurationSeconds  *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_pages_total",
				Help: "Total number of crawl tasks, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		crawlerBatchesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_batches_total",
				Help: "Total number of batches dispatched.",
			},
		)

		crawlerBatchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawler_batch_duration_seconds",
				Help:    "Histogram of wall time taken for a batch to settle.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
		)

		crawlerInFlightTasks = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_inflight_tasks",
				Help: "Number of crawl tasks currently in flight.",
			},
		)

		crawlerMemoryBytes = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_memory_bytes",
				Help: "Most recent process memory sample in bytes.",
			},
		)

		crawlerMemoryPeakBytes = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_memory_peak_bytes",
				Help: "Peak process memory observed during the current run.",
			},
		)

		sitemapFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitemap_failures_total",
				Help: "Total number of sitemap locations skipped, labeled by failure kind.",
			},
			[]string{"kind"},
		)

		sitemapURLsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sitemap_urls_total",
				Help: "Total number of unique page URLs collected from sitemaps.",
			},
		)

		sinkWritesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sink_writes_total",
				Help: "Total number of page artifacts written, labeled by status.",
			},
			[]string{"status"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
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
	return promhttp.Handler()
}

// ObservePage increments the per-site outcome counter.
func ObservePage(site string, outcome string) {
	crawlerPagesTotal.WithLabelValues(SanitizeSite(site), outcome).Inc()
}

// ObserveBatch records a settled batch.
func ObserveBatch(duration time.Duration) {
	crawlerBatchesTotal.Inc()
	crawlerBatchDurationSeconds.Observe(duration.Seconds())
}

// IncInFlight increments the in-flight task gauge.
func IncInFlight() {
	crawlerInFlightTasks.Inc()
}

// DecInFlight decrements the in-flight task gauge.
func DecInFlight() {
	crawlerInFlightTasks.Dec()
}

// ObserveMemory publishes the latest memory sample and the running peak.
func ObserveMemory(current, peak uint64) {
	crawlerMemoryBytes.Set(float64(current))
	crawlerMemoryPeakBytes.Set(float64(peak))
}

// ObserveSitemapFailure increments the sitemap failure counter for the given kind.
func ObserveSitemapFailure(kind string) {
	sitemapFailuresTotal.WithLabelValues(kind).Inc()
}

// AddSitemapURLs adds to the collected URL counter.
func AddSitemapURLs(n int) {
	if n > 0 {
		sitemapURLsTotal.Add(float64(n))
	}
}

// ObserveSinkWrite increments the sink write counter for the given status.
func ObserveSinkWrite(status string) {
	sinkWritesTotal.WithLabelValues(status).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
