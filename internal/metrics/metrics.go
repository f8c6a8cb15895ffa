// Package metrics exposes Prometheus collectors for the contest scanner.
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
	contestsTotal              *prometheus.CounterVec
	fetchesTotal               *prometheus.CounterVec
	statePersistFailuresTotal  prometheus.Counter
	notifyFailuresTotal        prometheus.Counter
	batchDurationSeconds       prometheus.Histogram
	recordsGauge               prometheus.Gauge
	rateLimitDelaySeconds      *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors. It is safe to call more than once, and
// every Observe helper calls it.
func Init() {
	once.Do(func() {
		contestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "concurso_contests_total",
				Help: "Contests handled per batch, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "concurso_fetches_total",
				Help: "Remote fetches, labeled by page kind and result.",
			},
			[]string{"kind", "result"},
		)

		statePersistFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "concurso_state_persist_failures_total",
				Help: "Failed writes of the processed set or the record store.",
			},
		)

		notifyFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "concurso_notify_failures_total",
				Help: "Notifications that could not be delivered.",
			},
		)

		batchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "concurso_batch_duration_seconds",
				Help:    "Wall time of a full batch run.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
			},
		)

		recordsGauge = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "concurso_records",
				Help: "Records in the persisted record store.",
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "concurso_rate_limit_delay_seconds",
				Help:    "Time spent waiting on the per-host rate limiter.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
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

// SanitizeSite reduces a URL to its lowercase hostname, or "unknown".
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

// ObserveContest counts one contest outcome.
func ObserveContest(outcome string) {
	Init()
	contestsTotal.WithLabelValues(outcome).Inc()
}

// ObserveFetch counts a fetch of the given kind (listing, detail, document).
func ObserveFetch(kind string, err error) {
	Init()
	result := "ok"
	if err != nil {
		result = "error"
	}
	fetchesTotal.WithLabelValues(kind, result).Inc()
}

// ObserveStatePersistFailure counts a failed state write.
func ObserveStatePersistFailure() {
	Init()
	statePersistFailuresTotal.Inc()
}

// ObserveNotifyFailure counts a failed notification.
func ObserveNotifyFailure() {
	Init()
	notifyFailuresTotal.Inc()
}

// ObserveBatch records a finished batch.
func ObserveBatch(duration time.Duration) {
	Init()
	batchDurationSeconds.Observe(duration.Seconds())
}

// SetRecords sets the record count gauge.
func SetRecords(n int) {
	Init()
	recordsGauge.Set(float64(n))
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest records one API request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
