// Package metrics exposes Prometheus collectors for the sync service.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	syncRequestsTotal          *prometheus.CounterVec
	workerJobsTotal            *prometheus.CounterVec
	activeWorkers              prometheus.Gauge
	rateLimitDelaySeconds      *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
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

		syncRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oabsync_requests_total",
				Help: "Orchestrator calls, labeled by operation and error kind.",
			},
			[]string{"operation", "outcome"},
		)

		workerJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oabsync_worker_jobs_total",
				Help: "Jobs handled by workers, labeled by resulting status.",
			},
			[]string{"status"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "oabsync_active_workers",
				Help: "Number of workers currently processing a job.",
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "oabsync_rate_limit_delay_seconds",
				Help:    "Histogram of per-court rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"tribunal"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveSyncRequest counts an orchestrator call. outcome is "ok" or an error kind.
func ObserveSyncRequest(operation, outcome string) {
	if syncRequestsTotal == nil {
		return
	}
	syncRequestsTotal.WithLabelValues(operation, outcome).Inc()
}

// ObserveJob increments the job counter for the given status.
func ObserveJob(status string) {
	if workerJobsTotal == nil {
		return
	}
	workerJobsTotal.WithLabelValues(status).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	if activeWorkers != nil {
		activeWorkers.Inc()
	}
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	if activeWorkers != nil {
		activeWorkers.Dec()
	}
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(tribunal string, duration time.Duration) {
	if rateLimitDelaySeconds == nil {
		return
	}
	rateLimitDelaySeconds.WithLabelValues(SanitizeLabel(tribunal)).Observe(duration.Seconds())
}

// SanitizeLabel upper-cases a court acronym and maps blanks to "unknown".
func SanitizeLabel(value string) string {
	value = strings.ToUpper(strings.TrimSpace(value))
	if value == "" {
		return "unknown"
	}
	return value
}
