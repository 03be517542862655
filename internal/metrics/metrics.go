// Package metrics exposes Prometheus collectors for the scraper service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchUnitsTotal            *prometheus.CounterVec
	fetchRetriesTotal          *prometheus.CounterVec
	recordsTotal               *prometheus.CounterVec
	cycleDurationSeconds       prometheus.Histogram
	activeSessions             prometheus.Gauge
	deliveriesTotal            *prometheus.CounterVec
	sourceConsecutiveFailures  *prometheus.GaugeVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	robotsFallbackTotal        *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchUnitsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobscraper_fetch_units_total",
				Help: "Fetch units executed, labeled by source and outcome.",
			},
			[]string{"source", "outcome"},
		)

		fetchRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobscraper_fetch_retries_total",
				Help: "Retried fetch attempts, labeled by source.",
			},
			[]string{"source"},
		)

		recordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobscraper_records_total",
				Help: "Records seen by the pipeline, labeled by source and stage.",
			},
			[]string{"source", "stage"},
		)

		cycleDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "jobscraper_cycle_duration_seconds",
				Help:    "Histogram of scrape cycle durations.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
			},
		)

		activeSessions = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "jobscraper_active_sessions",
				Help: "Number of sessions currently in the running state.",
			},
		)

		deliveriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobscraper_deliveries_total",
				Help: "Notifications sent, labeled by status.",
			},
			[]string{"status"},
		)

		sourceConsecutiveFailures = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "jobscraper_source_consecutive_failures",
				Help: "Consecutive failed cycles per source.",
			},
			[]string{"source"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jobscraper_rate_limit_delays_seconds",
				Help:    "Histogram of per-source rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"source"},
		)

		robotsFallbackTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobscraper_robots_fallback_total",
				Help: "robots.txt probes that fell back to allow-all, labeled by reason.",
			},
			[]string{"reason"},
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

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetchUnit counts one (source, query) unit by outcome
// ("ok", "transient", "permanent", "timeout", "skipped").
func ObserveFetchUnit(source, outcome string) {
	Init()
	fetchUnitsTotal.WithLabelValues(source, outcome).Inc()
}

// ObserveRetry counts a retried attempt.
func ObserveRetry(source string) {
	Init()
	fetchRetriesTotal.WithLabelValues(source).Inc()
}

// ObserveRecords adds n records at a pipeline stage
// ("scraped", "new", "duplicate", "incomplete", "store_error", "filtered",
// "delivered").
func ObserveRecords(source, stage string, n int) {
	if n <= 0 {
		return
	}
	Init()
	recordsTotal.WithLabelValues(source, stage).Add(float64(n))
}

// ObserveCycle records one completed cycle.
func ObserveCycle(duration time.Duration) {
	Init()
	cycleDurationSeconds.Observe(duration.Seconds())
}

// SetActiveSessions sets the running-session gauge.
func SetActiveSessions(n int) {
	Init()
	activeSessions.Set(float64(n))
}

// ObserveDelivery counts a notification attempt by status ("sent", "failed").
func ObserveDelivery(status string) {
	Init()
	deliveriesTotal.WithLabelValues(status).Inc()
}

// SetSourceFailures publishes the consecutive failure count for a source.
func SetSourceFailures(source string, n int) {
	Init()
	sourceConsecutiveFailures.WithLabelValues(source).Set(float64(n))
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(source string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(source).Observe(duration.Seconds())
}

// ObserveRobotsFallback counts a robots.txt probe that fell back to allow-all.
func ObserveRobotsFallback(reason string) {
	Init()
	robotsFallbackTotal.WithLabelValues(reason).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
