package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	EvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flag_evaluations_total",
			Help: "Total number of flag evaluations by outcome (count)",
		},
		[]string{"outcome"},
	)

	EvaluationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flag_evaluation_duration_ms",
			Help:    "Duration of flag evaluations in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	MutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flag_mutations_total",
			Help: "Total number of flag mutations by action (count)",
		},
		[]string{"action"},
	)

	CacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flag_cache_requests_total",
			Help: "Total number of flag cache lookups by result (count)",
		},
		[]string{"result"},
	)

	CacheBreakerState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flag_cache_breaker_state",
			Help: "Cache circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
	)

	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flag_events_published_total",
			Help: "Total number of change events published by status (count)",
		},
		[]string{"status"},
	)

	EventsDeliveredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flag_events_delivered_total",
			Help: "Total number of change events delivered to streaming sessions (count)",
		},
		[]string{"status"},
	)

	ActiveStreamSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flag_stream_sessions_active",
			Help: "Number of connected event stream sessions (count)",
		},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_ms",
			Help:    "Duration of HTTP requests in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"method", "path", "status"},
	)
)

func RegisterFlagMetrics() {
	prometheus.MustRegister(EvaluationsTotal)
	prometheus.MustRegister(EvaluationDuration)
	prometheus.MustRegister(MutationsTotal)
	prometheus.MustRegister(CacheRequestsTotal)
	prometheus.MustRegister(CacheBreakerState)
	prometheus.MustRegister(EventsPublishedTotal)
	prometheus.MustRegister(EventsDeliveredTotal)
}

func RegisterStreamMetrics() {
	prometheus.MustRegister(ActiveStreamSessions)
}

func RegisterHTTPMetrics() {
	prometheus.MustRegister(RateLimitRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
}

func ObserveEvaluationDuration(duration time.Duration) {
	EvaluationDuration.Observe(float64(duration.Milliseconds()))
}

func ObserveHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(float64(duration.Milliseconds()))
}
