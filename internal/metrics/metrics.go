// Package metrics exposes Prometheus metrics for passes, triggers and the
// HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Trigger outcomes
const (
	OutcomeSent    = "sent"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nudge_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nudge_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 60},
		},
		[]string{"method", "path"},
	)

	passesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nudge_passes_total",
			Help: "Dispatch passes by result (ok, error)",
		},
		[]string{"result"},
	)

	passDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nudge_pass_duration_seconds",
			Help:    "Wall time of a dispatch pass",
			Buckets: []float64{.1, .5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	triggersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nudge_triggers_total",
			Help: "Trigger deliveries by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nudge_enrollment_transitions_total",
			Help: "Enrollment status transitions by target status",
		},
		[]string{"to"},
	)

	rateLimitRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nudge_rate_limit_rejections_total",
			Help: "Pass trigger requests rejected by the rate limiter",
		},
	)

	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nudge_circuit_breaker_state",
			Help: "Circuit breaker state per provider (0 closed, 1 open, 2 half-open)",
		},
		[]string{"name"},
	)

	dbConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nudge_db_connections_active",
			Help: "Acquired database connections",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordPass records a finished pass.
func RecordPass(err error, duration time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	passesTotal.WithLabelValues(result).Inc()
	passDuration.Observe(duration.Seconds())
}

// RecordTrigger records the outcome of one trigger delivery.
func RecordTrigger(kind, outcome string) {
	triggersTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordTransition records an enrollment moving to status to.
func RecordTransition(to string) {
	transitionsTotal.WithLabelValues(to).Inc()
}

// RecordRateLimitRejection records a rate limit rejection
func RecordRateLimitRejection() {
	rateLimitRejections.Inc()
}

// SetBreakerState publishes a circuit breaker state as its numeric value.
func SetBreakerState(name string, state int) {
	breakerState.WithLabelValues(name).Set(float64(state))
}

// SetDBConnections sets acquired database connection count
func SetDBConnections(count int) {
	dbConnectionsActive.Set(float64(count))
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		RecordRequest(r.Method, r.URL.Path, wrapped.status, time.Since(start))
	})
}
