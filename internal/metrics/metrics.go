// Package metrics exposes Prometheus collectors for the gatherer.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result labels.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultSkipped = "skipped"
)

var (
	runsTotal                  *prometheus.CounterVec
	phaseRunsTotal             *prometheus.CounterVec
	phaseDurationSeconds       *prometheus.HistogramVec
	displayErrorsTotal         prometheus.Counter
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dirgather_runs_total",
				Help: "Total number of pipeline runs, labeled by result.",
			},
			[]string{"result"},
		)

		phaseRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dirgather_phase_runs_total",
				Help: "Total number of phase executions, labeled by phase and result.",
			},
			[]string{"phase", "result"},
		)

		phaseDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dirgather_phase_duration_seconds",
				Help:    "Wall time per executed phase.",
				Buckets: []float64{1, 5, 15, 60, 300, 900, 1800, 3600, 7200},
			},
			[]string{"phase"},
		)

		displayErrorsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "dirgather_display_errors_total",
				Help: "Total number of progress display updates that failed.",
			},
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

// ObserveRun increments the run counter for result.
func ObserveRun(result string) {
	Init()
	runsTotal.WithLabelValues(result).Inc()
}

// ObservePhase records one phase execution. Skipped phases carry no duration.
func ObservePhase(phase, result string, duration time.Duration) {
	Init()
	phaseRunsTotal.WithLabelValues(phase, result).Inc()
	if result != ResultSkipped {
		phaseDurationSeconds.WithLabelValues(phase).Observe(duration.Seconds())
	}
}

// IncDisplayErrors counts one failed display update.
func IncDisplayErrors() {
	Init()
	displayErrorsTotal.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		ObserveHTTPRequest(r.Method, route, rec.statusCode, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}
