// Package metrics provides Prometheus instrumentation for the optimizer service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RunsTotal counts optimization runs by outcome (a solver status or "error").
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "optimizer_runs_total",
		Help: "Total optimization runs",
	}, []string{"status"})

	// RunDuration tracks end-to-end run latency by solver algorithm.
	RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "optimizer_run_duration_seconds",
		Help:    "Optimization run duration in seconds, including price fetches",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"algorithm"})

	// SolverIterations observes iterations spent per solve.
	SolverIterations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "optimizer_solver_iterations",
		Help:    "Solver iterations per run",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"algorithm"})

	// PriceFetches counts price series lookups by where they were served
	// from: "cache", "upstream" or "error".
	PriceFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "optimizer_price_fetches_total",
		Help: "Price series lookups",
	}, []string{"source"})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "optimizer_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "optimizer_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request metrics labelled with the chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			path = rc.RoutePattern()
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
