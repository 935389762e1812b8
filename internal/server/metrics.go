package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	outcomeOK      = "ok"
	outcomeTimeout = "timeout"
	outcomeError   = "error"
)

// Metrics holds all Prometheus metrics owned by the server. It also
// implements agent.Observer so pipeline stage timings land in the same
// registry.
type Metrics struct {
	// askRequestsTotal counts completed /api/ask requests by outcome.
	askRequestsTotal *prometheus.CounterVec

	// askDurationSeconds records the wall-clock duration of each /api/ask
	// request from receipt to stream completion.
	askDurationSeconds *prometheus.HistogramVec

	// askActiveStreams is the number of /api/ask SSE streams currently open.
	askActiveStreams prometheus.Gauge

	// searchRequestsTotal counts completed /api/search requests by outcome.
	searchRequestsTotal *prometheus.CounterVec

	// stageDurationSeconds records each pipeline stage (extract, retrieve,
	// synthesize) by outcome.
	stageDurationSeconds *prometheus.HistogramVec

	// httpRequestsTotal counts all HTTP requests, partitioned by method,
	// chi route pattern, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec

	// rateLimitedTotal counts requests rejected by the per-IP limiter.
	rateLimitedTotal *prometheus.CounterVec
}

// NewMetrics registers all server metrics against reg. promauto.With(reg)
// keeps unit tests hermetic when they pass a fresh registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		askRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shopai",
			Subsystem: "ask",
			Name:      "requests_total",
			Help:      "Total number of /api/ask requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		askDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "shopai",
			Subsystem: "ask",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of /api/ask requests from receipt to stream completion.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),

		askActiveStreams: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "shopai",
			Subsystem: "ask",
			Name:      "active_streams",
			Help:      "Number of /api/ask SSE streams currently open.",
		}),

		searchRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shopai",
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Total number of /api/search requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		stageDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "shopai",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage, partitioned by stage and outcome.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage", "outcome"}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shopai",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, route, and status code.",
		}, []string{"method", "route", "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "shopai",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),

		rateLimitedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shopai",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected with 429 by the per-IP rate limiter, partitioned by path.",
		}, []string{"path"}),
	}
}

// ObserveStage implements agent.Observer.
func (m *Metrics) ObserveStage(stage string, d time.Duration, err error) {
	m.stageDurationSeconds.WithLabelValues(stage, outcomeOf(err)).Observe(d.Seconds())
}

// outcomeOf maps an error to an outcome label.
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, context.DeadlineExceeded):
		return outcomeTimeout
	default:
		return outcomeError
	}
}

// middleware records request count and latency by chi route pattern.
// It must be mounted on the chi router so the route context is populated.
func (m *Metrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := "unknown"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		m.httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.status)).Inc()
		m.httpDurationSeconds.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
