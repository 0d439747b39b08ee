// Package metrics exposes ledger and HTTP metrics on a private Prometheus
// registry. Registry implements timeoff.Recorder.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warp/leave-ledger/generic"
)

// Metric names.
const (
	MetricRequestsTotal       = "leave_requests_total"
	MetricBatchRunsTotal      = "leave_batch_runs_total"
	MetricBatchItemsTotal     = "leave_batch_items_total"
	MetricHTTPDurationSeconds = "http_request_duration_seconds"
)

// Registry holds the collectors. Safe for concurrent use.
type Registry struct {
	registry *prometheus.Registry

	requestsTotal  *prometheus.CounterVec
	batchRunsTotal *prometheus.CounterVec
	batchItems     *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// New creates a registry with Go runtime and process collectors attached.
func New() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRequestsTotal,
				Help: "Leave and balance operations by action and outcome.",
			},
			[]string{"action", "outcome"},
		),
		batchRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricBatchRunsTotal,
				Help: "Batch job runs by job and outcome.",
			},
			[]string{"job", "outcome"},
		),
		batchItems: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricBatchItemsTotal,
				Help: "Items changed by batch jobs.",
			},
			[]string{"job"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricHTTPDurationSeconds,
				Help:    "Duration of HTTP requests in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.requestsTotal,
		r.batchRunsTotal,
		r.batchItems,
		r.httpDuration,
	)
	return r
}

// ObserveRequest counts one operation.
func (r *Registry) ObserveRequest(action string, err error) {
	r.requestsTotal.WithLabelValues(action, Outcome(err)).Inc()
}

// ObserveBatch counts one batch run and the items it changed.
func (r *Registry) ObserveBatch(job string, items int, err error) {
	r.batchRunsTotal.WithLabelValues(job, Outcome(err)).Inc()
	if items > 0 {
		r.batchItems.WithLabelValues(job).Add(float64(items))
	}
}

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Gatherer exposes the underlying registry, mainly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Middleware records request durations labelled by the chi route pattern,
// so /api/leaves/{id} is one series regardless of id.
func (r *Registry) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		next.ServeHTTP(ww, req)

		route := "unmatched"
		if rctx := chi.RouteContext(req.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		r.httpDuration.
			WithLabelValues(req.Method, route, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}

// Outcome maps an error onto a small, fixed label set.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, generic.ErrNotFound):
		return "not_found"
	case errors.Is(err, generic.ErrValidation), errors.Is(err, generic.ErrInvalidRange):
		return "invalid"
	case errors.Is(err, generic.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, generic.ErrDateConflict):
		return "conflict"
	case errors.Is(err, generic.ErrInvalidStateTransition):
		return "invalid_state"
	case errors.Is(err, generic.ErrUnauthorized):
		return "unauthorized"
	default:
		return "error"
	}
}
