// Package metrics provides Prometheus metrics for bomdesk.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bomdesk_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bomdesk_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Propagation metrics
	PropagationRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bomdesk_propagation_runs_total",
			Help: "Packaging weight propagation runs",
		},
		[]string{"operation", "status"},
	)

	PropagationRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bomdesk_propagation_records_total",
			Help: "Records rewritten by propagation runs",
		},
		[]string{"operation"},
	)

	SchemaMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bomdesk_schema_mutations_total",
			Help: "Primary key changes by outcome",
		},
		[]string{"status"},
	)

	OutboxPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bomdesk_outbox_published_total",
			Help: "Outbox messages published to the broker",
		},
	)

	OutboxFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bomdesk_outbox_failures_total",
			Help: "Outbox publish attempts that failed",
		},
	)
)

// Status returns the label value for an operation outcome.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordPropagation counts one run of a propagation operation.
func RecordPropagation(operation string, records int, err error) {
	PropagationRuns.WithLabelValues(operation, Status(err)).Inc()
	if err == nil && records > 0 {
		PropagationRecords.WithLabelValues(operation).Add(float64(records))
	}
}

// Middleware records request counts and latency labelled by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
