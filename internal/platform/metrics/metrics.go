// Package metrics instruments HTTP traffic with Prometheus collectors kept in
// a dedicated registry, so tests and multiple servers never collide on the
// global default registerer.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	applog "github.com/janisto/hello-world/internal/platform/logging"
)

const namespace = "hello_world"

// unmatchedRoute labels requests chi could not route, keeping label cardinality bounded.
const unmatchedRoute = "unmatched"

// exemplarLabel carries the request's trace ID on exemplars.
const exemplarLabel = "trace_id"

// Metrics owns the registry and the HTTP collectors.
type Metrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// New builds a registry with HTTP request collectors plus the Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by method, route pattern and status code.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency, by method and route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(
		m.requests,
		m.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format, or
// OpenMetrics with exemplars when the scraper asks for it.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		Registry:          m.registry,
		EnableOpenMetrics: true,
	})
}

// Middleware records a request count and latency observation for every request.
// The route label is chi's matched pattern, read after the handler has run.
// Requests carrying a trace ID attach it as an exemplar.
func (m *Metrics) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := routePattern(r)
			elapsed := time.Since(start).Seconds()
			counter := m.requests.WithLabelValues(r.Method, route, strconv.Itoa(status))
			observer := m.duration.WithLabelValues(r.Method, route)

			if labels := exemplar(r.Context()); labels != nil {
				if adder, ok := counter.(prometheus.ExemplarAdder); ok {
					adder.AddWithExemplar(1, labels)
				} else {
					counter.Inc()
				}
				if eo, ok := observer.(prometheus.ExemplarObserver); ok {
					eo.ObserveWithExemplar(elapsed, labels)
				} else {
					observer.Observe(elapsed)
				}
				return
			}
			counter.Inc()
			observer.Observe(elapsed)
		})
	}
}

func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return unmatchedRoute
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}
	return unmatchedRoute
}

// exemplar returns the trace labels for ctx, or nil when there is no trace ID
// or it would exceed the exemplar size limit.
func exemplar(ctx context.Context) prometheus.Labels {
	traceID := applog.TraceIDFromContext(ctx)
	if traceID == "" || !utf8.ValidString(traceID) {
		return nil
	}
	if utf8.RuneCountInString(exemplarLabel)+utf8.RuneCountInString(traceID) > prometheus.ExemplarMaxRunes {
		return nil
	}
	return prometheus.Labels{exemplarLabel: traceID}
}
