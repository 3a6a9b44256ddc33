// Package metrics holds the Prometheus collectors for the service. A Metrics
// value satisfies the observer hooks of the audit, links and breach packages.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "keepershare"

type Metrics struct {
	gatherer prometheus.Gatherer

	breachLookups *prometheus.CounterVec
	breachLatency prometheus.Histogram
	linkOps       *prometheus.CounterVec
	auditEntries  *prometheus.CounterVec

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		gatherer: reg,
		breachLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breach_lookups_total",
			Help:      "Breach checks by outcome (cache_hit, remote, error).",
		}, []string{"outcome"}),
		breachLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "breach_range_request_duration_seconds",
			Help:      "Latency of breach range endpoint requests.",
			Buckets:   prometheus.DefBuckets,
		}),
		linkOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "link_operations_total",
			Help:      "One-time link operations by operation and outcome.",
		}, []string{"op", "outcome"}),
		auditEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_entries_total",
			Help:      "Audit entries appended by action.",
		}, []string{"action"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_in_flight_requests",
			Help:      "In-flight HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latencies in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(
		m.breachLookups, m.breachLatency, m.linkOps, m.auditEntries,
		m.httpInFlight, m.httpRequestsTotal, m.httpRequestDuration,
	)
	return m
}

func (m *Metrics) BreachLookup(outcome string) {
	m.breachLookups.WithLabelValues(outcome).Inc()
}

func (m *Metrics) BreachRemoteLatency(d time.Duration) {
	m.breachLatency.Observe(d.Seconds())
}

func (m *Metrics) LinkOperation(op, outcome string) {
	m.linkOps.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) AuditAppended(action string) {
	m.auditEntries.WithLabelValues(action).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Instrument records request count, latency and in-flight requests under the
// given route label. Link ids are never used as labels.
func (m *Metrics) Instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		m.httpRequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
