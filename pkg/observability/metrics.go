// Package observability provides dispatch metrics and tracing for the MCP
// engine.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records per-request dispatch metrics.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight prometheus.Gauge
}

// NewMetrics creates a Metrics backed by its own Prometheus registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "micromcp"
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Dispatched JSON-RPC requests by method and outcome.",
		}, []string{"method", "outcome"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Dispatch latency by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		requestsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "requests_in_flight",
			Help:      "Requests currently being dispatched.",
		}),
	}
}

// RecordRequest records one dispatched request.
func (m *Metrics) RecordRequest(method, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, outcome).Inc()
	m.requestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RequestStarted marks a request in flight; the returned func ends it.
func (m *Metrics) RequestStarted() func() {
	if m == nil {
		return func() {}
	}
	m.requestsInFlight.Inc()
	return m.requestsInFlight.Dec
}

// Handler exposes the metrics in Prometheus text format, suitable for
// mounting on the SSE transport's HTTP mux.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
