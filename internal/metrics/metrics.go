// Package metrics provides application-level metrics collection backed by
// Prometheus. Each Metrics owns its registry so tests can use isolated
// instances; the process wide instance is Global.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hdscan"

// Outcome label values.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeSkipped  = "skipped"
	OutcomeCanceled = "canceled"
)

// Metrics holds the application collectors.
type Metrics struct {
	registry *prometheus.Registry

	indexerCalls   *prometheus.CounterVec
	indexerErrors  *prometheus.CounterVec
	indexerLatency *prometheus.HistogramVec
	connects       *prometheus.CounterVec

	discoveryRuns    *prometheus.CounterVec
	addressesScanned prometheus.Counter

	sweeps *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
}

// Global is the global metrics instance.
// Use this for recording metrics throughout the application.
//
//nolint:gochecknoglobals // Intentional global for metrics access
var Global = New()

// New creates a Metrics with its own registry, including the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		indexerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "calls_total",
			Help:      "Indexer protocol calls by method.",
		}, []string{"method"}),
		indexerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "errors_total",
			Help:      "Failed indexer protocol calls by method.",
		}, []string{"method"}),
		indexerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "call_duration_seconds",
			Help:      "Indexer call latency by method.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"method"}),
		connects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "connects_total",
			Help:      "Connection attempts per endpoint by outcome.",
		}, []string{"outcome"}),
		discoveryRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "runs_total",
			Help:      "Wallet discovery runs by outcome.",
		}, []string{"outcome"}),
		addressesScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "addresses_scanned_total",
			Help:      "Addresses whose status was queried.",
		}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "triggers_total",
			Help:      "Sweep trigger evaluations by outcome.",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by path and status code.",
		}, []string{"path", "code"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.indexerCalls,
		m.indexerErrors,
		m.indexerLatency,
		m.connects,
		m.discoveryRuns,
		m.addressesScanned,
		m.sweeps,
		m.httpRequests,
	)

	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordIndexerCall records one indexer call with its duration and result.
func (m *Metrics) RecordIndexerCall(method string, duration time.Duration, err error) {
	m.indexerCalls.WithLabelValues(method).Inc()
	m.indexerLatency.WithLabelValues(method).Observe(duration.Seconds())
	if err != nil {
		m.indexerErrors.WithLabelValues(method).Inc()
	}
}

// RecordConnect records one endpoint connection attempt.
func (m *Metrics) RecordConnect(err error) {
	m.connects.WithLabelValues(outcome(err)).Inc()
}

// RecordDiscoveryRun records the outcome of one wallet discovery.
func (m *Metrics) RecordDiscoveryRun(outcome string) {
	m.discoveryRuns.WithLabelValues(outcome).Inc()
}

// AddAddressesScanned adds n queried addresses.
func (m *Metrics) AddAddressesScanned(n int) {
	if n > 0 {
		m.addressesScanned.Add(float64(n))
	}
}

// RecordSweep records a sweep trigger evaluation.
func (m *Metrics) RecordSweep(outcome string) {
	m.sweeps.WithLabelValues(outcome).Inc()
}

// RecordHTTPRequest records a served HTTP request.
func (m *Metrics) RecordHTTPRequest(path string, status int) {
	m.httpRequests.WithLabelValues(path, strconv.Itoa(status)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}
