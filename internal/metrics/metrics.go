// Package metrics exposes Prometheus instrumentation for flatten operations.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "keyflat"

// Outcome labels for flatten requests.
const (
	OutcomeOK             = "ok"
	OutcomeInvalid        = "invalid"
	OutcomeTooDeep        = "too_deep"
	OutcomeTooLarge       = "too_large"
	OutcomeTooManyEntries = "too_many_entries"
	OutcomeError          = "error"
)

// Metrics holds the collectors registered for the service. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	keys     prometheus.Histogram
	duration prometheus.Histogram
}

// New creates a Metrics instance backed by its own registry, including the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flatten_requests_total",
			Help:      "Flatten requests by input format and outcome.",
		}, []string{"format", "outcome"}),
		keys: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "flatten_keys",
			Help:      "Number of keys produced per successful flatten.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "flatten_duration_seconds",
			Help:      "Time spent decoding and flattening a document.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.keys,
		m.duration,
	)
	return m
}

// ObserveFlatten records one flatten request. keys and elapsed are only
// recorded for successful requests.
func (m *Metrics) ObserveFlatten(format, outcome string, keys int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(format, outcome).Inc()
	if outcome != OutcomeOK {
		return
	}
	m.keys.Observe(float64(keys))
	m.duration.Observe(elapsed.Seconds())
}

// RegisterStoredResults exposes the number of stored results through size.
func (m *Metrics) RegisterStoredResults(size func() int) error {
	if m == nil {
		return nil
	}
	return m.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "stored_results",
		Help:      "Flatten results currently held in memory.",
	}, func() float64 {
		return float64(size())
	}))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
