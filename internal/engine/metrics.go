package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts hops and runs. Each Metrics owns its registry, so several
// engines in one process (tests, scenario runs) never collide.
type Metrics struct {
	registry *prometheus.Registry

	HopsTotal   *prometheus.CounterVec
	HopDuration *prometheus.HistogramVec
	RunsTotal   *prometheus.CounterVec
}

// NewMetrics creates and registers the engine collectors.
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.HopsTotal = promauto.With(m.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "telephone_hops_total",
			Help: "Hops attempted, by adapter and outcome",
		},
		[]string{"adapter", "outcome"}, // succeeded, failed
	)

	m.HopDuration = promauto.With(m.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "telephone_hop_duration_seconds",
			Help:    "Ingest-then-retrieve round trip time",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"adapter"},
	)

	m.RunsTotal = promauto.With(m.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "telephone_runs_total",
			Help: "Completed runs, by mode and terminal node",
		},
		[]string{"mode", "outcome"}, // end, termination
	)

	return m
}

// Registry returns the registry holding the engine collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the current values in the Prometheus text format,
// for pickup by a node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *Metrics) observeHop(adapter string, state HopState, d time.Duration) {
	if m == nil {
		return
	}
	m.HopsTotal.WithLabelValues(adapter, state.String()).Inc()
	m.HopDuration.WithLabelValues(adapter).Observe(d.Seconds())
}

func (m *Metrics) observeRun(mode, terminal string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(mode, terminal).Inc()
}
