// Package telemetry collects Prometheus metrics of migration runs.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/satishbabariya/scoremigrate/internal/adapters/dialect"
)

// Namespace prefixes every metric name.
const Namespace = "scoremigrate"

// Metrics implements the engine's recorder with its own Prometheus registry.
type Metrics struct {
	registry *prometheus.Registry

	Statements    *prometheus.CounterVec
	Grains        *prometheus.CounterVec
	GrainDuration prometheus.Histogram
}

// New creates the metric vectors and registers them.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Statements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ddl_statements_total",
			Help:      "DDL statements issued, by dialect and operation.",
		}, []string{"dialect", "op"}),
		Grains: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "grains_total",
			Help:      "Grains processed, by outcome.",
		}, []string{"outcome"}),
		GrainDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "grain_duration_seconds",
			Help:      "Time spent processing one grain.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}),
	}
	reg.MustRegister(m.Statements, m.Grains, m.GrainDuration)
	return m
}

// Statement counts one issued DDL statement.
func (m *Metrics) Statement(d dialect.Name, op dialect.Op) {
	m.Statements.WithLabelValues(string(d), string(op)).Inc()
}

// Grain counts a processed grain and observes how long it took.
func (m *Metrics) Grain(outcome string, elapsed time.Duration) {
	m.Grains.WithLabelValues(outcome).Inc()
	m.GrainDuration.Observe(elapsed.Seconds())
}

// Registry returns the registry the metrics are registered with.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// WriteTextfile writes the current values in the text exposition format for
// the node exporter's textfile collector. The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
