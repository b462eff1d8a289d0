package migration

import "github.com/prometheus/client_golang/prometheus"

const (
	labelSuccess = "success"
	labelFailure = "failure"
)

// sequencerMetrics holds metrics related to migration runs.
type sequencerMetrics struct {
	Steps         *prometheus.CounterVec
	StepDuration  *prometheus.HistogramVec
	SchemaVersion prometheus.Gauge
}

// newSequencerMetrics labels every metric with the database name so that
// sequencers of several databases can share a registry.
func newSequencerMetrics(database string) *sequencerMetrics {
	const (
		namespace = "schemaseq"
		subsystem = "migration"
	)
	constLabels := prometheus.Labels{"database": database}

	return &sequencerMetrics{
		Steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "steps_total",
			Help:        "Count of migration steps applied",
			ConstLabels: constLabels,
		}, []string{"result"}),

		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "step_duration_seconds",
			Help:        "Histogram of times spent opening and upgrading the database for one migration",
			Buckets:     prometheus.ExponentialBuckets(1e-3, 5, 7),
			ConstLabels: constLabels,
		}, []string{"result"}),

		SchemaVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "schema_version",
			Help:        "Schema version reported by the last migration run",
			ConstLabels: constLabels,
		}),
	}
}

// PrometheusCollectors returns the collectors to register for the sequencer.
func (s *Sequencer) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		s.metrics.Steps,
		s.metrics.StepDuration,
		s.metrics.SchemaVersion,
	}
}
