package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SimulatorMetrics contains Prometheus metrics for the reading simulator.
type SimulatorMetrics struct {
	ReadingsGenerated  *prometheus.CounterVec
	GenerationFailures *prometheus.CounterVec
	GenerationDuration *prometheus.HistogramVec
	SensorsSimulated   prometheus.Gauge
	LeakEpisodes       prometheus.Counter
}

// NewSimulatorMetrics creates and registers simulator metrics.
func NewSimulatorMetrics(namespace string) *SimulatorMetrics {
	m := &SimulatorMetrics{
		ReadingsGenerated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "simulator",
				Name:      "messages_generated_total",
				Help:      "Total number of messages generated and published",
			},
			[]string{"kind"}, // sensor, reading
		),
		GenerationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "simulator",
				Name:      "generation_failures_total",
				Help:      "Total number of failed message generations",
			},
			[]string{"kind", "reason"},
		),
		GenerationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "simulator",
				Name:      "generation_duration_seconds",
				Help:      "Duration of message generation and publishing",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		SensorsSimulated: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "simulator",
				Name:      "sensors",
				Help:      "Number of sensors being simulated",
			},
		),
		LeakEpisodes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "simulator",
				Name:      "leak_episodes_total",
				Help:      "Total number of simulated leak episodes started",
			},
		),
	}

	MustRegister(
		m.ReadingsGenerated,
		m.GenerationFailures,
		m.GenerationDuration,
		m.SensorsSimulated,
		m.LeakEpisodes,
	)

	return m
}
