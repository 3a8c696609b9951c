package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// AnalyzerMetrics contains Prometheus metrics for the analysis engine.
type AnalyzerMetrics struct {
	AnalysesTotal        *prometheus.CounterVec
	AnalysisDuration     *prometheus.HistogramVec
	AlertsCreated        *prometheus.CounterVec
	InsufficientData     *prometheus.CounterVec
	PatternBucketsLearnt prometheus.Counter
	RiskScoresComputed   prometheus.Counter
	RiskScore            *prometheus.GaugeVec
	SystemWideVerdicts   prometheus.Counter
	StoreErrors          *prometheus.CounterVec
}

// NewAnalyzerMetrics creates and registers analysis engine metrics.
func NewAnalyzerMetrics(namespace string) *AnalyzerMetrics {
	m := &AnalyzerMetrics{
		AnalysesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "analysis",
				Name:      "windows_total",
				Help:      "Total number of analysis windows evaluated",
			},
			[]string{"status"}, // normal, warning, leak, blockage
		),
		AnalysisDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "analysis",
				Name:      "window_duration_seconds",
				Help:      "Duration of window analysis",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"}, // analyze, compare, learn, score, classify
		),
		AlertsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "analysis",
				Name:      "alerts_created_total",
				Help:      "Total number of alerts raised by the analyzer",
			},
			[]string{"type", "severity"},
		),
		InsufficientData: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "analysis",
				Name:      "insufficient_data_total",
				Help:      "Total number of evaluations resolved as insufficient data",
			},
			[]string{"operation"},
		),
		PatternBucketsLearnt: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "patterns",
				Name:      "buckets_upserted_total",
				Help:      "Total number of flow pattern buckets upserted",
			},
		),
		RiskScoresComputed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "risk",
				Name:      "scores_computed_total",
				Help:      "Total number of risk scores computed",
			},
		),
		RiskScore: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "risk",
				Name:      "score",
				Help:      "Latest risk score per sensor",
			},
			[]string{"sensor_id"},
		),
		SystemWideVerdicts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "analysis",
				Name:      "system_wide_verdicts_total",
				Help:      "Total number of cross-sensor comparisons classified as system-wide",
			},
		),
		StoreErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "analysis",
				Name:      "store_errors_total",
				Help:      "Total number of datastore failures seen by the engine",
			},
			[]string{"operation"},
		),
	}

	MustRegister(
		m.AnalysesTotal,
		m.AnalysisDuration,
		m.AlertsCreated,
		m.InsufficientData,
		m.PatternBucketsLearnt,
		m.RiskScoresComputed,
		m.RiskScore,
		m.SystemWideVerdicts,
		m.StoreErrors,
	)

	return m
}
