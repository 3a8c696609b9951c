// Package analysis implements the pipe telemetry decision engine: windowed
// state classification, cross-sensor comparison, baseline pattern learning,
// anomaly checking, risk scoring and leak archetype classification.
package analysis

import (
	"time"

	"pipewatch.dev/pipewatch/internal/store"
)

// WindowStatus is the instantaneous classification of a sensor's behavior
// over an analysis window. It is distinct from store.SensorStatus: blockage
// maps onto the sensor's warning state.
type WindowStatus string

// Window classifications.
const (
	WindowNormal   WindowStatus = "normal"
	WindowWarning  WindowStatus = "warning"
	WindowLeak     WindowStatus = "leak"
	WindowBlockage WindowStatus = "blockage"
)

// Contributing-factor labels attached to window results.
const (
	FactorInsufficientData = "insufficient_data"
	FactorHighFlowVariance = "high_flow_variance"
	FactorLowPressure      = "low_pressure"
	FactorPossibleBlockage = "possible_blockage"
	FactorPatternDeviation = "pattern_deviation"
)

// WindowResult is the outcome of analyzing one sensor over one window.
type WindowResult struct {
	SensorID   string         `json:"sensor_id"`
	Status     WindowStatus   `json:"status"`
	Confidence int            `json:"confidence"`
	Severity   store.Severity `json:"severity"`
	Factors    []string       `json:"factors"`
	Message    string         `json:"message"`
}

// Comparison is the verdict of the cross-sensor comparator. A system-wide
// verdict means the flow anomaly correlates across most sensors and the
// likely cause is upstream (supply side), so per-sensor leak signals should
// be treated as lower confidence.
type Comparison struct {
	IsSystemWideIssue bool     `json:"is_system_wide_issue"`
	AffectedSensors   []string `json:"affected_sensors"`
	Diagnosis         string   `json:"diagnosis"`
}

// ExpectedRange is the tolerance band derived from a learned pattern bucket.
type ExpectedRange struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// AnomalyCheck is the result of comparing a live flow value against the
// learned baseline for the current time bucket. Expected is nil when there
// is not enough learned history to judge.
type AnomalyCheck struct {
	IsAnomaly bool           `json:"is_anomaly"`
	Deviation float64        `json:"deviation"`
	Expected  *ExpectedRange `json:"expected_range,omitempty"`
}

// Prediction is a computed risk assessment for one sensor.
type Prediction struct {
	SensorID            string    `json:"sensor_id"`
	RiskScore           int       `json:"risk_score"`
	LeakProbability     int       `json:"leak_probability"`
	BlockageProbability int       `json:"blockage_probability"`
	Factors             []string  `json:"factors"`
	Recommendation      string    `json:"recommendation"`
	AnalyzedAt          time.Time `json:"analyzed_at"`
}

// LeakType is a leak archetype assigned by the classifier.
type LeakType string

// Leak archetypes, from most to least severe.
const (
	LeakBurst   LeakType = "burst"
	LeakJoint   LeakType = "joint"
	LeakPinhole LeakType = "pinhole"
	LeakSeepage LeakType = "seepage"
	LeakUnknown LeakType = "unknown"
)

// LeakClassification refines the diagnosis of a sensor already in an
// anomalous state. EstimatedFlowLoss is in flow units per hour.
type LeakClassification struct {
	SensorID          string         `json:"sensor_id"`
	Type              LeakType       `json:"type"`
	Severity          store.Severity `json:"severity"`
	EstimatedFlowLoss float64        `json:"estimated_flow_loss"`
	Urgency           string         `json:"urgency"`
}

// HealthReport ranks all sensors by risk, highest first.
type HealthReport struct {
	GeneratedAt time.Time    `json:"generated_at"`
	Predictions []Prediction `json:"predictions"`
}
