package analysis

import (
	"context"

	"pipewatch.dev/pipewatch/internal/store"
)

// Leak classifier thresholds, scaled units.
const (
	// Minimum readings to attempt a classification.
	minClassifyReadings = 5

	burstFlowThreshold     = 5000 // 50 units/min
	burstPressureThreshold = 2000 // 20 PSI

	jointFlowThreshold     = 2000
	jointPressureThreshold = 3500
	jointVarianceRatio     = 0.2

	pinholeFlowThreshold     = 500
	pinholePressureThreshold = 4500
	pinholeVarianceRatio     = 0.15

	seepagePressureThreshold = 4500
)

// Estimated fraction of observed flow lost, per archetype.
const (
	burstLossFraction   = 0.8
	jointLossFraction   = 0.35
	pinholeLossFraction = 0.1
	seepageLossFraction = 0.03
)

// Urgency messages keyed by severity.
var urgencyBySeverity = map[store.Severity]string{
	store.SeverityCritical: "Shut off supply and dispatch repair crew immediately",
	store.SeverityHigh:     "Repair within 24 hours",
	store.SeverityMedium:   "Schedule repair within the week",
	store.SeverityLow:      "Monitor and fold into routine maintenance",
}

// ClassifyLeak assigns a leak archetype to a sensor from its recent
// readings, using mutually exclusive threshold bands evaluated from most to
// least severe. It is meant to refine diagnosis once the windowed analyzer
// has put the sensor in an anomalous state; combinations that match no band
// stay unknown.
func (e *Engine) ClassifyLeak(ctx context.Context, sensorID string) (*LeakClassification, error) {
	done := e.observeDuration("classify")
	defer done()

	readings, err := e.store.GetRecentReadings(ctx, sensorID, minClassifyReadings*4)
	if err != nil {
		if timedOut(err) {
			return unknownLeak(sensorID), nil
		}
		e.countStoreError("get_recent_readings")
		return nil, err
	}

	if len(readings) < minClassifyReadings {
		if e.metrics != nil {
			e.metrics.InsufficientData.WithLabelValues("classify").Inc()
		}
		return unknownLeak(sensorID), nil
	}

	stats := summarize(readings)

	var (
		leakType LeakType
		severity store.Severity
		fraction float64
	)

	switch {
	case stats.meanFlow >= burstFlowThreshold && stats.meanPressure <= burstPressureThreshold:
		leakType, severity, fraction = LeakBurst, store.SeverityCritical, burstLossFraction

	case stats.meanFlow >= jointFlowThreshold &&
		stats.meanPressure < jointPressureThreshold &&
		stats.stdDevFlow < jointVarianceRatio*stats.meanFlow:
		leakType, severity, fraction = LeakJoint, store.SeverityHigh, jointLossFraction

	case stats.meanFlow >= pinholeFlowThreshold &&
		stats.meanPressure < pinholePressureThreshold &&
		stats.stdDevFlow < pinholeVarianceRatio*stats.meanFlow:
		leakType, severity, fraction = LeakPinhole, store.SeverityMedium, pinholeLossFraction

	case stats.meanFlow < pinholeFlowThreshold && stats.meanPressure < seepagePressureThreshold:
		leakType, severity, fraction = LeakSeepage, store.SeverityLow, seepageLossFraction

	default:
		return unknownLeak(sensorID), nil
	}

	return &LeakClassification{
		SensorID:          sensorID,
		Type:              leakType,
		Severity:          severity,
		EstimatedFlowLoss: estimatedLossPerHour(stats.meanFlow, fraction),
		Urgency:           urgencyBySeverity[severity],
	}, nil
}

// estimatedLossPerHour converts a scaled mean flow (units/min x100) into an
// estimated loss in flow units per hour.
func estimatedLossPerHour(scaledMeanFlow, fraction float64) float64 {
	unitsPerMinute := scaledMeanFlow / 100
	return unitsPerMinute * 60 * fraction
}

func unknownLeak(sensorID string) *LeakClassification {
	return &LeakClassification{
		SensorID: sensorID,
		Type:     LeakUnknown,
		Severity: store.SeverityMedium,
		Urgency:  urgencyBySeverity[store.SeverityMedium],
	}
}
