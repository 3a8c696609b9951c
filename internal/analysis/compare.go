package analysis

import (
	"context"
)

// Cross-sensor rule parameters.
const (
	// Minimum sensors with data for a meaningful comparison.
	minComparableSensors = 2

	// A sensor is depressed when its mean flow is below this fraction
	// of its expected flow.
	depressedFlowRatio = 0.5

	// When more than this fraction of sensors is depressed the issue is
	// system-wide.
	systemWideFraction = 0.7

	// Outlier band width, in overall standard deviations.
	outlierStdDevs = 2.0
)

// Fixed comparator diagnoses.
const (
	DiagnosisInsufficientData = "insufficient data: fewer than two sensors reported flow in the comparison window"
	DiagnosisSystemWide       = "flow depressed across most sensors: likely supply-side cause (e.g. low supply tank), not a local pipe fault"
	DiagnosisLocalized        = "no system-wide pattern: flagged sensors deviate individually from the network mean"
)

// CompareAcrossPipes aggregates recent flow across all sensors and decides
// whether depressed flow is a shared upstream condition or a localized
// fault. Callers should treat a system-wide verdict as lowering the
// per-sensor confidence of leak signals raised in the same window.
//
// Each sensor's expectation comes from its learned baseline bucket when one
// is warm; sensors without a usable baseline are compared against the
// overall network mean instead.
func (e *Engine) CompareAcrossPipes(ctx context.Context) (*Comparison, error) {
	done := e.observeDuration("compare")
	defer done()

	aggregates, err := e.store.GetAggregatedFlow(ctx, DefaultWindow)
	if err != nil {
		if timedOut(err) {
			return &Comparison{Diagnosis: DiagnosisInsufficientData}, nil
		}
		e.countStoreError("get_aggregated_flow")
		return nil, err
	}

	// Only sensors that actually reported in the window participate.
	withData := aggregates[:0:0]
	for _, a := range aggregates {
		if a.Count > 0 {
			withData = append(withData, a)
		}
	}

	if len(withData) < minComparableSensors {
		if e.metrics != nil {
			e.metrics.InsufficientData.WithLabelValues("compare").Inc()
		}
		return &Comparison{Diagnosis: DiagnosisInsufficientData}, nil
	}

	flows := make([]float64, len(withData))
	for i, a := range withData {
		flows[i] = a.AvgFlow
	}
	overallMean := mean(flows)
	overallStdDev := popStdDev(flows)

	now := e.now().In(e.loc)
	hour := now.Hour()
	weekday := int(now.Weekday())

	depressed := 0
	for _, a := range withData {
		expected := overallMean
		bucket, err := e.store.GetPatternBucket(ctx, a.SensorID, hour, weekday)
		if err == nil && bucket != nil && bucket.SampleCount >= minBucketSamples {
			expected = bucket.AvgFlowRate
		}
		if expected > 0 && a.AvgFlow < depressedFlowRatio*expected {
			depressed++
		}
	}

	if float64(depressed)/float64(len(withData)) > systemWideFraction {
		affected := make([]string, len(withData))
		for i, a := range withData {
			affected[i] = a.SensorID
		}
		if e.metrics != nil {
			e.metrics.SystemWideVerdicts.Inc()
		}
		e.log.Warn("system-wide flow depression detected",
			"sensors", len(withData),
			"depressed", depressed,
		)
		return &Comparison{
			IsSystemWideIssue: true,
			AffectedSensors:   affected,
			Diagnosis:         DiagnosisSystemWide,
		}, nil
	}

	var outliers []string
	if overallStdDev > 0 {
		band := outlierStdDevs * overallStdDev
		for _, a := range withData {
			diff := a.AvgFlow - overallMean
			if diff < 0 {
				diff = -diff
			}
			if diff > band {
				outliers = append(outliers, a.SensorID)
			}
		}
	}

	return &Comparison{
		AffectedSensors: outliers,
		Diagnosis:       DiagnosisLocalized,
	}, nil
}
