package analysis

import (
	"context"

	"pipewatch.dev/pipewatch/internal/store"
)

// Risk factor labels, human readable, ordered by contribution.
const (
	RiskFactorActiveLeak       = "Active leak detected"
	RiskFactorWarningStatus    = "Warning status active"
	RiskFactorFlowVariability  = "High flow variability"
	RiskFactorLowPressure      = "Below-normal pressure"
	RiskFactorPatternDeviation = "Significant pattern deviation"
	RiskFactorMainPipe         = "Main pipe (higher impact)"
	RiskFactorBlockageSign     = "Low-flow high-pressure signature"
)

// Risk model contributions. Each factor adds independently; the final
// score and probabilities are clamped to [0,100].
const (
	leakStatusRisk     = 50
	leakStatusLeakProb = 80

	warningStatusRisk      = 25
	warningStatusLeakProb  = 30
	warningStatusBlockProb = 15

	variabilityRisk     = 20
	variabilityLeakProb = 25
	variabilityCVLimit  = 0.5

	lowPressureRisk      = 15
	lowPressureLeakProb  = 20
	riskPressureLimit    = 3500 // 35 PSI x100
	minReadingsForTrends = 10

	patternDeviationRisk = 15

	mainPipeRisk = 5

	blockageSignBlockProb = 40
)

// Risk recommendations, a step function of the final score.
const (
	RecommendImmediate = "Immediate inspection recommended"
	RecommendThisWeek  = "Schedule inspection within a week"
	RecommendMonitor   = "Monitor closely and plan inspection"
	RecommendRoutine   = "Routine monitoring sufficient"
)

// ScoreRisk combines current status, flow variability, pressure and pattern
// deviation into a bounded risk score with a human-readable recommendation,
// and persists the result (overwrite-latest per sensor). Returns (nil, nil)
// for an unknown sensor so multi-sensor batches can skip rather than fail.
func (e *Engine) ScoreRisk(ctx context.Context, sensorID string) (*Prediction, error) {
	sensor, err := e.store.GetSensor(ctx, sensorID)
	if err != nil {
		e.countStoreError("get_sensor")
		return nil, err
	}
	if sensor == nil {
		return nil, nil
	}

	unlock := e.lockSensor(sensorID)
	defer unlock()

	done := e.observeDuration("score")
	defer done()

	risk := 0
	leakProb := 0
	blockProb := 0
	var factors []string

	switch sensor.Status {
	case store.StatusLeak:
		risk += leakStatusRisk
		leakProb += leakStatusLeakProb
		factors = append(factors, RiskFactorActiveLeak)
	case store.StatusWarning:
		risk += warningStatusRisk
		leakProb += warningStatusLeakProb
		blockProb += warningStatusBlockProb
		factors = append(factors, RiskFactorWarningStatus)
	}

	readings, err := e.store.GetRecentReadings(ctx, sensorID, recentReadingLimit)
	if err != nil && !timedOut(err) {
		e.countStoreError("get_recent_readings")
		return nil, err
	}

	if len(readings) > 0 {
		stats := summarize(readings)

		// Variability is the only trend that needs a full sample; the
		// mean-based checks apply to any non-empty reading set.
		if len(readings) >= minReadingsForTrends {
			if cv, ok := stats.coefficientOfVariation(); ok && cv > variabilityCVLimit {
				risk += variabilityRisk
				leakProb += variabilityLeakProb
				factors = append(factors, RiskFactorFlowVariability)
			}
		}

		if stats.meanPressure < riskPressureLimit {
			risk += lowPressureRisk
			leakProb += lowPressureLeakProb
			factors = append(factors, RiskFactorLowPressure)
		}

		if stats.meanFlow < blockageFlowThreshold && stats.meanPressure > blockagePressureThreshold {
			blockProb += blockageSignBlockProb
			factors = append(factors, RiskFactorBlockageSign)
		}

		// Most recent reading, list is descending.
		latestFlow := float64(readings[0].FlowRate)
		check, err := e.CheckAnomaly(ctx, sensorID, latestFlow)
		if err != nil {
			e.log.Warn("anomaly check failed during risk scoring", "sensor_id", sensorID, "error", err)
		} else if check.IsAnomaly {
			risk += patternDeviationRisk
			factors = append(factors, RiskFactorPatternDeviation)
		}
	}

	if sensor.PipeType == store.PipeMain {
		risk += mainPipeRisk
		factors = append(factors, RiskFactorMainPipe)
	}

	prediction := &Prediction{
		SensorID:            sensorID,
		RiskScore:           clampScore(risk),
		LeakProbability:     clampScore(leakProb),
		BlockageProbability: clampScore(blockProb),
		Factors:             factors,
		Recommendation:      recommendFor(clampScore(risk)),
		AnalyzedAt:          e.now(),
	}

	score := &store.RiskScore{
		SensorID:            sensorID,
		RiskScore:           prediction.RiskScore,
		LeakProbability:     prediction.LeakProbability,
		BlockageProbability: prediction.BlockageProbability,
		Factors:             factors,
		LastAnalyzedAt:      prediction.AnalyzedAt,
	}
	if err := e.store.UpsertRiskScore(ctx, score); err != nil {
		e.countStoreError("upsert_risk_score")
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.RiskScoresComputed.Inc()
		e.metrics.RiskScore.WithLabelValues(sensorID).Set(float64(prediction.RiskScore))
	}

	return prediction, nil
}

// recommendFor maps a final risk score to its recommendation step.
func recommendFor(risk int) string {
	switch {
	case risk > 70:
		return RecommendImmediate
	case risk > 40:
		return RecommendThisWeek
	case risk > 20:
		return RecommendMonitor
	default:
		return RecommendRoutine
	}
}
