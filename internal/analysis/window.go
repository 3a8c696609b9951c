package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pipewatch.dev/pipewatch/internal/store"
)

// AnalyzeWindow classifies a sensor's instantaneous state from its readings
// over the trailing window. The decision rules are evaluated independently;
// later rules escalate severity but never downgrade an earlier finding.
//
// Side effect: when the classification transitions the sensor into leak or
// blockage (relative to its stored status), one alert is created and the
// sensor status is updated. Repeated calls while already in that state do
// not duplicate alerts. The analyzer never moves a sensor back toward
// active; that requires an explicit reset.
func (e *Engine) AnalyzeWindow(ctx context.Context, sensorID string, window time.Duration) (*WindowResult, error) {
	if window <= 0 {
		return nil, errors.New("window must be positive")
	}

	unlock := e.lockSensor(sensorID)
	defer unlock()

	done := e.observeDuration("analyze")
	defer done()

	now := e.now()

	sensor, err := e.store.GetSensor(ctx, sensorID)
	if err != nil && !timedOut(err) {
		e.countStoreError("get_sensor")
		return nil, err
	}

	location := ""
	if sensor != nil {
		location = sensor.Location
	}

	readings, err := e.store.GetReadingsInRange(ctx, sensorID, now.Add(-window), now)
	if err != nil {
		if timedOut(err) {
			// Fail safe: a slow store is treated as not enough data,
			// never as a fault signal.
			return e.insufficientWindow(sensorID, location), nil
		}
		e.countStoreError("get_readings")
		return nil, err
	}

	if len(readings) < minWindowReadings {
		return e.insufficientWindow(sensorID, location), nil
	}

	stats := summarize(readings)

	result := &WindowResult{
		SensorID:   sensorID,
		Status:     WindowNormal,
		Confidence: baseConfidence,
		Severity:   store.SeverityLow,
	}

	if stats.stdDevFlow > varianceRatio*stats.meanFlow && stats.meanFlow > 0 {
		result.Status = WindowWarning
		result.Severity = store.SeverityMedium
		result.Factors = append(result.Factors, FactorHighFlowVariance)
	}

	if stats.meanPressure < lowPressureThreshold {
		// Low pressure overrides the variance warning.
		result.Status = WindowLeak
		result.Severity = store.SeverityHigh
		result.Confidence = lowPressureConf
		result.Factors = append(result.Factors, FactorLowPressure)
	}

	if stats.meanFlow < blockageFlowThreshold && stats.meanPressure > blockagePressureThreshold {
		result.Status = WindowBlockage
		result.Severity = store.SeverityMedium
		result.Confidence = blockageConf
		result.Factors = append(result.Factors, FactorPossibleBlockage)
	}

	// Most recent flow in the window, readings are ascending.
	latestFlow := float64(readings[len(readings)-1].FlowRate)
	check, err := e.checkAnomalyAt(ctx, sensorID, latestFlow, now)
	if err != nil {
		// A missing baseline is not a fault; log and continue.
		e.log.Warn("anomaly check failed", "sensor_id", sensorID, "error", err)
	} else if check.IsAnomaly {
		result.Factors = append(result.Factors, FactorPatternDeviation)
		if result.Status == WindowNormal {
			result.Status = WindowWarning
			result.Severity = store.SeverityMedium
		}
		result.Confidence += patternDeviationUp
		if result.Confidence > maxConfidence {
			result.Confidence = maxConfidence
		}
	}

	result.Message = windowMessage(result.Status, result.Factors, location)

	if e.metrics != nil {
		e.metrics.AnalysesTotal.WithLabelValues(string(result.Status)).Inc()
	}

	if sensor != nil {
		if err := e.applyTransition(ctx, sensor, result); err != nil {
			e.countStoreError("apply_transition")
			return nil, err
		}
	}

	return result, nil
}

// insufficientWindow is the explicit low-confidence outcome for windows
// with too little data. It is a first-class result, not an error.
func (e *Engine) insufficientWindow(sensorID, location string) *WindowResult {
	if e.metrics != nil {
		e.metrics.InsufficientData.WithLabelValues("analyze").Inc()
		e.metrics.AnalysesTotal.WithLabelValues(string(WindowNormal)).Inc()
	}
	return &WindowResult{
		SensorID:   sensorID,
		Status:     WindowNormal,
		Confidence: insufficientConf,
		Severity:   store.SeverityLow,
		Factors:    []string{FactorInsufficientData},
		Message:    windowMessage(WindowNormal, []string{FactorInsufficientData}, location),
	}
}

// statusRank orders sensor states for the no-downgrade rule.
func statusRank(s store.SensorStatus) int {
	switch s {
	case store.StatusActive:
		return 0
	case store.StatusWarning:
		return 1
	case store.StatusLeak:
		return 2
	default:
		return -1 // offline is never touched by the analyzer
	}
}

// sensorStatusFor maps a window classification onto the sensor state
// machine. Blockage surfaces as the warning state.
func sensorStatusFor(status WindowStatus) store.SensorStatus {
	switch status {
	case WindowLeak:
		return store.StatusLeak
	case WindowWarning, WindowBlockage:
		return store.StatusWarning
	default:
		return store.StatusActive
	}
}

// applyTransition performs the analyzer's only writes: escalating the
// sensor status and raising a deduplicated alert on entry into leak or
// blockage. Alerts follow status changes, so a sensor already in warning
// that later matches the blockage rule raises no second alert; its stored
// status is already warning.
func (e *Engine) applyTransition(ctx context.Context, sensor *store.Sensor, result *WindowResult) error {
	target := sensorStatusFor(result.Status)

	currentRank := statusRank(sensor.Status)
	targetRank := statusRank(target)
	if currentRank < 0 || targetRank <= currentRank {
		return nil
	}

	if err := e.store.SetSensorStatus(ctx, sensor.SensorID, target); err != nil {
		return err
	}

	e.log.Info("sensor status escalated",
		"sensor_id", sensor.SensorID,
		"from", sensor.Status,
		"to", target,
		"window_status", result.Status,
	)

	var alertType store.AlertType
	switch result.Status {
	case WindowLeak:
		alertType = store.AlertLeak
	case WindowBlockage:
		alertType = store.AlertBlockage
	default:
		return nil
	}

	alert := &store.Alert{
		SensorID:  sensor.SensorID,
		Type:      alertType,
		Severity:  result.Severity,
		Message:   result.Message,
		Location:  sensor.Location,
		Timestamp: e.now(),
	}
	if err := e.store.CreateAlert(ctx, alert); err != nil {
		return err
	}

	if e.metrics != nil {
		e.metrics.AlertsCreated.WithLabelValues(string(alertType), string(result.Severity)).Inc()
	}

	return nil
}

// windowMessage renders the fixed per-status message template.
func windowMessage(status WindowStatus, factors []string, location string) string {
	if location == "" {
		location = "unknown location"
	}
	joined := strings.Join(factors, ", ")

	switch status {
	case WindowLeak:
		return fmt.Sprintf("Probable leak at %s (%s)", location, joined)
	case WindowBlockage:
		return fmt.Sprintf("Possible blockage at %s (%s)", location, joined)
	case WindowWarning:
		return fmt.Sprintf("Irregular flow behavior at %s (%s)", location, joined)
	default:
		if joined != "" {
			return fmt.Sprintf("Flow normal at %s (%s)", location, joined)
		}
		return fmt.Sprintf("Flow normal at %s", location)
	}
}

// observeDuration starts a duration observation for one engine operation.
func (e *Engine) observeDuration(operation string) func() {
	if e.metrics == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		e.metrics.AnalysisDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

// countStoreError increments the datastore failure counter.
func (e *Engine) countStoreError(operation string) {
	if e.metrics != nil {
		e.metrics.StoreErrors.WithLabelValues(operation).Inc()
	}
}
