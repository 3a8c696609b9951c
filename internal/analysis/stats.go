package analysis

import (
	"math"

	"pipewatch.dev/pipewatch/internal/store"
)

// flowStats summarizes the flow and pressure series of a reading slice.
type flowStats struct {
	meanFlow     float64
	meanPressure float64
	minFlow      int64
	maxFlow      int64
	stdDevFlow   float64
	count        int
}

// summarize computes mean flow/pressure and population stddev of flow over
// the readings. Returns a zero-valued summary for an empty slice.
func summarize(readings []store.Reading) flowStats {
	s := flowStats{count: len(readings)}
	if s.count == 0 {
		return s
	}

	var sumFlow, sumPressure int64
	s.minFlow = readings[0].FlowRate
	s.maxFlow = readings[0].FlowRate
	for _, r := range readings {
		sumFlow += r.FlowRate
		sumPressure += r.Pressure
		if r.FlowRate < s.minFlow {
			s.minFlow = r.FlowRate
		}
		if r.FlowRate > s.maxFlow {
			s.maxFlow = r.FlowRate
		}
	}
	n := float64(s.count)
	s.meanFlow = float64(sumFlow) / n
	s.meanPressure = float64(sumPressure) / n

	var variance float64
	for _, r := range readings {
		diff := float64(r.FlowRate) - s.meanFlow
		variance += diff * diff
	}
	s.stdDevFlow = math.Sqrt(variance / n)

	return s
}

// coefficientOfVariation returns stddev/mean and whether the value could be
// evaluated. A zero mean short-circuits to (0, false) rather than infinity.
func (s flowStats) coefficientOfVariation() (float64, bool) {
	if s.meanFlow == 0 {
		return 0, false
	}
	return s.stdDevFlow / s.meanFlow, true
}

// mean returns the arithmetic mean of values, 0 for an empty slice.
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// popStdDev returns the population standard deviation of values.
func popStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	avg := mean(values)
	var variance float64
	for _, v := range values {
		diff := v - avg
		variance += diff * diff
	}
	return math.Sqrt(variance / float64(len(values)))
}

// clampScore bounds a score or probability to [0,100].
func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
