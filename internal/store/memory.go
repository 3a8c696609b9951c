package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Per-sensor reading buffer bound. Oldest readings are evicted first.
const memoryReadingCap = 1000

// Memory is an in-memory Store implementation. It serves as the
// injected fallback provider when the real datastore is unavailable
// and as a test double for the analysis engine.
type Memory struct {
	mu       sync.RWMutex
	readings map[string][]Reading
	sensors  map[string]*Sensor
	patterns map[patternKey]*FlowPattern
	scores   map[string]*RiskScore
	alerts   []Alert
	nextID   uint
}

type patternKey struct {
	sensorID string
	hour     int
	weekday  int
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		readings: make(map[string][]Reading),
		sensors:  make(map[string]*Sensor),
		patterns: make(map[patternKey]*FlowPattern),
		scores:   make(map[string]*RiskScore),
	}
}

// Ensure Memory implements Store.
var _ Store = (*Memory)(nil)

// CreateReading appends one reading, evicting the oldest when the
// per-sensor buffer is full.
func (m *Memory) CreateReading(_ context.Context, reading *Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	r := *reading
	r.ID = m.nextID

	buf := m.readings[r.SensorID]
	if len(buf) >= memoryReadingCap {
		buf = buf[1:]
	}
	buf = append(buf, r)
	// Keep the buffer ordered even if readings arrive late.
	sort.Slice(buf, func(i, j int) bool { return buf[i].Timestamp.Before(buf[j].Timestamp) })
	m.readings[r.SensorID] = buf
	return nil
}

// GetReadingsInRange returns readings within [start, end], ascending.
func (m *Memory) GetReadingsInRange(_ context.Context, sensorID string, start, end time.Time) ([]Reading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Reading
	for _, r := range m.readings[sensorID] {
		if !r.Timestamp.Before(start) && !r.Timestamp.After(end) {
			out = append(out, r)
		}
	}
	return out, nil
}

// GetRecentReadings returns the most recent readings, descending.
func (m *Memory) GetRecentReadings(_ context.Context, sensorID string, limit int) ([]Reading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	buf := m.readings[sensorID]
	if limit <= 0 || limit > len(buf) {
		limit = len(buf)
	}

	out := make([]Reading, 0, limit)
	for i := len(buf) - 1; i >= len(buf)-limit; i-- {
		out = append(out, buf[i])
	}
	return out, nil
}

// GetAggregatedFlow returns per-sensor summaries over the trailing window.
func (m *Memory) GetAggregatedFlow(_ context.Context, window time.Duration) ([]FlowAggregate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	since := time.Now().Add(-window)

	var aggregates []FlowAggregate
	for sensorID, buf := range m.readings {
		var (
			sumFlow     int64
			sumPressure int64
			minFlow     int64
			maxFlow     int64
			count       int64
		)
		for _, r := range buf {
			if r.Timestamp.Before(since) {
				continue
			}
			if count == 0 || r.FlowRate < minFlow {
				minFlow = r.FlowRate
			}
			if count == 0 || r.FlowRate > maxFlow {
				maxFlow = r.FlowRate
			}
			sumFlow += r.FlowRate
			sumPressure += r.Pressure
			count++
		}
		if count == 0 {
			continue
		}
		aggregates = append(aggregates, FlowAggregate{
			SensorID:    sensorID,
			AvgFlow:     float64(sumFlow) / float64(count),
			MinFlow:     minFlow,
			MaxFlow:     maxFlow,
			AvgPressure: float64(sumPressure) / float64(count),
			Count:       count,
		})
	}

	sort.Slice(aggregates, func(i, j int) bool { return aggregates[i].SensorID < aggregates[j].SensorID })
	return aggregates, nil
}

// GetPatternBucket returns the bucket, or nil when absent.
func (m *Memory) GetPatternBucket(_ context.Context, sensorID string, hour, weekday int) (*FlowPattern, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bucket, ok := m.patterns[patternKey{sensorID, hour, weekday}]
	if !ok {
		return nil, nil
	}
	copied := *bucket
	return &copied, nil
}

// UpsertPatternBucket merges the bucket, accumulating SampleCount.
func (m *Memory) UpsertPatternBucket(_ context.Context, bucket *FlowPattern) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := patternKey{bucket.SensorID, bucket.HourOfDay, bucket.DayOfWeek}
	if existing, ok := m.patterns[key]; ok {
		existing.AvgFlowRate = bucket.AvgFlowRate
		existing.MinFlowRate = bucket.MinFlowRate
		existing.MaxFlowRate = bucket.MaxFlowRate
		existing.StdDeviation = bucket.StdDeviation
		existing.SampleCount += bucket.SampleCount
		return nil
	}

	copied := *bucket
	m.patterns[key] = &copied
	return nil
}

// UpsertRiskScore replaces the latest score for the sensor.
func (m *Memory) UpsertRiskScore(_ context.Context, score *RiskScore) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *score
	m.scores[score.SensorID] = &copied
	return nil
}

// GetRiskScores returns the latest score per sensor, highest risk first.
func (m *Memory) GetRiskScores(_ context.Context) ([]RiskScore, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]RiskScore, 0, len(m.scores))
	for _, s := range m.scores {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RiskScore > out[j].RiskScore })
	return out, nil
}

// CreateSensor registers a sensor.
func (m *Memory) CreateSensor(_ context.Context, sensor *Sensor) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	copied := *sensor
	copied.ID = m.nextID
	if copied.Status == "" {
		copied.Status = StatusActive
	}
	m.sensors[copied.SensorID] = &copied
	return nil
}

// GetSensor returns the sensor, or nil when unknown.
func (m *Memory) GetSensor(_ context.Context, sensorID string) (*Sensor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sensor, ok := m.sensors[sensorID]
	if !ok {
		return nil, nil
	}
	copied := *sensor
	return &copied, nil
}

// ListSensors returns all registered sensors.
func (m *Memory) ListSensors(_ context.Context) ([]Sensor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Sensor, 0, len(m.sensors))
	for _, s := range m.sensors {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SensorID < out[j].SensorID })
	return out, nil
}

// SetSensorStatus updates the sensor's state. Unknown sensors are a no-op.
func (m *Memory) SetSensorStatus(_ context.Context, sensorID string, status SensorStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sensor, ok := m.sensors[sensorID]; ok {
		sensor.Status = status
	}
	return nil
}

// CreateAlert records an alert.
func (m *Memory) CreateAlert(_ context.Context, alert *Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	copied := *alert
	copied.ID = m.nextID
	m.alerts = append(m.alerts, copied)
	return nil
}

// Alerts returns a copy of all recorded alerts, oldest first.
// Test and fallback inspection helper, not part of the Store contract.
func (m *Memory) Alerts() []Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Alert, len(m.alerts))
	copy(out, m.alerts)
	return out
}
