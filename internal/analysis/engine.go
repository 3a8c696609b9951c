package analysis

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"pipewatch.dev/pipewatch/internal/store"
	"pipewatch.dev/pipewatch/pkg/metrics"
)

// Analysis thresholds. Flow values are flow-units/minute x100, pressure
// values are PSI x100, matching the Reading scaled-integer convention.
const (
	// DefaultWindow is the trailing window for instantaneous analysis.
	DefaultWindow = 5 * time.Minute

	// Fewer readings than this in a window is insufficient data.
	minWindowReadings = 3

	// Flow stddev above this fraction of mean flow counts as unstable.
	varianceRatio = 0.3

	// Mean pressure below 30 PSI indicates a probable leak.
	lowPressureThreshold = 3000

	// Mean flow below 1 unit/min combined with pressure above 50 PSI
	// indicates a possible blockage.
	blockageFlowThreshold     = 100
	blockagePressureThreshold = 5000

	// How much history pattern learning and risk scoring look at.
	recentReadingLimit = 100

	// Fewer readings than this and pattern learning is a no-op.
	minLearnReadings = 10

	// A pattern bucket below this sample count is never used to flag
	// anomalies (cold-start suppression).
	minBucketSamples = 10

	// Width of the expected range around the learned average.
	anomalyBandStdDevs = 2.0

	baseConfidence     = 70
	insufficientConf   = 50
	lowPressureConf    = 85
	blockageConf       = 75
	patternDeviationUp = 10
	maxConfidence      = 95
)

// ErrUnknownSensor is returned by operations that require a registered sensor.
var ErrUnknownSensor = errors.New("unknown sensor")

// Engine is the decision engine. Each method is a short bounded
// read-compute-write; work for the same sensor is serialized through a
// per-sensor lock so learner upserts and scorer writes cannot interleave,
// while different sensors proceed in parallel.
type Engine struct {
	store   store.Store
	log     *slog.Logger
	metrics *metrics.AnalyzerMetrics // Optional metrics
	now     func() time.Time
	loc     *time.Location

	mu          sync.Mutex
	sensorLocks map[string]*sync.Mutex
}

// Config holds the configuration for the Engine.
type Config struct {
	Store   store.Store
	Logger  *slog.Logger
	Metrics *metrics.AnalyzerMetrics

	// Now overrides the clock, for tests. Defaults to time.Now.
	Now func() time.Time

	// Location is the timezone used for hour/weekday bucketing.
	// Defaults to time.Local.
	Location *time.Location
}

// New creates a new Engine instance.
func New(cfg *Config) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("engine config cannot be nil")
	}

	if cfg.Store == nil {
		return nil, errors.New("store cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}

	return &Engine{
		store:       cfg.Store,
		log:         cfg.Logger,
		metrics:     cfg.Metrics,
		now:         now,
		loc:         loc,
		sensorLocks: make(map[string]*sync.Mutex),
	}, nil
}

// lockSensor serializes engine work for one sensor. The returned function
// releases the lock.
func (e *Engine) lockSensor(sensorID string) func() {
	e.mu.Lock()
	l, ok := e.sensorLocks[sensorID]
	if !ok {
		l = &sync.Mutex{}
		e.sensorLocks[sensorID] = l
	}
	e.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// timedOut reports whether a store failure was a deadline expiry. Deadline
// expiries degrade to the insufficient-data outcome instead of failing the
// call (fail safe to normal/unknown).
func timedOut(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

// TriggerLeak forces a sensor into the leak state and raises a critical
// alert. This is the operational drill hook; it bypasses classification on
// purpose and is the only path besides the analyzer that escalates status.
func (e *Engine) TriggerLeak(ctx context.Context, sensorID string) error {
	unlock := e.lockSensor(sensorID)
	defer unlock()

	sensor, err := e.store.GetSensor(ctx, sensorID)
	if err != nil {
		return err
	}
	if sensor == nil {
		return ErrUnknownSensor
	}

	if err := e.store.SetSensorStatus(ctx, sensorID, store.StatusLeak); err != nil {
		return err
	}

	alert := &store.Alert{
		SensorID:  sensorID,
		Type:      store.AlertLeak,
		Severity:  store.SeverityCritical,
		Message:   "Leak drill: sensor manually forced into leak state at " + sensor.Location,
		Location:  sensor.Location,
		Timestamp: e.now(),
	}
	if err := e.store.CreateAlert(ctx, alert); err != nil {
		return err
	}

	if e.metrics != nil {
		e.metrics.AlertsCreated.WithLabelValues(string(store.AlertLeak), string(store.SeverityCritical)).Inc()
	}

	e.log.Info("leak drill triggered", "sensor_id", sensorID)
	return nil
}

// ResetSensor returns a sensor to the active state. The analyzer never
// self-clears a fault; this explicit reset is the only way back.
func (e *Engine) ResetSensor(ctx context.Context, sensorID string) error {
	unlock := e.lockSensor(sensorID)
	defer unlock()

	sensor, err := e.store.GetSensor(ctx, sensorID)
	if err != nil {
		return err
	}
	if sensor == nil {
		return ErrUnknownSensor
	}

	if err := e.store.SetSensorStatus(ctx, sensorID, store.StatusActive); err != nil {
		return err
	}

	e.log.Info("sensor reset to active", "sensor_id", sensorID, "previous_status", sensor.Status)
	return nil
}
