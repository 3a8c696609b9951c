package store

import (
	"context"
	"errors"
	"time"
)

// ErrStoreUnavailable marks datastore failures so callers can distinguish
// an unreachable store from an empty result and fall back to cached state
// instead of silently treating the condition as normal.
var ErrStoreUnavailable = errors.New("datastore unavailable")

// Store is the data-access contract the analysis engine depends on.
// Implementations must keep result sizes bounded by the explicit limits
// and window arguments; callers apply deadlines through ctx.
//
// Lookup methods return (nil, nil) when the requested record is absent.
// Only genuine datastore failures produce an error, wrapped with
// ErrStoreUnavailable.
type Store interface {
	// CreateReading appends one immutable reading.
	CreateReading(ctx context.Context, reading *Reading) error

	// GetReadingsInRange returns all readings for the sensor within
	// [start, end], ascending by timestamp.
	GetReadingsInRange(ctx context.Context, sensorID string, start, end time.Time) ([]Reading, error)

	// GetRecentReadings returns the most recent readings for the sensor,
	// descending by timestamp, at most limit rows.
	GetRecentReadings(ctx context.Context, sensorID string, limit int) ([]Reading, error)

	// GetAggregatedFlow returns per-sensor flow summaries over the
	// trailing window, across all sensors that have readings in it.
	GetAggregatedFlow(ctx context.Context, window time.Duration) ([]FlowAggregate, error)

	// GetPatternBucket returns the learned baseline for the bucket, or
	// nil when no baseline exists yet.
	GetPatternBucket(ctx context.Context, sensorID string, hour, weekday int) (*FlowPattern, error)

	// UpsertPatternBucket merges a learning result into the bucket:
	// SampleCount is incremented by the new contribution while
	// avg/min/max/stddev are replaced.
	UpsertPatternBucket(ctx context.Context, bucket *FlowPattern) error

	// UpsertRiskScore replaces the latest risk score for the sensor.
	UpsertRiskScore(ctx context.Context, score *RiskScore) error

	// GetRiskScores returns the latest risk score per sensor.
	GetRiskScores(ctx context.Context) ([]RiskScore, error)

	// CreateSensor registers a sensor.
	CreateSensor(ctx context.Context, sensor *Sensor) error

	// GetSensor returns the sensor, or nil when unknown.
	GetSensor(ctx context.Context, sensorID string) (*Sensor, error)

	// ListSensors returns all registered sensors.
	ListSensors(ctx context.Context) ([]Sensor, error)

	// SetSensorStatus updates the sensor's externally visible state.
	SetSensorStatus(ctx context.Context, sensorID string, status SensorStatus) error

	// CreateAlert records an alert. Deduplication is the caller's
	// responsibility via its status-transition check.
	CreateAlert(ctx context.Context, alert *Alert) error
}
