package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Gorm is the PostgreSQL-backed Store implementation.
type Gorm struct {
	db *gorm.DB
}

// NewGorm wraps a gorm handle in the Store contract.
func NewGorm(db *gorm.DB) (*Gorm, error) {
	if db == nil {
		return nil, errors.New("database cannot be nil")
	}
	return &Gorm{db: db}, nil
}

// Ensure Gorm implements Store.
var _ Store = (*Gorm)(nil)

// storeErr wraps a gorm failure so callers can recognize the
// store-unavailable class with errors.Is.
func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// CreateReading appends one immutable reading.
func (g *Gorm) CreateReading(ctx context.Context, reading *Reading) error {
	if err := g.db.WithContext(ctx).Create(reading).Error; err != nil {
		return storeErr("create reading", err)
	}
	return nil
}

// GetReadingsInRange returns all readings for the sensor within [start, end],
// ascending by timestamp.
func (g *Gorm) GetReadingsInRange(ctx context.Context, sensorID string, start, end time.Time) ([]Reading, error) {
	var readings []Reading
	err := g.db.WithContext(ctx).
		Where("sensor_id = ? AND timestamp BETWEEN ? AND ?", sensorID, start, end).
		Order("timestamp ASC").
		Find(&readings).Error
	if err != nil {
		return nil, storeErr("get readings in range", err)
	}
	return readings, nil
}

// GetRecentReadings returns the most recent readings for the sensor,
// descending by timestamp.
func (g *Gorm) GetRecentReadings(ctx context.Context, sensorID string, limit int) ([]Reading, error) {
	var readings []Reading
	err := g.db.WithContext(ctx).
		Where("sensor_id = ?", sensorID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&readings).Error
	if err != nil {
		return nil, storeErr("get recent readings", err)
	}
	return readings, nil
}

// GetAggregatedFlow returns per-sensor flow summaries over the trailing window.
func (g *Gorm) GetAggregatedFlow(ctx context.Context, window time.Duration) ([]FlowAggregate, error) {
	since := time.Now().Add(-window)

	var aggregates []FlowAggregate
	err := g.db.WithContext(ctx).
		Model(&Reading{}).
		Select("sensor_id, AVG(flow_rate) AS avg_flow, MIN(flow_rate) AS min_flow, MAX(flow_rate) AS max_flow, AVG(pressure) AS avg_pressure, COUNT(*) AS count").
		Where("timestamp >= ?", since).
		Group("sensor_id").
		Scan(&aggregates).Error
	if err != nil {
		return nil, storeErr("get aggregated flow", err)
	}
	return aggregates, nil
}

// GetPatternBucket returns the learned baseline for the bucket, or nil
// when no baseline exists yet.
func (g *Gorm) GetPatternBucket(ctx context.Context, sensorID string, hour, weekday int) (*FlowPattern, error) {
	var bucket FlowPattern
	err := g.db.WithContext(ctx).
		Where("sensor_id = ? AND hour_of_day = ? AND day_of_week = ?", sensorID, hour, weekday).
		First(&bucket).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, storeErr("get pattern bucket", err)
	}
	return &bucket, nil
}

// UpsertPatternBucket merges a learning result into the bucket.
// SampleCount accumulates across learning runs; the statistics are
// replaced with the latest computation.
func (g *Gorm) UpsertPatternBucket(ctx context.Context, bucket *FlowPattern) error {
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing FlowPattern
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("sensor_id = ? AND hour_of_day = ? AND day_of_week = ?",
				bucket.SensorID, bucket.HourOfDay, bucket.DayOfWeek).
			First(&existing).Error

		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(bucket).Error
		}
		if err != nil {
			return err
		}

		return tx.Model(&existing).Updates(map[string]any{
			"avg_flow_rate": bucket.AvgFlowRate,
			"min_flow_rate": bucket.MinFlowRate,
			"max_flow_rate": bucket.MaxFlowRate,
			"std_deviation": bucket.StdDeviation,
			"sample_count":  existing.SampleCount + bucket.SampleCount,
		}).Error
	})
	if err != nil {
		return storeErr("upsert pattern bucket", err)
	}
	return nil
}

// UpsertRiskScore replaces the latest risk score for the sensor.
func (g *Gorm) UpsertRiskScore(ctx context.Context, score *RiskScore) error {
	err := g.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "sensor_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"risk_score", "leak_probability", "blockage_probability",
				"factors", "last_analyzed_at",
			}),
		}).
		Create(score).Error
	if err != nil {
		return storeErr("upsert risk score", err)
	}
	return nil
}

// GetRiskScores returns the latest risk score per sensor.
func (g *Gorm) GetRiskScores(ctx context.Context) ([]RiskScore, error) {
	var scores []RiskScore
	err := g.db.WithContext(ctx).
		Order("risk_score DESC").
		Find(&scores).Error
	if err != nil {
		return nil, storeErr("get risk scores", err)
	}
	return scores, nil
}

// CreateSensor registers a sensor.
func (g *Gorm) CreateSensor(ctx context.Context, sensor *Sensor) error {
	if err := g.db.WithContext(ctx).Create(sensor).Error; err != nil {
		return storeErr("create sensor", err)
	}
	return nil
}

// GetSensor returns the sensor, or nil when unknown.
func (g *Gorm) GetSensor(ctx context.Context, sensorID string) (*Sensor, error) {
	var sensor Sensor
	err := g.db.WithContext(ctx).
		Where("sensor_id = ?", sensorID).
		First(&sensor).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, storeErr("get sensor", err)
	}
	return &sensor, nil
}

// ListSensors returns all registered sensors.
func (g *Gorm) ListSensors(ctx context.Context) ([]Sensor, error) {
	var sensors []Sensor
	if err := g.db.WithContext(ctx).Find(&sensors).Error; err != nil {
		return nil, storeErr("list sensors", err)
	}
	return sensors, nil
}

// SetSensorStatus updates the sensor's externally visible state.
func (g *Gorm) SetSensorStatus(ctx context.Context, sensorID string, status SensorStatus) error {
	res := g.db.WithContext(ctx).
		Model(&Sensor{}).
		Where("sensor_id = ?", sensorID).
		Update("status", status)
	if res.Error != nil {
		return storeErr("set sensor status", res.Error)
	}
	return nil
}

// CreateAlert records an alert.
func (g *Gorm) CreateAlert(ctx context.Context, alert *Alert) error {
	if err := g.db.WithContext(ctx).Create(alert).Error; err != nil {
		return storeErr("create alert", err)
	}
	return nil
}
