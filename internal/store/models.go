// Package store provides the datastore contract the analysis engine depends on,
// together with a PostgreSQL implementation and an in-memory fallback.
package store

import (
	"time"

	"gorm.io/gorm"
)

// SensorStatus is the externally visible state of a pipe sensor. It is
// mutated only by the windowed analyzer, the manual reset and the leak
// drill hook.
type SensorStatus string

// Sensor states.
const (
	StatusActive  SensorStatus = "active"
	StatusWarning SensorStatus = "warning"
	StatusLeak    SensorStatus = "leak"
	StatusOffline SensorStatus = "offline"
)

// PipeType describes where in the network a sensor's pipe sits.
type PipeType string

// Pipe types.
const (
	PipeMain      PipeType = "main"
	PipeSecondary PipeType = "secondary"
	PipeBranch    PipeType = "branch"
	PipeService   PipeType = "service"
)

// AlertType categorizes an alert raised by the analyzer.
type AlertType string

// Alert types.
const (
	AlertLeak         AlertType = "leak"
	AlertBlockage     AlertType = "blockage"
	AlertPressureDrop AlertType = "pressure_drop"
	AlertAnomaly      AlertType = "anomaly"
	AlertPrediction   AlertType = "prediction"
)

// Severity grades alerts and leak classifications.
type Severity string

// Severity levels.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Reading is one timestamped flow/pressure sample from a sensor.
// Readings are append-only and ordered by timestamp per sensor.
//
// FlowRate is flow-units/minute x100, Pressure is PSI x100 and
// Temperature is degrees Celsius x100. The scaled-integer convention
// keeps the wire and storage formats free of float rounding drift.
type Reading struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	SensorID    string    `gorm:"index:idx_sensor_timestamp;not null" json:"sensor_id"`
	FlowRate    int64     `gorm:"not null" json:"flow_rate"`
	Pressure    int64     `gorm:"not null" json:"pressure"`
	Temperature *int64    `json:"temperature,omitempty"`
	Timestamp   time.Time `gorm:"index:idx_sensor_timestamp;index:idx_reading_timestamp;not null" json:"timestamp"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"-"`
}

// TableName specifies the table name for the Reading model.
func (Reading) TableName() string {
	return "readings"
}

// Sensor is a pipe sensor and its current state.
type Sensor struct {
	ID        uint           `gorm:"primaryKey" json:"-"`
	SensorID  string         `gorm:"uniqueIndex;not null" json:"sensor_id"`
	Name      string         `gorm:"not null" json:"name"`
	Location  string         `gorm:"not null" json:"location"`
	PipeType  PipeType       `gorm:"not null;default:secondary" json:"pipe_type"`
	Status    SensorStatus   `gorm:"not null;default:active" json:"status"`
	PositionX float64        `json:"position_x"`
	PositionY float64        `json:"position_y"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"-"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"-"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Sensor model.
func (Sensor) TableName() string {
	return "sensors"
}

// FlowPattern is the learned baseline for one sensor in one
// (hour-of-day, day-of-week) bucket. At most 168 buckets exist per
// sensor. SampleCount only increases across learning runs.
type FlowPattern struct {
	ID           uint      `gorm:"primaryKey" json:"-"`
	SensorID     string    `gorm:"uniqueIndex:idx_pattern_bucket;not null" json:"sensor_id"`
	HourOfDay    int       `gorm:"uniqueIndex:idx_pattern_bucket;not null" json:"hour_of_day"`
	DayOfWeek    int       `gorm:"uniqueIndex:idx_pattern_bucket;not null" json:"day_of_week"`
	AvgFlowRate  float64   `gorm:"not null" json:"avg_flow_rate"`
	MinFlowRate  int64     `gorm:"not null" json:"min_flow_rate"`
	MaxFlowRate  int64     `gorm:"not null" json:"max_flow_rate"`
	StdDeviation float64   `gorm:"not null" json:"std_deviation"`
	SampleCount  int64     `gorm:"not null" json:"sample_count"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"-"`
}

// TableName specifies the table name for the FlowPattern model.
func (FlowPattern) TableName() string {
	return "flow_patterns"
}

// RiskScore is the latest composite failure-risk assessment for a
// sensor. One row per sensor, overwritten on each analysis. All score
// fields are clamped to [0,100].
type RiskScore struct {
	ID                  uint      `gorm:"primaryKey" json:"-"`
	SensorID            string    `gorm:"uniqueIndex;not null" json:"sensor_id"`
	RiskScore           int       `gorm:"not null" json:"risk_score"`
	LeakProbability     int       `gorm:"not null" json:"leak_probability"`
	BlockageProbability int       `gorm:"not null" json:"blockage_probability"`
	Factors             []string  `gorm:"serializer:json" json:"factors"`
	LastAnalyzedAt      time.Time `gorm:"not null" json:"last_analyzed_at"`
}

// TableName specifies the table name for the RiskScore model.
func (RiskScore) TableName() string {
	return "risk_scores"
}

// Alert is a notification raised when a sensor transitions into an
// anomalous state. The read/resolved flags belong to the presentation
// layer and are never touched by the analyzer.
type Alert struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	SensorID   string    `gorm:"index;not null" json:"sensor_id"`
	Type       AlertType `gorm:"not null" json:"type"`
	Severity   Severity  `gorm:"not null" json:"severity"`
	Message    string    `gorm:"not null" json:"message"`
	Location   string    `json:"location"`
	IsRead     bool      `gorm:"not null;default:false" json:"is_read"`
	IsResolved bool      `gorm:"not null;default:false" json:"is_resolved"`
	Timestamp  time.Time `gorm:"index;not null" json:"timestamp"`
}

// TableName specifies the table name for the Alert model.
func (Alert) TableName() string {
	return "alerts"
}

// FlowAggregate is a per-sensor flow summary over a trailing window.
// It is a query result, not a table.
type FlowAggregate struct {
	SensorID    string  `json:"sensor_id"`
	AvgFlow     float64 `json:"avg_flow"`
	MinFlow     int64   `json:"min_flow"`
	MaxFlow     int64   `json:"max_flow"`
	AvgPressure float64 `json:"avg_pressure"`
	Count       int64   `json:"count"`
}
