// Package ingest consumes pipe sensor telemetry from RabbitMQ, persists it
// and triggers windowed analysis per reading.
package ingest

import (
	"time"

	"pipewatch.dev/pipewatch/internal/store"
)

// ReadingMessage is the wire form of one telemetry sample. Flow, pressure
// and temperature use the scaled-integer convention (x100); the timestamp
// is milliseconds since the Unix epoch.
type ReadingMessage struct {
	SensorID    string `json:"sensor_id"`
	FlowRate    int64  `json:"flow_rate"`
	Pressure    int64  `json:"pressure"`
	Temperature *int64 `json:"temperature,omitempty"`
	TimestampMS int64  `json:"timestamp_ms"`
}

// Reading converts the message into its storage model.
func (m *ReadingMessage) Reading() *store.Reading {
	return &store.Reading{
		SensorID:    m.SensorID,
		FlowRate:    m.FlowRate,
		Pressure:    m.Pressure,
		Temperature: m.Temperature,
		Timestamp:   time.UnixMilli(m.TimestampMS).UTC(),
	}
}

// SensorMessage announces a sensor on the registration queue.
type SensorMessage struct {
	SensorID  string  `json:"sensor_id"`
	Name      string  `json:"name"`
	Location  string  `json:"location"`
	PipeType  string  `json:"pipe_type"`
	PositionX float64 `json:"position_x"`
	PositionY float64 `json:"position_y"`
}

// Sensor converts the message into its storage model. New sensors start in
// the active state.
func (m *SensorMessage) Sensor() *store.Sensor {
	return &store.Sensor{
		SensorID:  m.SensorID,
		Name:      m.Name,
		Location:  m.Location,
		PipeType:  store.PipeType(m.PipeType),
		Status:    store.StatusActive,
		PositionX: m.PositionX,
		PositionY: m.PositionY,
	}
}
