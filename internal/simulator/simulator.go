// Package simulator publishes synthetic pipe sensor telemetry to RabbitMQ
// so the analyzer can be exercised without field hardware.
package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"pipewatch.dev/pipewatch/internal/ingest"
	"pipewatch.dev/pipewatch/pkg/generator"
	"pipewatch.dev/pipewatch/pkg/metrics"
	"pipewatch.dev/pipewatch/pkg/mq"
)

// Chance per tick that a healthy simulated sensor develops a fault.
const episodeChance = 0.002

// Simulator owns a fleet of synthetic sensors and publishes their readings.
type Simulator struct {
	logger     *slog.Logger
	readingMQ  mq.ClientInterface
	sensorMQ   mq.ClientInterface
	sensors    []*generator.PipeSensor
	generators map[string]*generator.FlowGenerator
	metrics    *metrics.SimulatorMetrics // Optional metrics
	interval   time.Duration
}

// Config holds the configuration for the Simulator.
type Config struct {
	Logger      *slog.Logger
	ReadingMQ   mq.ClientInterface
	SensorMQ    mq.ClientInterface
	SensorCount int
	Interval    time.Duration
	Metrics     *metrics.SimulatorMetrics
}

// New creates a simulator and announces its sensors on the registration
// queue.
func New(cfg *Config) (*Simulator, error) {
	if cfg == nil {
		return nil, errors.New("simulator config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.ReadingMQ == nil || cfg.SensorMQ == nil {
		return nil, errors.New("mq clients cannot be nil")
	}

	if cfg.SensorCount <= 0 {
		cfg.SensorCount = rand.Intn(5) + 3 // #nosec G404 - simulation data
	}

	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}

	s := &Simulator{
		logger:     cfg.Logger,
		readingMQ:  cfg.ReadingMQ,
		sensorMQ:   cfg.SensorMQ,
		generators: make(map[string]*generator.FlowGenerator),
		metrics:    cfg.Metrics,
		interval:   cfg.Interval,
	}

	for range cfg.SensorCount {
		sensor := generator.NewPipeSensor()
		if sensor == nil {
			continue
		}
		s.sensors = append(s.sensors, sensor)
		s.generators[sensor.SensorID] = generator.NewFlowGenerator(sensor.SensorID)

		if err := s.announceSensor(sensor); err != nil {
			s.logger.Error("failed to announce sensor", "sensor_id", sensor.SensorID, "error", err)
		}
	}

	if len(s.sensors) == 0 {
		return nil, errors.New("failed to generate any sensors")
	}

	if s.metrics != nil {
		s.metrics.SensorsSimulated.Set(float64(len(s.sensors)))
	}

	return s, nil
}

// announceSensor publishes one sensor on the registration queue.
func (s *Simulator) announceSensor(sensor *generator.PipeSensor) error {
	var timer *prometheus.Timer
	if s.metrics != nil {
		timer = prometheus.NewTimer(s.metrics.GenerationDuration.WithLabelValues("sensor"))
		defer timer.ObserveDuration()
	}

	msg := ingest.SensorMessage{
		SensorID:  sensor.SensorID,
		Name:      sensor.Name,
		Location:  sensor.Location,
		PipeType:  sensor.PipeType,
		PositionX: sensor.PositionX,
		PositionY: sensor.PositionY,
	}

	body, err := json.Marshal(msg)
	if err != nil {
		s.countFailure("sensor", "marshal_error")
		return err
	}

	// Short timeout so startup does not block while the MQ client is
	// still establishing its first connection.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := s.sensorMQ.Push(ctx, body); err != nil {
		s.countFailure("sensor", "push_error")
		return err
	}

	if s.metrics != nil {
		s.metrics.ReadingsGenerated.WithLabelValues("sensor").Inc()
	}
	return nil
}

// Run publishes one reading per sensor per tick until ctx ends.
func (s *Simulator) Run(ctx context.Context) error {
	s.logger.Info("simulator started",
		"sensors", len(s.sensors),
		"interval", s.interval,
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("simulator stopped")
			return nil
		case now := <-ticker.C:
			s.tick(ctx, now)
		}
	}
}

// tick publishes the current reading for every sensor and occasionally
// starts a fault episode on a random one.
func (s *Simulator) tick(ctx context.Context, now time.Time) {
	for _, sensor := range s.sensors {
		gen := s.generators[sensor.SensorID]

		if gen.Episode(now) == generator.EpisodeNone && rand.Float64() < episodeChance { // #nosec G404
			episode := generator.EpisodeLeak
			if rand.Intn(2) == 0 { // #nosec G404
				episode = generator.EpisodeBlockage
			}
			gen.StartEpisode(episode, now.Add(10*time.Minute))
			s.logger.Info("fault episode started",
				"sensor_id", sensor.SensorID,
				"episode", episode,
			)
			if s.metrics != nil {
				s.metrics.LeakEpisodes.Inc()
			}
		}

		if err := s.publishReading(ctx, sensor.SensorID, gen, now); err != nil {
			s.logger.Error("failed to publish reading",
				"sensor_id", sensor.SensorID,
				"error", err,
			)
		}
	}
}

// publishReading publishes one reading for the sensor.
func (s *Simulator) publishReading(ctx context.Context, sensorID string, gen *generator.FlowGenerator, now time.Time) error {
	var timer *prometheus.Timer
	if s.metrics != nil {
		timer = prometheus.NewTimer(s.metrics.GenerationDuration.WithLabelValues("reading"))
		defer timer.ObserveDuration()
	}

	flow, pressure, temperature := gen.Reading(now)
	msg := ingest.ReadingMessage{
		SensorID:    sensorID,
		FlowRate:    flow,
		Pressure:    pressure,
		Temperature: &temperature,
		TimestampMS: now.UnixMilli(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		s.countFailure("reading", "marshal_error")
		return fmt.Errorf("failed to marshal reading: %w", err)
	}

	if err := s.readingMQ.Push(ctx, body); err != nil {
		s.countFailure("reading", "push_error")
		return fmt.Errorf("failed to push reading: %w", err)
	}

	if s.metrics != nil {
		s.metrics.ReadingsGenerated.WithLabelValues("reading").Inc()
	}
	return nil
}

func (s *Simulator) countFailure(kind, reason string) {
	if s.metrics != nil {
		s.metrics.GenerationFailures.WithLabelValues(kind, reason).Inc()
	}
}

// SensorIDs lists the simulated fleet.
func (s *Simulator) SensorIDs() []string {
	ids := make([]string, len(s.sensors))
	for i, sensor := range s.sensors {
		ids[i] = sensor.SensorID
	}
	return ids
}
