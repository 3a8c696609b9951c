package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"

	"pipewatch.dev/pipewatch/internal/analysis"
	"pipewatch.dev/pipewatch/internal/store"
	"pipewatch.dev/pipewatch/pkg/logger"
	"pipewatch.dev/pipewatch/pkg/metrics"
	"pipewatch.dev/pipewatch/pkg/mq"
)

// Per-message deadline for the persist-and-analyze path. A deadline expiry
// inside the engine degrades to an insufficient-data result by design.
const handleTimeout = 10 * time.Second

// Consumer consumes reading and sensor-registration messages from RabbitMQ,
// persists them and runs windowed analysis on each reading's sensor.
type Consumer struct {
	logger     *slog.Logger
	store      store.Store
	engine     *analysis.Engine
	readingMQ  mq.ClientInterface
	sensorMQ   mq.ClientInterface
	metrics    *metrics.IngestMetrics // Optional metrics
	window     time.Duration
	done       chan struct{}
	sensorDone chan struct{}
}

// ConsumerConfig holds the configuration for the Consumer.
type ConsumerConfig struct {
	Logger         *slog.Logger
	Store          store.Store
	Engine         *analysis.Engine
	RabbitMQURL    string
	ReadingQueue   string
	SensorQueue    string
	Metrics        *metrics.IngestMetrics
	AnalysisWindow time.Duration
}

// NewConsumer creates a new Consumer instance.
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg == nil {
		return nil, errors.New("consumer config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Store == nil {
		return nil, errors.New("store cannot be nil")
	}

	if cfg.Engine == nil {
		return nil, errors.New("engine cannot be nil")
	}

	if cfg.RabbitMQURL == "" {
		return nil, errors.New("rabbitmq URL cannot be empty")
	}

	if cfg.ReadingQueue == "" {
		return nil, errors.New("reading queue name cannot be empty")
	}

	if cfg.SensorQueue == "" {
		return nil, errors.New("sensor queue name cannot be empty")
	}

	window := cfg.AnalysisWindow
	if window <= 0 {
		window = analysis.DefaultWindow
	}

	return &Consumer{
		logger:     cfg.Logger,
		store:      cfg.Store,
		engine:     cfg.Engine,
		readingMQ:  mq.New(cfg.ReadingQueue, cfg.RabbitMQURL, cfg.Logger),
		sensorMQ:   mq.New(cfg.SensorQueue, cfg.RabbitMQURL, cfg.Logger),
		metrics:    cfg.Metrics,
		window:     window,
		done:       make(chan struct{}),
		sensorDone: make(chan struct{}),
	}, nil
}

// Start begins consuming messages from both queues.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("starting ingest consumer")

	// Give the MQ clients time to establish their first connection.
	time.Sleep(2 * time.Second)

	readings, err := c.readingMQ.Consume()
	if err != nil {
		return fmt.Errorf("failed to start consuming readings: %w", err)
	}

	sensors, err := c.sensorMQ.Consume()
	if err != nil {
		return fmt.Errorf("failed to start consuming sensor registrations: %w", err)
	}

	if c.metrics != nil {
		c.metrics.ActiveConsumers.Add(2)
	}

	c.logger.Info("ingest consumer started, waiting for messages")

	go c.processReadings(ctx, readings)
	go c.processSensors(ctx, sensors)

	return nil
}

// processReadings drains the reading deliveries channel.
func (c *Consumer) processReadings(ctx context.Context, deliveries <-chan amqp.Delivery) {
	defer close(c.done)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("context canceled, stopping reading processing")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Warn("reading deliveries channel closed")
				return
			}
			c.handleReading(ctx, delivery)
		}
	}
}

// processSensors drains the sensor-registration deliveries channel.
func (c *Consumer) processSensors(ctx context.Context, deliveries <-chan amqp.Delivery) {
	defer close(c.sensorDone)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("context canceled, stopping sensor processing")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Warn("sensor deliveries channel closed")
				return
			}
			c.handleSensor(ctx, delivery)
		}
	}
}

// handleReading persists one reading and runs windowed analysis for its
// sensor. Malformed messages are acked so they are not redelivered forever;
// store failures nack for redelivery.
func (c *Consumer) handleReading(ctx context.Context, delivery amqp.Delivery) {
	var timer *prometheus.Timer
	if c.metrics != nil {
		timer = prometheus.NewTimer(c.metrics.ProcessingDuration.WithLabelValues("readings"))
		defer timer.ObserveDuration()
	}

	var msg ReadingMessage
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		c.logger.Error("failed to unmarshal reading", "error", err)
		c.countError("readings", "unmarshal_error")
		c.ack(delivery)
		return
	}

	if msg.SensorID == "" {
		c.logger.Error("reading without sensor_id dropped")
		c.countError("readings", "missing_sensor_id")
		c.ack(delivery)
		return
	}

	handleCtx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()

	log := logger.ForSensor(c.logger, msg.SensorID)

	if err := c.store.CreateReading(handleCtx, msg.Reading()); err != nil {
		log.Error("failed to save reading", "error", err)
		c.countError("readings", "store_error")
		c.nack(delivery)
		return
	}

	if c.metrics != nil {
		c.metrics.ReadingsPersisted.Inc()
	}

	result, err := c.engine.AnalyzeWindow(handleCtx, msg.SensorID, c.window)
	if err != nil {
		// The reading is already persisted; analysis failure is not a
		// reason to redeliver it.
		log.Error("window analysis failed", "error", err)
		c.countError("readings", "analysis_error")
	} else {
		log.Debug("reading analyzed",
			"status", result.Status,
			"confidence", result.Confidence,
		)
	}

	c.ack(delivery)

	if c.metrics != nil {
		c.metrics.MessagesTotal.WithLabelValues("readings", "success").Inc()
	}
}

// handleSensor registers a sensor announced on the registration queue.
// Re-announcements of a known sensor are ignored.
func (c *Consumer) handleSensor(ctx context.Context, delivery amqp.Delivery) {
	var msg SensorMessage
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		c.logger.Error("failed to unmarshal sensor registration", "error", err)
		c.countError("sensors", "unmarshal_error")
		c.ack(delivery)
		return
	}

	handleCtx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()

	existing, err := c.store.GetSensor(handleCtx, msg.SensorID)
	if err != nil {
		c.logger.Error("failed to look up sensor", "sensor_id", msg.SensorID, "error", err)
		c.countError("sensors", "store_error")
		c.nack(delivery)
		return
	}

	if existing == nil {
		if err := c.store.CreateSensor(handleCtx, msg.Sensor()); err != nil {
			c.logger.Error("failed to register sensor", "sensor_id", msg.SensorID, "error", err)
			c.countError("sensors", "store_error")
			c.nack(delivery)
			return
		}
		c.logger.Info("sensor registered",
			"sensor_id", msg.SensorID,
			"location", msg.Location,
			"pipe_type", msg.PipeType,
		)
	}

	c.ack(delivery)

	if c.metrics != nil {
		c.metrics.MessagesTotal.WithLabelValues("sensors", "success").Inc()
	}
}

func (c *Consumer) ack(delivery amqp.Delivery) {
	if err := delivery.Ack(false); err != nil {
		c.logger.Error("failed to ack message", "error", err)
	}
}

func (c *Consumer) nack(delivery amqp.Delivery) {
	if err := delivery.Nack(false, true); err != nil {
		c.logger.Error("failed to nack message", "error", err)
	}
}

func (c *Consumer) countError(queue, errorType string) {
	if c.metrics != nil {
		c.metrics.MessagesTotal.WithLabelValues(queue, "error").Inc()
		c.metrics.ConsumerErrors.WithLabelValues(queue, errorType).Inc()
	}
}

// Stop stops the consumer and closes the MQ clients.
func (c *Consumer) Stop() error {
	c.logger.Info("stopping ingest consumer")

	var stopErr error
	if err := c.readingMQ.Close(); err != nil {
		stopErr = fmt.Errorf("failed to close reading mq client: %w", err)
	}
	if err := c.sensorMQ.Close(); err != nil {
		if stopErr != nil {
			stopErr = fmt.Errorf("%w; failed to close sensor mq client: %w", stopErr, err)
		} else {
			stopErr = fmt.Errorf("failed to close sensor mq client: %w", err)
		}
	}

	<-c.done
	<-c.sensorDone

	if c.metrics != nil {
		c.metrics.ActiveConsumers.Sub(2)
	}

	c.logger.Info("ingest consumer stopped")
	return stopErr
}
