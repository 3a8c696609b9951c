// Package analyzer wires the decision engine, the datastore and the ingest
// consumer into the long-running analysis service.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"gorm.io/gorm"

	"pipewatch.dev/pipewatch/internal/analysis"
	"pipewatch.dev/pipewatch/internal/ingest"
	"pipewatch.dev/pipewatch/internal/store"
	"pipewatch.dev/pipewatch/pkg/metrics"
)

// Server runs the analysis service: reading ingestion, periodic pattern
// learning and periodic risk scoring, plus the Prometheus endpoint.
type Server struct {
	logger     *slog.Logger
	db         *gorm.DB
	store      store.Store
	engine     *analysis.Engine
	consumer   *ingest.Consumer
	metricsSrv *http.Server
	config     *ServerConfig
}

// ServerConfig holds the configuration for the Server.
type ServerConfig struct {
	Logger *slog.Logger

	// Database configuration
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	DBPort     int

	// RabbitMQ configuration
	RabbitMQURL  string
	ReadingQueue string
	SensorQueue  string

	// Analysis configuration
	AnalysisWindow time.Duration
	LearnInterval  time.Duration
	ScoreInterval  time.Duration

	// Prometheus endpoint port
	MetricsPort int
}

// NewServer creates a new Server instance.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
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

	if cfg.DBHost == "" {
		return nil, errors.New("database host cannot be empty")
	}

	if cfg.DBPort <= 0 {
		return nil, errors.New("database port must be positive")
	}

	if cfg.DBUser == "" {
		return nil, errors.New("database user cannot be empty")
	}

	if cfg.DBName == "" {
		return nil, errors.New("database name cannot be empty")
	}

	if cfg.MetricsPort <= 0 {
		return nil, errors.New("metrics port must be positive")
	}

	if cfg.AnalysisWindow <= 0 {
		cfg.AnalysisWindow = analysis.DefaultWindow
	}

	if cfg.LearnInterval <= 0 {
		cfg.LearnInterval = time.Hour
	}

	if cfg.ScoreInterval <= 0 {
		cfg.ScoreInterval = 15 * time.Minute
	}

	return &Server{
		logger: cfg.Logger,
		config: cfg,
	}, nil
}

// Run starts the analysis service and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting analyzer service")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	// Database and store
	db, err := store.NewDB(&store.DBConfig{
		Host:     s.config.DBHost,
		Port:     s.config.DBPort,
		User:     s.config.DBUser,
		Password: s.config.DBPassword,
		DBName:   s.config.DBName,
		SSLMode:  s.config.DBSSLMode,
		Logger:   s.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	s.db = db

	st, err := store.NewGorm(db)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	s.store = st

	// Decision engine
	engine, err := analysis.New(&analysis.Config{
		Store:   st,
		Logger:  s.logger,
		Metrics: metrics.NewAnalyzerMetrics("pipewatch"),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}
	s.engine = engine

	// Ingest consumer
	consumer, err := ingest.NewConsumer(&ingest.ConsumerConfig{
		Logger:         s.logger,
		Store:          st,
		Engine:         engine,
		RabbitMQURL:    s.config.RabbitMQURL,
		ReadingQueue:   s.config.ReadingQueue,
		SensorQueue:    s.config.SensorQueue,
		Metrics:        metrics.NewIngestMetrics("pipewatch"),
		AnalysisWindow: s.config.AnalysisWindow,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize consumer: %w", err)
	}
	s.consumer = consumer

	if err := s.consumer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}

	// Periodic learning and scoring
	var loops sync.WaitGroup
	loops.Add(2)
	go func() {
		defer loops.Done()
		s.runPeriodic(ctx, "pattern learning", s.config.LearnInterval, s.learnAllSensors)
	}()
	go func() {
		defer loops.Done()
		s.runPeriodic(ctx, "risk scoring", s.config.ScoreInterval, s.scoreAllSensors)
	}()

	// Prometheus endpoint
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	s.metricsSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	httpErr := make(chan error, 1)
	go func() {
		s.logger.Info("starting metrics endpoint", "address", s.metricsSrv.Addr)
		if err := s.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- fmt.Errorf("metrics server error: %w", err)
		}
		close(httpErr)
	}()

	s.logger.Info("analyzer service started successfully")

	select {
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	case <-ctx.Done():
		s.logger.Info("context canceled")
	case err := <-httpErr:
		if err != nil {
			s.logger.Error("metrics server error", "error", err)
			cancel()
			loops.Wait()
			return errors.Join(err, s.Shutdown())
		}
	}

	loops.Wait()
	return s.Shutdown()
}

// runPeriodic runs fn immediately and then on every tick until ctx ends.
func (s *Server) runPeriodic(ctx context.Context, name string, interval time.Duration, fn func(context.Context)) {
	s.logger.Info("starting periodic task", "task", name, "interval", interval)

	fn(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stopping periodic task", "task", name)
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// learnAllSensors runs pattern learning for every registered sensor.
// Failures are logged per sensor and never abort the batch.
func (s *Server) learnAllSensors(ctx context.Context) {
	sensors, err := s.store.ListSensors(ctx)
	if err != nil {
		s.logger.Error("failed to list sensors for learning", "error", err)
		return
	}

	for _, sensor := range sensors {
		if ctx.Err() != nil {
			return
		}
		if err := s.engine.LearnPatterns(ctx, sensor.SensorID); err != nil {
			s.logger.Error("pattern learning failed", "sensor_id", sensor.SensorID, "error", err)
		}
	}

	s.logger.Debug("pattern learning pass complete", "sensors", len(sensors))
}

// scoreAllSensors refreshes the persisted risk ranking.
func (s *Server) scoreAllSensors(ctx context.Context) {
	report, err := s.engine.HealthReport(ctx)
	if err != nil {
		s.logger.Error("risk scoring pass failed", "error", err)
		return
	}

	s.logger.Debug("risk scoring pass complete", "sensors", len(report.Predictions))
}

// Shutdown gracefully shuts down the service.
func (s *Server) Shutdown() error {
	s.logger.Info("shutting down analyzer service")

	var shutdownErr error

	if s.metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.metricsSrv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("failed to stop metrics server", "error", err)
			shutdownErr = fmt.Errorf("metrics server shutdown error: %w", err)
		}
	}

	if s.consumer != nil {
		s.logger.Info("stopping consumer")
		if err := s.consumer.Stop(); err != nil {
			s.logger.Error("failed to stop consumer", "error", err)
			if shutdownErr != nil {
				shutdownErr = fmt.Errorf("%w; consumer shutdown error: %w", shutdownErr, err)
			} else {
				shutdownErr = fmt.Errorf("consumer shutdown error: %w", err)
			}
		}
	}

	if s.db != nil {
		if err := store.CloseDB(s.db, s.logger); err != nil {
			s.logger.Error("failed to close database", "error", err)
			if shutdownErr != nil {
				shutdownErr = fmt.Errorf("%w; database close error: %w", shutdownErr, err)
			} else {
				shutdownErr = fmt.Errorf("database close error: %w", err)
			}
		}
	}

	if shutdownErr != nil {
		s.logger.Error("analyzer service shutdown completed with errors", "error", shutdownErr)
		return shutdownErr
	}

	s.logger.Info("analyzer service shutdown completed successfully")
	return nil
}
