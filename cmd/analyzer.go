package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pipewatch.dev/pipewatch/internal/analyzer"
)

var analyzerCmd = &cobra.Command{
	Use:   "analyzer",
	Short: "Run the analysis service",
	Long: `Run the analysis service that:
- Consumes sensor readings and registrations from RabbitMQ
- Persists telemetry to PostgreSQL
- Classifies sensor state per reading window
- Periodically learns flow baselines and refreshes risk scores
- Exposes Prometheus metrics`,
	RunE: runAnalyzer,
}

func init() {
	rootCmd.AddCommand(analyzerCmd)

	analyzerCmd.Flags().String("db-host", "localhost", "PostgreSQL host")
	analyzerCmd.Flags().Int("db-port", 5432, "PostgreSQL port")
	analyzerCmd.Flags().String("db-user", "postgres", "PostgreSQL user")
	analyzerCmd.Flags().String("db-password", "", "PostgreSQL password")
	analyzerCmd.Flags().String("db-name", "pipewatch", "PostgreSQL database name")
	analyzerCmd.Flags().String("db-sslmode", "disable", "PostgreSQL SSL mode")
	analyzerCmd.Flags().String("rabbitmq-url", "amqp://localhost:5672", "RabbitMQ URL")
	analyzerCmd.Flags().String("reading-queue", "pipe-readings", "RabbitMQ queue for sensor readings")
	analyzerCmd.Flags().String("sensor-queue", "pipe-sensors", "RabbitMQ queue for sensor registrations")
	analyzerCmd.Flags().Duration("analysis-window", 5*time.Minute, "trailing window for per-reading analysis")
	analyzerCmd.Flags().Duration("learn-interval", time.Hour, "interval between pattern learning passes")
	analyzerCmd.Flags().Duration("score-interval", 15*time.Minute, "interval between risk scoring passes")
	analyzerCmd.Flags().Int("metrics-port", 9091, "Prometheus metrics port")

	_ = viper.BindPFlag("analyzer.db.host", analyzerCmd.Flags().Lookup("db-host"))
	_ = viper.BindPFlag("analyzer.db.port", analyzerCmd.Flags().Lookup("db-port"))
	_ = viper.BindPFlag("analyzer.db.user", analyzerCmd.Flags().Lookup("db-user"))
	_ = viper.BindPFlag("analyzer.db.password", analyzerCmd.Flags().Lookup("db-password"))
	_ = viper.BindPFlag("analyzer.db.name", analyzerCmd.Flags().Lookup("db-name"))
	_ = viper.BindPFlag("analyzer.db.sslmode", analyzerCmd.Flags().Lookup("db-sslmode"))
	_ = viper.BindPFlag("analyzer.rabbitmq.url", analyzerCmd.Flags().Lookup("rabbitmq-url"))
	_ = viper.BindPFlag("analyzer.rabbitmq.reading_queue", analyzerCmd.Flags().Lookup("reading-queue"))
	_ = viper.BindPFlag("analyzer.rabbitmq.sensor_queue", analyzerCmd.Flags().Lookup("sensor-queue"))
	_ = viper.BindPFlag("analyzer.analysis_window", analyzerCmd.Flags().Lookup("analysis-window"))
	_ = viper.BindPFlag("analyzer.learn_interval", analyzerCmd.Flags().Lookup("learn-interval"))
	_ = viper.BindPFlag("analyzer.score_interval", analyzerCmd.Flags().Lookup("score-interval"))
	_ = viper.BindPFlag("analyzer.metrics_port", analyzerCmd.Flags().Lookup("metrics-port"))
}

func runAnalyzer(_ *cobra.Command, _ []string) error {
	logger := GetLogger()
	logger.Info("starting analyzer service")

	config := &analyzer.ServerConfig{
		Logger:         logger,
		DBHost:         viper.GetString("analyzer.db.host"),
		DBPort:         viper.GetInt("analyzer.db.port"),
		DBUser:         viper.GetString("analyzer.db.user"),
		DBPassword:     viper.GetString("analyzer.db.password"),
		DBName:         viper.GetString("analyzer.db.name"),
		DBSSLMode:      viper.GetString("analyzer.db.sslmode"),
		RabbitMQURL:    viper.GetString("analyzer.rabbitmq.url"),
		ReadingQueue:   viper.GetString("analyzer.rabbitmq.reading_queue"),
		SensorQueue:    viper.GetString("analyzer.rabbitmq.sensor_queue"),
		AnalysisWindow: viper.GetDuration("analyzer.analysis_window"),
		LearnInterval:  viper.GetDuration("analyzer.learn_interval"),
		ScoreInterval:  viper.GetDuration("analyzer.score_interval"),
		MetricsPort:    viper.GetInt("analyzer.metrics_port"),
	}

	server, err := analyzer.NewServer(config)
	if err != nil {
		logger.Error("failed to create analyzer server", "error", err)
		return err
	}

	logger.Info("analyzer configuration",
		"db_host", config.DBHost,
		"db_port", config.DBPort,
		"db_name", config.DBName,
		"rabbitmq_url", config.RabbitMQURL,
		"reading_queue", config.ReadingQueue,
		"sensor_queue", config.SensorQueue,
		"metrics_port", config.MetricsPort,
	)

	if err := server.Run(context.Background()); err != nil {
		logger.Error("analyzer server error", "error", err)
		return err
	}

	logger.Info("analyzer server stopped")
	return nil
}
