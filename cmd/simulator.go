package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pipewatch.dev/pipewatch/internal/simulator"
	"pipewatch.dev/pipewatch/pkg/metrics"
	"pipewatch.dev/pipewatch/pkg/mq"
)

var simulatorCmd = &cobra.Command{
	Use:   "simulator",
	Short: "Run the telemetry simulator",
	Long: `Run the simulator that:
- Generates a fleet of synthetic pipe sensors
- Publishes sensor registrations and periodic readings to RabbitMQ
- Occasionally injects leak and blockage episodes into the waveforms`,
	RunE: runSimulator,
}

func init() {
	rootCmd.AddCommand(simulatorCmd)

	simulatorCmd.Flags().String("rabbitmq-url", "amqp://localhost:5672", "RabbitMQ URL")
	simulatorCmd.Flags().String("reading-queue", "pipe-readings", "RabbitMQ queue for sensor readings")
	simulatorCmd.Flags().String("sensor-queue", "pipe-sensors", "RabbitMQ queue for sensor registrations")
	simulatorCmd.Flags().Int("sensors", 0, "number of sensors to simulate (0 = random)")
	simulatorCmd.Flags().Duration("interval", 10*time.Second, "interval between readings per sensor")

	_ = viper.BindPFlag("simulator.rabbitmq.url", simulatorCmd.Flags().Lookup("rabbitmq-url"))
	_ = viper.BindPFlag("simulator.rabbitmq.reading_queue", simulatorCmd.Flags().Lookup("reading-queue"))
	_ = viper.BindPFlag("simulator.rabbitmq.sensor_queue", simulatorCmd.Flags().Lookup("sensor-queue"))
	_ = viper.BindPFlag("simulator.sensors", simulatorCmd.Flags().Lookup("sensors"))
	_ = viper.BindPFlag("simulator.interval", simulatorCmd.Flags().Lookup("interval"))
}

func runSimulator(_ *cobra.Command, _ []string) error {
	logger := GetLogger()
	logger.Info("starting simulator")

	url := viper.GetString("simulator.rabbitmq.url")
	readingMQ := mq.New(viper.GetString("simulator.rabbitmq.reading_queue"), url, logger)
	sensorMQ := mq.New(viper.GetString("simulator.rabbitmq.sensor_queue"), url, logger)

	mqMetrics := metrics.NewMQMetrics("pipewatch")
	readingMQ.SetMetrics(mqMetrics)

	sim, err := simulator.New(&simulator.Config{
		Logger:      logger,
		ReadingMQ:   readingMQ,
		SensorMQ:    sensorMQ,
		SensorCount: viper.GetInt("simulator.sensors"),
		Interval:    viper.GetDuration("simulator.interval"),
		Metrics:     metrics.NewSimulatorMetrics("pipewatch"),
	})
	if err != nil {
		logger.Error("failed to create simulator", "error", err)
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	}()

	if err := sim.Run(ctx); err != nil {
		logger.Error("simulator error", "error", err)
		return err
	}

	if err := readingMQ.Close(); err != nil {
		logger.Error("failed to close reading mq client", "error", err)
	}
	if err := sensorMQ.Close(); err != nil {
		logger.Error("failed to close sensor mq client", "error", err)
	}

	logger.Info("simulator stopped")
	return nil
}
