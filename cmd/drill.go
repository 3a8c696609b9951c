package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pipewatch.dev/pipewatch/internal/analysis"
	"pipewatch.dev/pipewatch/internal/store"
)

var drillCmd = &cobra.Command{
	Use:   "drill <sensor-id>",
	Short: "Force a sensor into leak state (operational drill)",
	Long: `Force a sensor into the leak state and raise a critical alert.
This bypasses the analyzer's classification on purpose; use "reset" to
return the sensor to active.`,
	Args: cobra.ExactArgs(1),
	RunE: runDrill,
}

var resetCmd = &cobra.Command{
	Use:   "reset <sensor-id>",
	Short: "Reset a sensor to active state",
	Long: `Return a sensor to the active state. The analyzer never clears a
fault on its own; this explicit reset is the only way back.`,
	Args: cobra.ExactArgs(1),
	RunE: runReset,
}

func init() {
	rootCmd.AddCommand(drillCmd)
	rootCmd.AddCommand(resetCmd)
	bindDBFlags(drillCmd)
	bindDBFlags(resetCmd)
}

func runDrill(_ *cobra.Command, args []string) error {
	return runTransition(args[0], func(ctx context.Context, engine *analysis.Engine, sensorID string) error {
		return engine.TriggerLeak(ctx, sensorID)
	}, "leak drill triggered")
}

func runReset(_ *cobra.Command, args []string) error {
	return runTransition(args[0], func(ctx context.Context, engine *analysis.Engine, sensorID string) error {
		return engine.ResetSensor(ctx, sensorID)
	}, "sensor reset")
}

func runTransition(sensorID string, fn func(context.Context, *analysis.Engine, string) error, doneMsg string) error {
	logger := GetLogger()

	engine, _, db, err := openEngine(logger)
	if err != nil {
		logger.Error("failed to open engine", "error", err)
		return err
	}
	defer func() {
		_ = store.CloseDB(db, logger)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := fn(ctx, engine, sensorID); err != nil {
		if errors.Is(err, analysis.ErrUnknownSensor) {
			return fmt.Errorf("sensor %q is not registered", sensorID)
		}
		logger.Error("state transition failed", "sensor_id", sensorID, "error", err)
		return err
	}

	logger.Info(doneMsg, "sensor_id", sensorID)
	return nil
}
