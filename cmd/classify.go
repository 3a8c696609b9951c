package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pipewatch.dev/pipewatch/internal/store"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <sensor-id>",
	Short: "Classify the leak archetype for a sensor",
	Long: `Classify a sensor's recent readings into a leak archetype (burst,
joint, pinhole, seepage) with an estimated flow loss and repair urgency.
Meant for sensors the analyzer has already flagged; healthy signatures
come back as unknown.`,
	Args: cobra.ExactArgs(1),
	RunE: runClassify,
}

func init() {
	rootCmd.AddCommand(classifyCmd)
	bindDBFlags(classifyCmd)
}

func runClassify(_ *cobra.Command, args []string) error {
	logger := GetLogger()
	sensorID := args[0]

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

	classification, err := engine.ClassifyLeak(ctx, sensorID)
	if err != nil {
		logger.Error("leak classification failed", "sensor_id", sensorID, "error", err)
		return err
	}

	fmt.Printf("Sensor:               %s\n", classification.SensorID)
	fmt.Printf("Leak type:            %s\n", classification.Type)
	fmt.Printf("Severity:             %s\n", classification.Severity)
	fmt.Printf("Estimated flow loss:  %.1f units/hour\n", classification.EstimatedFlowLoss)
	fmt.Printf("Urgency:              %s\n", classification.Urgency)

	return nil
}
