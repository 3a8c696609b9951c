package analysis

import (
	"context"
	"sort"
	"sync"
)

// HealthReport scores every registered sensor and returns the ranked
// prediction list, highest risk first. Sensors are scored in parallel since
// per-sensor analyses are independent; the report is the aggregation point
// and waits for all of them. Unknown or failing sensors are skipped, never
// failing the whole batch.
func (e *Engine) HealthReport(ctx context.Context) (*HealthReport, error) {
	sensors, err := e.store.ListSensors(ctx)
	if err != nil {
		e.countStoreError("list_sensors")
		return nil, err
	}

	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		predictions []Prediction
	)

	for _, sensor := range sensors {
		wg.Add(1)
		go func(sensorID string) {
			defer wg.Done()

			prediction, err := e.ScoreRisk(ctx, sensorID)
			if err != nil {
				e.log.Warn("skipping sensor in health report", "sensor_id", sensorID, "error", err)
				return
			}
			if prediction == nil {
				return
			}

			mu.Lock()
			predictions = append(predictions, *prediction)
			mu.Unlock()
		}(sensor.SensorID)
	}

	wg.Wait()

	sort.Slice(predictions, func(i, j int) bool {
		if predictions[i].RiskScore != predictions[j].RiskScore {
			return predictions[i].RiskScore > predictions[j].RiskScore
		}
		return predictions[i].SensorID < predictions[j].SensorID
	})

	return &HealthReport{
		GeneratedAt: e.now(),
		Predictions: predictions,
	}, nil
}
