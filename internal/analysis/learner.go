package analysis

import (
	"context"

	"pipewatch.dev/pipewatch/internal/store"
)

// LearnPatterns recomputes the per-(hour, weekday) baseline buckets for a
// sensor from its recent reading history. The 168 buckets per sensor bound
// memory and approximate a seasonal baseline without a trained model.
//
// With fewer than minLearnReadings readings the run is a no-op. The
// operation is idempotent in bucket set: learning twice over unchanged
// history updates existing buckets, it never creates new ones.
func (e *Engine) LearnPatterns(ctx context.Context, sensorID string) error {
	unlock := e.lockSensor(sensorID)
	defer unlock()

	done := e.observeDuration("learn")
	defer done()

	readings, err := e.store.GetRecentReadings(ctx, sensorID, recentReadingLimit)
	if err != nil {
		e.countStoreError("get_recent_readings")
		return err
	}

	if len(readings) < minLearnReadings {
		e.log.Debug("not enough history to learn patterns",
			"sensor_id", sensorID,
			"readings", len(readings),
		)
		if e.metrics != nil {
			e.metrics.InsufficientData.WithLabelValues("learn").Inc()
		}
		return nil
	}

	type bucketKey struct {
		weekday int
		hour    int
	}

	grouped := make(map[bucketKey][]store.Reading)
	for _, r := range readings {
		local := r.Timestamp.In(e.loc)
		key := bucketKey{weekday: int(local.Weekday()), hour: local.Hour()}
		grouped[key] = append(grouped[key], r)
	}

	upserted := 0
	for key, group := range grouped {
		stats := summarize(group)

		bucket := &store.FlowPattern{
			SensorID:     sensorID,
			HourOfDay:    key.hour,
			DayOfWeek:    key.weekday,
			AvgFlowRate:  stats.meanFlow,
			MinFlowRate:  stats.minFlow,
			MaxFlowRate:  stats.maxFlow,
			StdDeviation: stats.stdDevFlow,
			SampleCount:  int64(stats.count),
		}

		if err := e.store.UpsertPatternBucket(ctx, bucket); err != nil {
			e.countStoreError("upsert_pattern")
			return err
		}
		upserted++
	}

	if e.metrics != nil {
		e.metrics.PatternBucketsLearnt.Add(float64(upserted))
	}

	e.log.Debug("patterns learned",
		"sensor_id", sensorID,
		"readings", len(readings),
		"buckets", upserted,
	)
	return nil
}
