package analysis

import (
	"context"
	"time"
)

// CheckAnomaly compares a live flow value against the learned baseline for
// the current time bucket. Without a bucket, or with one below the minimum
// sample count, the answer is always "not an anomaly" with a nil expected
// range: the checker refuses to flag anything on a cold baseline.
func (e *Engine) CheckAnomaly(ctx context.Context, sensorID string, currentFlow float64) (*AnomalyCheck, error) {
	return e.checkAnomalyAt(ctx, sensorID, currentFlow, e.now())
}

func (e *Engine) checkAnomalyAt(ctx context.Context, sensorID string, currentFlow float64, at time.Time) (*AnomalyCheck, error) {
	local := at.In(e.loc)
	hour := local.Hour()
	weekday := int(local.Weekday())

	bucket, err := e.store.GetPatternBucket(ctx, sensorID, hour, weekday)
	if err != nil {
		return nil, err
	}

	if bucket == nil || bucket.SampleCount < minBucketSamples {
		return &AnomalyCheck{}, nil
	}

	band := anomalyBandStdDevs * bucket.StdDeviation
	expected := &ExpectedRange{
		Low:  bucket.AvgFlowRate - band,
		High: bucket.AvgFlowRate + band,
	}

	return &AnomalyCheck{
		IsAnomaly: currentFlow < expected.Low || currentFlow > expected.High,
		Deviation: currentFlow - bucket.AvgFlowRate,
		Expected:  expected,
	}, nil
}
