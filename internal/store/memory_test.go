package store_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"pipewatch.dev/pipewatch/internal/store"
)

var _ = Describe("Memory", func() {
	var (
		mem *store.Memory
		ctx context.Context

		base = time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	)

	BeforeEach(func() {
		mem = store.NewMemory()
		ctx = context.Background()
	})

	addReading := func(sensorID string, at time.Time, flow, pressure int64) {
		Expect(mem.CreateReading(ctx, &store.Reading{
			SensorID:  sensorID,
			FlowRate:  flow,
			Pressure:  pressure,
			Timestamp: at,
		})).To(Succeed())
	}

	Describe("readings", func() {
		It("returns range queries in ascending timestamp order", func() {
			// Insert out of order on purpose.
			addReading("pipe-1", base.Add(2*time.Minute), 1200, 6000)
			addReading("pipe-1", base, 1000, 6000)
			addReading("pipe-1", base.Add(time.Minute), 1100, 6000)

			readings, err := mem.GetReadingsInRange(ctx, "pipe-1", base, base.Add(5*time.Minute))
			Expect(err).NotTo(HaveOccurred())
			Expect(readings).To(HaveLen(3))
			Expect(readings[0].FlowRate).To(Equal(int64(1000)))
			Expect(readings[1].FlowRate).To(Equal(int64(1100)))
			Expect(readings[2].FlowRate).To(Equal(int64(1200)))
		})

		It("treats the range as inclusive on both ends", func() {
			addReading("pipe-1", base, 1000, 6000)
			addReading("pipe-1", base.Add(time.Minute), 1100, 6000)

			readings, err := mem.GetReadingsInRange(ctx, "pipe-1", base, base.Add(time.Minute))
			Expect(err).NotTo(HaveOccurred())
			Expect(readings).To(HaveLen(2))
		})

		It("returns recent readings newest first, bounded by limit", func() {
			for i := range 5 {
				addReading("pipe-1", base.Add(time.Duration(i)*time.Minute), int64(1000+i), 6000)
			}

			readings, err := mem.GetRecentReadings(ctx, "pipe-1", 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(readings).To(HaveLen(3))
			Expect(readings[0].FlowRate).To(Equal(int64(1004)))
			Expect(readings[1].FlowRate).To(Equal(int64(1003)))
			Expect(readings[2].FlowRate).To(Equal(int64(1002)))
		})

		It("keeps sensors isolated from each other", func() {
			addReading("pipe-1", base, 1000, 6000)
			addReading("pipe-2", base, 2000, 6000)

			readings, err := mem.GetRecentReadings(ctx, "pipe-1", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(readings).To(HaveLen(1))
			Expect(readings[0].FlowRate).To(Equal(int64(1000)))
		})
	})

	Describe("aggregated flow", func() {
		It("summarizes only readings inside the trailing window", func() {
			now := time.Now().UTC()
			addReading("pipe-1", now.Add(-time.Minute), 1000, 6000)
			addReading("pipe-1", now.Add(-30*time.Second), 2000, 4000)
			addReading("pipe-1", now.Add(-time.Hour), 99999, 9999)

			aggregates, err := mem.GetAggregatedFlow(ctx, 5*time.Minute)
			Expect(err).NotTo(HaveOccurred())
			Expect(aggregates).To(HaveLen(1))
			Expect(aggregates[0].SensorID).To(Equal("pipe-1"))
			Expect(aggregates[0].AvgFlow).To(BeNumerically("~", 1500, 0.001))
			Expect(aggregates[0].MinFlow).To(Equal(int64(1000)))
			Expect(aggregates[0].MaxFlow).To(Equal(int64(2000)))
			Expect(aggregates[0].AvgPressure).To(BeNumerically("~", 5000, 0.001))
			Expect(aggregates[0].Count).To(Equal(int64(2)))
		})

		It("omits sensors with no readings in the window", func() {
			now := time.Now().UTC()
			addReading("pipe-1", now, 1000, 6000)
			addReading("pipe-2", now.Add(-time.Hour), 1000, 6000)

			aggregates, err := mem.GetAggregatedFlow(ctx, 5*time.Minute)
			Expect(err).NotTo(HaveOccurred())
			Expect(aggregates).To(HaveLen(1))
			Expect(aggregates[0].SensorID).To(Equal("pipe-1"))
		})
	})

	Describe("pattern buckets", func() {
		bucket := func(samples int64) *store.FlowPattern {
			return &store.FlowPattern{
				SensorID:     "pipe-1",
				HourOfDay:    14,
				DayOfWeek:    2,
				AvgFlowRate:  1000,
				MinFlowRate:  900,
				MaxFlowRate:  1100,
				StdDeviation: 50,
				SampleCount:  samples,
			}
		}

		It("returns nil for an unknown bucket", func() {
			got, err := mem.GetPatternBucket(ctx, "pipe-1", 14, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeNil())
		})

		It("creates then merges, accumulating the sample count", func() {
			Expect(mem.UpsertPatternBucket(ctx, bucket(10))).To(Succeed())

			update := bucket(5)
			update.AvgFlowRate = 1200
			Expect(mem.UpsertPatternBucket(ctx, update)).To(Succeed())

			got, err := mem.GetPatternBucket(ctx, "pipe-1", 14, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).NotTo(BeNil())
			Expect(got.AvgFlowRate).To(BeNumerically("~", 1200, 0.001))
			Expect(got.SampleCount).To(Equal(int64(15)))
		})

		It("keys buckets by hour and weekday independently", func() {
			Expect(mem.UpsertPatternBucket(ctx, bucket(10))).To(Succeed())

			other := bucket(10)
			other.HourOfDay = 15
			Expect(mem.UpsertPatternBucket(ctx, other)).To(Succeed())

			got, err := mem.GetPatternBucket(ctx, "pipe-1", 14, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.SampleCount).To(Equal(int64(10)))
		})
	})

	Describe("risk scores", func() {
		It("keeps one score per sensor, ranked highest first", func() {
			Expect(mem.UpsertRiskScore(ctx, &store.RiskScore{SensorID: "pipe-1", RiskScore: 20})).To(Succeed())
			Expect(mem.UpsertRiskScore(ctx, &store.RiskScore{SensorID: "pipe-2", RiskScore: 80})).To(Succeed())
			Expect(mem.UpsertRiskScore(ctx, &store.RiskScore{SensorID: "pipe-1", RiskScore: 40})).To(Succeed())

			scores, err := mem.GetRiskScores(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(scores).To(HaveLen(2))
			Expect(scores[0].SensorID).To(Equal("pipe-2"))
			Expect(scores[1].SensorID).To(Equal("pipe-1"))
			Expect(scores[1].RiskScore).To(Equal(40))
		})
	})

	Describe("sensors", func() {
		It("defaults new sensors to active", func() {
			Expect(mem.CreateSensor(ctx, &store.Sensor{SensorID: "pipe-1"})).To(Succeed())

			sensor, err := mem.GetSensor(ctx, "pipe-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(sensor.Status).To(Equal(store.StatusActive))
		})

		It("returns nil for unknown sensors", func() {
			sensor, err := mem.GetSensor(ctx, "ghost")
			Expect(err).NotTo(HaveOccurred())
			Expect(sensor).To(BeNil())
		})

		It("lists sensors in stable order", func() {
			Expect(mem.CreateSensor(ctx, &store.Sensor{SensorID: "pipe-2"})).To(Succeed())
			Expect(mem.CreateSensor(ctx, &store.Sensor{SensorID: "pipe-1"})).To(Succeed())

			sensors, err := mem.ListSensors(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(sensors).To(HaveLen(2))
			Expect(sensors[0].SensorID).To(Equal("pipe-1"))
			Expect(sensors[1].SensorID).To(Equal("pipe-2"))
		})

		It("updates status in place", func() {
			Expect(mem.CreateSensor(ctx, &store.Sensor{SensorID: "pipe-1"})).To(Succeed())
			Expect(mem.SetSensorStatus(ctx, "pipe-1", store.StatusLeak)).To(Succeed())

			sensor, err := mem.GetSensor(ctx, "pipe-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(sensor.Status).To(Equal(store.StatusLeak))
		})

		It("does not leak internal state through returned copies", func() {
			Expect(mem.CreateSensor(ctx, &store.Sensor{SensorID: "pipe-1"})).To(Succeed())

			sensor, err := mem.GetSensor(ctx, "pipe-1")
			Expect(err).NotTo(HaveOccurred())
			sensor.Status = store.StatusOffline

			fresh, err := mem.GetSensor(ctx, "pipe-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(fresh.Status).To(Equal(store.StatusActive))
		})
	})

	Describe("alerts", func() {
		It("records alerts oldest first", func() {
			Expect(mem.CreateAlert(ctx, &store.Alert{SensorID: "pipe-1", Type: store.AlertLeak})).To(Succeed())
			Expect(mem.CreateAlert(ctx, &store.Alert{SensorID: "pipe-2", Type: store.AlertBlockage})).To(Succeed())

			alerts := mem.Alerts()
			Expect(alerts).To(HaveLen(2))
			Expect(alerts[0].SensorID).To(Equal("pipe-1"))
			Expect(alerts[1].SensorID).To(Equal("pipe-2"))
		})
	})
})
