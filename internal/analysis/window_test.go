package analysis_test

import (
	"context"
	"log/slog"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"pipewatch.dev/pipewatch/internal/analysis"
	"pipewatch.dev/pipewatch/internal/store"
)

// testLogger keeps engine output quiet unless something breaks.
func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// newTestEngine builds an engine over a fresh in-memory store with a fixed
// clock in UTC.
func newTestEngine(mem *store.Memory, now time.Time) *analysis.Engine {
	engine, err := analysis.New(&analysis.Config{
		Store:    mem,
		Logger:   testLogger(),
		Now:      func() time.Time { return now },
		Location: time.UTC,
	})
	Expect(err).NotTo(HaveOccurred())
	return engine
}

// addReadings appends count readings spaced a few seconds apart, ending
// just before now.
func addReadings(mem *store.Memory, sensorID string, now time.Time, count int, flow, pressure int64) {
	for i := range count {
		offset := time.Duration(count-i) * 10 * time.Second
		Expect(mem.CreateReading(context.Background(), &store.Reading{
			SensorID:  sensorID,
			FlowRate:  flow,
			Pressure:  pressure,
			Timestamp: now.Add(-offset),
		})).To(Succeed())
	}
}

var _ = Describe("AnalyzeWindow", func() {
	var (
		mem    *store.Memory
		engine *analysis.Engine
		now    time.Time
		ctx    context.Context
	)

	BeforeEach(func() {
		mem = store.NewMemory()
		now = time.Now().UTC()
		engine = newTestEngine(mem, now)
		ctx = context.Background()

		Expect(mem.CreateSensor(ctx, &store.Sensor{
			SensorID: "pipe-1",
			Name:     "inlet-valve",
			Location: "Pumping Station 3",
			PipeType: store.PipeSecondary,
			Status:   store.StatusActive,
		})).To(Succeed())
	})

	Context("input validation", func() {
		It("rejects a non-positive window", func() {
			_, err := engine.AnalyzeWindow(ctx, "pipe-1", 0)
			Expect(err).To(HaveOccurred())
		})
	})

	Context("with fewer than three readings", func() {
		It("returns a low-confidence normal result", func() {
			addReadings(mem, "pipe-1", now, 2, 1000, 6000)

			result, err := engine.AnalyzeWindow(ctx, "pipe-1", 5*time.Minute)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Status).To(Equal(analysis.WindowNormal))
			Expect(result.Confidence).To(Equal(50))
			Expect(result.Factors).To(Equal([]string{analysis.FactorInsufficientData}))
		})

		It("does not touch the sensor status", func() {
			result, err := engine.AnalyzeWindow(ctx, "pipe-1", 5*time.Minute)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Status).To(Equal(analysis.WindowNormal))

			sensor, err := mem.GetSensor(ctx, "pipe-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(sensor.Status).To(Equal(store.StatusActive))
		})
	})

	Context("with steady healthy readings", func() {
		It("classifies normal", func() {
			addReadings(mem, "pipe-1", now, 10, 1000, 6000)

			result, err := engine.AnalyzeWindow(ctx, "pipe-1", 5*time.Minute)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Status).To(Equal(analysis.WindowNormal))
			Expect(result.Severity).To(Equal(store.SeverityLow))
			Expect(result.Factors).To(BeEmpty())
			Expect(mem.Alerts()).To(BeEmpty())
		})
	})

	Context("with unstable flow", func() {
		It("classifies warning with the variance factor", func() {
			// Alternate far around the mean so stddev > 0.3 x mean.
			for i := range 10 {
				flow := int64(200)
				if i%2 == 0 {
					flow = 1800
				}
				Expect(mem.CreateReading(ctx, &store.Reading{
					SensorID:  "pipe-1",
					FlowRate:  flow,
					Pressure:  6000,
					Timestamp: now.Add(-time.Duration(10-i) * 10 * time.Second),
				})).To(Succeed())
			}

			result, err := engine.AnalyzeWindow(ctx, "pipe-1", 5*time.Minute)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Status).To(Equal(analysis.WindowWarning))
			Expect(result.Severity).To(Equal(store.SeverityMedium))
			Expect(result.Factors).To(ContainElement(analysis.FactorHighFlowVariance))
		})
	})

	Context("with mean pressure at 18 PSI", func() {
		BeforeEach(func() {
			addReadings(mem, "pipe-1", now, 5, 1000, 1800)
		})

		It("classifies a high-severity leak at confidence 85", func() {
			result, err := engine.AnalyzeWindow(ctx, "pipe-1", 5*time.Minute)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Status).To(Equal(analysis.WindowLeak))
			Expect(result.Severity).To(Equal(store.SeverityHigh))
			Expect(result.Confidence).To(Equal(85))
			Expect(result.Factors).To(ContainElement(analysis.FactorLowPressure))
		})

		It("escalates the sensor and raises exactly one alert across repeated calls", func() {
			_, err := engine.AnalyzeWindow(ctx, "pipe-1", 5*time.Minute)
			Expect(err).NotTo(HaveOccurred())

			sensor, err := mem.GetSensor(ctx, "pipe-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(sensor.Status).To(Equal(store.StatusLeak))

			_, err = engine.AnalyzeWindow(ctx, "pipe-1", 5*time.Minute)
			Expect(err).NotTo(HaveOccurred())

			alerts := mem.Alerts()
			Expect(alerts).To(HaveLen(1))
			Expect(alerts[0].Type).To(Equal(store.AlertLeak))
			Expect(alerts[0].SensorID).To(Equal("pipe-1"))
		})
	})

	Context("with trickle flow against high pressure", func() {
		It("classifies a possible blockage", func() {
			addReadings(mem, "pipe-1", now, 6, 50, 6000)

			result, err := engine.AnalyzeWindow(ctx, "pipe-1", 5*time.Minute)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Status).To(Equal(analysis.WindowBlockage))
			Expect(result.Severity).To(Equal(store.SeverityMedium))
			Expect(result.Confidence).To(Equal(75))
			Expect(result.Factors).To(ContainElement(analysis.FactorPossibleBlockage))

			sensor, err := mem.GetSensor(ctx, "pipe-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(sensor.Status).To(Equal(store.StatusWarning))

			alerts := mem.Alerts()
			Expect(alerts).To(HaveLen(1))
			Expect(alerts[0].Type).To(Equal(store.AlertBlockage))
		})
	})

	Context("with a warm pattern baseline", func() {
		BeforeEach(func() {
			local := now.In(time.UTC)
			Expect(mem.UpsertPatternBucket(ctx, &store.FlowPattern{
				SensorID:     "pipe-1",
				HourOfDay:    local.Hour(),
				DayOfWeek:    int(local.Weekday()),
				AvgFlowRate:  1000,
				MinFlowRate:  980,
				MaxFlowRate:  1020,
				StdDeviation: 10,
				SampleCount:  50,
			})).To(Succeed())
		})

		It("escalates normal to warning on pattern deviation", func() {
			addReadings(mem, "pipe-1", now, 6, 2000, 6000)

			result, err := engine.AnalyzeWindow(ctx, "pipe-1", 5*time.Minute)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Status).To(Equal(analysis.WindowWarning))
			Expect(result.Severity).To(Equal(store.SeverityMedium))
			Expect(result.Factors).To(ContainElement(analysis.FactorPatternDeviation))
			Expect(result.Confidence).To(Equal(80))
		})

		It("caps confidence at 95 when deviation stacks on a leak", func() {
			addReadings(mem, "pipe-1", now, 6, 2000, 1800)

			result, err := engine.AnalyzeWindow(ctx, "pipe-1", 5*time.Minute)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Status).To(Equal(analysis.WindowLeak))
			Expect(result.Confidence).To(BeNumerically("<=", 95))
			Expect(result.Factors).To(ContainElements(analysis.FactorLowPressure, analysis.FactorPatternDeviation))
		})
	})

	Context("state machine", func() {
		It("never downgrades a leak back to active on a normal window", func() {
			Expect(mem.SetSensorStatus(ctx, "pipe-1", store.StatusLeak)).To(Succeed())
			addReadings(mem, "pipe-1", now, 10, 1000, 6000)

			result, err := engine.AnalyzeWindow(ctx, "pipe-1", 5*time.Minute)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Status).To(Equal(analysis.WindowNormal))

			sensor, err := mem.GetSensor(ctx, "pipe-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(sensor.Status).To(Equal(store.StatusLeak))
		})

		It("raises no blockage alert for a sensor already in warning", func() {
			Expect(mem.SetSensorStatus(ctx, "pipe-1", store.StatusWarning)).To(Succeed())
			addReadings(mem, "pipe-1", now, 6, 50, 6000)

			result, err := engine.AnalyzeWindow(ctx, "pipe-1", 5*time.Minute)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Status).To(Equal(analysis.WindowBlockage))

			sensor, err := mem.GetSensor(ctx, "pipe-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(sensor.Status).To(Equal(store.StatusWarning))
			Expect(mem.Alerts()).To(BeEmpty())
		})

		It("leaves offline sensors alone", func() {
			Expect(mem.SetSensorStatus(ctx, "pipe-1", store.StatusOffline)).To(Succeed())
			addReadings(mem, "pipe-1", now, 5, 1000, 1800)

			_, err := engine.AnalyzeWindow(ctx, "pipe-1", 5*time.Minute)
			Expect(err).NotTo(HaveOccurred())

			sensor, err := mem.GetSensor(ctx, "pipe-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(sensor.Status).To(Equal(store.StatusOffline))
			Expect(mem.Alerts()).To(BeEmpty())
		})

		It("returns a result for an unregistered sensor without side effects", func() {
			addReadings(mem, "ghost", now, 5, 1000, 1800)

			result, err := engine.AnalyzeWindow(ctx, "ghost", 5*time.Minute)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Status).To(Equal(analysis.WindowLeak))
			Expect(mem.Alerts()).To(BeEmpty())
		})
	})
})

var _ = Describe("Manual state transitions", func() {
	var (
		mem    *store.Memory
		engine *analysis.Engine
		ctx    context.Context
	)

	BeforeEach(func() {
		mem = store.NewMemory()
		engine = newTestEngine(mem, time.Now().UTC())
		ctx = context.Background()

		Expect(mem.CreateSensor(ctx, &store.Sensor{
			SensorID: "pipe-1",
			Location: "Main Street",
			Status:   store.StatusActive,
		})).To(Succeed())
	})

	Describe("TriggerLeak", func() {
		It("forces the leak state and raises a critical alert", func() {
			Expect(engine.TriggerLeak(ctx, "pipe-1")).To(Succeed())

			sensor, err := mem.GetSensor(ctx, "pipe-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(sensor.Status).To(Equal(store.StatusLeak))

			alerts := mem.Alerts()
			Expect(alerts).To(HaveLen(1))
			Expect(alerts[0].Severity).To(Equal(store.SeverityCritical))
			Expect(alerts[0].Type).To(Equal(store.AlertLeak))
		})

		It("rejects unknown sensors", func() {
			Expect(engine.TriggerLeak(ctx, "ghost")).To(MatchError(analysis.ErrUnknownSensor))
		})
	})

	Describe("ResetSensor", func() {
		It("returns any state to active", func() {
			Expect(mem.SetSensorStatus(ctx, "pipe-1", store.StatusLeak)).To(Succeed())
			Expect(engine.ResetSensor(ctx, "pipe-1")).To(Succeed())

			sensor, err := mem.GetSensor(ctx, "pipe-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(sensor.Status).To(Equal(store.StatusActive))
		})

		It("rejects unknown sensors", func() {
			Expect(engine.ResetSensor(ctx, "ghost")).To(MatchError(analysis.ErrUnknownSensor))
		})
	})
})
