package analysis_test

import (
	"context"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"pipewatch.dev/pipewatch/internal/analysis"
	"pipewatch.dev/pipewatch/internal/store"
)

var _ = Describe("HealthReport", func() {
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
	})

	It("returns an empty report for an empty network", func() {
		report, err := engine.HealthReport(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.GeneratedAt).To(Equal(now))
		Expect(report.Predictions).To(BeEmpty())
	})

	It("ranks sensors by risk, highest first", func() {
		for id, status := range map[string]store.SensorStatus{
			"pipe-calm":    store.StatusActive,
			"pipe-warn":    store.StatusWarning,
			"pipe-leaking": store.StatusLeak,
		} {
			Expect(mem.CreateSensor(ctx, &store.Sensor{
				SensorID: id,
				Status:   status,
			})).To(Succeed())
		}

		report, err := engine.HealthReport(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Predictions).To(HaveLen(3))
		Expect(report.Predictions[0].SensorID).To(Equal("pipe-leaking"))
		Expect(report.Predictions[0].RiskScore).To(Equal(50))
		Expect(report.Predictions[1].SensorID).To(Equal("pipe-warn"))
		Expect(report.Predictions[1].RiskScore).To(Equal(25))
		Expect(report.Predictions[2].SensorID).To(Equal("pipe-calm"))
		Expect(report.Predictions[2].RiskScore).To(Equal(0))
	})

	It("breaks risk ties by sensor ID", func() {
		for i := range 4 {
			Expect(mem.CreateSensor(ctx, &store.Sensor{
				SensorID: fmt.Sprintf("pipe-%d", i+1),
				Status:   store.StatusActive,
			})).To(Succeed())
		}

		report, err := engine.HealthReport(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Predictions).To(HaveLen(4))
		for i, p := range report.Predictions {
			Expect(p.SensorID).To(Equal(fmt.Sprintf("pipe-%d", i+1)))
		}
	})

	It("persists a score for every sensor it ranks", func() {
		for i := range 3 {
			Expect(mem.CreateSensor(ctx, &store.Sensor{
				SensorID: fmt.Sprintf("pipe-%d", i+1),
				Status:   store.StatusActive,
			})).To(Succeed())
		}

		_, err := engine.HealthReport(ctx)
		Expect(err).NotTo(HaveOccurred())

		scores, err := mem.GetRiskScores(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(scores).To(HaveLen(3))
	})
})

var _ = Describe("New", func() {
	It("rejects a nil config", func() {
		_, err := analysis.New(nil)
		Expect(err).To(HaveOccurred())
	})

	It("rejects a missing store", func() {
		_, err := analysis.New(&analysis.Config{Logger: testLogger()})
		Expect(err).To(HaveOccurred())
	})

	It("rejects a missing logger", func() {
		_, err := analysis.New(&analysis.Config{Store: store.NewMemory()})
		Expect(err).To(HaveOccurred())
	})

	It("defaults the clock and location", func() {
		engine, err := analysis.New(&analysis.Config{
			Store:  store.NewMemory(),
			Logger: testLogger(),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(engine).NotTo(BeNil())
	})
})
