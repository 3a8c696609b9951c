package generator_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"pipewatch.dev/pipewatch/pkg/generator"
)

var _ = Describe("NewPipeSensor", func() {
	It("generates plausible sensor metadata", func() {
		sensor := generator.NewPipeSensor()
		Expect(sensor).NotTo(BeNil())
		Expect(sensor.SensorID).NotTo(BeEmpty())
		Expect(sensor.Name).To(HaveSuffix("-valve"))
		Expect(sensor.Location).NotTo(BeEmpty())
		Expect(sensor.PipeType).To(BeElementOf("main", "secondary", "branch", "service"))
		Expect(sensor.PositionX).To(BeNumerically(">=", 0))
		Expect(sensor.PositionX).To(BeNumerically("<=", 1000))
	})

	It("generates unique sensor IDs", func() {
		seen := map[string]bool{}
		for range 20 {
			sensor := generator.NewPipeSensor()
			Expect(sensor).NotTo(BeNil())
			Expect(seen[sensor.SensorID]).To(BeFalse())
			seen[sensor.SensorID] = true
		}
	})
})

var _ = Describe("FlowGenerator", func() {
	var (
		gen *generator.FlowGenerator
		now time.Time
	)

	BeforeEach(func() {
		gen = generator.NewFlowGenerator("pipe-1")
		now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	})

	It("produces non-negative flow and pressure", func() {
		for i := range 50 {
			at := now.Add(time.Duration(i) * time.Minute)
			Expect(gen.Flow(at)).To(BeNumerically(">=", 0))
			Expect(gen.Pressure(at)).To(BeNumerically(">=", 0))
		}
	})

	It("stays within the healthy baseline envelope", func() {
		// Baseline flow is 8-20 units/min, diurnal swing 30%, noise <1.5.
		flow := gen.Flow(now)
		Expect(flow).To(BeNumerically(">", 3))
		Expect(flow).To(BeNumerically("<", 30))

		// Baseline pressure is 55-70 PSI with small noise.
		pressure := gen.Pressure(now)
		Expect(pressure).To(BeNumerically(">", 50))
		Expect(pressure).To(BeNumerically("<", 75))
	})

	Describe("episodes", func() {
		It("starts with no episode", func() {
			Expect(gen.Episode(now)).To(Equal(generator.EpisodeNone))
		})

		It("raises flow and drops pressure during a leak", func() {
			healthyFlow := gen.Flow(now)
			healthyPressure := gen.Pressure(now)

			gen.StartEpisode(generator.EpisodeLeak, now.Add(10*time.Minute))

			Expect(gen.Flow(now)).To(BeNumerically(">", healthyFlow*1.5))
			Expect(gen.Pressure(now)).To(BeNumerically("<", healthyPressure*0.5))
		})

		It("collapses flow and raises pressure during a blockage", func() {
			healthyFlow := gen.Flow(now)
			healthyPressure := gen.Pressure(now)

			gen.StartEpisode(generator.EpisodeBlockage, now.Add(10*time.Minute))

			Expect(gen.Flow(now)).To(BeNumerically("<", healthyFlow*0.2))
			Expect(gen.Pressure(now)).To(BeNumerically(">", healthyPressure))
		})

		It("expires an episode after its deadline", func() {
			gen.StartEpisode(generator.EpisodeLeak, now.Add(10*time.Minute))
			Expect(gen.Episode(now)).To(Equal(generator.EpisodeLeak))
			Expect(gen.Episode(now.Add(11 * time.Minute))).To(Equal(generator.EpisodeNone))
		})
	})

	Describe("Reading", func() {
		It("returns scaled integer samples", func() {
			flow, pressure, temperature := gen.Reading(now)

			// Healthy flow 3-30 units/min scaled x100.
			Expect(flow).To(BeNumerically(">", 300))
			Expect(flow).To(BeNumerically("<", 3000))

			// Healthy pressure 50-75 PSI scaled x100.
			Expect(pressure).To(BeNumerically(">", 5000))
			Expect(pressure).To(BeNumerically("<", 7500))

			// Ground temperature band 12-18 Celsius scaled x100.
			Expect(temperature).To(BeNumerically(">=", 1200))
			Expect(temperature).To(BeNumerically("<=", 1800))
		})
	})
})
