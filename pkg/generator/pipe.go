// Package generator produces synthetic pipe sensors and flow/pressure
// waveforms for the simulator and for test fixtures.
package generator

import (
	"math"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v7"
)

// PipeSensor is a synthetic sensor with fake but plausible metadata.
type PipeSensor struct {
	SensorID  string  `fake:"{uuid}"`
	Name      string  `fake:"{word}-valve"`
	Location  string  `fake:"{street}, {city}"`
	PositionX float64 `fake:"{number:0,1000}"`
	PositionY float64 `fake:"{number:0,1000}"`
	PipeType  string
}

var pipeTypes = []string{"main", "secondary", "branch", "service"}

// NewPipeSensor builds one synthetic sensor.
// Note: uses math/rand, which is acceptable for simulation data.
func NewPipeSensor() *PipeSensor {
	var sensor PipeSensor
	if err := gofakeit.Struct(&sensor); err != nil {
		return nil
	}
	sensor.PipeType = pipeTypes[rand.Intn(len(pipeTypes))] // #nosec G404 - simulation data
	return &sensor
}

// Episode is an injected fault the waveform is currently reproducing.
type Episode int

// Episodes.
const (
	EpisodeNone Episode = iota
	EpisodeLeak
	EpisodeBlockage
)

// FlowGenerator produces a correlated flow/pressure waveform for one
// sensor: a diurnal demand cycle plus noise, with optional leak or blockage
// episodes that shift flow and pressure in opposite directions the way a
// real fault would.
type FlowGenerator struct {
	sensorID         string
	baselineFlow     float64 // units/min
	baselinePressure float64 // PSI
	noise            float64
	episode          Episode
	episodeUntil     time.Time
}

// NewFlowGenerator creates a generator with a randomized baseline.
// Note: uses math/rand, which is acceptable for simulation data.
func NewFlowGenerator(sensorID string) *FlowGenerator {
	return &FlowGenerator{
		sensorID:         sensorID,
		baselineFlow:     8.0 + rand.Float64()*12,  // 8-20 units/min
		baselinePressure: 55.0 + rand.Float64()*15, // 55-70 PSI
		noise:            0.5 + rand.Float64(),
	}
}

// StartEpisode forces the waveform into a fault episode for the duration.
func (g *FlowGenerator) StartEpisode(e Episode, until time.Time) {
	g.episode = e
	g.episodeUntil = until
}

// Episode returns the currently active episode, expiring it when due.
func (g *FlowGenerator) Episode(now time.Time) Episode {
	if g.episode != EpisodeNone && now.After(g.episodeUntil) {
		g.episode = EpisodeNone
	}
	return g.episode
}

// Flow returns the current flow rate in units/min.
func (g *FlowGenerator) Flow(t time.Time) float64 {
	hour := float64(t.Hour())

	// Demand peaks in the morning and early evening.
	dailyCycle := 0.3 * g.baselineFlow * math.Sin((hour-6)*math.Pi/12)

	noise := (rand.Float64() - 0.5) * g.noise

	flow := g.baselineFlow + dailyCycle + noise

	switch g.Episode(t) {
	case EpisodeLeak:
		flow *= 2.5 + rand.Float64()
	case EpisodeBlockage:
		flow *= 0.05
	}

	return math.Max(0, flow)
}

// Pressure returns the current pressure in PSI, correlated with the
// active episode.
func (g *FlowGenerator) Pressure(t time.Time) float64 {
	noise := (rand.Float64() - 0.5) * g.noise * 2

	pressure := g.baselinePressure + noise

	switch g.Episode(t) {
	case EpisodeLeak:
		pressure *= 0.3
	case EpisodeBlockage:
		pressure *= 1.2
	}

	return math.Max(0, pressure)
}

// Reading returns the scaled-integer sample for the instant: flow in
// units/min x100, pressure in PSI x100, temperature in Celsius x100.
func (g *FlowGenerator) Reading(t time.Time) (flowRate, pressure, temperature int64) {
	flowRate = int64(math.Round(g.Flow(t) * 100))
	pressure = int64(math.Round(g.Pressure(t) * 100))
	temperature = int64(math.Round((12 + rand.Float64()*6) * 100)) // ground temperature band
	return flowRate, pressure, temperature
}
