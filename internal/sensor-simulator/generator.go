package sensor_simulator

import (
	"math"

	"github.com/LeonardoBeccarini/sdcc_fleetsim/internal/radio"
)

// ====== Tunables ======
const (
	// random walk step per tick
	tempStepC     = 0.4
	humidityStep  = 1.0
	minTempC      = 10.0
	maxTempC      = 40.0
	minHumidity   = 10.0
	maxHumidity   = 90.0
	seedTempC     = 22.0
	seedHumidity  = 40.0
	seedTempJit   = 2.0
	seedHumJitter = 3.0
)

// Environment is the soil temperature/humidity seen by one sensor.
// It evolves by a bounded random walk, one step per tick.
type Environment struct {
	TemperatureC float64
	HumidityPct  float64
}

// SeedEnvironment returns a starting environment around 22°C / 40%.
func SeedEnvironment(src *radio.Source) Environment {
	return Environment{
		TemperatureC: seedTempC + src.Uniform(-seedTempJit, seedTempJit),
		HumidityPct:  seedHumidity + src.Uniform(-seedHumJitter, seedHumJitter),
	}
}

// Step perturbs the environment by at most ±0.4°C and ±1 pt humidity and
// clamps it to the plausible field range.
func (e *Environment) Step(src *radio.Source) {
	e.TemperatureC = clamp(e.TemperatureC+src.Uniform(-tempStepC, tempStepC), minTempC, maxTempC)
	e.HumidityPct = clamp(e.HumidityPct+src.Uniform(-humidityStep, humidityStep), minHumidity, maxHumidity)
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
