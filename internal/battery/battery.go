// Package battery models the Li-ion cell of a field device.
package battery

import "math"

const (
	MinVoltage = 3.2
	MaxVoltage = 4.2
)

// Battery holds a single cell voltage, always within [MinVoltage, MaxVoltage].
// It is not safe for concurrent use; the owning device serializes access.
type Battery struct {
	v float64
}

// New returns a battery at the given voltage, clamped to the valid range.
func New(v float64) *Battery {
	return &Battery{v: clamp(v)}
}

// Drain lowers the voltage by dv.
func (b *Battery) Drain(dv float64) {
	b.v = clamp(b.v - dv)
}

// Charge raises the voltage by dv (solar harvesting).
func (b *Battery) Charge(dv float64) {
	b.v = clamp(b.v + dv)
}

// Read returns the voltage rounded to millivolts.
func (b *Battery) Read() float64 {
	return math.Round(b.v*1000) / 1000
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return MinVoltage
	}
	return math.Max(MinVoltage, math.Min(MaxVoltage, v))
}
