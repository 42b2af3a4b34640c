// Package radio simulates LoRa link quality and supplies the shared random
// source the device simulators draw from.
package radio

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// Source is a goroutine-safe random number source.
type Source struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSource returns a source seeded from the runtime's entropy.
func NewSource() *Source {
	return &Source{rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

// NewSeededSource returns a reproducible source.
func NewSeededSource(seed1, seed2 uint64) *Source {
	return &Source{rng: rand.New(rand.NewPCG(seed1, seed2))}
}

// Uniform returns a value in [lo, hi).
func (s *Source) Uniform(lo, hi float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo + s.rng.Float64()*(hi-lo)
}

// Duration returns a duration in [lo, hi).
func (s *Source) Duration(lo, hi time.Duration) time.Duration {
	return time.Duration(s.Uniform(float64(lo), float64(hi)))
}

// Link is the uniform range link metrics are drawn from.
type Link struct {
	RSSIMin, RSSIMax float64 // dBm
	SNRMin, SNRMax   float64 // dB
}

var (
	SensorLink = Link{RSSIMin: -120, RSSIMax: -70, SNRMin: -10, SNRMax: 10}
	ValveLink  = Link{RSSIMin: -115, RSSIMax: -65, SNRMin: -12, SNRMax: 12}
)

// Sample draws an RSSI (whole dBm in [RSSIMin, RSSIMax), rounded down) and
// an SNR (one decimal).
func (l Link) Sample(src *Source) (rssi int, snr float64) {
	rssi = int(math.Floor(src.Uniform(l.RSSIMin, l.RSSIMax)))
	snr = math.Round(src.Uniform(l.SNRMin, l.SNRMax)*10) / 10
	return rssi, snr
}
