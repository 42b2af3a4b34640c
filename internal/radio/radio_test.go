package radio

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLinkSampleWithinRange(t *testing.T) {
	src := NewSeededSource(1, 2)
	for _, link := range []Link{SensorLink, ValveLink} {
		for i := 0; i < 1000; i++ {
			rssi, snr := link.Sample(src)
			assert.GreaterOrEqual(t, float64(rssi), link.RSSIMin)
			assert.LessOrEqual(t, float64(rssi), link.RSSIMax)
			assert.GreaterOrEqual(t, snr, link.SNRMin)
			assert.LessOrEqual(t, snr, link.SNRMax)
			assert.InDelta(t, snr, math.Round(snr*10)/10, 1e-9)
		}
	}
}

func TestLinkSampleCoversWholeDBmRange(t *testing.T) {
	src := NewSeededSource(5, 6)
	seen := map[int]int{}
	for i := 0; i < 5000; i++ {
		rssi, _ := SensorLink.Sample(src)
		seen[rssi]++
	}
	assert.Len(t, seen, 50)
	assert.Positive(t, seen[-120], "lower bound is reachable")
	assert.Positive(t, seen[-71])
	assert.Zero(t, seen[-70], "upper bound is exclusive")
}

func TestDurationRange(t *testing.T) {
	src := NewSeededSource(3, 4)
	for i := 0; i < 500; i++ {
		d := src.Duration(50*time.Millisecond, 250*time.Millisecond)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.Less(t, d, 250*time.Millisecond)
	}
}

func TestSourceConcurrentUse(t *testing.T) {
	src := NewSource()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				v := src.Uniform(-1, 1)
				if v < -1 || v >= 1 {
					t.Errorf("value %v out of range", v)
				}
			}
		}()
	}
	wg.Wait()
}
