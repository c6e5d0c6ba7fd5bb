package rate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeltaClampsOnWraparound(t *testing.T) {
	assert.Equal(t, uint64(5), Delta(10, 5))
	assert.Equal(t, uint64(0), Delta(5, 10))
	assert.Equal(t, uint64(0), Delta(0, 0))
}

func TestCounterFirstSampleIsZero(t *testing.T) {
	var c Counter
	assert.Equal(t, uint64(0), c.Sample(1000))
	assert.Equal(t, uint64(500), c.Sample(1500))
	assert.Equal(t, uint64(0), c.Sample(1400)) // counter went backwards
}

func TestPercentClampsToHundred(t *testing.T) {
	assert.Equal(t, 100.0, Percent(2_000_000_000, 1_000_000_000))
	assert.InDelta(t, 50.0, Percent(500_000_000, 1_000_000_000), 0.0001)
	assert.Equal(t, 0.0, Percent(100, 0))
}

func TestMHzFromDelta(t *testing.T) {
	// 1200 MHz held for 1 second of accumulated MHz*ns.
	assert.Equal(t, uint32(1200), MHz(1200*1_000_000_000, 1_000_000_000, 1.0))
	assert.Equal(t, uint32(0), MHz(100, 0, 1.0))

	// Rounds to the nearest integer rather than truncating.
	assert.Equal(t, uint32(1201), MHz(1_200_500_000_000, 1_000_000_000, 1.0))
	assert.Equal(t, uint32(1200), MHz(1_200_400_000_000, 1_000_000_000, 1.0))

	// Applies the PMU event's scale factor.
	assert.Equal(t, uint32(1200), MHz(1_200_000, 1_000_000_000, 1_000_000.0))

	// A zero scale (unset .scale sidecar file) defaults to 1.0.
	assert.Equal(t, uint32(1200), MHz(1200*1_000_000_000, 1_000_000_000, 0))
}

func TestWattsFromMicrojoules(t *testing.T) {
	// 15 joules over 1 second is 15 watts.
	assert.InDelta(t, 15.0, Watts(15_000_000, 1_000_000_000), 0.0001)
	assert.Equal(t, 0.0, Watts(100, 0))
}

func TestWindowFirstAdvanceNotOK(t *testing.T) {
	var w Window
	now := time.Now()
	_, ok := w.Advance(now)
	assert.False(t, ok)
}

func TestWindowBelowMinElapsedNotOK(t *testing.T) {
	var w Window
	now := time.Now()
	w.Advance(now)
	_, ok := w.Advance(now.Add(500 * time.Microsecond))
	assert.False(t, ok)
}

func TestWindowAdvancesAfterMinElapsed(t *testing.T) {
	var w Window
	start := time.Now()
	w.Advance(start)
	elapsed, ok := w.Advance(start.Add(100 * time.Millisecond))
	assert.True(t, ok)
	assert.Equal(t, 100*time.Millisecond, elapsed)
}

func TestWindowSkippedAdvanceDoesNotCompoundNextInterval(t *testing.T) {
	var w Window
	start := time.Now()
	w.Advance(start)
	w.Advance(start.Add(200 * time.Microsecond)) // too close, not accepted
	elapsed, ok := w.Advance(start.Add(50 * time.Millisecond))
	assert.True(t, ok)
	assert.Equal(t, 50*time.Millisecond, elapsed)
}
