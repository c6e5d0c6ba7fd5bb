// Package rate implements the Rate Engine: converting successive raw
// perf counter readings into percentages, MHz, and watts, with the
// boundary rules spec.md requires for the very first sample and for
// samples taken closer together than a millisecond.
package rate

import (
	"math"
	"sync"
	"time"
)

// MinElapsed is the smallest wall-clock gap between two samples the Rate
// Engine will divide by. Below this, a division would amplify scheduler
// jitter into meaningless spikes, so the caller is told to repeat its
// previous computed values instead of producing a new one.
const MinElapsed = time.Millisecond

// Window tracks elapsed wall-clock time between successive samples.
type Window struct {
	mu      sync.Mutex
	last    time.Time
	hasLast bool
}

// Advance returns the elapsed duration since the previous Advance call.
// ok is false on the very first call (no baseline yet), which records
// now as the baseline, or when elapsed is below MinElapsed; in that
// second case the window's internal clock is NOT updated, so a caller
// that skips this sample will still measure a full interval next time
// rather than compounding small gaps.
func (w *Window) Advance(now time.Time) (elapsed time.Duration, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.hasLast {
		w.last = now
		w.hasLast = true
		return 0, false
	}

	elapsed = now.Sub(w.last)
	if elapsed < MinElapsed {
		return elapsed, false
	}
	w.last = now
	return elapsed, true
}

// Counter pairs a running raw perf counter value with the last value it
// was sampled at, producing a clamped non-negative delta each time.
type Counter struct {
	last uint64
	have bool
}

// Sample records a new raw reading and returns the delta since the
// previous one. The first call on a fresh Counter returns 0 and simply
// establishes the baseline — there is no previous reading to diff
// against, so spec.md's first-read-is-zero rule applies directly.
func (c *Counter) Sample(raw uint64) uint64 {
	if !c.have {
		c.last = raw
		c.have = true
		return 0
	}
	delta := Delta(raw, c.last)
	c.last = raw
	return delta
}

// Delta computes current-previous, clamped to 0 when the counter
// appears to have gone backwards (a driver reload or counter reset)
// rather than underflowing to a huge unsigned value.
func Delta(current, previous uint64) uint64 {
	if current < previous {
		return 0
	}
	return current - previous
}

// Percent converts an event delta accumulated over elapsedNs of
// wall-clock time into a percentage, clamped to [0, 100].
func Percent(delta, elapsedNs uint64) float64 {
	if elapsedNs == 0 {
		return 0
	}
	pct := float64(delta) / float64(elapsedNs) * 100.0
	if pct > 100.0 {
		return 100.0
	}
	if pct < 0.0 {
		return 0.0
	}
	return pct
}

// MHz converts a frequency-accumulator delta (the i915/xe PMU's
// actual/requested frequency events accumulate MHz*ns) into an average
// MHz over the sampling window, applying the event's sysfs-reported
// scale factor and rounding to the nearest integer rather than
// truncating. A zero scale is treated as the default of 1.0.
func MHz(delta, elapsedNs uint64, scale float64) uint32 {
	if elapsedNs == 0 {
		return 0
	}
	if scale == 0 {
		scale = 1.0
	}
	mhz := float64(delta) / float64(elapsedNs) * scale
	return uint32(math.Round(mhz))
}

// Watts converts a RAPL energy-accumulator delta, in microjoules, over
// elapsedNs of wall-clock time into average watts.
func Watts(deltaMicrojoules, elapsedNs uint64) float64 {
	if elapsedNs == 0 {
		return 0
	}
	seconds := float64(elapsedNs) / 1e9
	joules := float64(deltaMicrojoules) / 1e6
	return joules / seconds
}
