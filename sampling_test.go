package igpustats

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeSampler struct {
	mu     sync.Mutex
	reads  int
	failOn int // if > 0, the read at this count returns an error instead
}

func (f *fakeSampler) ReadStats() (GpuStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.failOn > 0 && f.reads == f.failOn {
		return GpuStats{}, errors.New("transient read failure")
	}
	return GpuStats{Timestamp: time.Now()}, nil
}

func (f *fakeSampler) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

func TestStartSamplingDeliversCallbacksOnInterval(t *testing.T) {
	src := &fakeSampler{}

	var mu sync.Mutex
	var callbacks int
	handle := StartSampling(src, 20*time.Millisecond, func(stats GpuStats, err error) {
		mu.Lock()
		callbacks++
		mu.Unlock()
	})

	time.Sleep(220 * time.Millisecond)
	handle.Stop()

	mu.Lock()
	n := callbacks
	mu.Unlock()

	// ~10 ticks expected over 220ms at a 20ms interval; allow generous slack
	// for scheduler jitter without making the test flaky.
	assert.GreaterOrEqual(t, n, 5)
	assert.LessOrEqual(t, n, 15)
}

func TestStartSamplingContinuesAfterTransientError(t *testing.T) {
	src := &fakeSampler{failOn: 2}

	var mu sync.Mutex
	var sawError bool
	var successesAfterError int
	handle := StartSampling(src, 10*time.Millisecond, func(stats GpuStats, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			sawError = true
			return
		}
		if sawError {
			successesAfterError++
		}
	})

	time.Sleep(150 * time.Millisecond)
	handle.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, sawError, "expected the injected error to be delivered to sink")
	assert.Greater(t, successesAfterError, 0, "loop must keep sampling after a transient error")
}

func TestSamplingHandleStopIsIdempotent(t *testing.T) {
	src := &fakeSampler{}
	handle := StartSampling(src, 10*time.Millisecond, func(GpuStats, error) {})
	handle.Stop()
	assert.NotPanics(t, func() { handle.Stop() })
}
