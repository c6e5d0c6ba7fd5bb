package igpustats

import (
	"sync"
	"time"
)

// Sampler is anything that can be sampled for a GpuStats snapshot, the
// same contract ReadStats implements on *IntelGpu. StartSampling takes
// an interface rather than *IntelGpu directly so tests can drive the
// worker loop against a fake.
type Sampler interface {
	ReadStats() (GpuStats, error)
}

// SamplingHandle controls a background sampling loop started by
// StartSampling.
type SamplingHandle struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// StartSampling runs source.ReadStats on a fixed interval in its own
// goroutine, delivering every result — success or failure — to sink. A
// transient read failure is reported to sink and the loop keeps
// running rather than exiting; only Stop ends it. This matters because
// a single dropped perf read (a momentary EAGAIN, a counter group
// mid-recreate) should never silently end telemetry collection for the
// life of the process.
func StartSampling(source Sampler, interval time.Duration, sink func(GpuStats, error)) *SamplingHandle {
	h := &SamplingHandle{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	go func() {
		defer close(h.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-h.stop:
				return
			case <-ticker.C:
				stats, err := source.ReadStats()
				sink(stats, err)
			}
		}
	}()

	return h
}

// Stop ends the sampling loop and blocks until its goroutine has
// returned. Stop is idempotent and safe to call more than once.
func (h *SamplingHandle) Stop() {
	h.once.Do(func() {
		close(h.stop)
	})
	<-h.done
}
