package igpustats

import (
	"time"

	"github.com/igpu-go/igpustats/internal/sysfs"
)

// GpuInfo describes a single Intel GPU discovered under /sys/class/drm.
type GpuInfo = sysfs.GpuInfo

// GpuDriver identifies which kernel driver is bound to a GPU.
type GpuDriver = sysfs.GpuDriver

const (
	DriverI915 = sysfs.DriverI915
	DriverXe   = sysfs.DriverXe
)

// EngineUtilization holds the busy/wait/sema percentages for one engine
// class over the most recent sampling window. Each value is in [0, 100].
type EngineUtilization struct {
	BusyPercent float64
	WaitPercent float64
	SemaPercent float64
}

// IsIdle reports whether the engine was effectively not doing work.
func (u EngineUtilization) IsIdle() bool { return u.BusyPercent < 0.1 }

// IsBusy reports whether the engine was heavily loaded.
func (u EngineUtilization) IsBusy() bool { return u.BusyPercent > 90.0 }

// EngineStats holds per-engine-class utilization for one GpuStats sample.
type EngineStats struct {
	Render       EngineUtilization
	Video        EngineUtilization
	VideoEnhance EngineUtilization
	Blitter      EngineUtilization
	Compute      *EngineUtilization // nil when the adapter has no compute engine
}

// MaxUtilization returns the highest busy percentage across all engines.
func (e EngineStats) MaxUtilization() float64 {
	max := e.Render.BusyPercent
	if e.Video.BusyPercent > max {
		max = e.Video.BusyPercent
	}
	if e.VideoEnhance.BusyPercent > max {
		max = e.VideoEnhance.BusyPercent
	}
	if e.Blitter.BusyPercent > max {
		max = e.Blitter.BusyPercent
	}
	if e.Compute != nil && e.Compute.BusyPercent > max {
		max = e.Compute.BusyPercent
	}
	return max
}

// QuicksyncUtilization returns the higher of the video and video-enhance
// busy percentages, the two engines Quick Sync workloads drive.
func (e EngineStats) QuicksyncUtilization() float64 {
	if e.Video.BusyPercent > e.VideoEnhance.BusyPercent {
		return e.Video.BusyPercent
	}
	return e.VideoEnhance.BusyPercent
}

// FrequencyStats reports GPU clock frequency in MHz.
type FrequencyStats struct {
	ActualMHz    uint32
	RequestedMHz uint32
}

// Efficiency returns 100 * actual/requested, or 0 if requested is 0.
func (f FrequencyStats) Efficiency() float64 {
	if f.RequestedMHz == 0 {
		return 0
	}
	return float64(f.ActualMHz) / float64(f.RequestedMHz) * 100.0
}

// PowerStats reports power draw in Watts.
type PowerStats struct {
	GPUWatts     float64
	PackageWatts *float64 // nil if package-level RAPL zone is unavailable
}

// Rc6Stats reports RC6 power-saving state residency.
type Rc6Stats struct {
	ResidencyPercent float64
}

// ActivePercent returns the complement of residency: time spent NOT in RC6.
func (r Rc6Stats) ActivePercent() float64 { return 100.0 - r.ResidencyPercent }

// TemperatureStats reports GPU temperature and, for some discrete cards, fan
// speed.
type TemperatureStats struct {
	GPUCelsius float64
	FanRPM     *uint32
}

// IsCritical reports temperatures above 90C.
func (t TemperatureStats) IsCritical() bool { return t.GPUCelsius > 90.0 }

// IsHigh reports temperatures above 80C.
func (t TemperatureStats) IsHigh() bool { return t.GPUCelsius > 80.0 }

// ThrottleInfo reports the GPU's current clock-throttling reasons.
type ThrottleInfo struct {
	IsThrottled bool
	Status      bool
	PowerLimit  bool
	Thermal     bool
	Prochot     bool
	RATL        bool
	VRThermal   bool
	VRTDC       bool
}

// AnyThrottling reports whether any throttle-reason bit is set.
func (t ThrottleInfo) AnyThrottling() bool {
	return t.IsThrottled || t.Status || t.PowerLimit || t.Thermal ||
		t.Prochot || t.RATL || t.VRThermal || t.VRTDC
}

// GpuStats is a single assembled telemetry snapshot for one adapter.
type GpuStats struct {
	Timestamp        time.Time
	SampleDurationNs uint64
	Engines          EngineStats
	Frequency        FrequencyStats
	Power            *PowerStats
	RC6              *Rc6Stats
	Temperature      *TemperatureStats
	Throttle         *ThrottleInfo
}

// DrmClient is a per-process snapshot of GPU engine usage, read from
// /proc/<pid>/fdinfo.
type DrmClient struct {
	PID            uint32
	Name           string
	RenderNs       uint64
	CopyNs         uint64
	VideoNs        uint64
	VideoEnhanceNs uint64
	ComputeNs      uint64
	MemoryBytes    uint64
}

// TotalUsageNs sums engine time across all classes.
func (c DrmClient) TotalUsageNs() uint64 {
	return c.RenderNs + c.CopyNs + c.VideoNs + c.VideoEnhanceNs + c.ComputeNs
}

// IsUsingQuicksync reports whether this client has any video or
// video-enhance engine time.
func (c DrmClient) IsUsingQuicksync() bool {
	return c.VideoNs > 0 || c.VideoEnhanceNs > 0
}
