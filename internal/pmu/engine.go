package pmu

import (
	"strconv"
	"strings"

	"github.com/igpu-go/igpustats/internal/sysfs"
)

// EngineClass identifies a GPU execution engine class, matching the i915
// perf PMU's engine-class encoding.
type EngineClass uint16

const (
	EngineRender       EngineClass = 0
	EngineCopy         EngineClass = 1
	EngineVideo        EngineClass = 2
	EngineVideoEnhance EngineClass = 3
	EngineCompute      EngineClass = 4
)

// SampleType selects which of an engine's three counters (busy/wait/sema)
// an event config encodes.
type SampleType uint8

const (
	SampleBusy SampleType = 0
	SampleWait SampleType = 1
	SampleSema SampleType = 2
)

// EngineConfig computes the raw perf event config for one engine
// class/instance/sample-type triple, matching the i915 PMU's packed
// encoding: class in bits 16-23, instance in bits 8-15, sample type in
// bits 0-7.
func EngineConfig(class EngineClass, instance uint16, sample SampleType) uint64 {
	return (uint64(class) << 16) | (uint64(instance) << 8) | uint64(sample)
}

// GetEngineInstances maps each discovered engine class to the set of
// instance numbers the PMU exposes busy counters for.
func GetEngineInstances(p Info) map[EngineClass][]uint16 {
	instances := make(map[EngineClass][]uint16)

	switch p.Driver {
	case sysfs.DriverI915:
		for name := range p.Events {
			class, instance, ok := parseI915BusyName(name)
			if !ok {
				continue
			}
			instances[class] = appendUnique(instances[class], instance)
		}
	case sysfs.DriverXe:
		for name := range p.Events {
			classes, instance, ok := parseXeGroupBusyName(name)
			if !ok {
				continue
			}
			for _, class := range classes {
				instances[class] = appendUnique(instances[class], instance)
			}
		}
	}

	if len(instances) == 0 {
		instances = defaultEngineInstances()
	}
	return instances
}

func appendUnique(list []uint16, v uint16) []uint16 {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

// defaultEngineInstances is the fallback topology used when no engine
// busy-counter event names could be parsed from the PMU's events
// directory: every adapter is assumed to expose instance 0 of the four
// non-compute engine classes.
func defaultEngineInstances() map[EngineClass][]uint16 {
	return map[EngineClass][]uint16{
		EngineRender:       {0},
		EngineCopy:         {0},
		EngineVideo:        {0},
		EngineVideoEnhance: {0},
	}
}

// parseI915BusyName recognizes i915 perf PMU event names of the form
// "<engine>-busy" or "<engine><N>-busy" (e.g. "rcs0-busy", "vcs1-busy",
// "ccs2-busy"), mapping the kernel's per-engine-instance abbreviation to
// an EngineClass and instance number.
func parseI915BusyName(name string) (EngineClass, uint16, bool) {
	base, ok := strings.CutSuffix(name, "-busy")
	if !ok {
		return 0, 0, false
	}

	prefix, numStr := splitTrailingDigits(base)
	instance := uint16(0)
	if numStr != "" {
		n, err := strconv.ParseUint(numStr, 10, 16)
		if err != nil {
			return 0, 0, false
		}
		instance = uint16(n)
	}

	switch prefix {
	case "render", "rcs":
		return EngineRender, instance, true
	case "blitter", "bcs":
		return EngineCopy, instance, true
	case "video", "vcs":
		return EngineVideo, instance, true
	case "video_enhance", "vecs":
		return EngineVideoEnhance, instance, true
	case "compute", "ccs":
		return EngineCompute, instance, true
	default:
		return 0, 0, false
	}
}

// parseXeGroupBusyName recognizes xe perf PMU event names of the form
// "<engine>-group-busy" (e.g. "render-group-busy", "media-group-busy").
// The xe "media" group covers both video decode and video-enhance
// workloads, so it maps to two engine classes at once.
func parseXeGroupBusyName(name string) ([]EngineClass, uint16, bool) {
	base, ok := strings.CutSuffix(name, "-group-busy")
	if !ok {
		return nil, 0, false
	}

	prefix, numStr := splitTrailingDigits(base)
	instance := uint16(0)
	if numStr != "" {
		n, err := strconv.ParseUint(numStr, 10, 16)
		if err != nil {
			return nil, 0, false
		}
		instance = uint16(n)
	}

	switch prefix {
	case "render":
		return []EngineClass{EngineRender}, instance, true
	case "copy":
		return []EngineClass{EngineCopy}, instance, true
	case "media":
		return []EngineClass{EngineVideo, EngineVideoEnhance}, instance, true
	case "compute":
		return []EngineClass{EngineCompute}, instance, true
	default:
		return nil, 0, false
	}
}

// splitTrailingDigits splits "vcs1" into ("vcs", "1") or "render" into
// ("render", "").
func splitTrailingDigits(s string) (string, string) {
	i := len(s)
	for i > 0 && s[i-1] >= '0' && s[i-1] <= '9' {
		i--
	}
	return s[:i], s[i:]
}
