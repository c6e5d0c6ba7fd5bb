// Package pmu implements the PMU Descriptor Loader and Engine Config
// Encoder: resolving an adapter's perf PMU type id and event table, and
// computing per-engine busy/wait/sema event configs.
package pmu

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/igpu-go/igpustats/internal/sysfs"
)

const pmuBasePath = "/sys/bus/event_source/devices"

// EventDesc describes one event exposed under a PMU's events/ directory:
// its raw config and the unit/scale sysfs sidecar files, if present, that
// convert an accumulated counter delta into natural units.
type EventDesc struct {
	Config uint64
	Unit   string  // "ns", "Hz", "J", or "" when no .unit file exists
	Scale  float64 // multiplier for delta/elapsedNs; defaults to 1.0
}

// Info is a resolved PMU descriptor for one GPU adapter.
type Info struct {
	TypeID uint32
	Path   string
	Events map[string]EventDesc
	CardID string
	Driver sysfs.GpuDriver
}

// EventConfig looks up the raw config value for a named event (e.g.
// "actual-frequency", "rc6-residency").
func (p Info) EventConfig(name string) (uint64, bool) {
	d, ok := p.Events[name]
	return d.Config, ok
}

// EventDesc looks up the full descriptor — config, unit, and scale — for
// a named event.
func (p Info) EventDesc(name string) (EventDesc, bool) {
	d, ok := p.Events[name]
	return d, ok
}

// ErrPmuUnavailable is returned when no PMU sysfs directory for any Intel
// GPU driver could be found or read.
type ErrPmuUnavailable struct {
	Driver string
}

func (e ErrPmuUnavailable) Error() string {
	if e.Driver == "" {
		return "PMU not available"
	}
	return fmt.Sprintf("PMU not available for driver %q", e.Driver)
}

// Discover finds every i915/xe PMU exposed under
// /sys/bus/event_source/devices, in the order:
//  1. <driver>_<pci-bdf> (recent multi-GPU kernels)
//  2. <driver> (single-GPU fallback)
func Discover() ([]Info, error) {
	entries, err := os.ReadDir(pmuBasePath)
	if err != nil {
		return nil, ErrPmuUnavailable{}
	}

	var pmus, fallback []Info
	for _, entry := range entries {
		name := entry.Name()
		var driver sysfs.GpuDriver
		switch {
		case strings.HasPrefix(name, "i915"):
			driver = sysfs.DriverI915
		case name == "xe" || strings.HasPrefix(name, "xe_"):
			driver = sysfs.DriverXe
		default:
			continue
		}
		info, err := readPMUInfo(filepath.Join(pmuBasePath, name), name, driver)
		if err != nil {
			continue
		}
		if name == driver.String() {
			fallback = append(fallback, info)
		} else {
			pmus = append(pmus, info)
		}
	}
	pmus = append(pmus, fallback...)

	if len(pmus) == 0 {
		return nil, ErrPmuUnavailable{}
	}
	return pmus, nil
}

// ForCard resolves the PMU for a specific card id (e.g. "card0"), falling
// back to the first discovered PMU if no exact match exists.
func ForCard(cardID string) (Info, error) {
	pmus, err := Discover()
	if err != nil {
		return Info{}, err
	}
	for _, p := range pmus {
		if p.CardID == cardID {
			return p, nil
		}
	}
	return pmus[0], nil
}

func readPMUInfo(path, name string, driver sysfs.GpuDriver) (Info, error) {
	typeStr, err := readTrimmed(filepath.Join(path, "type"))
	if err != nil {
		return Info{}, fmt.Errorf("read PMU type: %w", err)
	}
	typeID, err := strconv.ParseUint(typeStr, 10, 32)
	if err != nil {
		return Info{}, fmt.Errorf("invalid PMU type id %q: %w", typeStr, err)
	}

	events, err := readPMUEvents(path)
	if err != nil {
		return Info{}, err
	}

	return Info{
		TypeID: uint32(typeID),
		Path:   path,
		Events: events,
		CardID: parseCardID(name, driver),
		Driver: driver,
	}, nil
}

// parseCardID derives a "cardN" id from a PMU directory name such as
// "i915", "i915_0000_00_02.0", or "xe_0000_00_02.0".
func parseCardID(name string, driver sysfs.GpuDriver) string {
	switch driver {
	case sysfs.DriverI915:
		if name == "i915" {
			return "card0"
		}
		if pciPart, ok := strings.CutPrefix(name, "i915_"); ok {
			pciAddr := strings.Replace(pciPart, "_", ":", 2)
			if card, ok := findCardByPCI(pciAddr); ok {
				return card
			}
		}
	case sysfs.DriverXe:
		if pciPart, ok := strings.CutPrefix(name, "xe_"); ok {
			pciAddr := strings.Replace(pciPart, "_", ":", 2)
			if card, ok := findCardByPCI(pciAddr); ok {
				return card
			}
		}
	}
	return "card0"
}

func findCardByPCI(pciAddr string) (string, bool) {
	entries, err := os.ReadDir("/sys/class/drm")
	if err != nil {
		return "", false
	}
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "card") || strings.Contains(name, "-") {
			continue
		}
		target, err := os.Readlink(filepath.Join("/sys/class/drm", name, "device"))
		if err == nil && strings.Contains(target, pciAddr) {
			return name, true
		}
	}
	return "", false
}

func readPMUEvents(pmuPath string) (map[string]EventDesc, error) {
	events := make(map[string]EventDesc)

	eventsPath := filepath.Join(pmuPath, "events")
	entries, err := os.ReadDir(eventsPath)
	if err != nil {
		// Events directory absence is tolerated; caller decides whether the
		// PMU is usable without any events.
		return events, nil
	}

	// .unit and .scale are sidecar files read separately below, keyed by
	// their base event name; only the base event files hold a config= line.
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		n := e.Name()
		if strings.HasSuffix(n, ".unit") || strings.HasSuffix(n, ".scale") {
			continue
		}
		names = append(names, n)
	}
	sort.Strings(names)

	for _, name := range names {
		content, err := readFile(filepath.Join(eventsPath, name))
		if err != nil {
			continue
		}
		config, ok := parseEventConfig(content)
		if !ok {
			continue
		}

		desc := EventDesc{Config: config, Scale: 1.0}
		if unit, err := readTrimmed(filepath.Join(eventsPath, name+".unit")); err == nil {
			desc.Unit = unit
		}
		if scaleStr, err := readTrimmed(filepath.Join(eventsPath, name+".scale")); err == nil {
			if scale, err := strconv.ParseFloat(scaleStr, 64); err == nil {
				desc.Scale = scale
			}
		}
		events[name] = desc
	}
	return events, nil
}

// parseEventConfig parses sysfs event files like "config=0x1" or
// "config=1,gt=0" (xe may carry extra comma-separated fields; only the
// config= term is extracted here, matching spec.md's engine-config encoder
// contract — xe event names are resolved verbatim, not re-encoded).
func parseEventConfig(raw string) (uint64, bool) {
	s := strings.TrimSpace(raw)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if v, ok := strings.CutPrefix(part, "config="); ok {
			return parseHexOrDec(v)
		}
	}
	return parseHexOrDec(s)
}
