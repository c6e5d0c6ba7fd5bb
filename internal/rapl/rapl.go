// Package rapl reads platform and GPU power draw via Intel RAPL energy
// counters, preferring a direct instantaneous hwmon power reading where
// the card exposes one (discrete Arc cards) over a RAPL energy-counter
// delta (integrated GPUs sharing the package's RAPL domain).
package rapl

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/prometheus/procfs/sysfs"
	"golang.org/x/sys/unix"

	"github.com/igpu-go/igpustats/internal/rate"
)

const hwmonClassPath = "/sys/class/hwmon"

// Reader reads package- and GPU-level power for an Intel platform.
type Reader struct {
	packageZone    *sysfs.RaplZone
	gpuZone        *sysfs.RaplZone
	hwmonPowerPath string

	packageCounter rate.Counter
	gpuCounter     rate.Counter
}

// New locates whatever power sources are available for a GPU at the
// given PCI sysfs device path. A Reader is always returned; individual
// HasXxx methods report which sources, if any, were found.
func New(pciDevicePath string) *Reader {
	r := &Reader{hwmonPowerPath: findHwmonPower(pciDevicePath)}

	fs, err := sysfs.NewFS("/sys")
	if err != nil {
		return r
	}
	zones, err := sysfs.GetRaplZones(fs)
	if err != nil {
		return r
	}
	for i := range zones {
		z := zones[i]
		name := strings.ToLower(z.Name)
		switch {
		case r.packageZone == nil && strings.HasPrefix(name, "package"):
			r.packageZone = &z
		case r.gpuZone == nil && strings.Contains(name, "gpu"):
			r.gpuZone = &z
		}
	}
	return r
}

// HasPackagePower reports whether a package-level RAPL zone was found.
func (r *Reader) HasPackagePower() bool { return r.packageZone != nil }

// HasGPUPower reports whether a GPU power source — hwmon or RAPL zone —
// was found.
func (r *Reader) HasGPUPower() bool { return r.hwmonPowerPath != "" || r.gpuZone != nil }

// ReadGPUWatts returns average GPU power draw over the last elapsedNs.
func (r *Reader) ReadGPUWatts(elapsedNs uint64) (float64, bool) {
	if r.hwmonPowerPath != "" {
		if microwatts, err := readIntFile(r.hwmonPowerPath); err == nil {
			return float64(microwatts) / 1_000_000.0, true
		}
	}
	if r.gpuZone != nil {
		uj, err := r.gpuZone.GetEnergyMicrojoules()
		if err != nil {
			return 0, false
		}
		delta := r.gpuCounter.Sample(uj)
		return rate.Watts(delta, elapsedNs), true
	}
	return 0, false
}

// ReadPackageWatts returns average package power draw over the last
// elapsedNs, derived from a RAPL package-zone energy-counter delta.
func (r *Reader) ReadPackageWatts(elapsedNs uint64) (float64, bool) {
	if r.packageZone == nil {
		return 0, false
	}
	uj, err := r.packageZone.GetEnergyMicrojoules()
	if err != nil {
		return 0, false
	}
	delta := r.packageCounter.Sample(uj)
	return rate.Watts(delta, elapsedNs), true
}

// findHwmonPower scans /sys/class/hwmon for the device matching
// pciDevicePath and returns its power1_average file if present.
func findHwmonPower(pciDevicePath string) string {
	entries, err := os.ReadDir(hwmonClassPath)
	if err != nil {
		return ""
	}
	pciBase := filepath.Base(pciDevicePath)

	for _, entry := range entries {
		hwmonPath := filepath.Join(hwmonClassPath, entry.Name())
		target, err := os.Readlink(filepath.Join(hwmonPath, "device"))
		if err != nil || !strings.Contains(target, pciBase) {
			continue
		}
		powerPath := filepath.Join(hwmonPath, "power1_average")
		if _, err := os.Stat(powerPath); err == nil {
			return powerPath
		}
	}
	return ""
}

func readIntFile(path string) (int64, error) {
	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return 0, err
	}
	defer unix.Close(fd)

	buf := make([]byte, 32)
	n, err := unix.Read(fd, buf)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(string(buf[:n])), 10, 64)
}
