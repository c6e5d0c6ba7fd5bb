// Package hwmon reads GPU temperature and fan speed from the kernel's
// hwmon subsystem, locating the hwmon device that belongs to a given
// GPU's PCI sysfs path.
package hwmon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

const hwmonClassPath = "/sys/class/hwmon"

// Reader reads temperature (and, on cards that expose one, fan speed)
// for a single GPU's hwmon device.
type Reader struct {
	path string // e.g. /sys/class/hwmon/hwmon3, empty if none found
}

// New locates the hwmon device for a GPU at the given PCI sysfs device
// path (e.g. .../0000:00:02.0). A Reader is always returned, even if no
// matching hwmon device exists — IsAvailable reports that case so
// callers can omit temperature/fan data rather than erroring.
func New(pciDevicePath string) *Reader {
	return &Reader{path: findGPUHwmon(pciDevicePath)}
}

// IsAvailable reports whether a hwmon device was found for this GPU.
func (r *Reader) IsAvailable() bool { return r.path != "" }

// TemperatureCelsius reads the GPU's current temperature.
func (r *Reader) TemperatureCelsius() (float64, error) {
	if r.path == "" {
		return 0, fmt.Errorf("hwmon: no device available")
	}
	milliC, err := readIntFile(filepath.Join(r.path, "temp1_input"))
	if err != nil {
		return 0, err
	}
	return float64(milliC) / 1000.0, nil
}

// FanRPM reads the GPU fan's current speed, if this hwmon device
// exposes one (discrete cards only; most integrated GPUs don't).
func (r *Reader) FanRPM() (uint32, bool) {
	if r.path == "" {
		return 0, false
	}
	rpm, err := readIntFile(filepath.Join(r.path, "fan1_input"))
	if err != nil {
		return 0, false
	}
	return uint32(rpm), true
}

// findGPUHwmon scans /sys/class/hwmon for the entry whose "device"
// symlink resolves to the same PCI device as pciDevicePath, falling
// back to matching by driver name ("i915" or "xe") when no device
// symlink is present.
func findGPUHwmon(pciDevicePath string) string {
	entries, err := os.ReadDir(hwmonClassPath)
	if err != nil {
		return ""
	}

	pciBase := filepath.Base(pciDevicePath)

	for _, entry := range entries {
		hwmonPath := filepath.Join(hwmonClassPath, entry.Name())

		if target, err := os.Readlink(filepath.Join(hwmonPath, "device")); err == nil {
			if strings.Contains(target, pciBase) {
				return hwmonPath
			}
			continue
		}

		name, err := readTrimmed(filepath.Join(hwmonPath, "name"))
		if err != nil {
			continue
		}
		if (name == "i915" || name == "xe") && fileExists(filepath.Join(hwmonPath, "temp1_input")) {
			return hwmonPath
		}
	}
	return ""
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func readIntFile(path string) (int64, error) {
	s, err := readTrimmed(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(s, 10, 64)
}

func readTrimmed(path string) (string, error) {
	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return "", err
	}
	defer unix.Close(fd)

	buf := make([]byte, 256)
	n, err := unix.Read(fd, buf)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(buf[:n])), nil
}
