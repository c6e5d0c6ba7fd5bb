// Package throttle reads the GPU's clock-throttling reasons from
// /sys/class/drm/cardN/gt/gt0/throttle_reason_*, falling back through
// the older gt/ and device/gt/ locations kernels have used over time.
package throttle

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Info mirrors the throttle_reason_* bits the i915/xe drivers expose.
type Info struct {
	Status    bool
	PL1       bool
	Thermal   bool
	Prochot   bool
	RATL      bool
	VRThermal bool
	VRTDC     bool
}

// AnyThrottling reports whether any reason bit is set.
func (i Info) AnyThrottling() bool {
	return i.Status || i.PL1 || i.Thermal || i.Prochot || i.RATL || i.VRThermal || i.VRTDC
}

// Reader reads throttle info for one GPU.
type Reader struct {
	gtPath string // empty if no gt path could be found
}

// New locates the gt directory for a card id (e.g. "card0").
func New(cardID string) *Reader {
	return &Reader{gtPath: findGTPath(cardID)}
}

// IsAvailable reports whether a gt path was found for this card.
func (r *Reader) IsAvailable() bool { return r.gtPath != "" }

// Read reads every throttle_reason_* file present under the gt path. A
// missing individual file is treated as false rather than an error,
// since not every driver version exposes every reason.
func (r *Reader) Read() (Info, error) {
	if r.gtPath == "" {
		return Info{}, nil
	}
	return Info{
		Status:    readBool(filepath.Join(r.gtPath, "throttle_reason_status")),
		PL1:       readBool(filepath.Join(r.gtPath, "throttle_reason_pl1")),
		Thermal:   readBool(filepath.Join(r.gtPath, "throttle_reason_thermal")),
		Prochot:   readBool(filepath.Join(r.gtPath, "throttle_reason_prochot")),
		RATL:      readBool(filepath.Join(r.gtPath, "throttle_reason_ratl")),
		VRThermal: readBool(filepath.Join(r.gtPath, "throttle_reason_vr_thermalert")),
		VRTDC:     readBool(filepath.Join(r.gtPath, "throttle_reason_vr_tdc")),
	}, nil
}

// findGTPath tries the locations the i915/xe drivers have used for the
// gt sysfs directory, newest first.
func findGTPath(cardID string) string {
	candidates := []string{
		filepath.Join("/sys/class/drm", cardID, "gt", "gt0"),
		filepath.Join("/sys/class/drm", cardID, "gt"),
		filepath.Join("/sys/class/drm", cardID, "device", "gt"),
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.IsDir() {
			return c
		}
	}
	return ""
}

func readBool(path string) bool {
	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return false
	}
	defer unix.Close(fd)

	buf := make([]byte, 16)
	n, err := unix.Read(fd, buf)
	if err != nil {
		return false
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(buf[:n])))
	if err != nil {
		return false
	}
	return v != 0
}
