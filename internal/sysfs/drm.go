package sysfs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const (
	drmClassPath = "/sys/class/drm"
	intelVendor  = 0x8086
)

// GpuDriver identifies which kernel driver is bound to a GPU.
type GpuDriver string

const (
	DriverI915 GpuDriver = "i915"
	DriverXe   GpuDriver = "xe"
)

func (d GpuDriver) String() string { return string(d) }

// GpuInfo describes a single Intel GPU discovered under /sys/class/drm.
type GpuInfo struct {
	ID         string // e.g. "card0"
	PCIPath    string // PCI sysfs device path, e.g. .../0000:00:02.0
	DeviceName string // friendly name, empty if unknown
	VendorID   uint16
	DeviceID   uint16
	RenderNode string // e.g. /dev/dri/renderD128, empty if absent
	CardNode   string // e.g. /dev/dri/card0, empty if absent
	Driver     GpuDriver
}

// IsIntel reports whether the vendor ID matches Intel (0x8086).
func (g GpuInfo) IsIntel() bool { return g.VendorID == intelVendor }

// ListGPUs enumerates /sys/class/drm/cardN entries in ascending card index
// order and returns every Intel adapter found. Render (renderD*) and
// control nodes are ignored.
func ListGPUs() ([]GpuInfo, error) {
	entries, err := os.ReadDir(drmClassPath)
	if err != nil {
		return nil, err
	}

	type indexed struct {
		idx  int
		info GpuInfo
	}
	var found []indexed

	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "card") || strings.Contains(name, "-") {
			continue
		}
		idxStr := strings.TrimPrefix(name, "card")
		idx, err := strconv.Atoi(idxStr)
		if err != nil {
			continue
		}

		info, err := readGPUInfo(filepath.Join(drmClassPath, name), name)
		if err != nil || !info.IsIntel() {
			continue
		}
		found = append(found, indexed{idx, info})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].idx < found[j].idx })

	gpus := make([]GpuInfo, len(found))
	for i, f := range found {
		gpus[i] = f.info
	}
	return gpus, nil
}

func readGPUInfo(cardPath, cardID string) (GpuInfo, error) {
	devicePath := filepath.Join(cardPath, "device")

	vendorStr, err := readTrimmed(filepath.Join(devicePath, "vendor"))
	if err != nil {
		return GpuInfo{}, fmt.Errorf("read vendor: %w", err)
	}
	vendorID, ok := parseHexOrDec(vendorStr)
	if !ok {
		return GpuInfo{}, fmt.Errorf("invalid vendor id %q", vendorStr)
	}

	deviceStr, err := readTrimmed(filepath.Join(devicePath, "device"))
	if err != nil {
		return GpuInfo{}, fmt.Errorf("read device: %w", err)
	}
	deviceID, ok := parseHexOrDec(deviceStr)
	if !ok {
		return GpuInfo{}, fmt.Errorf("invalid device id %q", deviceStr)
	}

	pciPath := ""
	if target, err := os.Readlink(devicePath); err == nil {
		pciPath = target
	}

	driver := detectDriver(devicePath)

	cardNum := strings.TrimPrefix(cardID, "card")
	renderNode := findRenderNode(cardNum)
	cardNode := fmt.Sprintf("/dev/dri/card%s", cardNum)
	if _, err := os.Stat(cardNode); err != nil {
		cardNode = ""
	}

	return GpuInfo{
		ID:         cardID,
		PCIPath:    pciPath,
		DeviceName: DeviceName(uint16(deviceID)),
		VendorID:   uint16(vendorID),
		DeviceID:   uint16(deviceID),
		RenderNode: renderNode,
		CardNode:   cardNode,
		Driver:     driver,
	}, nil
}

func detectDriver(devicePath string) GpuDriver {
	target, err := os.Readlink(filepath.Join(devicePath, "driver"))
	if err != nil {
		return ""
	}
	switch filepath.Base(target) {
	case "i915":
		return DriverI915
	case "xe":
		return DriverXe
	default:
		return ""
	}
}

func findRenderNode(cardNum string) string {
	n, err := strconv.Atoi(cardNum)
	if err != nil {
		return ""
	}
	path := fmt.Sprintf("/dev/dri/renderD%d", 128+n)
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// Detect returns the first Intel GPU found by ListGPUs.
func Detect() (GpuInfo, error) {
	gpus, err := ListGPUs()
	if err != nil {
		return GpuInfo{}, err
	}
	if len(gpus) == 0 {
		return GpuInfo{}, ErrNoIntelGpu{}
	}
	return gpus[0], nil
}

// ErrNoIntelGpu is returned by Detect when no Intel adapter was found.
type ErrNoIntelGpu struct{}

func (ErrNoIntelGpu) Error() string { return "no Intel GPU found" }
