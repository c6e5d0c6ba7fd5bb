package sysfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGpuDriverString(t *testing.T) {
	assert.Equal(t, "i915", DriverI915.String())
	assert.Equal(t, "xe", DriverXe.String())
}

func TestGpuInfoIsIntel(t *testing.T) {
	assert.True(t, GpuInfo{VendorID: 0x8086}.IsIntel())
	assert.False(t, GpuInfo{VendorID: 0x1002}.IsIntel())
}

func TestDeviceNameUnknownIsEmpty(t *testing.T) {
	assert.Equal(t, "", DeviceName(0xffff))
	assert.Equal(t, "Intel Arc A770", DeviceName(0x56a0))
}

func TestParseHexOrDec(t *testing.T) {
	v, ok := parseHexOrDec("0x8086")
	assert.True(t, ok)
	assert.Equal(t, uint64(0x8086), v)

	v, ok = parseHexOrDec("12345")
	assert.True(t, ok)
	assert.Equal(t, uint64(12345), v)
}

func TestListGPUsOnNonDRMHost(t *testing.T) {
	// On a host/container with no /sys/class/drm, ListGPUs must report the
	// underlying error rather than panicking; on a real DRM host it must
	// never include non-Intel adapters.
	gpus, err := ListGPUs()
	if err != nil {
		return
	}
	for _, g := range gpus {
		assert.True(t, g.IsIntel())
	}
}
