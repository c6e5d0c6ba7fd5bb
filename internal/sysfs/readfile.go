// Package sysfs implements the Sysfs Probe: enumeration of Intel DRM
// adapters under /sys/class/drm and the GPU-level facts readable there.
package sysfs

import (
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// readFile reads a small sysfs/procfs file directly via unix.Read instead
// of os.ReadFile. Some hwmon/drm attribute files return EAGAIN on a broken
// driver, which os.ReadFile's poll-based implementation retries forever;
// a single unix.Read surfaces the error instead.
func readFile(path string) (string, error) {
	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return "", err
	}
	defer unix.Close(fd)

	buf := make([]byte, 4096)
	n, err := unix.Read(fd, buf)
	if err != nil {
		return "", err
	}
	return string(buf[:n]), nil
}

func readTrimmed(path string) (string, error) {
	s, err := readFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(s), nil
}

// parseHexOrDec parses "0x1a" or "26" into a uint64.
func parseHexOrDec(s string) (uint64, bool) {
	s = strings.TrimSpace(s)
	if hex, ok := strings.CutPrefix(s, "0x"); ok {
		v, err := strconv.ParseUint(hex, 16, 64)
		return v, err == nil
	}
	if hex, ok := strings.CutPrefix(s, "0X"); ok {
		v, err := strconv.ParseUint(hex, 16, 64)
		return v, err == nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	return v, err == nil
}
