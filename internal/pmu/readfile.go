package pmu

import (
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// readFile reads a small sysfs file directly via unix.Read, mirroring
// internal/sysfs's EAGAIN-avoidance approach for PMU event/type files.
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
