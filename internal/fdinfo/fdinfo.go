// Package fdinfo reads per-process DRM client accounting from
// /proc/<pid>/fdinfo/<fd>, the kernel's interface for attributing GPU
// engine time and memory residency to individual processes.
package fdinfo

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Client is a single process's accumulated DRM engine usage, parsed
// from one fdinfo file.
type Client struct {
	PID            uint32
	Name           string
	RenderNs       uint64
	CopyNs         uint64
	VideoNs        uint64
	VideoEnhanceNs uint64
	ComputeNs      uint64
	MemoryBytes    uint64
}

// List walks every process's open file descriptors and returns one
// Client per process holding at least one DRM fd (card or render node),
// merging multiple fds belonging to the same process by summing their
// engine-time fields.
func List() ([]Client, error) {
	procEntries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, err
	}

	byPID := make(map[uint32]*Client)
	var order []uint32

	for _, procEntry := range procEntries {
		pid, err := strconv.ParseUint(procEntry.Name(), 10, 32)
		if err != nil {
			continue
		}

		fdDir := filepath.Join("/proc", procEntry.Name(), "fd")
		fdEntries, err := os.ReadDir(fdDir)
		if err != nil {
			continue
		}

		for _, fdEntry := range fdEntries {
			fdNum, err := strconv.ParseUint(fdEntry.Name(), 10, 32)
			if err != nil {
				continue
			}
			target, err := os.Readlink(filepath.Join(fdDir, fdEntry.Name()))
			if err != nil || !strings.Contains(target, "/dri/") {
				continue
			}

			client, err := parseFdinfo(uint32(pid), uint32(fdNum))
			if err != nil {
				continue
			}

			if existing, ok := byPID[client.PID]; ok {
				mergeClient(existing, client)
			} else {
				c := client
				byPID[c.PID] = &c
				order = append(order, c.PID)
			}
		}
	}

	clients := make([]Client, 0, len(order))
	for _, pid := range order {
		clients = append(clients, *byPID[pid])
	}
	return clients, nil
}

// FindQuickSyncClients filters List's result down to processes with any
// video or video-enhance engine time — the two engines Quick Sync
// transcoding workloads drive.
func FindQuickSyncClients() ([]Client, error) {
	all, err := List()
	if err != nil {
		return nil, err
	}
	var quicksync []Client
	for _, c := range all {
		if c.VideoNs > 0 || c.VideoEnhanceNs > 0 {
			quicksync = append(quicksync, c)
		}
	}
	return quicksync, nil
}

func mergeClient(dst *Client, src Client) {
	dst.RenderNs += src.RenderNs
	dst.CopyNs += src.CopyNs
	dst.VideoNs += src.VideoNs
	dst.VideoEnhanceNs += src.VideoEnhanceNs
	dst.ComputeNs += src.ComputeNs
	if src.MemoryBytes > dst.MemoryBytes {
		dst.MemoryBytes = src.MemoryBytes
	}
}

// parseFdinfo parses one /proc/<pid>/fdinfo/<fd> file. It returns an
// error when the fd isn't a drm-driver client (e.g. "drm-driver:" line
// missing), which List treats as "not a DRM fd" and skips.
func parseFdinfo(pid, fd uint32) (Client, error) {
	path := filepath.Join("/proc", strconv.FormatUint(uint64(pid), 10), "fdinfo", strconv.FormatUint(uint64(fd), 10))
	data, err := os.ReadFile(path)
	if err != nil {
		return Client{}, err
	}

	client := Client{PID: pid}
	sawDriver := false

	for _, line := range strings.Split(string(data), "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch {
		case key == "drm-driver":
			sawDriver = true
		case strings.HasPrefix(key, "drm-engine-render"):
			client.RenderNs += parseNsValue(value)
		case strings.HasPrefix(key, "drm-engine-copy"):
			client.CopyNs += parseNsValue(value)
		case strings.HasPrefix(key, "drm-engine-video-enhance"):
			client.VideoEnhanceNs += parseNsValue(value)
		case strings.HasPrefix(key, "drm-engine-video"):
			client.VideoNs += parseNsValue(value)
		case strings.HasPrefix(key, "drm-engine-compute"):
			client.ComputeNs += parseNsValue(value)
		case strings.HasPrefix(key, "drm-memory-resident"):
			client.MemoryBytes += parseByteValue(value)
		}
	}

	if !sawDriver {
		return Client{}, os.ErrNotExist
	}

	client.Name = processName(pid)
	return client, nil
}

// parseNsValue parses a "<N> ns" field value into nanoseconds.
func parseNsValue(v string) uint64 {
	fields := strings.Fields(v)
	if len(fields) == 0 {
		return 0
	}
	n, _ := strconv.ParseUint(fields[0], 10, 64)
	return n
}

// parseByteValue parses a "<N> KiB" field value into bytes.
func parseByteValue(v string) uint64 {
	fields := strings.Fields(v)
	if len(fields) == 0 {
		return 0
	}
	n, _ := strconv.ParseUint(fields[0], 10, 64)
	if len(fields) > 1 && strings.EqualFold(fields[1], "KiB") {
		return n * 1024
	}
	return n
}

func processName(pid uint32) string {
	data, err := os.ReadFile(filepath.Join("/proc", strconv.FormatUint(uint64(pid), 10), "comm"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
