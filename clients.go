package igpustats

import "github.com/igpu-go/igpustats/internal/fdinfo"

// ListDRMClients lists every process currently holding an open DRM fd
// on any GPU, with its accumulated per-engine usage and resident memory.
func ListDRMClients() ([]DrmClient, error) {
	clients, err := fdinfo.List()
	if err != nil {
		return nil, ErrIO{Path: "/proc", Err: err}
	}
	return toDrmClients(clients), nil
}

// FindQuickSyncClients lists only the processes using the video or
// video-enhance engines — the two Quick Sync transcoding drives.
func FindQuickSyncClients() ([]DrmClient, error) {
	clients, err := fdinfo.FindQuickSyncClients()
	if err != nil {
		return nil, ErrIO{Path: "/proc", Err: err}
	}
	return toDrmClients(clients), nil
}

func toDrmClients(clients []fdinfo.Client) []DrmClient {
	out := make([]DrmClient, len(clients))
	for i, c := range clients {
		out[i] = DrmClient{
			PID:            c.PID,
			Name:           c.Name,
			RenderNs:       c.RenderNs,
			CopyNs:         c.CopyNs,
			VideoNs:        c.VideoNs,
			VideoEnhanceNs: c.VideoEnhanceNs,
			ComputeNs:      c.ComputeNs,
			MemoryBytes:    c.MemoryBytes,
		}
	}
	return out
}
