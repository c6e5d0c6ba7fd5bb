package stdout

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igpu-go/igpustats"
)

type fakeSource struct {
	stats igpustats.GpuStats
	err   error
}

func (f fakeSource) ReadStats() (igpustats.GpuStats, error) { return f.stats, f.err }

type buf struct{ bytes.Buffer }

func (buf) Close() error { return nil }

func TestExporterWritesJSON(t *testing.T) {
	src := fakeSource{stats: igpustats.GpuStats{
		Timestamp: time.Unix(0, 0),
		Engines: igpustats.EngineStats{
			Render: igpustats.EngineUtilization{BusyPercent: 42.5},
		},
		Frequency: igpustats.FrequencyStats{ActualMHz: 1200, RequestedMHz: 1400},
	}}

	var b buf
	exp := NewExporter(src, WithOutput(&b), WithFormat("json"), WithInterval(10*time.Millisecond))
	require.NoError(t, exp.Init())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- exp.Run(ctx) }()

	time.Sleep(25 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	require.NoError(t, exp.Shutdown())

	var got igpustats.GpuStats
	dec := json.NewDecoder(&b.Buffer)
	require.NoError(t, dec.Decode(&got))
	assert.InDelta(t, 42.5, got.Engines.Render.BusyPercent, 0.001)
}

func TestExporterName(t *testing.T) {
	exp := NewExporter(fakeSource{})
	assert.Equal(t, "stdout", exp.Name())
}
