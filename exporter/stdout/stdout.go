// Package stdout periodically writes GPU telemetry snapshots to a
// writer as a formatted table, for interactive use and for quick
// scripting with --monitor.format json.
package stdout

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/igpu-go/igpustats"
	"github.com/igpu-go/igpustats/internal/service"
)

type (
	Initializer = service.Initializer
	Runner      = service.Runner
	Shutdowner  = service.Shutdowner
)

// Source is anything that can be sampled for a GpuStats snapshot — in
// practice an *igpustats.IntelGpu.
type Source interface {
	ReadStats() (igpustats.GpuStats, error)
}

// Exporter writes periodic GpuStats snapshots to an io.WriteCloser.
type Exporter struct {
	logger *slog.Logger
	source Source
	out    io.WriteCloser
	format string
	ticker *time.Ticker

	interval time.Duration
}

var (
	_ Initializer = (*Exporter)(nil)
	_ Runner      = (*Exporter)(nil)
	_ Shutdowner  = (*Exporter)(nil)
)

type Opts struct {
	logger   *slog.Logger
	out      io.WriteCloser
	interval time.Duration
	format   string
}

// DefaultOpts returns an Opts with defaults set.
func DefaultOpts() Opts {
	return Opts{
		logger:   slog.Default().With("service", "stdout"),
		out:      nopCloser{os.Stdout},
		interval: time.Second,
		format:   "text",
	}
}

// OptionFn sets one option in Opts.
type OptionFn func(*Opts)

func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) { o.logger = logger }
}

func WithOutput(out io.WriteCloser) OptionFn {
	return func(o *Opts) { o.out = out }
}

func WithInterval(interval time.Duration) OptionFn {
	return func(o *Opts) { o.interval = interval }
}

func WithFormat(format string) OptionFn {
	return func(o *Opts) { o.format = format }
}

// NewExporter builds an Exporter that samples source every interval.
func NewExporter(source Source, applyOpts ...OptionFn) *Exporter {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}

	return &Exporter{
		logger:   opts.logger.With("service", "stdout"),
		source:   source,
		out:      opts.out,
		format:   opts.format,
		interval: opts.interval,
	}
}

func (e *Exporter) Init() error {
	e.ticker = time.NewTicker(e.interval)
	return nil
}

func (e *Exporter) Run(ctx context.Context) error {
	for {
		select {
		case <-e.ticker.C:
			stats, err := e.source.ReadStats()
			if err != nil {
				e.logger.Error("failed to read GPU stats", "error", err)
				continue
			}
			if err := e.write(stats); err != nil {
				e.logger.Error("failed to write GPU stats", "error", err)
			}
		case <-ctx.Done():
			e.logger.Info("stopping stdout exporter")
			return nil
		}
	}
}

func (e *Exporter) Shutdown() error {
	if e.ticker != nil {
		e.ticker.Stop()
	}
	return e.out.Close()
}

// Name implements service.Service.
func (e *Exporter) Name() string { return "stdout" }

func (e *Exporter) write(stats igpustats.GpuStats) error {
	if e.format == "json" {
		enc := json.NewEncoder(e.out)
		return enc.Encode(stats)
	}
	writeTable(e.out, stats)
	return nil
}

func writeTable(out io.Writer, stats igpustats.GpuStats) {
	rows := [][]string{
		{"render", pct(stats.Engines.Render.BusyPercent), pct(stats.Engines.Render.WaitPercent)},
		{"copy", pct(stats.Engines.Blitter.BusyPercent), pct(stats.Engines.Blitter.WaitPercent)},
		{"video", pct(stats.Engines.Video.BusyPercent), pct(stats.Engines.Video.WaitPercent)},
		{"video-enhance", pct(stats.Engines.VideoEnhance.BusyPercent), pct(stats.Engines.VideoEnhance.WaitPercent)},
	}
	if stats.Engines.Compute != nil {
		rows = append(rows, []string{"compute", pct(stats.Engines.Compute.BusyPercent), pct(stats.Engines.Compute.WaitPercent)})
	}

	table := tablewriter.NewWriter(out)
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Formatting.Alignment = tw.AlignRight
	})
	table.Header([]string{"Engine", "Busy(%)", "Wait(%)"})
	_ = table.Bulk(rows)
	_ = table.Render()

	freqRows := [][]string{
		{"actual", mhz(stats.Frequency.ActualMHz)},
		{"requested", mhz(stats.Frequency.RequestedMHz)},
	}
	freqTable := tablewriter.NewWriter(out)
	freqTable.Header([]string{"Frequency", "MHz"})
	_ = freqTable.Bulk(freqRows)
	_ = freqTable.Render()

	if stats.Power != nil {
		powerRows := [][]string{{"gpu", watts(stats.Power.GPUWatts)}}
		if stats.Power.PackageWatts != nil {
			powerRows = append(powerRows, []string{"package", watts(*stats.Power.PackageWatts)})
		}
		powerTable := tablewriter.NewWriter(out)
		powerTable.Header([]string{"Power", "Watts"})
		_ = powerTable.Bulk(powerRows)
		_ = powerTable.Render()
	}
}

func pct(v float64) string   { return format1(v) + "%" }
func mhz(v uint32) string    { return format1(float64(v)) }
func watts(v float64) string { return format1(v) + "W" }

func format1(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
