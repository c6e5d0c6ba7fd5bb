// Package prometheus exposes GPU telemetry as Prometheus metrics,
// sampling the adapter's latest GpuStats snapshot on every scrape.
package prometheus

import (
	"log/slog"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/igpu-go/igpustats"
)

// Source is anything that can be sampled for a GpuStats snapshot.
type Source interface {
	ReadStats() (igpustats.GpuStats, error)
}

const namespace = "igpu"

var (
	engineBusyDesc = prom.NewDesc(
		prom.BuildFQName(namespace, "engine", "busy_percent"),
		"Percentage of the sampling window the engine was executing work.",
		[]string{"engine"}, nil,
	)
	engineWaitDesc = prom.NewDesc(
		prom.BuildFQName(namespace, "engine", "wait_percent"),
		"Percentage of the sampling window the engine spent in a wait state.",
		[]string{"engine"}, nil,
	)
	frequencyActualDesc = prom.NewDesc(
		prom.BuildFQName(namespace, "frequency", "actual_mhz"),
		"Average GPU clock frequency over the sampling window.",
		nil, nil,
	)
	frequencyRequestedDesc = prom.NewDesc(
		prom.BuildFQName(namespace, "frequency", "requested_mhz"),
		"Average requested GPU clock frequency over the sampling window.",
		nil, nil,
	)
	powerWattsDesc = prom.NewDesc(
		prom.BuildFQName(namespace, "power", "watts"),
		"Average power draw over the sampling window.",
		[]string{"domain"}, nil,
	)
	rc6ResidencyDesc = prom.NewDesc(
		prom.BuildFQName(namespace, "rc6", "residency_percent"),
		"Percentage of the sampling window the GPU spent in an RC6 power-saving state.",
		nil, nil,
	)
	temperatureDesc = prom.NewDesc(
		prom.BuildFQName(namespace, "temperature", "celsius"),
		"GPU temperature.",
		nil, nil,
	)
	throttledDesc = prom.NewDesc(
		prom.BuildFQName(namespace, "", "throttled"),
		"1 if the GPU is currently throttled for any reason, 0 otherwise.",
		nil, nil,
	)
)

// Collector implements prom.Collector over a Source, sampling fresh
// telemetry on every Collect call (i.e. on every scrape).
type Collector struct {
	logger *slog.Logger
	source Source
}

var _ prom.Collector = (*Collector)(nil)

// NewCollector builds a Collector over source.
func NewCollector(source Source, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{logger: logger.With("service", "prometheus"), source: source}
}

func (c *Collector) Describe(ch chan<- *prom.Desc) {
	ch <- engineBusyDesc
	ch <- engineWaitDesc
	ch <- frequencyActualDesc
	ch <- frequencyRequestedDesc
	ch <- powerWattsDesc
	ch <- rc6ResidencyDesc
	ch <- temperatureDesc
	ch <- throttledDesc
}

func (c *Collector) Collect(ch chan<- prom.Metric) {
	stats, err := c.source.ReadStats()
	if err != nil {
		c.logger.Error("failed to read GPU stats for scrape", "error", err)
		return
	}

	emitEngine := func(name string, u igpustats.EngineUtilization) {
		ch <- prom.MustNewConstMetric(engineBusyDesc, prom.GaugeValue, u.BusyPercent, name)
		ch <- prom.MustNewConstMetric(engineWaitDesc, prom.GaugeValue, u.WaitPercent, name)
	}
	emitEngine("render", stats.Engines.Render)
	emitEngine("copy", stats.Engines.Blitter)
	emitEngine("video", stats.Engines.Video)
	emitEngine("video-enhance", stats.Engines.VideoEnhance)
	if stats.Engines.Compute != nil {
		emitEngine("compute", *stats.Engines.Compute)
	}

	ch <- prom.MustNewConstMetric(frequencyActualDesc, prom.GaugeValue, float64(stats.Frequency.ActualMHz))
	ch <- prom.MustNewConstMetric(frequencyRequestedDesc, prom.GaugeValue, float64(stats.Frequency.RequestedMHz))

	if stats.Power != nil {
		ch <- prom.MustNewConstMetric(powerWattsDesc, prom.GaugeValue, stats.Power.GPUWatts, "gpu")
		if stats.Power.PackageWatts != nil {
			ch <- prom.MustNewConstMetric(powerWattsDesc, prom.GaugeValue, *stats.Power.PackageWatts, "package")
		}
	}

	if stats.RC6 != nil {
		ch <- prom.MustNewConstMetric(rc6ResidencyDesc, prom.GaugeValue, stats.RC6.ResidencyPercent)
	}

	if stats.Temperature != nil {
		ch <- prom.MustNewConstMetric(temperatureDesc, prom.GaugeValue, stats.Temperature.GPUCelsius)
	}

	throttled := 0.0
	if stats.Throttle != nil && stats.Throttle.AnyThrottling() {
		throttled = 1.0
	}
	ch <- prom.MustNewConstMetric(throttledDesc, prom.GaugeValue, throttled)
}
