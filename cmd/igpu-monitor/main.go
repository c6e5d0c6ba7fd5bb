// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kingpin/v2"

	"github.com/igpu-go/igpustats"
	"github.com/igpu-go/igpustats/internal/config"
	"github.com/igpu-go/igpustats/internal/logger"
	"github.com/igpu-go/igpustats/internal/service"
	"github.com/igpu-go/igpustats/internal/version"

	promexporter "github.com/igpu-go/igpustats/exporter/prometheus"
	stdoutexporter "github.com/igpu-go/igpustats/exporter/stdout"
)

func main() {
	cfg, command, err := parseArgsAndConfig()
	if err != nil {
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	logVersionInfo(log)

	switch command {
	case "list":
		os.Exit(runList(log))
	default:
		os.Exit(runMonitor(log, cfg))
	}
}

func parseArgsAndConfig() (*config.Config, string, error) {
	const appName = "igpu-monitor"
	app := kingpin.New(appName, "Intel GPU telemetry monitor.")

	configFile := app.Flag("config.file", "Path to YAML configuration file").String()
	updateConfig := config.RegisterFlags(app)

	app.Command("monitor", "Continuously sample and display GPU telemetry (default).").Default()
	app.Command("list", "List Intel GPUs found on this host and exit.")

	command, err := app.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return nil, "", err
	}

	log := logger.New("info", "text", os.Stderr)
	cfg := config.DefaultConfig()
	if *configFile != "" {
		loadedCfg, err := config.FromFile(*configFile)
		if err != nil {
			log.Error("failed to load config file", "path", *configFile, "error", err)
			return nil, "", err
		}
		cfg = loadedCfg
	}

	if err := updateConfig(cfg); err != nil {
		log.Error("failed to apply command line flags", "error", err)
		return nil, "", err
	}

	return cfg, command, nil
}

func logVersionInfo(log *slog.Logger) {
	v := version.Info()
	log.Info("igpu-monitor version information",
		"version", v.Version,
		"buildTime", v.BuildTime,
		"gitBranch", v.GitBranch,
		"gitCommit", v.GitCommit,
		"goVersion", v.GoVersion,
		"goOS", v.GoOS,
		"goArch", v.GoArch,
	)
}

// runList implements the `list` subcommand: enumerate every Intel GPU
// and report which capabilities each one exposes, without entering the
// sampling loop.
func runList(log *slog.Logger) int {
	gpus, err := igpustats.ListGPUs()
	if err != nil {
		log.Error("failed to list GPUs", "error", err)
		return 1
	}
	if len(gpus) == 0 {
		fmt.Println("No Intel GPU found.")
		fmt.Println("Make sure the i915 or xe driver is loaded and /sys/class/drm exists.")
		return 1
	}

	fmt.Printf("Found %d Intel GPU(s):\n\n", len(gpus))
	for _, info := range gpus {
		fmt.Printf("%s\n", info.ID)
		fmt.Printf("  Vendor ID:   0x%04x\n", info.VendorID)
		fmt.Printf("  Device ID:   0x%04x\n", info.DeviceID)
		if info.DeviceName != "" {
			fmt.Printf("  Device Name: %s\n", info.DeviceName)
		}
		fmt.Printf("  Driver:      %s\n", info.Driver)
		if info.CardNode != "" {
			fmt.Printf("  Card Node:   %s\n", info.CardNode)
		}
		if info.RenderNode != "" {
			fmt.Printf("  Render Node: %s\n", info.RenderNode)
		}

		gpu, err := igpustats.Open(info.ID)
		if err != nil {
			fmt.Printf("  Status:      error opening adapter: %v\n", err)
			fmt.Println()
			continue
		}
		fmt.Printf("  Status:      OK\n")
		if gpu.HasComputeEngine() {
			fmt.Println("  - Has compute engine (Intel Arc)")
		}
		if gpu.HasPower() {
			fmt.Println("  - Has power telemetry")
		}
		if gpu.HasTemperature() {
			fmt.Println("  - Has temperature sensor")
		}
		if gpu.HasThrottle() {
			fmt.Println("  - Has throttle-reason telemetry")
		}
		_ = gpu.Close()
		fmt.Println()
	}
	return 0
}

// runMonitor implements the `monitor` subcommand (also the default
// command): open an adapter, wire up the configured exporters, and run
// until interrupted.
func runMonitor(log *slog.Logger, cfg *config.Config) int {
	var gpu *igpustats.IntelGpu
	var err error
	if cfg.Monitor.Card != "" {
		gpu, err = igpustats.Open(cfg.Monitor.Card)
	} else {
		gpu, err = igpustats.Detect()
	}
	if err != nil {
		log.Error("failed to open Intel GPU", "error", err)
		if permErr, ok := err.(igpustats.ErrPermissionDenied); ok {
			log.Error("permission remediation",
				"event", permErr.Event,
				"hint", "run as root, join the 'render' group, or grant CAP_PERFMON")
		}
		return 1
	}

	info := gpu.GpuInfo()
	log.Info("opened Intel GPU", "card", info.ID, "driver", info.Driver, "device", info.DeviceName)

	services := []service.Service{gpu}
	services = append(services, stdoutexporter.NewExporter(gpu,
		stdoutexporter.WithLogger(log),
		stdoutexporter.WithInterval(cfg.Monitor.Interval),
		stdoutexporter.WithFormat(cfg.Monitor.Format),
	))
	if cfg.Prometheus.Enabled {
		services = append(services, promexporter.NewExporter(gpu,
			promexporter.WithLogger(log),
			promexporter.WithListen(cfg.Prometheus.Listen),
		))
	}
	services = append(services, service.NewSignalHandler(os.Interrupt))

	if err := service.Init(log, services); err != nil {
		log.Error("failed to initialize services", "error", err)
		return 1
	}

	log.Info("starting igpu-monitor")
	if err := service.Run(context.Background(), log, services); err != nil {
		log.Error("igpu-monitor terminated with an error", "error", err)
		return 1
	}
	log.Info("graceful shutdown completed")
	return 0
}
