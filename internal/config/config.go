/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type (
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	}

	// Monitor holds the settings that shape what gets sampled and how
	// often.
	Monitor struct {
		Card     string        `yaml:"card"`     // e.g. "card0"; empty means "first Intel GPU found"
		Interval time.Duration `yaml:"interval"` // sampling period for the stdout exporter
		Format   string        `yaml:"format"`   // "text" or "json" for the stdout exporter
	}

	// Prometheus holds the embedded metrics server's settings.
	Prometheus struct {
		Enabled bool   `yaml:"enabled"`
		Listen  string `yaml:"listen"`
	}

	Config struct {
		Log        Log        `yaml:"log"`
		Monitor    Monitor    `yaml:"monitor"`
		Prometheus Prometheus `yaml:"prometheus"`
	}
)

const (
	// Flags
	LogLevelFlag  = "log.level"
	LogFormatFlag = "log.format"

	CardFlag     = "monitor.card"
	IntervalFlag = "monitor.interval"
	FormatFlag   = "monitor.format"

	PrometheusEnabledFlag = "prometheus.enabled"
	PrometheusListenFlag  = "prometheus.listen"
)

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	cfg := &Config{
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Monitor: Monitor{
			Interval: time.Second,
			Format:   "text",
		},
		Prometheus: Prometheus{
			Enabled: false,
			Listen:  ":9101",
		},
	}

	return cfg
}

// Load loads configuration from an io.Reader
func Load(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.sanitize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// FromFile loads configuration from a file
func FromFile(filePath string) (*Config, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return Load(file)
}

type ConfigUpdaterFn func(*Config) error

// RegisterFlags registers command-line flags with kingpin app
// and returns ConfigUpdaterFn that updates the config from parsed flags
// as command line arguments override config file settings
func RegisterFlags(app *kingpin.Application) ConfigUpdaterFn {
	// track flags that were explicitly set
	flagsSet := map[string]bool{}

	app.PreAction(func(ctx *kingpin.ParseContext) error {
		// Clear the map in case this function is called multiple times
		flagsSet = map[string]bool{}

		for _, element := range ctx.Elements {
			if flag, ok := element.Clause.(*kingpin.FlagClause); ok && element.Value != nil {
				flagsSet[flag.Model().Name] = true
			}
		}
		return nil
	})

	// Logging
	logLevel := app.Flag(LogLevelFlag, "Logging level: debug, info, warn, error").Default("info").Enum("debug", "info", "warn", "error")
	logFormat := app.Flag(LogFormatFlag, "Logging format: text or json").Default("text").Enum("text", "json")

	// Monitor
	card := app.Flag(CardFlag, "GPU card to monitor, e.g. card0 (default: first Intel GPU found)").Default("").String()
	interval := app.Flag(IntervalFlag, "Sampling interval").Default("1s").Duration()
	outputFormat := app.Flag(FormatFlag, "Output format: text or json").Default("text").Enum("text", "json")

	// Prometheus
	promEnabled := app.Flag(PrometheusEnabledFlag, "Serve Prometheus metrics").Default("false").Bool()
	promListen := app.Flag(PrometheusListenFlag, "Prometheus listen address").Default(":9101").String()

	return func(cfg *Config) error {
		// Logging settings
		if flagsSet[LogLevelFlag] {
			cfg.Log.Level = *logLevel
		}

		if flagsSet[LogFormatFlag] {
			cfg.Log.Format = *logFormat
		}

		if flagsSet[CardFlag] {
			cfg.Monitor.Card = *card
		}
		if flagsSet[IntervalFlag] {
			cfg.Monitor.Interval = *interval
		}
		if flagsSet[FormatFlag] {
			cfg.Monitor.Format = *outputFormat
		}

		if flagsSet[PrometheusEnabledFlag] {
			cfg.Prometheus.Enabled = *promEnabled
		}
		if flagsSet[PrometheusListenFlag] {
			cfg.Prometheus.Listen = *promListen
		}

		cfg.sanitize()
		return cfg.Validate()
	}
}

func (c *Config) sanitize() {
	c.Log.Level = strings.TrimSpace(c.Log.Level)
	c.Log.Format = strings.TrimSpace(c.Log.Format)
	c.Monitor.Card = strings.TrimSpace(c.Monitor.Card)
	c.Monitor.Format = strings.TrimSpace(c.Monitor.Format)
	c.Prometheus.Listen = strings.TrimSpace(c.Prometheus.Listen)
}

// Validate checks for configuration errors
func (c *Config) Validate() error {
	var errs []string
	{ // log level

		validLogLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}

		// Validate logging settings
		if _, valid := validLogLevels[c.Log.Level]; !valid {
			errs = append(errs, fmt.Sprintf("invalid log level: %s", c.Log.Level))
		}
	}
	{ // log format
		validFormats := map[string]bool{
			"text": true,
			"json": true,
		}
		if _, valid := validFormats[c.Log.Format]; !valid {
			errs = append(errs, fmt.Sprintf("invalid log format: %s", c.Log.Format))
		}
	}
	{ // monitor output format
		validFormats := map[string]bool{
			"text": true,
			"json": true,
		}
		if _, valid := validFormats[c.Monitor.Format]; !valid {
			errs = append(errs, fmt.Sprintf("invalid monitor format: %s", c.Monitor.Format))
		}
	}
	{ // monitor interval
		if c.Monitor.Interval <= 0 {
			errs = append(errs, fmt.Sprintf("invalid monitor interval: %s", c.Monitor.Interval))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, ", "))
	}

	return nil
}

func (c *Config) String() string {
	bytes, err := yaml.Marshal(c)
	if err == nil {
		return string(bytes)
	}
	// NOTE:  this code path should not happen but if it does (i.e if yaml marshal) fails
	// for some reason, manually build the string
	return c.manualString()
}

func (c *Config) manualString() string {
	cfgs := []struct {
		Name  string
		Value string
	}{
		{LogLevelFlag, c.Log.Level},
		{LogFormatFlag, c.Log.Format},
		{CardFlag, c.Monitor.Card},
		{IntervalFlag, c.Monitor.Interval.String()},
		{FormatFlag, c.Monitor.Format},
		{PrometheusEnabledFlag, fmt.Sprintf("%t", c.Prometheus.Enabled)},
		{PrometheusListenFlag, c.Prometheus.Listen},
	}
	sb := strings.Builder{}

	for _, cfg := range cfgs {
		sb.WriteString(cfg.Name)
		sb.WriteString(": ")
		sb.WriteString(cfg.Value)
		sb.WriteString("\n")
	}

	return sb.String()
}
