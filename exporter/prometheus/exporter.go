package prometheus

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/igpu-go/igpustats/internal/service"
)

type (
	Initializer = service.Initializer
	Runner      = service.Runner
	Shutdowner  = service.Shutdowner
)

// Exporter serves GPU telemetry as Prometheus metrics over HTTP.
type Exporter struct {
	logger   *slog.Logger
	source   Source
	listen   string
	registry *prom.Registry
	server   *http.Server
}

var (
	_ Initializer = (*Exporter)(nil)
	_ Runner      = (*Exporter)(nil)
	_ Shutdowner  = (*Exporter)(nil)
)

type Opts struct {
	logger *slog.Logger
	listen string
}

// DefaultOpts returns an Opts with defaults set.
func DefaultOpts() Opts {
	return Opts{
		logger: slog.Default(),
		listen: ":9101",
	}
}

// OptionFn sets one option in Opts.
type OptionFn func(*Opts)

func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) { o.logger = logger }
}

func WithListen(addr string) OptionFn {
	return func(o *Opts) { o.listen = addr }
}

// NewExporter builds an Exporter serving metrics sampled from source.
func NewExporter(source Source, applyOpts ...OptionFn) *Exporter {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}

	return &Exporter{
		logger:   opts.logger.With("service", "prometheus"),
		source:   source,
		listen:   opts.listen,
		registry: prom.NewRegistry(),
	}
}

func (e *Exporter) Init() error {
	e.logger.Info("initializing prometheus exporter", "listen", e.listen)
	e.registry.MustRegister(collectors.NewGoCollector())
	e.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	e.registry.MustRegister(NewCollector(e.source, e.logger))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{
		Registry:          e.registry,
		EnableOpenMetrics: true,
	}))
	e.server = &http.Server{Addr: e.listen, Handler: mux}
	return nil
}

func (e *Exporter) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- e.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return e.Shutdown()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (e *Exporter) Shutdown() error {
	if e.server == nil {
		return nil
	}
	return e.server.Close()
}

// Name implements service.Service.
func (e *Exporter) Name() string { return "prometheus" }
