// Package app builds and holds the long-lived services of one gatherer
// process, acting as its dependency injection container.
package app

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/dirgather/internal/api"
	"github.com/JakeFAU/dirgather/internal/config"
	"github.com/JakeFAU/dirgather/internal/external"
	"github.com/JakeFAU/dirgather/internal/logging"
	"github.com/JakeFAU/dirgather/internal/metrics"
	"github.com/JakeFAU/dirgather/internal/pipeline"
	"github.com/JakeFAU/dirgather/internal/progress"
	"github.com/JakeFAU/dirgather/internal/progress/sinks"
	"github.com/JakeFAU/dirgather/internal/storage/memory"
	"github.com/JakeFAU/dirgather/internal/storage/postgres"
	"github.com/JakeFAU/dirgather/internal/store"
	"github.com/JakeFAU/dirgather/internal/telemetry"
)

// Options overrides pieces of the container, mostly for tests.
type Options struct {
	// Logger replaces the logger built from cfg.Logging.
	Logger *zap.Logger
	// Out is where progress bars are drawn; stdout when nil.
	Out io.Writer
	// Collaborators replaces the command-backed phases.
	Collaborators *pipeline.Collaborators
	// Registerer receives the progress gauges; the default registry when nil.
	Registerer prometheus.Registerer
	// SpanExporters receive the run's spans when telemetry is enabled.
	SpanExporters []sdktrace.SpanExporter
}

// App holds the shared services of a gatherer process.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	ledger   store.RunRepository
	pgLedger *postgres.RunStore
	gatherer *pipeline.Gatherer
	status   *api.Server

	tracerShutdown func(context.Context) error
	closeOnce      sync.Once
}

// Build creates the application's dependencies. It fails fast when any
// required service cannot be initialized.
func Build(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		var err error
		logger, err = logging.New(cfg.Logging.Development, cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
	}
	a := &App{cfg: cfg, logger: logger}
	a.logger.Info("building application dependencies")
	metrics.Init()

	var deps pipeline.Deps
	deps.Logger = logger.Named("gather")
	deps.Out = opts.Out

	if cfg.Telemetry.Enabled {
		tp, err := telemetry.InitTracerProvider(ctx, cfg.Telemetry.ServiceName, opts.SpanExporters...)
		if err != nil {
			return nil, fmt.Errorf("tracer init failed: %w", err)
		}
		a.tracerShutdown = tp.Shutdown
		deps.Tracer = tp.Tracer(telemetry.TracerName)
	}

	if err := a.setupLedger(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	deps.Runs = a.ledger

	displays, err := a.setupDisplays(opts.Registerer)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	deps.Displays = displays

	collab := external.New(cfg.External(), logger.Named("command")).Collaborators()
	if opts.Collaborators != nil {
		collab = *opts.Collaborators
	}

	a.gatherer, err = pipeline.New(cfg.Pipeline(), collab, deps)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("gatherer init failed: %w", err)
	}

	if cfg.Status.Addr != "" {
		a.status = api.NewServer(a.gatherer, a.ledger, logger.Named("api"))
	}
	return a, nil
}

func (a *App) setupLedger(ctx context.Context) error {
	if !a.cfg.Ledger.Enabled {
		a.logger.Info("run ledger disabled")
		return nil
	}
	if a.cfg.Ledger.DSN == "" {
		a.logger.Info("using in-memory run ledger")
		a.ledger = memory.NewRunStore()
		return nil
	}
	pg, err := postgres.NewRunStore(ctx, postgres.RunStoreConfig{
		DSN:      a.cfg.Ledger.DSN,
		MaxConns: a.cfg.Ledger.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("run ledger init failed: %w", err)
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		pg.Close()
		return fmt.Errorf("run ledger schema: %w", err)
	}
	a.pgLedger = pg
	a.ledger = pg
	a.logger.Info("postgres run ledger initialized")
	return nil
}

func (a *App) setupDisplays(reg prometheus.Registerer) ([]progress.Display, error) {
	displays := []progress.Display{sinks.NewLogDisplay(a.logger.Named("progress"))}
	if a.cfg.Status.Addr == "" {
		return displays, nil
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	prom, err := sinks.NewPrometheusDisplay(reg)
	if err != nil {
		return nil, fmt.Errorf("progress gauges: %w", err)
	}
	return append(displays, prom), nil
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Gatherer returns the pipeline orchestrator.
func (a *App) Gatherer() *pipeline.Gatherer {
	return a.gatherer
}

// Ledger returns the run ledger; nil when disabled.
func (a *App) Ledger() store.RunRepository {
	return a.ledger
}

// Run executes one gathering run. The status server, when configured, is up
// for the duration of the run.
func (a *App) Run(ctx context.Context) (bool, error) {
	var (
		wg        sync.WaitGroup
		serverErr error
		stop      = func() {}
	)
	if a.status != nil {
		serveCtx, cancel := context.WithCancel(ctx)
		stop = cancel
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.status.Serve(serveCtx, a.cfg.Status.Addr); err != nil {
				a.logger.Error("status server error", zap.Error(err))
				serverErr = err
			}
		}()
	}

	ok, err := a.gatherer.Run(ctx)
	stop()
	wg.Wait()
	if err == nil && serverErr != nil {
		a.logger.Warn("run finished but status server failed", zap.Error(serverErr))
	}
	return ok, err
}

// Close gracefully shuts down the application. Safe to call more than once.
func (a *App) Close(ctx context.Context) {
	a.closeOnce.Do(func() {
		a.closeInfrastructure()
		a.logger.Info("shutdown complete")
		a.closeObservability(ctx)
	})
}

func (a *App) closeInfrastructure() {
	if a.pgLedger != nil {
		a.pgLedger.Close()
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	// Sync on a terminal stderr fails with EINVAL; not worth a warning.
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
}
