package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/dirgather/internal/metrics"
	"github.com/JakeFAU/dirgather/internal/progress"
	"github.com/JakeFAU/dirgather/internal/progress/sinks"
	"github.com/JakeFAU/dirgather/internal/resolver"
	"github.com/JakeFAU/dirgather/internal/store"
	"github.com/JakeFAU/dirgather/internal/telemetry"
	"github.com/JakeFAU/dirgather/internal/workdir"
)

// ResolverFactory builds the run's resolver for a DNS server endpoint.
type ResolverFactory func(server string) (Resolver, error)

// Deps carries the Gatherer's injected services. Every field is optional.
type Deps struct {
	Logger *zap.Logger
	Tracer trace.Tracer
	// Runs receives the run ledger and, through a store display, the final
	// progress counters.
	Runs store.RunRepository
	// Displays are added next to the terminal display when the aggregator runs.
	Displays []progress.Display
	// Out is where the terminal display draws; stdout when nil.
	Out io.Writer
	// ProgressSink replaces the built-in aggregator: collaborators emit into
	// it and no aggregator is started.
	ProgressSink    progress.Emitter
	ResolverFactory ResolverFactory
	Now             func() time.Time
}

// Gatherer runs the pipeline. Create one with New; Run may be called again
// after a previous Run returned, but never concurrently.
type Gatherer struct {
	cfg     Config
	collab  Collaborators
	logger  *zap.Logger
	tracer  trace.Tracer
	runs    store.RunRepository
	sink    progress.Emitter
	out     io.Writer
	extra   []progress.Display
	resolve ResolverFactory
	now     func() time.Time

	running atomic.Bool

	mu    sync.RWMutex
	state State
	runID uuid.UUID
	agg   *progress.Aggregator
}

// New validates cfg, applies defaults to zero-valued knobs and returns a
// Gatherer in StateInit.
func New(cfg Config, collab Collaborators, deps Deps) (*Gatherer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = telemetry.Tracer()
	}
	out := deps.Out
	if out == nil {
		out = os.Stdout
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	resolve := deps.ResolverFactory
	if resolve == nil {
		resolve = func(server string) (Resolver, error) {
			r, err := resolver.New(resolver.Config{Server: server, Logger: logger})
			if err != nil {
				return nil, err
			}
			return r, nil
		}
	}
	return &Gatherer{
		cfg:     cfg.withDefaults(),
		collab:  collab,
		logger:  logger,
		tracer:  tracer,
		runs:    deps.Runs,
		sink:    deps.ProgressSink,
		out:     out,
		extra:   append([]progress.Display(nil), deps.Displays...),
		resolve: resolve,
		now:     now,
		state:   StateInit,
	}, nil
}

// Config returns the configuration the Gatherer was built with, defaults applied.
func (g *Gatherer) Config() Config {
	return g.cfg
}

// State reports where the current or last run is.
func (g *Gatherer) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// RunID returns the id of the current or last run; zero before the first run.
func (g *Gatherer) RunID() uuid.UUID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.runID
}

// Progress returns the aggregator's counters for the current or last run.
// It is nil when no aggregator was started.
func (g *Gatherer) Progress() []progress.Counter {
	g.mu.RLock()
	agg := g.agg
	g.mu.RUnlock()
	if agg == nil {
		return nil
	}
	return agg.Snapshot()
}

func (g *Gatherer) setState(s State) {
	g.mu.Lock()
	g.state = s
	g.mu.Unlock()
}

type phaseStep struct {
	phase   Phase
	state   State
	applies func(*runState) bool
	run     func(context.Context, *runState) (any, error)
}

func (g *Gatherer) steps() []phaseStep {
	return []phaseStep{
		{
			phase:   PhaseDirectory,
			state:   StateDirectory,
			applies: func(st *runState) bool { return g.cfg.DirectoryURL != "" && !st.resumption },
			run:     g.runDirectory,
		},
		{
			phase:   PhaseDataEnum,
			state:   StateDataEnum,
			applies: func(*runState) bool { return g.cfg.DataURL != "" },
			run:     g.runData,
		},
		{
			phase:   PhaseShareContent,
			state:   StateShareContent,
			applies: func(*runState) bool { return g.cfg.DataURL != "" && g.cfg.ShareEnum },
			run:     g.runShares,
		},
		{
			phase:   PhaseEdgeCompute,
			state:   StateEdgeCompute,
			applies: func(*runState) bool { return g.cfg.CalcEdges },
			run:     g.runEdges,
		},
	}
}

// Run executes every applicable phase in order. It returns (true, nil) when
// all of them succeed, or (false, err) with a *SetupError or *PhaseError for
// the first failure. ctx is handed to collaborators; Run adds no deadline.
func (g *Gatherer) Run(ctx context.Context) (bool, error) {
	if !g.running.CompareAndSwap(false, true) {
		return false, &SetupError{Op: "run", Err: ErrAlreadyRunning}
	}
	defer g.running.Store(false)

	runID, err := uuid.NewV7()
	if err != nil {
		runID = uuid.New()
	}
	st := &runState{
		runID:      runID,
		resumption: g.cfg.Resuming(),
		datasetID:  g.cfg.DatasetID,
		graphID:    g.cfg.GraphID,
	}
	g.mu.Lock()
	g.runID = runID
	g.agg = nil
	g.state = StateInit
	g.mu.Unlock()

	ctx, span := g.tracer.Start(ctx, "gather.run", trace.WithAttributes(
		attribute.String("run_id", runID.String()),
		attribute.Bool("resumption", st.resumption),
	))
	defer span.End()

	logger := g.logger.With(zap.String("run_id", runID.String()))
	started := g.now()
	logger.Info("gather run starting",
		zap.Bool("resumption", st.resumption),
		zap.Bool("directory", g.cfg.DirectoryURL != ""),
		zap.Bool("data", g.cfg.DataURL != ""),
		zap.Bool("share_enum", g.cfg.ShareEnum),
		zap.Bool("calc_edges", g.cfg.CalcEdges))
	g.ledgerStart(ctx, logger, st, started)

	g.setState(StateSettingUp)
	if err := g.setup(ctx, logger, st); err != nil {
		return g.finish(ctx, logger, span, st, started, err)
	}

	for _, step := range g.steps() {
		if !step.applies(st) {
			logger.Debug("phase skipped", zap.String("phase", string(step.phase)))
			metrics.ObservePhase(string(step.phase), metrics.ResultSkipped, 0)
			g.ledgerPhase(ctx, logger, st, step.phase, store.PhaseSkipped, g.now(), nil)
			continue
		}
		g.setState(step.state)
		res := g.execute(ctx, logger, st, step)
		if !res.OK {
			return g.finish(ctx, logger, span, st, started, res.Err)
		}
		if out, ok := res.Outputs.(DirectoryResult); ok {
			st.datasetID = out.DatasetID
			st.graphID = out.GraphID
			logger.Info("directory phase produced identifiers",
				zap.String("dataset_id", st.datasetID),
				zap.String("graph_id", st.graphID))
		}
	}
	return g.finish(ctx, logger, span, st, started, nil)
}

func (g *Gatherer) execute(ctx context.Context, logger *zap.Logger, st *runState, step phaseStep) Result {
	phaseCtx, span := g.tracer.Start(ctx, "gather."+string(step.phase))
	defer span.End()

	logger.Info("phase starting", zap.String("phase", string(step.phase)))
	start := g.now()
	res := runPhase(phaseCtx, step.phase, func(ctx context.Context) (any, error) {
		return step.run(ctx, st)
	})
	finished := g.now()
	elapsed := finished.Sub(start)

	if !res.OK {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
		logger.Error("phase failed",
			zap.String("phase", string(step.phase)),
			zap.Duration("elapsed", elapsed),
			zap.Error(res.Err.Err))
		metrics.ObservePhase(string(step.phase), metrics.ResultError, elapsed)
		msg := res.Err.Error()
		g.ledgerPhase(ctx, logger, st, step.phase, store.PhaseFailed, start, &msg)
		return res
	}
	logger.Info("phase finished", zap.String("phase", string(step.phase)), zap.Duration("elapsed", elapsed))
	metrics.ObservePhase(string(step.phase), metrics.ResultSuccess, elapsed)
	g.ledgerPhase(ctx, logger, st, step.phase, store.PhaseSucceeded, start, nil)
	return res
}

// setup prepares the staging layout, the resolver and the progress
// aggregator. It must succeed before any phase starts.
func (g *Gatherer) setup(ctx context.Context, logger *zap.Logger, st *runState) error {
	if err := g.checkCollaborators(); err != nil {
		return err
	}

	layout, err := workdir.Prepare(g.cfg.WorkDir)
	if err != nil {
		return &SetupError{Op: "workdir", Err: err}
	}
	st.layout = layout
	logger.Debug("working directory ready", zap.String("root", layout.Root))

	if server := resolverEndpoint(g.cfg); server != "" {
		r, err := g.resolve(server)
		if err != nil {
			return &SetupError{Op: "resolver", Err: err}
		}
		st.resolver = r
		logger.Debug("resolver ready", zap.String("server", server))
	}

	switch {
	case g.sink != nil:
		st.emitter = g.sink
	case g.cfg.ShowProgress:
		g.startAggregator(ctx, logger, st)
	}
	return nil
}

func (g *Gatherer) checkCollaborators() error {
	var missing []error
	if g.cfg.DirectoryURL != "" && !g.cfg.Resuming() && g.collab.Directory == nil {
		missing = append(missing, fmt.Errorf("%s: %w", PhaseDirectory, ErrNoCollaborator))
	}
	if g.cfg.DataURL != "" && g.collab.Data == nil {
		missing = append(missing, fmt.Errorf("%s: %w", PhaseDataEnum, ErrNoCollaborator))
	}
	if g.cfg.DataURL != "" && g.cfg.ShareEnum && g.collab.Shares == nil {
		missing = append(missing, fmt.Errorf("%s: %w", PhaseShareContent, ErrNoCollaborator))
	}
	if g.cfg.CalcEdges && g.collab.Edges == nil {
		missing = append(missing, fmt.Errorf("%s: %w", PhaseEdgeCompute, ErrNoCollaborator))
	}
	if len(missing) > 0 {
		return &SetupError{Op: "collaborators", Err: errors.Join(missing...)}
	}
	return nil
}

func (g *Gatherer) startAggregator(ctx context.Context, logger *zap.Logger, st *runState) {
	categories := ActiveCategories(g.cfg)
	if len(categories) == 0 {
		logger.Debug("no progress categories for this run; aggregator not started")
		return
	}
	displays := []progress.Display{
		sinks.NewTerminalDisplay(sinks.TerminalConfig{Out: g.out, Categories: categories}),
	}
	displays = append(displays, g.extra...)
	if g.runs != nil {
		displays = append(displays, sinks.NewStoreDisplay(sinks.StoreDisplayConfig{
			Repo:   g.runs,
			RunID:  st.runID,
			Now:    g.now,
			Logger: logger,
		}))
	}
	agg := progress.NewAggregator(progress.AggregatorConfig{
		Categories: categories,
		Logger:     logger,
		OnDisplayError: func(*progress.DisplayError) {
			metrics.IncDisplayErrors()
		},
	}, displays...)
	ch := progress.NewChannel(logger)

	aggCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		agg.Run(aggCtx, ch)
	}()

	st.emitter = ch
	st.stop = func() {
		cancel()
		<-done
	}
	g.mu.Lock()
	g.agg = agg
	g.mu.Unlock()
}

func (g *Gatherer) finish(
	ctx context.Context,
	logger *zap.Logger,
	span trace.Span,
	st *runState,
	started time.Time,
	runErr error,
) (bool, error) {
	st.stopProgress()
	finished := g.now()

	status := store.RunSuccess
	var errMsg *string
	if runErr != nil {
		status = store.RunError
		msg := runErr.Error()
		errMsg = &msg
		g.setState(StateFailed)
		span.RecordError(runErr)
		span.SetStatus(codes.Error, msg)
		metrics.ObserveRun(metrics.ResultError)
		logger.Error("gather run failed", zap.Duration("elapsed", finished.Sub(started)), zap.Error(runErr))
	} else {
		g.setState(StateDone)
		span.SetStatus(codes.Ok, "")
		metrics.ObserveRun(metrics.ResultSuccess)
		logger.Info("gather run finished",
			zap.Duration("elapsed", finished.Sub(started)),
			zap.String("dataset_id", st.datasetID),
			zap.String("graph_id", st.graphID))
	}

	if g.runs != nil {
		if err := g.runs.CompleteRun(context.WithoutCancel(ctx), st.runID, finished, status, st.datasetID, st.graphID, errMsg); err != nil {
			logger.Warn("run ledger: complete failed", zap.Error(err))
		}
	}
	if runErr != nil {
		return false, runErr
	}
	return true, nil
}

func (g *Gatherer) ledgerStart(ctx context.Context, logger *zap.Logger, st *runState, started time.Time) {
	if g.runs == nil {
		return
	}
	err := g.runs.StartRun(ctx, store.Run{
		ID:        st.runID,
		DatasetID: st.datasetID,
		GraphID:   st.graphID,
		Resumed:   st.resumption,
		StartedAt: started,
		Status:    store.RunRunning,
	})
	if err != nil {
		logger.Warn("run ledger: start failed", zap.Error(err))
	}
}

func (g *Gatherer) ledgerPhase(
	ctx context.Context,
	logger *zap.Logger,
	st *runState,
	phase Phase,
	status store.PhaseStatus,
	started time.Time,
	errMsg *string,
) {
	if g.runs == nil {
		return
	}
	err := g.runs.RecordPhase(ctx, store.PhaseOutcome{
		RunID:        st.runID,
		Phase:        string(phase),
		Status:       status,
		StartedAt:    started,
		FinishedAt:   g.now(),
		ErrorMessage: errMsg,
	})
	if err != nil {
		logger.Warn("run ledger: phase record failed", zap.String("phase", string(phase)), zap.Error(err))
	}
}
