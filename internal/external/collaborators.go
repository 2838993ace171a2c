package external

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/dirgather/internal/pipeline"
	"github.com/JakeFAU/dirgather/internal/workpool"
)

// Config names one command per phase. Unset commands leave the phase without
// a collaborator.
type Config struct {
	Directory Command
	Data      Command
	Shares    Command
	Edges     Command
}

// Runner implements the pipeline collaborator interfaces by running commands.
type Runner struct {
	cfg    Config
	logger *zap.Logger
}

var (
	_ pipeline.DirectoryEnumerator = (*Runner)(nil)
	_ pipeline.DataEnumerator      = (*Runner)(nil)
	_ pipeline.ShareEnumerator     = (*Runner)(nil)
	_ pipeline.EdgeCalculator      = (*Runner)(nil)
)

// New builds a Runner.
func New(cfg Config, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{cfg: cfg, logger: logger}
}

// Collaborators returns the bundle for a Gatherer with only the configured
// phases filled in, so a missing command surfaces as a setup error.
func (r *Runner) Collaborators() pipeline.Collaborators {
	var c pipeline.Collaborators
	if r.cfg.Directory.Configured() {
		c.Directory = r
	}
	if r.cfg.Data.Configured() {
		c.Data = r
	}
	if r.cfg.Shares.Configured() {
		c.Shares = r
	}
	if r.cfg.Edges.Configured() {
		c.Edges = r
	}
	return c
}

type directoryRequest struct {
	Phase      string `json:"phase"`
	Endpoint   string `json:"endpoint"`
	StorageURL string `json:"storage_url"`
	WorkDir    string `json:"work_dir"`
	Workers    int    `json:"workers"`
}

// EnumerateDirectory runs the directory command. The command must report a
// result line carrying the dataset id.
func (r *Runner) EnumerateDirectory(ctx context.Context, req pipeline.DirectoryRequest) (pipeline.DirectoryResult, error) {
	var res pipeline.DirectoryResult
	sess := &session{
		phase:    pipeline.PhaseDirectory,
		resolver: req.Resolver,
		emitter:  req.Progress,
		result:   &res,
	}
	wire := directoryRequest{
		Phase:      string(pipeline.PhaseDirectory),
		Endpoint:   req.Endpoint,
		StorageURL: req.StorageURL,
		WorkDir:    req.WorkDir,
		Workers:    req.Workers,
	}
	if err := run(ctx, r.logger, r.cfg.Directory, wire, sess); err != nil {
		return pipeline.DirectoryResult{}, err
	}
	if res.DatasetID == "" {
		return pipeline.DirectoryResult{}, ErrNoResult
	}
	return res, nil
}

type dataRequest struct {
	Phase        string `json:"phase"`
	Endpoint     string `json:"endpoint"`
	DirectoryURL string `json:"directory_url,omitempty"`
	StorageURL   string `json:"storage_url"`
	WorkDir      string `json:"work_dir"`
	DatasetID    string `json:"dataset_id"`
	Workers      int    `json:"workers"`
}

// EnumerateData runs the data enumeration command.
func (r *Runner) EnumerateData(ctx context.Context, req pipeline.DataRequest) error {
	sess := &session{phase: pipeline.PhaseDataEnum, resolver: req.Resolver, emitter: req.Progress}
	wire := dataRequest{
		Phase:        string(pipeline.PhaseDataEnum),
		Endpoint:     req.Endpoint,
		DirectoryURL: req.DirectoryURL,
		StorageURL:   req.StorageURL,
		WorkDir:      req.WorkDir,
		DatasetID:    req.DatasetID,
		Workers:      req.Workers,
	}
	return run(ctx, r.logger, r.cfg.Data, wire, sess)
}

type shareRequest struct {
	Phase      string   `json:"phase"`
	Endpoint   string   `json:"endpoint"`
	StorageURL string   `json:"storage_url"`
	DatasetID  string   `json:"dataset_id"`
	Depth      int      `json:"depth"`
	Workers    int      `json:"workers"`
	Categories []string `json:"categories"`
}

// EnumerateShares runs the share-content command.
func (r *Runner) EnumerateShares(ctx context.Context, req pipeline.ShareRequest) error {
	sess := &session{phase: pipeline.PhaseShareContent, resolver: req.Resolver, emitter: req.Progress}
	wire := shareRequest{
		Phase:      string(pipeline.PhaseShareContent),
		Endpoint:   req.Endpoint,
		StorageURL: req.StorageURL,
		DatasetID:  req.DatasetID,
		Depth:      req.Depth,
		Workers:    req.Workers,
		Categories: req.Categories,
	}
	return run(ctx, r.logger, r.cfg.Shares, wire, sess)
}

type edgeRequest struct {
	Phase      string `json:"phase"`
	StorageURL string `json:"storage_url"`
	WorkDir    string `json:"work_dir"`
	DatasetID  string `json:"dataset_id"`
	GraphID    string `json:"graph_id"`
	BufferSize int    `json:"buffer_size"`
	Workers    int    `json:"workers"`
}

// CalculateEdges runs the edge command, occupying one slot of the shared
// pool when one is provided. The command is told the pool size so it can
// size its own parallelism.
func (r *Runner) CalculateEdges(ctx context.Context, req pipeline.EdgeRequest) error {
	sess := &session{phase: pipeline.PhaseEdgeCompute, emitter: req.Progress}
	wire := edgeRequest{
		Phase:      string(pipeline.PhaseEdgeCompute),
		StorageURL: req.StorageURL,
		WorkDir:    req.WorkDir,
		DatasetID:  req.DatasetID,
		GraphID:    req.GraphID,
		BufferSize: req.BufferSize,
	}
	task := func(ctx context.Context) error {
		return run(ctx, r.logger, r.cfg.Edges, wire, sess)
	}
	if req.Pool == nil {
		wire.Workers = 1
		return task(ctx)
	}
	wire.Workers = req.Pool.Size()
	if err := req.Pool.Run(ctx, workpool.Task(task)); err != nil {
		return fmt.Errorf("edge command: %w", err)
	}
	return nil
}
