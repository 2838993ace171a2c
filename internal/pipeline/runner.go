package pipeline

import (
	"context"
	"fmt"
)

// Phase names one step of the pipeline.
type Phase string

// Phases in execution order.
const (
	PhaseDirectory    Phase = "directory"
	PhaseDataEnum     Phase = "data_enum"
	PhaseShareContent Phase = "share_content"
	PhaseEdgeCompute  Phase = "edge_compute"
)

// Result is what every phase runner returns. Err is set exactly when OK is
// false; Outputs is phase specific and only the directory phase sets it.
type Result struct {
	OK      bool
	Err     *PhaseError
	Outputs any
}

// runPhase invokes fn once and converts an error or a panic into a failed
// Result tagged with phase. Nothing is retried.
func runPhase(ctx context.Context, phase Phase, fn func(context.Context) (any, error)) (res Result) {
	defer func() {
		if rec := recover(); rec != nil {
			res = Result{Err: &PhaseError{Phase: phase, Err: fmt.Errorf("panic: %v", rec)}}
		}
	}()
	out, err := fn(ctx)
	if err != nil {
		return Result{Err: &PhaseError{Phase: phase, Err: err}}
	}
	return Result{OK: true, Outputs: out}
}

func (g *Gatherer) runDirectory(ctx context.Context, st *runState) (any, error) {
	res, err := g.collab.Directory.EnumerateDirectory(ctx, DirectoryRequest{
		Endpoint:   g.cfg.DirectoryURL,
		StorageURL: g.cfg.StorageURL,
		WorkDir:    st.layout.Directory,
		Workers:    g.cfg.DirectoryWorkers,
		Resolver:   st.resolver,
		Progress:   st.emitter,
	})
	if err != nil {
		return nil, err
	}
	if res.DatasetID == "" {
		return nil, ErrNoDatasetID
	}
	return res, nil
}

func (g *Gatherer) runData(ctx context.Context, st *runState) (any, error) {
	return nil, g.collab.Data.EnumerateData(ctx, DataRequest{
		Endpoint:     g.cfg.DataURL,
		DirectoryURL: g.cfg.DirectoryURL,
		StorageURL:   g.cfg.StorageURL,
		WorkDir:      st.layout.DataEnum,
		DatasetID:    st.datasetID,
		Workers:      g.cfg.DataWorkers,
		Resolver:     st.resolver,
		Progress:     st.emitter,
	})
}

func (g *Gatherer) runShares(ctx context.Context, st *runState) (any, error) {
	return nil, g.collab.Shares.EnumerateShares(ctx, ShareRequest{
		Endpoint:   g.cfg.DataURL,
		StorageURL: g.cfg.StorageURL,
		DatasetID:  st.datasetID,
		Depth:      g.cfg.ShareDepth,
		Workers:    g.cfg.DataWorkers,
		Categories: append([]string(nil), g.cfg.ShareCategories...),
		Resolver:   st.resolver,
		Progress:   st.emitter,
	})
}

func (g *Gatherer) runEdges(ctx context.Context, st *runState) (any, error) {
	return nil, g.collab.Edges.CalculateEdges(ctx, EdgeRequest{
		StorageURL: g.cfg.StorageURL,
		WorkDir:    st.layout.Root,
		DatasetID:  st.datasetID,
		GraphID:    st.graphID,
		BufferSize: EdgeBufferSize,
		Pool:       g.cfg.Pool,
		Progress:   st.emitter,
	})
}
