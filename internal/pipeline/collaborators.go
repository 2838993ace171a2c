package pipeline

import (
	"context"

	"github.com/JakeFAU/dirgather/internal/progress"
)

// Resolver maps addresses to host names. It is shared by all phases of a run.
type Resolver interface {
	LookupAddr(ctx context.Context, addr string) (string, error)
}

// DirectoryRequest is handed to the directory enumerator.
type DirectoryRequest struct {
	Endpoint   string
	StorageURL string
	WorkDir    string
	Workers    int
	Resolver   Resolver
	// Progress may be nil.
	Progress progress.Emitter
}

// DirectoryResult carries the identifiers later phases are scoped to.
type DirectoryResult struct {
	DatasetID string
	GraphID   string
}

// DataRequest is handed to the data enumerator.
type DataRequest struct {
	Endpoint     string
	DirectoryURL string
	StorageURL   string
	WorkDir      string
	DatasetID    string
	Workers      int
	Resolver     Resolver
	Progress     progress.Emitter
}

// ShareRequest is handed to the share-content enumerator.
type ShareRequest struct {
	Endpoint   string
	StorageURL string
	DatasetID  string
	Depth      int
	Workers    int
	Categories []string
	Resolver   Resolver
	Progress   progress.Emitter
}

// EdgeRequest is handed to the edge calculator.
type EdgeRequest struct {
	StorageURL string
	WorkDir    string
	DatasetID  string
	GraphID    string
	BufferSize int
	// Pool may be nil.
	Pool     Pool
	Progress progress.Emitter
}

// DirectoryEnumerator walks the directory service.
type DirectoryEnumerator interface {
	EnumerateDirectory(ctx context.Context, req DirectoryRequest) (DirectoryResult, error)
}

// DataEnumerator enumerates hosts and shares of the data source.
type DataEnumerator interface {
	EnumerateData(ctx context.Context, req DataRequest) error
}

// ShareEnumerator walks share contents.
type ShareEnumerator interface {
	EnumerateShares(ctx context.Context, req ShareRequest) error
}

// EdgeCalculator computes and stores graph edges for a dataset.
type EdgeCalculator interface {
	CalculateEdges(ctx context.Context, req EdgeRequest) error
}

// Collaborators bundles the external components a Gatherer drives. Only the
// ones whose phase applies need to be set.
type Collaborators struct {
	Directory DirectoryEnumerator
	Data      DataEnumerator
	Shares    ShareEnumerator
	Edges     EdgeCalculator
}

// DirectoryFunc adapts a function to DirectoryEnumerator.
type DirectoryFunc func(ctx context.Context, req DirectoryRequest) (DirectoryResult, error)

// EnumerateDirectory calls f.
func (f DirectoryFunc) EnumerateDirectory(ctx context.Context, req DirectoryRequest) (DirectoryResult, error) {
	return f(ctx, req)
}

// DataFunc adapts a function to DataEnumerator.
type DataFunc func(ctx context.Context, req DataRequest) error

// EnumerateData calls f.
func (f DataFunc) EnumerateData(ctx context.Context, req DataRequest) error {
	return f(ctx, req)
}

// ShareFunc adapts a function to ShareEnumerator.
type ShareFunc func(ctx context.Context, req ShareRequest) error

// EnumerateShares calls f.
func (f ShareFunc) EnumerateShares(ctx context.Context, req ShareRequest) error {
	return f(ctx, req)
}

// EdgeFunc adapts a function to EdgeCalculator.
type EdgeFunc func(ctx context.Context, req EdgeRequest) error

// CalculateEdges calls f.
func (f EdgeFunc) CalculateEdges(ctx context.Context, req EdgeRequest) error {
	return f(ctx, req)
}
