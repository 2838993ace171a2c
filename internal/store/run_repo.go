// Package store declares interfaces for persisting gathering runs.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("run record not found")

// RunStatus mirrors the gather_runs status column.
type RunStatus string

// Run statuses persisted in gather_runs.status.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// PhaseStatus mirrors the gather_phases status column.
type PhaseStatus string

// Phase outcomes persisted in gather_phases.status.
const (
	PhaseSucceeded PhaseStatus = "succeeded"
	PhaseFailed    PhaseStatus = "failed"
	PhaseSkipped   PhaseStatus = "skipped"
)

// Run models one row of gather_runs.
type Run struct {
	// ID is the UUIDv7 generated when the run starts.
	ID uuid.UUID
	// DatasetID is the enumeration dataset the run produced or resumed.
	DatasetID string
	// GraphID is the relationship graph consumed by edge computation.
	GraphID string
	// Resumed is true when the directory phase was skipped.
	Resumed bool
	// StartedAt captures when the run entered setup.
	StartedAt time.Time
	// FinishedAt is nil until the run reaches done or failed.
	FinishedAt *time.Time
	// Status is running/success/error.
	Status RunStatus
	// ErrorMessage optionally stores the final failure reason.
	ErrorMessage *string
}

// PhaseOutcome records how one pipeline phase ended.
type PhaseOutcome struct {
	RunID        uuid.UUID
	Phase        string
	Status       PhaseStatus
	StartedAt    time.Time
	FinishedAt   time.Time
	ErrorMessage *string
}

// CategoryProgress is the last known counter for one progress category.
type CategoryProgress struct {
	RunID     uuid.UUID
	Category  string
	Total     *int64
	Consumed  int64
	Finished  bool
	UpdatedAt time.Time
}

// RunRepository persists the run ledger.
type RunRepository interface {
	// StartRun inserts a new run in running status.
	StartRun(ctx context.Context, run Run) error
	// RecordPhase stores the outcome of one phase.
	RecordPhase(ctx context.Context, outcome PhaseOutcome) error
	// UpsertCategoryProgress stores the latest counter for a category.
	UpsertCategoryProgress(ctx context.Context, p CategoryProgress) error
	// CompleteRun marks the run finished and records the identifiers it ended with.
	CompleteRun(
		ctx context.Context,
		runID uuid.UUID,
		finishedAt time.Time,
		status RunStatus,
		datasetID string,
		graphID string,
		errMsg *string,
	) error

	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, runID uuid.UUID) (Run, error)
	// ListRuns returns runs filtered by optional status plus limit/offset.
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]Run, error)
	// ListPhases returns the recorded phase outcomes of one run in order.
	ListPhases(ctx context.Context, runID uuid.UUID) ([]PhaseOutcome, error)
	// ListCategoryProgress returns the stored counters of one run.
	ListCategoryProgress(ctx context.Context, runID uuid.UUID) ([]CategoryProgress, error)
}
