// Package memory provides in-memory persistence for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/dirgather/internal/store"
)

// RunStore provides an in-memory run ledger.
type RunStore struct {
	mu       sync.RWMutex
	runs     map[uuid.UUID]store.Run
	phases   map[uuid.UUID][]store.PhaseOutcome
	progress map[uuid.UUID]map[string]store.CategoryProgress
}

var _ store.RunRepository = (*RunStore)(nil)

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{
		runs:     make(map[uuid.UUID]store.Run),
		phases:   make(map[uuid.UUID][]store.PhaseOutcome),
		progress: make(map[uuid.UUID]map[string]store.CategoryProgress),
	}
}

// StartRun stores a new run in running status.
func (s *RunStore) StartRun(_ context.Context, run store.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	run.Status = store.RunRunning
	run.FinishedAt = nil
	run.ErrorMessage = nil
	s.runs[run.ID] = run
	return nil
}

// RecordPhase appends or replaces the outcome of one phase.
func (s *RunStore) RecordPhase(_ context.Context, outcome store.PhaseOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[outcome.RunID]; !ok {
		return store.ErrNotFound
	}
	outcome.ErrorMessage = cloneString(outcome.ErrorMessage)
	phases := s.phases[outcome.RunID]
	for i := range phases {
		if phases[i].Phase == outcome.Phase {
			phases[i] = outcome
			return nil
		}
	}
	s.phases[outcome.RunID] = append(phases, outcome)
	return nil
}

// UpsertCategoryProgress keeps the first total and the largest consumed value.
func (s *RunStore) UpsertCategoryProgress(_ context.Context, p store.CategoryProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[p.RunID]; !ok {
		return store.ErrNotFound
	}
	byCategory := s.progress[p.RunID]
	if byCategory == nil {
		byCategory = make(map[string]store.CategoryProgress)
		s.progress[p.RunID] = byCategory
	}
	p.Total = cloneInt64(p.Total)
	if prev, ok := byCategory[p.Category]; ok {
		if prev.Total != nil {
			p.Total = prev.Total
		}
		if prev.Consumed > p.Consumed {
			p.Consumed = prev.Consumed
		}
		p.Finished = p.Finished || prev.Finished
	}
	byCategory[p.Category] = p
	return nil
}

// CompleteRun marks a run finished.
func (s *RunStore) CompleteRun(
	_ context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	datasetID string,
	graphID string,
	errMsg *string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return store.ErrNotFound
	}
	finished := finishedAt
	run.FinishedAt = &finished
	run.Status = status
	run.DatasetID = datasetID
	run.GraphID = graphID
	run.ErrorMessage = cloneString(errMsg)
	s.runs[runID] = run
	return nil
}

// GetRun returns a copy of the run.
func (s *RunStore) GetRun(_ context.Context, runID uuid.UUID) (store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return store.Run{}, store.ErrNotFound
	}
	return cloneRun(run), nil
}

// ListRuns returns runs newest first.
func (s *RunStore) ListRuns(_ context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Run, 0, len(s.runs))
	for _, run := range s.runs {
		if status != nil && run.Status != *status {
			continue
		}
		out = append(out, cloneRun(run))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if offset >= len(out) {
		return []store.Run{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// ListPhases returns the phases recorded for a run in insertion order.
func (s *RunStore) ListPhases(_ context.Context, runID uuid.UUID) ([]store.PhaseOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.runs[runID]; !ok {
		return nil, store.ErrNotFound
	}
	phases := s.phases[runID]
	out := make([]store.PhaseOutcome, len(phases))
	for i, p := range phases {
		p.ErrorMessage = cloneString(p.ErrorMessage)
		out[i] = p
	}
	return out, nil
}

// ListCategoryProgress returns stored counters sorted by category.
func (s *RunStore) ListCategoryProgress(_ context.Context, runID uuid.UUID) ([]store.CategoryProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.runs[runID]; !ok {
		return nil, store.ErrNotFound
	}
	out := make([]store.CategoryProgress, 0, len(s.progress[runID]))
	for _, p := range s.progress[runID] {
		p.Total = cloneInt64(p.Total)
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

func cloneRun(run store.Run) store.Run {
	if run.FinishedAt != nil {
		finished := *run.FinishedAt
		run.FinishedAt = &finished
	}
	run.ErrorMessage = cloneString(run.ErrorMessage)
	return run
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
