// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/dirgather/internal/store"
)

// RunStoreConfig controls the Postgres connection pool used for the run ledger.
type RunStoreConfig struct {
	DSN             string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// RunStore implements the store.RunRepository interface using Postgres.
type RunStore struct {
	pool querier
}

var _ store.RunRepository = (*RunStore)(nil)

// NewRunStore connects to the storage endpoint and returns a RunStore.
func NewRunStore(ctx context.Context, cfg RunStoreConfig) (*RunStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("storage dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &RunStore{pool: pool}, nil
}

// NewRunStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRunStoreWithPool(pool querier) (*RunStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &RunStore{pool: pool}, nil
}

// Close closes the underlying connection pool.
func (s *RunStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// StartRun inserts a new run row in running status.
func (s *RunStore) StartRun(ctx context.Context, run store.Run) error {
	query := `
		INSERT INTO gather_runs (id, dataset_id, graph_id, resumed, started_at, status)
		VALUES ($1, $2, $3, $4, $5, $6);
	`
	_, err := s.pool.Exec(ctx, query,
		run.ID, run.DatasetID, run.GraphID, run.Resumed, run.StartedAt, store.RunRunning)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// RecordPhase stores the outcome of one phase. Re-recording a phase replaces it.
func (s *RunStore) RecordPhase(ctx context.Context, outcome store.PhaseOutcome) error {
	query := `
		INSERT INTO gather_phases (run_id, phase, status, started_at, finished_at, error_message)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (run_id, phase) DO UPDATE
		SET status = EXCLUDED.status,
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at,
			error_message = EXCLUDED.error_message;
	`
	_, err := s.pool.Exec(ctx, query,
		outcome.RunID,
		outcome.Phase,
		outcome.Status,
		outcome.StartedAt,
		outcome.FinishedAt,
		outcome.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to record phase: %w", err)
	}
	return nil
}

// UpsertCategoryProgress stores the latest counter for a category. The stored
// total is only written once, matching the aggregator's first-total-wins rule.
func (s *RunStore) UpsertCategoryProgress(ctx context.Context, p store.CategoryProgress) error {
	query := `
		INSERT INTO gather_progress (run_id, category, total, consumed, finished, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (run_id, category) DO UPDATE
		SET total = COALESCE(gather_progress.total, EXCLUDED.total),
			consumed = GREATEST(gather_progress.consumed, EXCLUDED.consumed),
			finished = gather_progress.finished OR EXCLUDED.finished,
			updated_at = EXCLUDED.updated_at;
	`
	_, err := s.pool.Exec(ctx, query, p.RunID, p.Category, p.Total, p.Consumed, p.Finished, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert category progress: %w", err)
	}
	return nil
}

// CompleteRun marks a run as finished with a status and optional error message.
func (s *RunStore) CompleteRun(
	ctx context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	datasetID string,
	graphID string,
	errMsg *string,
) error {
	query := `
		UPDATE gather_runs
		SET finished_at = $1, status = $2, dataset_id = $3, graph_id = $4, error_message = $5
		WHERE id = $6;
	`
	res, err := s.pool.Exec(ctx, query, finishedAt, status, datasetID, graphID, errMsg, runID)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if res.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetRun retrieves a single run by its ID.
func (s *RunStore) GetRun(ctx context.Context, runID uuid.UUID) (store.Run, error) {
	query := `
		SELECT id, dataset_id, graph_id, resumed, started_at, finished_at, status, error_message
		FROM gather_runs
		WHERE id = $1;
	`
	run, err := scanRun(s.pool.QueryRow(ctx, query, runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves runs newest first, with optional status filtering.
func (s *RunStore) ListRuns(
	ctx context.Context,
	status *store.RunStatus,
	limit,
	offset int,
) ([]store.Run, error) {
	query := `
		SELECT id, dataset_id, graph_id, resumed, started_at, finished_at, status, error_message
		FROM gather_runs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.pool.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []store.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

// ListPhases retrieves the phase outcomes of one run in execution order.
func (s *RunStore) ListPhases(ctx context.Context, runID uuid.UUID) ([]store.PhaseOutcome, error) {
	query := `
		SELECT run_id, phase, status, started_at, finished_at, error_message
		FROM gather_phases
		WHERE run_id = $1
		ORDER BY started_at ASC;
	`
	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list phases: %w", err)
	}
	defer rows.Close()

	var phases []store.PhaseOutcome
	for rows.Next() {
		var p store.PhaseOutcome
		if err := rows.Scan(&p.RunID, &p.Phase, &p.Status, &p.StartedAt, &p.FinishedAt, &p.ErrorMessage); err != nil {
			return nil, fmt.Errorf("failed to scan phase row: %w", err)
		}
		phases = append(phases, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate phases: %w", err)
	}
	return phases, nil
}

// ListCategoryProgress retrieves the stored counters of one run.
func (s *RunStore) ListCategoryProgress(ctx context.Context, runID uuid.UUID) ([]store.CategoryProgress, error) {
	query := `
		SELECT run_id, category, total, consumed, finished, updated_at
		FROM gather_progress
		WHERE run_id = $1
		ORDER BY category ASC;
	`
	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list category progress: %w", err)
	}
	defer rows.Close()

	var out []store.CategoryProgress
	for rows.Next() {
		var p store.CategoryProgress
		if err := rows.Scan(&p.RunID, &p.Category, &p.Total, &p.Consumed, &p.Finished, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan category progress row: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate category progress: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (store.Run, error) {
	var run store.Run
	err := row.Scan(
		&run.ID,
		&run.DatasetID,
		&run.GraphID,
		&run.Resumed,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Status,
		&run.ErrorMessage,
	)
	return run, err
}
