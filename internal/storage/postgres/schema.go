package postgres

import (
	"context"
	"fmt"
)

// Schema creates the run ledger tables when they do not exist yet.
const Schema = `
CREATE TABLE IF NOT EXISTS gather_runs (
	id            UUID PRIMARY KEY,
	dataset_id    TEXT NOT NULL DEFAULT '',
	graph_id      TEXT NOT NULL DEFAULT '',
	resumed       BOOLEAN NOT NULL DEFAULT FALSE,
	started_at    TIMESTAMPTZ NOT NULL,
	finished_at   TIMESTAMPTZ,
	status        TEXT NOT NULL,
	error_message TEXT
);

CREATE TABLE IF NOT EXISTS gather_phases (
	run_id        UUID NOT NULL REFERENCES gather_runs (id) ON DELETE CASCADE,
	phase         TEXT NOT NULL,
	status        TEXT NOT NULL,
	started_at    TIMESTAMPTZ NOT NULL,
	finished_at   TIMESTAMPTZ NOT NULL,
	error_message TEXT,
	PRIMARY KEY (run_id, phase)
);

CREATE TABLE IF NOT EXISTS gather_progress (
	run_id     UUID NOT NULL REFERENCES gather_runs (id) ON DELETE CASCADE,
	category   TEXT NOT NULL,
	total      BIGINT,
	consumed   BIGINT NOT NULL DEFAULT 0,
	finished   BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, category)
);
`

// EnsureSchema applies Schema. It is idempotent.
func (s *RunStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply run ledger schema: %w", err)
	}
	return nil
}
