package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/dirgather/internal/store"
)

func TestStartRunInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewRunStoreWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	run := store.Run{
		ID:        uuid.New(),
		DatasetID: "42",
		Resumed:   true,
		StartedAt: now,
	}

	mock.ExpectExec("INSERT INTO gather_runs").
		WithArgs(run.ID, "42", "", true, now, store.RunRunning).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.StartRun(context.Background(), run))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordPhaseUpserts(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewRunStoreWithPool(mock)
	require.NoError(t, err)

	msg := "bind failed"
	outcome := store.PhaseOutcome{
		RunID:        uuid.New(),
		Phase:        "directory",
		Status:       store.PhaseFailed,
		StartedAt:    time.Unix(1700000000, 0).UTC(),
		FinishedAt:   time.Unix(1700000060, 0).UTC(),
		ErrorMessage: &msg,
	}

	mock.ExpectExec("INSERT INTO gather_phases").
		WithArgs(outcome.RunID, "directory", store.PhaseFailed, outcome.StartedAt, outcome.FinishedAt, &msg).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.RecordPhase(context.Background(), outcome))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertCategoryProgressWrapsErrors(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewRunStoreWithPool(mock)
	require.NoError(t, err)

	total := int64(10)
	p := store.CategoryProgress{
		RunID:     uuid.New(),
		Category:  "share_enum",
		Total:     &total,
		Consumed:  7,
		Finished:  true,
		UpdatedAt: time.Unix(1700000000, 0).UTC(),
	}
	boom := errors.New("connection reset")
	mock.ExpectExec("INSERT INTO gather_progress").
		WithArgs(p.RunID, "share_enum", &total, int64(7), true, p.UpdatedAt).
		WillReturnError(boom)

	err = s.UpsertCategoryProgress(context.Background(), p)
	require.Error(t, err)
	require.True(t, errors.Is(err, boom))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteRunMissingRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewRunStoreWithPool(mock)
	require.NoError(t, err)

	runID := uuid.New()
	mock.ExpectExec("UPDATE gather_runs").
		WithArgs(pgxmock.AnyArg(), store.RunSuccess, "42", "7", (*string)(nil), runID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = s.CompleteRun(context.Background(), runID, time.Now(), store.RunSuccess, "42", "7", nil)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRunScansRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewRunStoreWithPool(mock)
	require.NoError(t, err)

	runID := uuid.New()
	started := time.Unix(1700000000, 0).UTC()
	finished := started.Add(time.Minute)
	rows := pgxmock.NewRows([]string{
		"id", "dataset_id", "graph_id", "resumed", "started_at", "finished_at", "status", "error_message",
	}).AddRow(runID, "42", "7", false, started, &finished, store.RunSuccess, (*string)(nil))

	mock.ExpectQuery("SELECT id, dataset_id").WithArgs(runID).WillReturnRows(rows)

	run, err := s.GetRun(context.Background(), runID)
	require.NoError(t, err)
	require.Equal(t, runID, run.ID)
	require.Equal(t, "42", run.DatasetID)
	require.Equal(t, store.RunSuccess, run.Status)
	require.NotNil(t, run.FinishedAt)
	require.True(t, finished.Equal(*run.FinishedAt))
	require.Nil(t, run.ErrorMessage)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRunNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewRunStoreWithPool(mock)
	require.NoError(t, err)

	runID := uuid.New()
	mock.ExpectQuery("SELECT id, dataset_id").WithArgs(runID).WillReturnError(pgx.ErrNoRows)

	_, err = s.GetRun(context.Background(), runID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewRunStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS gather_runs").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, s.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRunStoreRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := NewRunStore(context.Background(), RunStoreConfig{})
	require.Error(t, err)

	_, err = NewRunStoreWithPool(nil)
	require.Error(t, err)
}
