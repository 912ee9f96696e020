package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/appraisal-precheck/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_RegisterRun_New(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(pgxmock.AnyArg(), "appr-1", "PENDING", "key-1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, created, err := s.RegisterRun(context.Background(), "appr-1", "key-1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, model.RunPending, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RegisterRun_ExistingKey(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	created := time.Now().UTC()

	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(pgxmock.AnyArg(), "appr-1", "PENDING", "key-1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery(`SELECT .+ FROM runs WHERE appraisal_id = \$1 AND idempotency_key = \$2`).
		WithArgs("appr-1", "key-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "appraisal_id", "status", "idempotency_key", "outputs", "created_at", "started_at", "completed_at",
		}).AddRow("run-1", "appr-1", "PENDING", "key-1", []byte(nil), created, (*time.Time)(nil), (*time.Time)(nil)))

	run, wasCreated, err := s.RegisterRun(context.Background(), "appr-1", "key-1")
	require.NoError(t, err)
	assert.False(t, wasCreated)
	assert.Equal(t, "run-1", run.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM runs WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrRunNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkRunning_InvalidTransition(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	created := time.Now().UTC()

	mock.ExpectExec(`UPDATE runs SET status = \$1, started_at = \$2`).
		WithArgs("RUNNING", pgxmock.AnyArg(), "run-1", "PENDING").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT .+ FROM runs WHERE id = \$1`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "appraisal_id", "status", "idempotency_key", "outputs", "created_at", "started_at", "completed_at",
		}).AddRow("run-1", "appr-1", "COMPLETED", "key-1", []byte(nil), created, (*time.Time)(nil), (*time.Time)(nil)))

	err := s.MarkRunning(context.Background(), "run-1")
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendEvent(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO ledger_events`).
		WithArgs("ev-1", "appr-1", "run-1", model.NodeScoring, "v1",
			nil, `{"total_score":84}`, nil, "ok", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.AppendEvent(context.Background(), &model.LedgerEvent{
		ID:            "ev-1",
		AppraisalID:   "appr-1",
		PipelineRunID: "run-1",
		NodeName:      model.NodeScoring,
		SchemaVersion: model.SchemaVersion,
		Output:        map[string]any{"total_score": 84},
		Status:        model.EventOK,
		Timestamp:     time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
