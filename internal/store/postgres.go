package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/appraisal-precheck/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY,
	appraisal_id    TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'PENDING',
	idempotency_key TEXT NOT NULL,
	outputs         JSONB,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at      TIMESTAMPTZ,
	completed_at    TIMESTAMPTZ,
	UNIQUE (appraisal_id, idempotency_key)
);

CREATE TABLE IF NOT EXISTS ledger_events (
	id                 TEXT PRIMARY KEY,
	appraisal_id       TEXT NOT NULL,
	pipeline_run_id    TEXT NOT NULL REFERENCES runs(id),
	node_name          TEXT NOT NULL,
	schema_version     TEXT NOT NULL,
	input_refs         JSONB,
	output             JSONB,
	confidence_summary JSONB,
	status             TEXT NOT NULL,
	error              TEXT,
	timestamp          TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_appraisal_id ON runs(appraisal_id);
CREATE INDEX IF NOT EXISTS idx_runs_status_completed ON runs(status, completed_at DESC);
CREATE INDEX IF NOT EXISTS idx_ledger_appraisal_id ON ledger_events(appraisal_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_ledger_run_id ON ledger_events(pipeline_run_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const pgRunColumns = `id, appraisal_id, status, idempotency_key, outputs, created_at, started_at, completed_at`

func (s *PostgresStore) RegisterRun(ctx context.Context, appraisalID, idempotencyKey string) (*model.PipelineRun, bool, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, appraisal_id, status, idempotency_key, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (appraisal_id, idempotency_key) DO NOTHING`,
		id, appraisalID, string(model.RunPending), idempotencyKey, now,
	)
	if err != nil {
		return nil, false, eris.Wrap(err, "postgres: register run")
	}

	if tag.RowsAffected() == 0 {
		run, err := s.scanOneRun(s.pool.QueryRow(ctx,
			`SELECT `+pgRunColumns+` FROM runs WHERE appraisal_id = $1 AND idempotency_key = $2`,
			appraisalID, idempotencyKey,
		))
		return run, false, err
	}

	return &model.PipelineRun{
		ID:             id,
		AppraisalID:    appraisalID,
		Status:         model.RunPending,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      now,
	}, true, nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.PipelineRun, error) {
	return s.scanOneRun(s.pool.QueryRow(ctx,
		`SELECT `+pgRunColumns+` FROM runs WHERE id = $1`,
		runID,
	))
}

func (s *PostgresStore) ListRuns(ctx context.Context, appraisalID string) ([]model.PipelineRun, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgRunColumns+` FROM runs WHERE appraisal_id = $1 ORDER BY created_at DESC`,
		appraisalID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()
	return s.collectRuns(rows)
}

func (s *PostgresStore) ListCompletedRuns(ctx context.Context, limit int) ([]model.PipelineRun, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgRunColumns+` FROM runs WHERE status = $1 ORDER BY completed_at DESC LIMIT $2`,
		string(model.RunCompleted), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list completed runs")
	}
	defer rows.Close()
	return s.collectRuns(rows)
}

func (s *PostgresStore) MarkRunning(ctx context.Context, runID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, started_at = $2 WHERE id = $3 AND status = $4`,
		string(model.RunRunning), time.Now().UTC(), runID, string(model.RunPending),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark running %s", runID)
	}
	return s.checkTransition(ctx, tag.RowsAffected(), runID)
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, outputs *model.RunOutputs) error {
	outputsJSON, err := json.Marshal(outputs)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal outputs")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, outputs = $2, completed_at = $3 WHERE id = $4 AND status = $5`,
		string(model.RunCompleted), outputsJSON, time.Now().UTC(), runID, string(model.RunRunning),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	return s.checkTransition(ctx, tag.RowsAffected(), runID)
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, runErr string) error {
	outputsJSON, err := json.Marshal(&model.RunOutputs{Error: runErr})
	if err != nil {
		return eris.Wrap(err, "postgres: marshal failure outputs")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, outputs = $2, completed_at = $3 WHERE id = $4 AND status = $5`,
		string(model.RunFailed), outputsJSON, time.Now().UTC(), runID, string(model.RunRunning),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	return s.checkTransition(ctx, tag.RowsAffected(), runID)
}

func (s *PostgresStore) checkTransition(ctx context.Context, affected int64, runID string) error {
	if affected > 0 {
		return nil
	}
	if _, err := s.GetRun(ctx, runID); err != nil {
		return err
	}
	return eris.Wrapf(ErrInvalidTransition, "run %s", runID)
}

func (s *PostgresStore) AppendEvent(ctx context.Context, event *model.LedgerEvent) error {
	inputRefs, output, confSummary, err := marshalEventPayloads(event)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO ledger_events
		 (id, appraisal_id, pipeline_run_id, node_name, schema_version, input_refs, output, confidence_summary, status, error, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		event.ID, event.AppraisalID, event.PipelineRunID, event.NodeName, event.SchemaVersion,
		inputRefs, output, confSummary, string(event.Status), event.Error, event.Timestamp,
	)
	return eris.Wrap(err, "postgres: append event")
}

func (s *PostgresStore) ListEvents(ctx context.Context, appraisalID, runID string) ([]model.LedgerEvent, error) {
	query := `SELECT id, appraisal_id, pipeline_run_id, node_name, schema_version, input_refs, output, confidence_summary, status, error, timestamp
	          FROM ledger_events WHERE appraisal_id = $1`
	args := []any{appraisalID}
	if runID != "" {
		query += ` AND pipeline_run_id = $2`
		args = append(args, runID)
	}
	query += ` ORDER BY timestamp ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list events")
	}
	defer rows.Close()

	var events []model.LedgerEvent
	for rows.Next() {
		var ev model.LedgerEvent
		var inputRefs, output, confSummary []byte
		var errText *string
		if err := rows.Scan(&ev.ID, &ev.AppraisalID, &ev.PipelineRunID, &ev.NodeName, &ev.SchemaVersion,
			&inputRefs, &output, &confSummary, &ev.Status, &errText, &ev.Timestamp); err != nil {
			return nil, eris.Wrap(err, "postgres: scan event")
		}
		if err := unmarshalEventPayloads(&ev, string(inputRefs), string(output), string(confSummary)); err != nil {
			return nil, err
		}
		if errText != nil {
			ev.Error = *errText
		}
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "postgres: list events iterate")
}

func (s *PostgresStore) scanOneRun(row pgx.Row) (*model.PipelineRun, error) {
	var r model.PipelineRun
	var outputsJSON []byte
	var startedAt, completedAt *time.Time

	err := row.Scan(&r.ID, &r.AppraisalID, &r.Status, &r.IdempotencyKey, &outputsJSON,
		&r.CreatedAt, &startedAt, &completedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan run")
	}

	if len(outputsJSON) > 0 {
		r.Outputs = &model.RunOutputs{}
		if err := json.Unmarshal(outputsJSON, r.Outputs); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal outputs")
		}
	}
	r.StartedAt = startedAt
	r.CompletedAt = completedAt
	return &r, nil
}

func (s *PostgresStore) collectRuns(rows pgx.Rows) ([]model.PipelineRun, error) {
	var runs []model.PipelineRun
	for rows.Next() {
		r, err := s.scanOneRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate runs")
}
