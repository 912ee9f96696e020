package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/appraisal-precheck/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY,
	appraisal_id    TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'PENDING',
	idempotency_key TEXT NOT NULL,
	outputs         TEXT,
	created_at      DATETIME NOT NULL,
	started_at      DATETIME,
	completed_at    DATETIME,
	UNIQUE (appraisal_id, idempotency_key)
);

CREATE TABLE IF NOT EXISTS ledger_events (
	id                 TEXT PRIMARY KEY,
	appraisal_id       TEXT NOT NULL,
	pipeline_run_id    TEXT NOT NULL REFERENCES runs(id),
	node_name          TEXT NOT NULL,
	schema_version     TEXT NOT NULL,
	input_refs         TEXT,
	output             TEXT,
	confidence_summary TEXT,
	status             TEXT NOT NULL,
	error              TEXT,
	timestamp          DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_appraisal_id ON runs(appraisal_id);
CREATE INDEX IF NOT EXISTS idx_runs_status_completed ON runs(status, completed_at DESC);
CREATE INDEX IF NOT EXISTS idx_ledger_appraisal_id ON ledger_events(appraisal_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_ledger_run_id ON ledger_events(pipeline_run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) RegisterRun(ctx context.Context, appraisalID, idempotencyKey string) (*model.PipelineRun, bool, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, appraisal_id, status, idempotency_key, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (appraisal_id, idempotency_key) DO NOTHING`,
		id, appraisalID, string(model.RunPending), idempotencyKey, now,
	)
	if err != nil {
		return nil, false, eris.Wrap(err, "sqlite: register run")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		// Same key seen before; hand back the registered run.
		run, err := s.findByKey(ctx, appraisalID, idempotencyKey)
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

const sqliteRunColumns = `id, appraisal_id, status, idempotency_key, outputs, created_at, started_at, completed_at`

func (s *SQLiteStore) findByKey(ctx context.Context, appraisalID, idempotencyKey string) (*model.PipelineRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteRunColumns+` FROM runs WHERE appraisal_id = ? AND idempotency_key = ?`,
		appraisalID, idempotencyKey,
	)
	return scanRun(row)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.PipelineRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteRunColumns+` FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, appraisalID string) ([]model.PipelineRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteRunColumns+` FROM runs WHERE appraisal_id = ? ORDER BY created_at DESC`,
		appraisalID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()
	return collectRuns(rows)
}

func (s *SQLiteStore) ListCompletedRuns(ctx context.Context, limit int) ([]model.PipelineRun, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteRunColumns+` FROM runs
		 WHERE status = ? ORDER BY completed_at DESC LIMIT ?`,
		string(model.RunCompleted), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list completed runs")
	}
	defer rows.Close()
	return collectRuns(rows)
}

func (s *SQLiteStore) MarkRunning(ctx context.Context, runID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, started_at = ? WHERE id = ? AND status = ?`,
		string(model.RunRunning), time.Now().UTC(), runID, string(model.RunPending),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark running %s", runID)
	}
	return s.checkTransition(ctx, res, runID)
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, outputs *model.RunOutputs) error {
	outputsJSON, err := json.Marshal(outputs)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal outputs")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, outputs = ?, completed_at = ? WHERE id = ? AND status = ?`,
		string(model.RunCompleted), string(outputsJSON), time.Now().UTC(), runID, string(model.RunRunning),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return s.checkTransition(ctx, res, runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, runErr string) error {
	outputsJSON, err := json.Marshal(&model.RunOutputs{Error: runErr})
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal failure outputs")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, outputs = ?, completed_at = ? WHERE id = ? AND status = ?`,
		string(model.RunFailed), string(outputsJSON), time.Now().UTC(), runID, string(model.RunRunning),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return s.checkTransition(ctx, res, runID)
}

// checkTransition distinguishes a missing run from a guarded update that
// matched no rows because the run was not in the expected prior state.
func (s *SQLiteStore) checkTransition(ctx context.Context, res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n > 0 {
		return nil
	}
	if _, err := s.GetRun(ctx, runID); err != nil {
		return err
	}
	return eris.Wrapf(ErrInvalidTransition, "run %s", runID)
}

func (s *SQLiteStore) AppendEvent(ctx context.Context, event *model.LedgerEvent) error {
	inputRefs, output, confSummary, err := marshalEventPayloads(event)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ledger_events
		 (id, appraisal_id, pipeline_run_id, node_name, schema_version, input_refs, output, confidence_summary, status, error, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.AppraisalID, event.PipelineRunID, event.NodeName, event.SchemaVersion,
		inputRefs, output, confSummary, string(event.Status), event.Error, event.Timestamp,
	)
	return eris.Wrap(err, "sqlite: append event")
}

func (s *SQLiteStore) ListEvents(ctx context.Context, appraisalID, runID string) ([]model.LedgerEvent, error) {
	query := `SELECT id, appraisal_id, pipeline_run_id, node_name, schema_version, input_refs, output, confidence_summary, status, error, timestamp
	          FROM ledger_events WHERE appraisal_id = ?`
	args := []any{appraisalID}
	if runID != "" {
		query += ` AND pipeline_run_id = ?`
		args = append(args, runID)
	}
	query += ` ORDER BY timestamp ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list events")
	}
	defer rows.Close()

	var events []model.LedgerEvent
	for rows.Next() {
		var ev model.LedgerEvent
		var inputRefs, output, confSummary, errText sql.NullString
		if err := rows.Scan(&ev.ID, &ev.AppraisalID, &ev.PipelineRunID, &ev.NodeName, &ev.SchemaVersion,
			&inputRefs, &output, &confSummary, &ev.Status, &errText, &ev.Timestamp); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan event")
		}
		if err := unmarshalEventPayloads(&ev, inputRefs.String, output.String, confSummary.String); err != nil {
			return nil, err
		}
		ev.Error = errText.String
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "sqlite: list events iterate")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.PipelineRun, error) {
	var r model.PipelineRun
	var outputsJSON sql.NullString
	var startedAt, completedAt sql.NullTime

	err := row.Scan(&r.ID, &r.AppraisalID, &r.Status, &r.IdempotencyKey, &outputsJSON,
		&r.CreatedAt, &startedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if outputsJSON.Valid {
		r.Outputs = &model.RunOutputs{}
		if err := json.Unmarshal([]byte(outputsJSON.String), r.Outputs); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal outputs")
		}
	}
	if startedAt.Valid {
		t := startedAt.Time
		r.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		r.CompletedAt = &t
	}
	return &r, nil
}

func collectRuns(rows *sql.Rows) ([]model.PipelineRun, error) {
	var runs []model.PipelineRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

// marshalEventPayloads encodes the event's JSON columns, mapping absent maps
// to NULL.
func marshalEventPayloads(event *model.LedgerEvent) (inputRefs, output, confSummary any, err error) {
	encode := func(v any) (any, error) {
		if v == nil {
			return nil, nil
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, eris.Wrap(err, "store: marshal event payload")
		}
		return string(b), nil
	}

	if event.InputRefs != nil {
		if inputRefs, err = encode(event.InputRefs); err != nil {
			return nil, nil, nil, err
		}
	}
	if event.Output != nil {
		if output, err = encode(event.Output); err != nil {
			return nil, nil, nil, err
		}
	}
	if event.ConfidenceSummary != nil {
		if confSummary, err = encode(event.ConfidenceSummary); err != nil {
			return nil, nil, nil, err
		}
	}
	return inputRefs, output, confSummary, nil
}

func unmarshalEventPayloads(ev *model.LedgerEvent, inputRefs, output, confSummary string) error {
	if inputRefs != "" {
		if err := json.Unmarshal([]byte(inputRefs), &ev.InputRefs); err != nil {
			return eris.Wrap(err, "store: unmarshal input refs")
		}
	}
	if output != "" {
		if err := json.Unmarshal([]byte(output), &ev.Output); err != nil {
			return eris.Wrap(err, "store: unmarshal output")
		}
	}
	if confSummary != "" {
		if err := json.Unmarshal([]byte(confSummary), &ev.ConfidenceSummary); err != nil {
			return eris.Wrap(err, "store: unmarshal confidence summary")
		}
	}
	return nil
}
