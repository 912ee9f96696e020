// Package store persists pipeline runs and the append-only audit ledger.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/appraisal-precheck/internal/model"
)

// ErrRunNotFound is returned when a run id has no row.
var ErrRunNotFound = eris.New("store: run not found")

// ErrInvalidTransition is returned when a status update would move a run
// backwards or out of a terminal state.
var ErrInvalidTransition = eris.New("store: invalid run status transition")

// Store defines the persistence interface for runs and ledger events.
// Ledger events are insert-only; nothing in this interface updates or
// deletes one.
type Store interface {
	// RegisterRun creates a PENDING run for (appraisalID, idempotencyKey) or
	// returns the existing one. The bool reports whether a new run was created.
	RegisterRun(ctx context.Context, appraisalID, idempotencyKey string) (*model.PipelineRun, bool, error)
	GetRun(ctx context.Context, runID string) (*model.PipelineRun, error)
	ListRuns(ctx context.Context, appraisalID string) ([]model.PipelineRun, error)
	// ListCompletedRuns returns the most recent COMPLETED runs across all
	// appraisals, newest first. Used by similar-case retrieval.
	ListCompletedRuns(ctx context.Context, limit int) ([]model.PipelineRun, error)

	// MarkRunning moves PENDING → RUNNING; CompleteRun and FailRun move
	// RUNNING → COMPLETED/FAILED. Any other transition fails with
	// ErrInvalidTransition.
	MarkRunning(ctx context.Context, runID string) error
	CompleteRun(ctx context.Context, runID string, outputs *model.RunOutputs) error
	FailRun(ctx context.Context, runID string, runErr string) error

	AppendEvent(ctx context.Context, event *model.LedgerEvent) error
	// ListEvents returns events for an appraisal in ascending timestamp
	// order; runID narrows to one run when non-empty.
	ListEvents(ctx context.Context, appraisalID, runID string) ([]model.LedgerEvent, error)

	Migrate(ctx context.Context) error
	Close() error
}
