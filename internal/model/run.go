package model

import "time"

// RunStatus is the pipeline run state. Transitions are monotonic:
// PENDING → RUNNING → COMPLETED | FAILED.
type RunStatus string

const (
	RunPending   RunStatus = "PENDING"
	RunRunning   RunStatus = "RUNNING"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
)

// CanTransitionTo reports whether moving from s to next is a legal forward
// transition.
func (s RunStatus) CanTransitionTo(next RunStatus) bool {
	switch s {
	case RunPending:
		return next == RunRunning
	case RunRunning:
		return next == RunCompleted || next == RunFailed
	default:
		return false
	}
}

// Terminal reports whether s is an end state.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// RunOutputs is the full result bundle persisted on run completion. On a
// FAILED run only Error is set; partial step results are not persisted.
type RunOutputs struct {
	Metadata     *AppraisalMetadata `json:"metadata,omitempty"`
	Extractions  []PhotoExtraction  `json:"extractions,omitempty"`
	Score        *ScoreResult       `json:"score,omitempty"`
	Risk         *RiskScan          `json:"risk,omitempty"`
	SimilarCases []SimilarCase      `json:"similar_cases,omitempty"`
	Decision     *DecisionRecord    `json:"decision,omitempty"`
	Error        string             `json:"error,omitempty"`
}

// PipelineRun is one registered pipeline invocation. Exactly one run exists
// per (appraisal, idempotency key) pair.
type PipelineRun struct {
	ID             string      `json:"id"`
	AppraisalID    string      `json:"appraisal_id"`
	Status         RunStatus   `json:"status"`
	IdempotencyKey string      `json:"idempotency_key"`
	Outputs        *RunOutputs `json:"outputs,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	StartedAt      *time.Time  `json:"started_at,omitempty"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
}
