package model

import "time"

// SchemaVersion tags ledger events with the payload schema they were written
// under.
const SchemaVersion = "v1"

// EventStatus records whether a pipeline step succeeded.
type EventStatus string

const (
	EventOK   EventStatus = "ok"
	EventFail EventStatus = "fail"
)

// Ledger node names, one per pipeline step.
const (
	NodePipelineStart    = "pipeline_start"
	NodeVisionExtraction = "vision_extraction"
	NodeScoring          = "scoring"
	NodeSimilarRetrieval = "similar_retrieval"
	NodeRiskScan         = "risk_scan"
	NodePolicyDecision   = "policy_decision"
	NodePipelineComplete = "pipeline_complete"
	NodePipelineError    = "pipeline_error"
)

// LedgerEvent is one append-only audit record. Events are never updated or
// deleted; ordering within a run is ascending by Timestamp.
type LedgerEvent struct {
	ID                string             `json:"id"`
	AppraisalID       string             `json:"appraisal_id"`
	PipelineRunID     string             `json:"pipeline_run_id"`
	NodeName          string             `json:"node_name"`
	SchemaVersion     string             `json:"schema_version"`
	InputRefs         map[string]any     `json:"input_refs,omitempty"`
	Output            map[string]any     `json:"output,omitempty"`
	ConfidenceSummary map[string]float64 `json:"confidence_summary,omitempty"`
	Status            EventStatus        `json:"status"`
	Error             string             `json:"error,omitempty"`
	Timestamp         time.Time          `json:"timestamp"`
}
