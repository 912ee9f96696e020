package model

// DecisionStatus is the terminal routing decision for a run.
type DecisionStatus string

const (
	StatusReady             DecisionStatus = "ready"
	StatusEscalate          DecisionStatus = "escalate"
	StatusNeedsMoreEvidence DecisionStatus = "needs_more_evidence"
)

// NextAction is the queue routing that follows from a decision status.
type NextAction struct {
	Action  string `json:"action"`
	Message string `json:"message"`
}

// DecisionRecord is the policy router's output: exactly one status per run.
type DecisionRecord struct {
	Status     DecisionStatus `json:"status"`
	Score      int            `json:"score"`
	Reasons    []string       `json:"reasons"`
	NextAction NextAction     `json:"next_action"`
}
