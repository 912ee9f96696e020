package model

// Severity grades a risk flag.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// EvidenceRef points a risk flag at the evidence supporting it.
type EvidenceRef struct {
	Type        string `json:"type"`
	ID          string `json:"id,omitempty"`
	Description string `json:"description,omitempty"`
}

// RiskFlag is a structured, evidence-cited inconsistency note. Flags never
// carry valuations or accusations; the scanner filters any that do.
type RiskFlag struct {
	Code     string        `json:"code"`
	Severity Severity      `json:"severity"`
	Message  string        `json:"message"`
	Evidence []EvidenceRef `json:"evidence"`
}

// RiskScan is the merged result of the deterministic checks and the
// reasoning-model scan.
type RiskScan struct {
	Flags       []RiskFlag `json:"flags"`
	Assumptions []string   `json:"assumptions,omitempty"`
	Unknowns    []string   `json:"unknowns,omitempty"`

	// SafetyViolations summarizes flags dropped by the forbidden-term filter.
	SafetyViolations []string `json:"safety_violations,omitempty"`
	// MissingEvidenceRefs lists codes of flags lacking evidence (informational).
	MissingEvidenceRefs []string `json:"missing_evidence_refs,omitempty"`
	// RetrievalError records a similar-case retrieval failure (non-blocking).
	RetrievalError string `json:"retrieval_error,omitempty"`
	// Error records a reasoning-capability failure; deterministic flags are
	// still present when it is set.
	Error string `json:"error,omitempty"`
}

// SimilarCase is one historical appraisal returned by the retrieval capability.
type SimilarCase struct {
	SimilarityScore   float64        `json:"similarity_score"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	MatchedContent    string         `json:"matched_content,omitempty"`
	HistoricalOutcome string         `json:"historical_outcome,omitempty"`
}
