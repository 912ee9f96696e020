// Package policy turns a score and a set of risk flags into exactly one
// routing decision. The rules apply in priority order: escalate, then ready,
// then needs_more_evidence as the fallback.
package policy

import (
	"fmt"
	"strings"

	"github.com/sells-group/appraisal-precheck/internal/model"
	"github.com/sells-group/appraisal-precheck/internal/scoring"
)

// ReadyThreshold is the absolute score at which a submission with no
// blocking risk flags is ready for adjuster processing.
const ReadyThreshold = 75

const minConfidence = 0.7

// exemptCodes are extraction-failure codes that never block a decision;
// missing data is handled by the readiness score, not by escalation.
var exemptCodes = map[string]bool{
	"VIN_EXTRACTION_FAIL":      true,
	"ODOMETER_EXTRACTION_FAIL": true,
	"MISSING_VIN":              true,
	"MISSING_ODOMETER":         true,
	"MISSING_DATA":             true,
	"MISSING_VIN_DATA":         true,
	"MISSING_ODOMETER_DATA":    true,
}

// IsExemptCode reports whether a risk flag code describes a VIN or odometer
// extraction gap. Pattern matching catches model-generated variants of the
// canonical codes.
func IsExemptCode(code string) bool {
	c := strings.ToUpper(strings.TrimSpace(code))
	if exemptCodes[c] {
		return true
	}

	subject := strings.Contains(c, "VIN") || strings.Contains(c, "ODOMETER")
	// "DATA" alone must not match inside "METADATA": mismatch codes like
	// METADATA_VIN_MISMATCH describe risk, not missing evidence.
	gap := strings.Contains(c, "MISSING") || strings.Contains(c, "EXTRACTION") ||
		strings.Contains(c, "FAIL") ||
		(strings.Contains(c, "DATA") && !strings.Contains(c, "METADATA"))
	return subject && gap
}

// Decide applies the policy rules and returns the decision record with its
// routed next action.
func Decide(score *model.ScoreResult, flags []model.RiskFlag) *model.DecisionRecord {
	blocking := make([]model.RiskFlag, 0, len(flags))
	for _, fl := range flags {
		if IsExemptCode(fl.Code) {
			continue
		}
		blocking = append(blocking, fl)
	}

	if reasons := escalationReasons(blocking); len(reasons) > 0 {
		return record(model.StatusEscalate, score.TotalScore, reasons)
	}

	if ready, reasons := readyRule(score.TotalScore, blocking); ready {
		return record(model.StatusReady, score.TotalScore, reasons)
	}

	return record(model.StatusNeedsMoreEvidence, score.TotalScore, missingEvidence(&score.Breakdown))
}

func escalationReasons(flags []model.RiskFlag) []string {
	var reasons []string
	for _, fl := range flags {
		if fl.Severity == model.SeverityHigh {
			reasons = append(reasons, fmt.Sprintf("High-severity risk: %s - %s", fl.Code, fl.Message))
		}
	}
	return reasons
}

func readyRule(total int, flags []model.RiskFlag) (bool, []string) {
	if total < ReadyThreshold {
		return false, []string{fmt.Sprintf("Score %d is below threshold (%d)", total, ReadyThreshold)}
	}

	high := 0
	medium := 0
	for _, fl := range flags {
		switch fl.Severity {
		case model.SeverityHigh:
			high++
		case model.SeverityMedium:
			medium++
		}
	}
	if high > 0 {
		return false, []string{fmt.Sprintf("Found %d high-risk flag(s)", high)}
	}

	var reasons []string
	if medium > 0 {
		reasons = append(reasons, fmt.Sprintf("Warning: %d medium-risk flag(s) present", medium))
	}
	reasons = append(reasons, fmt.Sprintf("Score %d meets threshold, no high-risk flags", total))
	return true, reasons
}

func missingEvidence(b *model.Breakdown) []string {
	var missing []string

	angleThreshold := scoring.AngleCoverageMax() * 3 / 4
	if b.AngleCoverage.Score < angleThreshold {
		if len(b.AngleCoverage.MissingAngles) > 0 {
			missing = append(missing, "Missing photo angles: "+strings.Join(b.AngleCoverage.MissingAngles, ", "))
		} else {
			missing = append(missing, "Insufficient photo coverage")
		}
	}

	if b.OdometerConfidence.Confidence == nil || *b.OdometerConfidence.Confidence < minConfidence {
		missing = append(missing, "Odometer reading unclear or missing")
	}

	vinPresent := b.VINPresence.VINPresent != nil && *b.VINPresence.VINPresent
	if !vinPresent || b.VINPresence.Confidence == nil || *b.VINPresence.Confidence < minConfidence {
		missing = append(missing, "VIN unclear or missing")
	}

	if b.NotesConsistency.Score < b.NotesConsistency.MaxScore/2 {
		missing = append(missing, "Notes missing or insufficient detail")
	}

	return missing
}

func record(status model.DecisionStatus, score int, reasons []string) *model.DecisionRecord {
	return &model.DecisionRecord{
		Status:     status,
		Score:      score,
		Reasons:    reasons,
		NextAction: RouteAction(status),
	}
}

// RouteAction maps a decision status to its downstream queue action.
func RouteAction(status model.DecisionStatus) model.NextAction {
	switch status {
	case model.StatusReady:
		return model.NextAction{
			Action:  "route_to_adjuster_queue",
			Message: "Appraisal is ready for final decision processing",
		}
	case model.StatusEscalate:
		return model.NextAction{
			Action:  "route_to_senior_reviewer",
			Message: "Appraisal requires senior review due to high-risk flags",
		}
	case model.StatusNeedsMoreEvidence:
		return model.NextAction{
			Action:  "request_additional_evidence",
			Message: "Appraisal needs additional evidence before processing",
		}
	default:
		return model.NextAction{
			Action:  "request_additional_evidence",
			Message: "Appraisal status unclear",
		}
	}
}
