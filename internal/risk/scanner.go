// Package risk scans assembled evidence for inconsistencies. The scanner
// merges deterministic metadata checks with a single reasoning-model pass and
// enforces the safety constraints on everything it emits. Scan never returns
// an error: a capability failure degrades to the deterministic flags.
package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/appraisal-precheck/internal/model"
	"github.com/sells-group/appraisal-precheck/internal/monitoring"
	"github.com/sells-group/appraisal-precheck/internal/resilience"
	"github.com/sells-group/appraisal-precheck/pkg/claude"
)

// forbiddenTerms disqualify a flag message outright: pricing and valuation
// language, and accusatory terms.
var forbiddenTerms = []string{
	"price", "pricing", "value", "valuation", "worth", "$", "dollar",
	"fraud", "fraudulent", "scam", "fake", "forged", "criminal", "illegal",
}

// Scanner runs the two-phase risk scan.
type Scanner struct {
	client    claude.Client
	model     string
	maxTokens int64
	retry     resilience.RetryConfig
}

// NewScanner builds a scanner using the given model for reasoning calls.
func NewScanner(client claude.Client, modelName string, maxTokens int64) *Scanner {
	retry := resilience.ModelCallRetry()
	retry.OnRetry = resilience.RetryLogger("claude", "risk_scan")
	return &Scanner{
		client:    client,
		model:     modelName,
		maxTokens: maxTokens,
		retry:     retry,
	}
}

// scanEnvelope is the wire shape the reasoning model must return.
type scanEnvelope struct {
	Flags       []model.RiskFlag `json:"flags"`
	Assumptions []string         `json:"assumptions"`
	Unknowns    []string         `json:"unknowns"`
}

// Scan evaluates the bundle. Retrieved similar cases, when present, are
// included in the reasoning context.
func (s *Scanner) Scan(ctx context.Context, bundle *model.EvidenceBundle, similar []model.SimilarCase) *model.RiskScan {
	deterministic := DeterministicChecks(bundle)

	env, err := s.reason(ctx, bundle, similar)
	if err != nil {
		zap.L().Warn("risk reasoning degraded to deterministic checks",
			zap.String("appraisal_id", bundle.AppraisalID),
			zap.Error(err),
		)
		degraded := &model.RiskScan{
			Flags:       append([]model.RiskFlag{}, deterministic...),
			Assumptions: []string{},
			Unknowns:    []string{},
			Error:       err.Error(),
		}
		enforceSafety(degraded)
		return degraded
	}

	scan := &model.RiskScan{
		Flags:       append(env.Flags, deterministic...),
		Assumptions: env.Assumptions,
		Unknowns:    env.Unknowns,
	}
	enforceSafety(scan)
	return scan
}

func (s *Scanner) reason(ctx context.Context, bundle *model.EvidenceBundle, similar []model.SimilarCase) (*scanEnvelope, error) {
	payload := map[string]any{
		"appraisal_id":   bundle.AppraisalID,
		"vision_outputs": bundle.Extractions,
		"metadata":       bundle.Metadata,
		"notes":          bundle.Notes,
	}
	if len(similar) > 0 {
		payload["similar_appraisals"] = similar
	}
	body, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "risk: encode context")
	}

	resp, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) (*claude.MessageResponse, error) {
		return s.client.CreateMessage(ctx, claude.MessageRequest{
			Model:     s.model,
			MaxTokens: s.maxTokens,
			System:    scanPrompt,
			Messages:  []claude.Message{claude.UserMessage(claude.TextPart(string(body)))},
		})
	})
	if err != nil {
		return nil, err
	}
	resp.Usage.LogUsage(s.model, "risk_scan")

	return parseScan(resp.Text)
}

func parseScan(raw string) (*scanEnvelope, error) {
	raw = strings.TrimSpace(raw)
	if i := strings.Index(raw, "{"); i > 0 {
		raw = raw[i:]
	}
	if i := strings.LastIndex(raw, "}"); i >= 0 {
		raw = raw[:i+1]
	}

	var env scanEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, eris.Wrap(err, "risk: decode response")
	}
	for i, fl := range env.Flags {
		if fl.Code == "" {
			return nil, eris.New(fmt.Sprintf("risk: flag[%d] has no code", i))
		}
		if !fl.Severity.Valid() {
			return nil, eris.New(fmt.Sprintf("risk: flag[%d] severity %q is not low/medium/high", i, fl.Severity))
		}
	}
	if env.Assumptions == nil {
		env.Assumptions = []string{}
	}
	if env.Unknowns == nil {
		env.Unknowns = []string{}
	}
	return &env, nil
}

// enforceSafety drops flags whose message contains a forbidden term,
// recording a summary instead of surfacing the text, and reports flags that
// cite no evidence.
func enforceSafety(scan *model.RiskScan) {
	kept := scan.Flags[:0]
	for _, fl := range scan.Flags {
		if term := firstForbiddenTerm(fl.Message); term != "" {
			monitoring.SafetyFilteredFlags.Inc()
			scan.SafetyViolations = append(scan.SafetyViolations,
				fmt.Sprintf("Flag '%s' contains forbidden term '%s'", fl.Code, term))
			continue
		}
		kept = append(kept, fl)
	}
	scan.Flags = kept

	for _, fl := range scan.Flags {
		if len(fl.Evidence) == 0 {
			scan.MissingEvidenceRefs = append(scan.MissingEvidenceRefs, fl.Code)
		}
	}
}

func firstForbiddenTerm(message string) string {
	lower := strings.ToLower(message)
	for _, term := range forbiddenTerms {
		if strings.Contains(lower, term) {
			return term
		}
	}
	return ""
}
