// Package retrieval finds historically similar appraisals to give the risk
// scanner comparative context. Retrieval is best-effort: a failure degrades
// to no similar cases, never to a failed run.
package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/sells-group/appraisal-precheck/internal/model"
	"github.com/sells-group/appraisal-precheck/internal/store"
)

// Retriever returns historical cases similar to the given metadata.
type Retriever interface {
	SimilarCases(ctx context.Context, appraisalID string, metadata *model.AppraisalMetadata) ([]model.SimilarCase, error)
}

// Config tunes the store-backed retriever.
type Config struct {
	// Limit caps how many similar cases are returned. Default 3.
	Limit int
	// MatchThreshold is the minimum similarity score to include. Default 0.5.
	MatchThreshold float64
	// CandidatePool is how many recent completed runs to score. Default 200.
	CandidatePool int
}

func (c Config) withDefaults() Config {
	if c.Limit <= 0 {
		c.Limit = 3
	}
	if c.MatchThreshold <= 0 {
		c.MatchThreshold = 0.5
	}
	if c.CandidatePool <= 0 {
		c.CandidatePool = 200
	}
	return c
}

// StoreRetriever scores metadata similarity over recent completed runs.
type StoreRetriever struct {
	store store.Store
	cfg   Config
}

// NewStoreRetriever builds a retriever over the run store.
func NewStoreRetriever(st store.Store, cfg Config) *StoreRetriever {
	return &StoreRetriever{store: st, cfg: cfg.withDefaults()}
}

// SimilarCases ranks recent completed runs by metadata similarity to the
// current submission. Runs for the same appraisal are excluded.
func (r *StoreRetriever) SimilarCases(ctx context.Context, appraisalID string, metadata *model.AppraisalMetadata) ([]model.SimilarCase, error) {
	if metadata == nil || metadata.Make == "" && metadata.Model == "" && metadata.Year == nil {
		return nil, nil
	}

	runs, err := r.store.ListCompletedRuns(ctx, r.cfg.CandidatePool)
	if err != nil {
		return nil, err
	}

	var cases []model.SimilarCase
	for _, run := range runs {
		if run.AppraisalID == appraisalID || run.Outputs == nil || run.Outputs.Metadata == nil {
			continue
		}
		score := similarity(metadata, run.Outputs.Metadata)
		if score < r.cfg.MatchThreshold {
			continue
		}

		c := model.SimilarCase{
			SimilarityScore: score,
			Metadata: map[string]any{
				"appraisal_id": run.AppraisalID,
				"make":         run.Outputs.Metadata.Make,
				"model":        run.Outputs.Metadata.Model,
			},
			MatchedContent: describeVehicle(run.Outputs.Metadata),
		}
		if run.Outputs.Metadata.Year != nil {
			c.Metadata["year"] = *run.Outputs.Metadata.Year
		}
		if run.Outputs.Decision != nil {
			c.HistoricalOutcome = string(run.Outputs.Decision.Status)
		}
		cases = append(cases, c)
	}

	sort.SliceStable(cases, func(i, j int) bool {
		return cases[i].SimilarityScore > cases[j].SimilarityScore
	})
	if len(cases) > r.cfg.Limit {
		cases = cases[:r.cfg.Limit]
	}
	return cases, nil
}

// similarity weights make and model agreement heaviest, with year and
// mileage proximity as refinements.
func similarity(a, b *model.AppraisalMetadata) float64 {
	score := 0.0
	if a.Make != "" && strings.EqualFold(a.Make, b.Make) {
		score += 0.4
	}
	if a.Model != "" && strings.EqualFold(a.Model, b.Model) {
		score += 0.3
	}
	if a.Year != nil && b.Year != nil {
		diff := math.Abs(float64(*a.Year - *b.Year))
		if diff <= 5 {
			score += 0.2 * (1 - diff/5)
		}
	}
	if a.Mileage != nil && b.Mileage != nil {
		diff := math.Abs(*a.Mileage - *b.Mileage)
		if diff <= 30000 {
			score += 0.1 * (1 - diff/30000)
		}
	}
	return score
}

func describeVehicle(m *model.AppraisalMetadata) string {
	parts := make([]string, 0, 3)
	if m.Year != nil {
		parts = append(parts, fmt.Sprintf("%d", *m.Year))
	}
	if m.Make != "" {
		parts = append(parts, m.Make)
	}
	if m.Model != "" {
		parts = append(parts, m.Model)
	}
	return strings.Join(parts, " ")
}
