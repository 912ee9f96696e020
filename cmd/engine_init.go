package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/appraisal-precheck/internal/pipeline"
	"github.com/sells-group/appraisal-precheck/internal/retrieval"
	"github.com/sells-group/appraisal-precheck/internal/risk"
	"github.com/sells-group/appraisal-precheck/internal/store"
	"github.com/sells-group/appraisal-precheck/internal/vision"
	"github.com/sells-group/appraisal-precheck/pkg/claude"
)

// engineEnv holds the initialized store and orchestrator shared by the run
// and serve commands.
type engineEnv struct {
	Store  store.Store
	Engine *pipeline.Engine
}

// Close releases resources held by the environment.
func (e *engineEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEngine sets up the store, the model client, and the run orchestrator.
// Callers should defer env.Close().
func initEngine(ctx context.Context) (*engineEnv, error) {
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("anthropic API key is required (APPRAISAL_ANTHROPIC_KEY)")
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	client := claude.NewClient(cfg.Anthropic.Key, cfg.Anthropic.RequestsPerSecond)
	validator := vision.NewValidator(client, cfg.Anthropic.VisionModel, cfg.Anthropic.MaxTokens)
	scanner := risk.NewScanner(client, cfg.Anthropic.ReasoningModel, cfg.Anthropic.MaxTokens)
	retriever := retrieval.NewStoreRetriever(st, retrieval.Config{
		Limit:          cfg.Retrieval.Limit,
		MatchThreshold: cfg.Retrieval.MatchThreshold,
		CandidatePool:  cfg.Retrieval.CandidatePool,
	})

	eng := pipeline.New(st, validator, scanner, retriever, pipeline.Config{
		MaxConcurrentExtractions: cfg.Pipeline.MaxConcurrentExtractions,
		RunTimeout:               time.Duration(cfg.Pipeline.RunTimeoutSecs) * time.Second,
	})

	return &engineEnv{Store: st, Engine: eng}, nil
}
