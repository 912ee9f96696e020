// Package pipeline orchestrates the pre-screening run: registration, the
// PENDING → RUNNING → COMPLETED | FAILED state machine, the fixed step
// sequence, and the ledger trail each step leaves behind.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/appraisal-precheck/internal/model"
	"github.com/sells-group/appraisal-precheck/internal/monitoring"
	"github.com/sells-group/appraisal-precheck/internal/policy"
	"github.com/sells-group/appraisal-precheck/internal/retrieval"
	"github.com/sells-group/appraisal-precheck/internal/risk"
	"github.com/sells-group/appraisal-precheck/internal/scoring"
	"github.com/sells-group/appraisal-precheck/internal/store"
	"github.com/sells-group/appraisal-precheck/internal/vision"
)

// Config tunes the run orchestrator.
type Config struct {
	// MaxConcurrentExtractions bounds the photo fan-out. Default 4.
	MaxConcurrentExtractions int
	// RunTimeout is the wall-clock budget for one run. Default 5m.
	RunTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrentExtractions <= 0 {
		c.MaxConcurrentExtractions = 4
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = 5 * time.Minute
	}
	return c
}

// Engine drives pre-screening runs end to end.
type Engine struct {
	store     store.Store
	validator *vision.Validator
	scanner   *risk.Scanner
	retriever retrieval.Retriever
	cfg       Config
}

// New creates an Engine with all step dependencies.
func New(st store.Store, validator *vision.Validator, scanner *risk.Scanner, retriever retrieval.Retriever, cfg Config) *Engine {
	return &Engine{
		store:     st,
		validator: validator,
		scanner:   scanner,
		retriever: retriever,
		cfg:       cfg.withDefaults(),
	}
}

// Register creates (or finds) the run for an appraisal and idempotency key.
// Re-registering an existing pair returns the prior run with created=false
// and triggers no new work.
func (e *Engine) Register(ctx context.Context, appraisalID, idempotencyKey string) (*model.PipelineRun, bool, error) {
	if appraisalID == "" {
		return nil, false, eris.New("pipeline: appraisal id is required")
	}
	if idempotencyKey == "" {
		return nil, false, eris.New("pipeline: idempotency key is required")
	}
	return e.store.RegisterRun(ctx, appraisalID, idempotencyKey)
}

// Run executes a registered run to a terminal state. A run that is already
// terminal is returned as-is; a RUNNING run is an error. Any step failure
// other than a degradable capability marks the run FAILED, writes a
// pipeline_error event, and returns the error.
func (e *Engine) Run(ctx context.Context, runID string, inputs *model.EvidenceInputs) (*model.PipelineRun, error) {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status.Terminal() {
		return run, nil
	}
	if run.Status == model.RunRunning {
		return nil, eris.New(fmt.Sprintf("pipeline: run %s is already in progress", runID))
	}
	if inputs == nil || inputs.AppraisalID != run.AppraisalID {
		return nil, eris.New("pipeline: evidence inputs do not match the registered appraisal")
	}

	if err := e.store.MarkRunning(ctx, run.ID); err != nil {
		return nil, eris.Wrap(err, "pipeline: mark running")
	}
	monitoring.RunsStarted.Inc()
	start := time.Now()

	log := zap.L().With(
		zap.String("run_id", run.ID),
		zap.String("appraisal_id", run.AppraisalID),
	)
	log.Info("pipeline: run started", zap.Int("photos", len(inputs.Photos)))

	runCtx, cancel := context.WithTimeout(ctx, e.cfg.RunTimeout)
	defer cancel()

	outputs, err := e.execute(runCtx, run, inputs, log)
	if err != nil {
		return nil, e.fail(ctx, run, err, log, start)
	}

	// The completion event is part of the run's contract: if it cannot be
	// written the run fails rather than completing without an audit trail.
	if err := e.appendEvent(ctx, run, model.NodePipelineComplete, model.EventOK, "", map[string]any{
		"status":      outputs.Decision.Status,
		"total_score": outputs.Decision.Score,
		"duration_ms": time.Since(start).Milliseconds(),
	}, nil); err != nil {
		return nil, e.fail(ctx, run, err, log, start)
	}

	if err := e.store.CompleteRun(ctx, run.ID, outputs); err != nil {
		return nil, e.fail(ctx, run, eris.Wrap(err, "pipeline: persist outputs"), log, start)
	}

	monitoring.RunsFinished.WithLabelValues(string(model.RunCompleted)).Inc()
	monitoring.RunDuration.Observe(time.Since(start).Seconds())
	log.Info("pipeline: run complete",
		zap.String("status", string(outputs.Decision.Status)),
		zap.Int("score", outputs.Decision.Score),
		zap.Duration("elapsed", time.Since(start)),
	)

	return e.store.GetRun(ctx, run.ID)
}

// execute runs the step sequence and assembles the output bundle. Every step
// appends a ledger event before the next one starts; a ledger write that
// fails is a run failure, never silently skipped.
func (e *Engine) execute(ctx context.Context, run *model.PipelineRun, inputs *model.EvidenceInputs, log *zap.Logger) (*model.RunOutputs, error) {
	photoIDs := make([]string, len(inputs.Photos))
	for i, p := range inputs.Photos {
		photoIDs[i] = p.PhotoID
	}
	if err := e.appendEvent(ctx, run, model.NodePipelineStart, model.EventOK, "", nil, map[string]any{
		"photo_ids":   photoIDs,
		"notes_bytes": len(inputs.Notes),
	}); err != nil {
		return nil, err
	}

	metadata := inputs.Metadata
	if err := metadata.Normalize(); err != nil {
		return nil, eris.Wrap(err, "pipeline: validate metadata")
	}
	notes := model.SanitizeNotes(inputs.Notes)

	extractions, err := e.extractAll(ctx, run, inputs.Photos)
	if err != nil {
		return nil, err
	}

	bundle := &model.EvidenceBundle{
		AppraisalID: run.AppraisalID,
		Extractions: extractions,
		Metadata:    metadata,
		Notes:       notes,
	}

	score := scoring.Score(bundle)
	if err := e.appendEvent(ctx, run, model.NodeScoring, model.EventOK, "", map[string]any{
		"total_score": score.TotalScore,
		"max_score":   score.MaxScore,
	}, nil); err != nil {
		return nil, err
	}

	similar, retrieveErr, err := e.retrieveSimilar(ctx, run, &metadata)
	if err != nil {
		return nil, err
	}

	scan := e.scanner.Scan(ctx, bundle, similar)
	if retrieveErr != nil {
		scan.RetrievalError = retrieveErr.Error()
	}
	scanStatus, scanErrText := model.EventOK, ""
	if scan.Error != "" {
		scanStatus, scanErrText = model.EventFail, scan.Error
	}
	if err := e.appendEvent(ctx, run, model.NodeRiskScan, scanStatus, scanErrText, map[string]any{
		"flags":          len(scan.Flags),
		"safety_dropped": len(scan.SafetyViolations),
	}, nil); err != nil {
		return nil, err
	}

	decision := policy.Decide(score, scan.Flags)
	monitoring.Decisions.WithLabelValues(string(decision.Status)).Inc()
	if err := e.appendEvent(ctx, run, model.NodePolicyDecision, model.EventOK, "", map[string]any{
		"status":      decision.Status,
		"score":       decision.Score,
		"next_action": decision.NextAction.Action,
	}, nil); err != nil {
		return nil, err
	}
	log.Info("pipeline: decision made",
		zap.String("status", string(decision.Status)),
		zap.Int("score", decision.Score),
		zap.Int("flags", len(scan.Flags)),
	)

	return &model.RunOutputs{
		Metadata:     &metadata,
		Extractions:  extractions,
		Score:        score,
		Risk:         scan,
		SimilarCases: similar,
		Decision:     decision,
	}, nil
}

// extractAll fans the photos out to the vision validator, bounded by the
// concurrency limit, and writes one vision_extraction event per photo in
// input order. Extraction itself never errors; only a cancelled context does.
func (e *Engine) extractAll(ctx context.Context, run *model.PipelineRun, photos []model.PhotoInput) ([]model.PhotoExtraction, error) {
	extractions := make([]model.PhotoExtraction, len(photos))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.MaxConcurrentExtractions)
	for i, photo := range photos {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return eris.Wrap(err, "pipeline: vision extraction")
			}
			extractions[i] = e.validator.Extract(gCtx, photo)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "pipeline: vision extraction")
	}

	for _, ex := range extractions {
		status, errText := model.EventOK, ""
		if ex.ValidationError != "" {
			status, errText = model.EventFail, ex.ValidationError
		}
		if err := e.appendEvent(ctx, run, model.NodeVisionExtraction, status, errText,
			map[string]any{
				"photo_id": ex.PhotoID,
				"angle":    ex.Extraction.PhotoAngle.Angle,
				"warnings": ex.PlausibilityWarnings,
			},
			nil,
			withConfidence(ex),
		); err != nil {
			return nil, err
		}
	}
	return extractions, nil
}

// retrieveSimilar degrades a retrieval failure to an empty list and a fail
// event; retrieveErr never fails the run. The ledger write itself can, via
// the last return value.
func (e *Engine) retrieveSimilar(ctx context.Context, run *model.PipelineRun, metadata *model.AppraisalMetadata) (similar []model.SimilarCase, retrieveErr, err error) {
	similar, retrieveErr = e.retriever.SimilarCases(ctx, run.AppraisalID, metadata)
	if retrieveErr != nil {
		zap.L().Warn("pipeline: similar-case retrieval failed",
			zap.String("run_id", run.ID),
			zap.Error(retrieveErr),
		)
		err = e.appendEvent(ctx, run, model.NodeSimilarRetrieval, model.EventFail, retrieveErr.Error(), nil, nil)
		return nil, retrieveErr, err
	}
	err = e.appendEvent(ctx, run, model.NodeSimilarRetrieval, model.EventOK, "", map[string]any{
		"cases": len(similar),
	}, nil)
	return similar, nil, err
}

// fail moves the run to FAILED and records the pipeline_error event. The
// failure is persisted on a detached context so a blown run deadline cannot
// also block the bookkeeping.
func (e *Engine) fail(ctx context.Context, run *model.PipelineRun, cause error, log *zap.Logger, start time.Time) error {
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := e.store.FailRun(persistCtx, run.ID, cause.Error()); err != nil {
		log.Error("pipeline: failed to mark run failed", zap.Error(err))
	}
	// The error event is the one write allowed to fail without recursing;
	// the cause (often the ledger itself) is already being surfaced.
	if err := e.appendEvent(persistCtx, run, model.NodePipelineError, model.EventFail, cause.Error(), nil, nil); err != nil {
		log.Error("pipeline: failed to record error event", zap.Error(err))
	}

	monitoring.RunsFinished.WithLabelValues(string(model.RunFailed)).Inc()
	monitoring.RunDuration.Observe(time.Since(start).Seconds())
	log.Error("pipeline: run failed", zap.Error(cause))
	return cause
}

// appendEvent writes one ledger record. The audit trail is a correctness
// property of the run, so a write failure propagates and fails the run.
func (e *Engine) appendEvent(ctx context.Context, run *model.PipelineRun, node string, status model.EventStatus, errText string, output, inputRefs map[string]any, confidence ...map[string]float64) error {
	ev := &model.LedgerEvent{
		ID:            uuid.NewString(),
		AppraisalID:   run.AppraisalID,
		PipelineRunID: run.ID,
		NodeName:      node,
		SchemaVersion: model.SchemaVersion,
		InputRefs:     inputRefs,
		Output:        output,
		Status:        status,
		Error:         errText,
		Timestamp:     time.Now().UTC(),
	}
	if len(confidence) > 0 {
		ev.ConfidenceSummary = confidence[0]
	}
	if err := e.store.AppendEvent(ctx, ev); err != nil {
		return eris.Wrapf(err, "pipeline: append %s event", node)
	}
	return nil
}

// withConfidence summarizes the extraction's confidences for the ledger.
func withConfidence(ex model.PhotoExtraction) map[string]float64 {
	return map[string]float64{
		"photo_angle": ex.Extraction.PhotoAngle.Confidence,
		"odometer":    ex.Extraction.Odometer.Confidence,
		"vin":         ex.Extraction.VIN.Confidence,
	}
}
