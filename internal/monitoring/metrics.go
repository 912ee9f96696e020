// Package monitoring registers the engine's Prometheus metrics on the
// default registry; the serve command exposes them at /metrics.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsStarted counts pipeline runs that entered RUNNING.
	RunsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "appraisal_precheck",
		Name:      "runs_started_total",
		Help:      "Pipeline runs started.",
	})

	// RunsFinished counts terminal runs by final status (COMPLETED or FAILED).
	RunsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "appraisal_precheck",
		Name:      "runs_finished_total",
		Help:      "Pipeline runs finished, by terminal status.",
	}, []string{"status"})

	// RunDuration observes wall-clock run time in seconds.
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "appraisal_precheck",
		Name:      "run_duration_seconds",
		Help:      "Wall-clock duration of pipeline runs.",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
	})

	// Decisions counts policy outcomes by status.
	Decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "appraisal_precheck",
		Name:      "decisions_total",
		Help:      "Policy decisions, by status.",
	}, []string{"status"})

	// ExtractionRepairs counts vision responses that needed the repair
	// re-invocation.
	ExtractionRepairs = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "appraisal_precheck",
		Name:      "extraction_repairs_total",
		Help:      "Vision extractions that required a repair attempt.",
	})

	// ExtractionDegradations counts photos that ended as zero-confidence
	// records.
	ExtractionDegradations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "appraisal_precheck",
		Name:      "extraction_degradations_total",
		Help:      "Vision extractions degraded to zero-confidence records.",
	})

	// SafetyFilteredFlags counts risk flags dropped by the forbidden-term
	// filter.
	SafetyFilteredFlags = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "appraisal_precheck",
		Name:      "safety_filtered_flags_total",
		Help:      "Risk flags removed by the safety filter.",
	})
)
