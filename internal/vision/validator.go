// Package vision turns photo references into validated PhotoExtraction
// records. The validator never returns an error: an irrecoverable model
// failure yields a zero-confidence record tagged with the validation error.
package vision

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/appraisal-precheck/internal/model"
	"github.com/sells-group/appraisal-precheck/internal/monitoring"
	"github.com/sells-group/appraisal-precheck/internal/plausibility"
	"github.com/sells-group/appraisal-precheck/internal/resilience"
	"github.com/sells-group/appraisal-precheck/pkg/claude"
)

// Validator extracts structured vehicle data from appraisal photos.
type Validator struct {
	client    claude.Client
	model     string
	maxTokens int64
	retry     resilience.RetryConfig
}

// NewValidator builds a validator using the given model for vision calls.
func NewValidator(client claude.Client, modelName string, maxTokens int64) *Validator {
	retry := resilience.ModelCallRetry()
	retry.OnRetry = resilience.RetryLogger("claude", "vision_extraction")
	return &Validator{
		client:    client,
		model:     modelName,
		maxTokens: maxTokens,
		retry:     retry,
	}
}

// Extract analyzes one photo. It makes at most two model invocations: the
// initial call plus one repair attempt when the first response fails schema
// validation. On a second failure it degrades instead of erroring.
func (v *Validator) Extract(ctx context.Context, photo model.PhotoInput) model.PhotoExtraction {
	messages := []claude.Message{
		claude.UserMessage(
			claude.TextPart("Analyze this appraisal photo."),
			claude.ImageURLPart(photo.URL),
		),
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		resp, err := resilience.DoVal(ctx, v.retry, func(ctx context.Context) (*claude.MessageResponse, error) {
			return v.client.CreateMessage(ctx, claude.MessageRequest{
				Model:     v.model,
				MaxTokens: v.maxTokens,
				System:    extractionPrompt,
				Messages:  messages,
			})
		})
		if err != nil {
			lastErr = err
			break
		}
		resp.Usage.LogUsage(v.model, "vision_extraction")

		env, err := parseEnvelope(resp.Text)
		if err == nil {
			return v.finalize(photo.PhotoID, env)
		}
		lastErr = err

		zap.L().Warn("vision response failed validation",
			zap.String("photo_id", photo.PhotoID),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)

		// Hand the invalid output back with the validation error and ask for
		// a corrected version.
		monitoring.ExtractionRepairs.Inc()
		messages = append(messages,
			claude.AssistantMessage(resp.Text),
			claude.UserMessage(claude.TextPart(fmt.Sprintf(repairPromptFmt, err.Error()))),
		)
	}

	errText := "vision extraction failed"
	if lastErr != nil {
		errText = lastErr.Error()
	}
	zap.L().Warn("vision extraction degraded",
		zap.String("photo_id", photo.PhotoID),
		zap.Error(lastErr),
	)
	monitoring.ExtractionDegradations.Inc()
	return model.DegradedExtraction(photo.PhotoID, errText)
}

// finalize stamps the photo id and applies plausibility checks to the
// odometer and VIN readings, attaching any warnings.
func (v *Validator) finalize(photoID string, env *envelope) model.PhotoExtraction {
	result := model.PhotoExtraction{
		PhotoID:    photoID,
		Extraction: env.Extraction,
	}

	conf, warn := plausibility.CheckOdometer(result.Extraction.Odometer.Value, result.Extraction.Odometer.Confidence)
	result.Extraction.Odometer.Confidence = conf
	if warn != "" {
		result.PlausibilityWarnings = append(result.PlausibilityWarnings, warn)
	}

	conf, warn = plausibility.CheckVIN(result.Extraction.VIN.Text, result.Extraction.VIN.Confidence)
	result.Extraction.VIN.Confidence = conf
	if warn != "" {
		result.PlausibilityWarnings = append(result.PlausibilityWarnings, warn)
	}

	return result
}
