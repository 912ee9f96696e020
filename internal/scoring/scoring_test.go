package scoring

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/appraisal-precheck/internal/model"
)

func f(v float64) *float64 { return &v }

func anglePhoto(id string, angle model.PhotoAngle, conf float64) model.PhotoExtraction {
	return model.PhotoExtraction{
		PhotoID: id,
		Extraction: model.Extraction{
			PhotoAngle: model.AngleReading{Angle: angle, Confidence: conf},
			Damage:     []model.DamageObservation{},
		},
	}
}

func fullBundle() *model.EvidenceBundle {
	exts := []model.PhotoExtraction{
		anglePhoto("p1", model.AngleFront, 0.9),
		anglePhoto("p2", model.AngleRear, 0.9),
		anglePhoto("p3", model.AngleLeft, 0.9),
		anglePhoto("p4", model.AngleRight, 0.9),
		anglePhoto("p5", model.AngleInterior, 0.9),
		anglePhoto("p6", model.AngleOdometer, 0.9),
	}
	exts[5].Extraction.Odometer = model.OdometerReading{Value: f(45231), Unit: model.UnitMiles, Confidence: 0.9}
	exts[0].Extraction.VIN = model.VINReading{Text: "1HGCM82633A004352", Confidence: 0.95}
	return &model.EvidenceBundle{
		AppraisalID: "appr-1",
		Extractions: exts,
		Notes:       strings.Repeat("Clean vehicle, light wear on driver seat. ", 5),
	}
}

func TestScoreCompleteSubmission(t *testing.T) {
	result := Score(fullBundle())

	assert.Equal(t, 42, result.Breakdown.AngleCoverage.Score)
	assert.Equal(t, 13, result.Breakdown.OdometerConfidence.Score)
	assert.Equal(t, 9, result.Breakdown.VINPresence.Score)
	assert.Equal(t, 0, result.Breakdown.DamageConfidence.Score)
	assert.Equal(t, 20, result.Breakdown.NotesConsistency.Score)
	assert.Equal(t, 84, result.TotalScore)
	assert.Equal(t, 93, result.MaxScore)
}

func TestScoreEmptyBundle(t *testing.T) {
	result := Score(&model.EvidenceBundle{AppraisalID: "appr-2"})

	assert.Zero(t, result.TotalScore)
	assert.Len(t, result.Breakdown.AngleCoverage.MissingAngles, 6)
	assert.Equal(t, "No photos provided", result.Breakdown.AngleCoverage.Reason)
	assert.Equal(t, "No vision outputs", result.Breakdown.OdometerConfidence.Reason)
	assert.Equal(t, "No vision outputs", result.Breakdown.VINPresence.Reason)
	require.NotNil(t, result.Breakdown.VINPresence.VINPresent)
	assert.False(t, *result.Breakdown.VINPresence.VINPresent)
}

func TestOdometerReasonDistinguishesNoReadingsFromNoPhotos(t *testing.T) {
	bundle := &model.EvidenceBundle{
		Extractions: []model.PhotoExtraction{anglePhoto("p1", model.AngleFront, 0.9)},
	}
	result := Score(bundle)

	assert.Equal(t, "No odometer readings found", result.Breakdown.OdometerConfidence.Reason)
	assert.Equal(t, "No VIN readings found", result.Breakdown.VINPresence.Reason)
}

func TestAngleCoverageIgnoresLowConfidenceAndUnknown(t *testing.T) {
	bundle := &model.EvidenceBundle{
		Extractions: []model.PhotoExtraction{
			anglePhoto("p1", model.AngleFront, 0.69),
			anglePhoto("p2", model.AngleUnknown, 0.99),
			anglePhoto("p3", model.AngleVIN, 0.99),
			anglePhoto("p4", model.AngleRear, 1.0),
		},
	}
	cat := Score(bundle).Breakdown.AngleCoverage

	assert.Equal(t, []string{"rear"}, cat.CoveredAngles)
	assert.Equal(t, 8, cat.Score)
	assert.Contains(t, cat.MissingAngles, "front")
}

func TestAngleCoverageUsesBestConfidencePerAngle(t *testing.T) {
	bundle := &model.EvidenceBundle{
		Extractions: []model.PhotoExtraction{
			anglePhoto("p1", model.AngleFront, 0.75),
			anglePhoto("p2", model.AngleFront, 0.95),
		},
	}
	cat := Score(bundle).Breakdown.AngleCoverage

	bestConf := 0.95
	assert.Equal(t, int(8*bestConf), cat.Score)
}

func TestOdometerSpreadPenaltyDominatesUnitPenalty(t *testing.T) {
	p1 := anglePhoto("p1", model.AngleOdometer, 0.9)
	p1.Extraction.Odometer = model.OdometerReading{Value: f(45000), Unit: model.UnitMiles, Confidence: 0.9}
	p2 := anglePhoto("p2", model.AngleOdometer, 0.9)
	p2.Extraction.Odometer = model.OdometerReading{Value: f(46000), Unit: model.UnitKM, Confidence: 0.8}

	cat := Score(&model.EvidenceBundle{Extractions: []model.PhotoExtraction{p1, p2}}).Breakdown.OdometerConfidence

	// Both penalties fire; only the larger applies.
	require.NotNil(t, cat.Confidence)
	assert.InDelta(t, 0.9*0.5, *cat.Confidence, 1e-9)
	penalty := 0.45
	assert.Equal(t, int(15*penalty), cat.Score)
	assert.True(t, cat.ConsistencyIssues)
	assert.Len(t, cat.Warnings, 2)
	require.NotNil(t, cat.OdometerValue)
	assert.Equal(t, 45000.0, *cat.OdometerValue)
}

func TestOdometerSmallSpreadIsConsistent(t *testing.T) {
	p1 := anglePhoto("p1", model.AngleOdometer, 0.9)
	p1.Extraction.Odometer = model.OdometerReading{Value: f(45200), Unit: model.UnitMiles, Confidence: 0.9}
	p2 := anglePhoto("p2", model.AngleInterior, 0.9)
	p2.Extraction.Odometer = model.OdometerReading{Value: f(45300), Unit: model.UnitMiles, Confidence: 0.7}

	cat := Score(&model.EvidenceBundle{Extractions: []model.PhotoExtraction{p1, p2}}).Breakdown.OdometerConfidence

	assert.False(t, cat.ConsistencyIssues)
	bestConf := 0.9
	assert.Equal(t, int(15*bestConf), cat.Score)
}

func TestVINMultipleValuesPenalty(t *testing.T) {
	p1 := anglePhoto("p1", model.AngleVIN, 0.9)
	p1.Extraction.VIN = model.VINReading{Text: "1HGCM82633A004352", Confidence: 0.9}
	p2 := anglePhoto("p2", model.AngleFront, 0.9)
	p2.Extraction.VIN = model.VINReading{Text: "5YJ3E1EA7KF000316", Confidence: 0.8}

	cat := Score(&model.EvidenceBundle{Extractions: []model.PhotoExtraction{p1, p2}}).Breakdown.VINPresence

	require.NotNil(t, cat.Confidence)
	assert.InDelta(t, 0.9*0.2, *cat.Confidence, 1e-9)
	assert.Equal(t, 1, cat.Score)
	assert.True(t, cat.ConsistencyIssues)
	assert.Equal(t, "1HGCM82633A004352", cat.VINText)
}

func TestVINIdenticalReadingsNoPenalty(t *testing.T) {
	p1 := anglePhoto("p1", model.AngleVIN, 0.9)
	p1.Extraction.VIN = model.VINReading{Text: "1hgcm82633a004352 ", Confidence: 0.9}
	p2 := anglePhoto("p2", model.AngleFront, 0.9)
	p2.Extraction.VIN = model.VINReading{Text: "1HGCM82633A004352", Confidence: 0.7}

	cat := Score(&model.EvidenceBundle{Extractions: []model.PhotoExtraction{p1, p2}}).Breakdown.VINPresence

	assert.False(t, cat.ConsistencyIssues)
	assert.Equal(t, 9, cat.Score)
}

func TestNotesTiers(t *testing.T) {
	tests := []struct {
		name  string
		notes string
		want  int
	}{
		{"empty", "", 0},
		{"too short", "ok fine", 0},
		{"minimal", "Minor scratches on rear bumper.", 5},
		{"moderate", strings.Repeat("x", 100), 12},
		{"detailed", strings.Repeat("x", 200), 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat := Score(&model.EvidenceBundle{Notes: tt.notes}).Breakdown.NotesConsistency
			assert.Equal(t, tt.want, cat.Score)
		})
	}
}

func TestDegradedExtractionsContributeNothing(t *testing.T) {
	bundle := &model.EvidenceBundle{
		Extractions: []model.PhotoExtraction{
			model.DegradedExtraction("p1", "schema validation failed"),
			model.DegradedExtraction("p2", "schema validation failed"),
		},
	}
	result := Score(bundle)

	assert.Zero(t, result.TotalScore)
}
