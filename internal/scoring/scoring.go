// Package scoring computes the weighted decision-readiness score from a
// frozen evidence bundle. All functions are pure; the same bundle always
// yields the same score.
package scoring

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/appraisal-precheck/internal/model"
)

const (
	pointsPerAngle   = 8
	odometerMaxScore = 15
	vinMaxScore      = 10
	notesMaxScore    = 20

	// Angle classifications below this confidence do not count as coverage.
	angleConfidenceFloor = 0.7

	// Odometer readings further apart than this are treated as inconsistent.
	odometerSpreadLimit = 100

	unitPenalty     = 0.3
	spreadPenalty   = 0.5
	multiVINPenalty = 0.8
)

// Score evaluates the bundle across every category and sums the results.
// MaxScore is the sum of the category maxima.
func Score(bundle *model.EvidenceBundle) *model.ScoreResult {
	breakdown := model.Breakdown{
		AngleCoverage:      scoreAngleCoverage(bundle.Extractions),
		OdometerConfidence: scoreOdometerConfidence(bundle.Extractions),
		VINPresence:        scoreVINPresence(bundle.Extractions),
		DamageConfidence:   scoreDamageConfidence(),
		NotesConsistency:   scoreNotesConsistency(bundle.Notes),
	}

	total, maxTotal := 0, 0
	for _, c := range breakdown.Categories() {
		total += c.Score
		maxTotal += c.MaxScore
	}

	return &model.ScoreResult{
		TotalScore: total,
		MaxScore:   maxTotal,
		Breakdown:  breakdown,
	}
}

// AngleCoverageMax is the maximum achievable angle-coverage score.
func AngleCoverageMax() int {
	return pointsPerAngle * len(model.RequiredAngles)
}

func scoreAngleCoverage(extractions []model.PhotoExtraction) model.CategoryScore {
	maxScore := AngleCoverageMax()

	if len(extractions) == 0 {
		missing := make([]string, len(model.RequiredAngles))
		for i, a := range model.RequiredAngles {
			missing[i] = string(a)
		}
		return model.CategoryScore{
			Score:         0,
			MaxScore:      maxScore,
			MissingAngles: missing,
			Reason:        "No photos provided",
		}
	}

	required := make(map[model.PhotoAngle]bool, len(model.RequiredAngles))
	for _, a := range model.RequiredAngles {
		required[a] = true
	}

	// Track the best confidence seen per covered angle.
	bestConf := make(map[model.PhotoAngle]float64)
	for _, ex := range extractions {
		reading := ex.Extraction.PhotoAngle
		if reading.Angle == model.AngleUnknown || reading.Confidence < angleConfidenceFloor {
			continue
		}
		if !required[reading.Angle] {
			continue
		}
		if reading.Confidence > bestConf[reading.Angle] {
			bestConf[reading.Angle] = reading.Confidence
		}
	}

	var covered, missing []string
	score := 0
	for _, a := range model.RequiredAngles {
		conf, ok := bestConf[a]
		if !ok {
			missing = append(missing, string(a))
			continue
		}
		covered = append(covered, string(a))
		score += int(pointsPerAngle * conf)
	}
	sort.Strings(covered)

	coveredLabel := "none"
	if len(covered) > 0 {
		coveredLabel = strings.Join(covered, ", ")
	}

	return model.CategoryScore{
		Score:         score,
		MaxScore:      maxScore,
		CoveredAngles: covered,
		MissingAngles: missing,
		Reason: fmt.Sprintf("Covered %d/%d required angles: %s",
			len(covered), len(model.RequiredAngles), coveredLabel),
	}
}

type odometerReading struct {
	value float64
	unit  model.OdometerUnit
	conf  float64
}

func scoreOdometerConfidence(extractions []model.PhotoExtraction) model.CategoryScore {
	if len(extractions) == 0 {
		return model.CategoryScore{
			Score:    0,
			MaxScore: odometerMaxScore,
			Reason:   "No vision outputs",
		}
	}

	var readings []odometerReading
	for _, ex := range extractions {
		o := ex.Extraction.Odometer
		if o.Value != nil && o.Confidence > 0 {
			readings = append(readings, odometerReading{value: *o.Value, unit: o.Unit, conf: o.Confidence})
		}
	}

	if len(readings) == 0 {
		return model.CategoryScore{
			Score:    0,
			MaxScore: odometerMaxScore,
			Reason:   "No odometer readings found",
		}
	}

	units := make(map[model.OdometerUnit]bool)
	minVal, maxVal := readings[0].value, readings[0].value
	best := readings[0]
	for _, r := range readings {
		if r.unit != "" {
			units[r.unit] = true
		}
		if r.value < minVal {
			minVal = r.value
		}
		if r.value > maxVal {
			maxVal = r.value
		}
		if r.conf > best.conf {
			best = r
		}
	}

	// Penalties do not stack; the worse inconsistency wins.
	penalty := 0.0
	var warnings []string
	if len(units) > 1 {
		penalty = unitPenalty
		warnings = append(warnings, "Odometer units inconsistent across photos")
	}
	if maxVal-minVal > odometerSpreadLimit {
		if spreadPenalty > penalty {
			penalty = spreadPenalty
		}
		warnings = append(warnings, fmt.Sprintf("Odometer values inconsistent (range: %.0f)", maxVal-minVal))
	}

	adjusted := best.conf * (1 - penalty)
	value := best.value
	return model.CategoryScore{
		Score:             int(odometerMaxScore * adjusted),
		MaxScore:          odometerMaxScore,
		Confidence:        &adjusted,
		OdometerValue:     &value,
		Warnings:          warnings,
		ConsistencyIssues: len(warnings) > 0,
		Reason:            fmt.Sprintf("Odometer confidence: %.2f", adjusted),
	}
}

func scoreVINPresence(extractions []model.PhotoExtraction) model.CategoryScore {
	type vinReading struct {
		text string
		conf float64
	}

	if len(extractions) == 0 {
		zero := 0.0
		present := false
		return model.CategoryScore{
			Score:      0,
			MaxScore:   vinMaxScore,
			Confidence: &zero,
			VINPresent: &present,
			Reason:     "No vision outputs",
		}
	}

	var readings []vinReading
	for _, ex := range extractions {
		v := ex.Extraction.VIN
		if v.Text != "" && v.Confidence > 0 {
			readings = append(readings, vinReading{
				text: strings.ToUpper(strings.TrimSpace(v.Text)),
				conf: v.Confidence,
			})
		}
	}

	if len(readings) == 0 {
		zero := 0.0
		present := false
		return model.CategoryScore{
			Score:      0,
			MaxScore:   vinMaxScore,
			Confidence: &zero,
			VINPresent: &present,
			Reason:     "No VIN readings found",
		}
	}

	unique := make(map[string]bool)
	best := readings[0]
	for _, r := range readings {
		unique[r.text] = true
		if r.conf > best.conf {
			best = r
		}
	}

	penalty := 0.0
	var warnings []string
	if len(unique) > 1 {
		penalty = multiVINPenalty
		vins := make([]string, 0, len(unique))
		for v := range unique {
			vins = append(vins, v)
		}
		sort.Strings(vins)
		warnings = append(warnings, "Multiple different VINs detected: "+strings.Join(vins, ", "))
	}

	adjusted := best.conf * (1 - penalty)
	present := true
	return model.CategoryScore{
		Score:             int(vinMaxScore * adjusted),
		MaxScore:          vinMaxScore,
		Confidence:        &adjusted,
		VINPresent:        &present,
		VINText:           best.text,
		Warnings:          warnings,
		ConsistencyIssues: len(warnings) > 0,
		Reason:            fmt.Sprintf("VIN confidence: %.2f", adjusted),
	}
}

func scoreDamageConfidence() model.CategoryScore {
	// Damage findings inform the risk scan instead of the score.
	return model.CategoryScore{
		Score:    0,
		MaxScore: 0,
		Reason:   "Damage scoring removed (points redistributed to angle coverage)",
	}
}

func scoreNotesConsistency(notes string) model.CategoryScore {
	trimmed := strings.TrimSpace(notes)
	if len(trimmed) < 10 {
		return model.CategoryScore{
			Score:    0,
			MaxScore: notesMaxScore,
			Reason:   "Notes missing or too short",
		}
	}

	length := len(trimmed)
	var score int
	var reason string
	switch {
	case length < 50:
		score, reason = 5, "Notes present but minimal"
	case length < 150:
		score, reason = 12, "Notes present with moderate detail"
	default:
		score, reason = notesMaxScore, "Notes present with good detail"
	}

	return model.CategoryScore{
		Score:      score,
		MaxScore:   notesMaxScore,
		NoteLength: length,
		Reason:     reason,
	}
}
