package model

// CategoryScore is one category's contribution to the readiness score.
// Category-specific fields are populated only where they apply.
type CategoryScore struct {
	Score    int    `json:"score"`
	MaxScore int    `json:"max_score"`
	Reason   string `json:"reason"`

	// Angle coverage.
	CoveredAngles []string `json:"covered_angles,omitempty"`
	MissingAngles []string `json:"missing_angles,omitempty"`

	// Odometer / VIN.
	Confidence    *float64 `json:"confidence,omitempty"`
	OdometerValue *float64 `json:"odometer_value,omitempty"`
	VINPresent    *bool    `json:"vin_present,omitempty"`
	VINText       string   `json:"vin_text,omitempty"`

	// Notes.
	NoteLength int `json:"note_length,omitempty"`

	Warnings          []string `json:"warnings,omitempty"`
	ConsistencyIssues bool     `json:"consistency_issues,omitempty"`
}

// Breakdown holds every scoring category; zero-scoring categories are still
// present so consumers can always enumerate the full set.
type Breakdown struct {
	AngleCoverage      CategoryScore `json:"angle_coverage"`
	OdometerConfidence CategoryScore `json:"odometer_confidence"`
	VINPresence        CategoryScore `json:"vin_presence"`
	DamageConfidence   CategoryScore `json:"damage_confidence"`
	NotesConsistency   CategoryScore `json:"notes_consistency"`
}

// Categories returns the breakdown entries in canonical order.
func (b *Breakdown) Categories() []CategoryScore {
	return []CategoryScore{
		b.AngleCoverage,
		b.OdometerConfidence,
		b.VINPresence,
		b.DamageConfidence,
		b.NotesConsistency,
	}
}

// ScoreResult is the full output of the scoring engine. MaxScore is the sum
// of the category maxima.
type ScoreResult struct {
	TotalScore int       `json:"total_score"`
	MaxScore   int       `json:"max_score"`
	Breakdown  Breakdown `json:"breakdown"`
}
