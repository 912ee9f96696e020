package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

const maxNotesLength = 10000

// AppraisalMetadata is the structured metadata submitted with an appraisal.
// All fields are optional; Normalize rejects values outside physical bounds.
type AppraisalMetadata struct {
	Year    *int     `json:"year,omitempty"`
	Make    string   `json:"make,omitempty"`
	Model   string   `json:"model,omitempty"`
	Trim    string   `json:"trim,omitempty"`
	Mileage *float64 `json:"mileage,omitempty"`
	Color   string   `json:"color,omitempty"`
	VIN     string   `json:"vin,omitempty"`
}

// Normalize trims string fields (dropping empty ones) and validates numeric
// bounds. It mutates m in place and returns an error naming every invalid
// field.
func (m *AppraisalMetadata) Normalize() error {
	m.Make = strings.TrimSpace(m.Make)
	m.Model = strings.TrimSpace(m.Model)
	m.Trim = strings.TrimSpace(m.Trim)
	m.Color = strings.TrimSpace(m.Color)
	m.VIN = strings.ToUpper(strings.TrimSpace(m.VIN))

	var problems []string
	if m.Year != nil && (*m.Year < 1900 || *m.Year > 2030) {
		problems = append(problems, "year must be between 1900 and 2030")
	}
	if m.Mileage != nil && (*m.Mileage < 0 || *m.Mileage > 1000000) {
		problems = append(problems, "mileage must be between 0 and 1,000,000")
	}
	if len(m.VIN) > 17 {
		problems = append(problems, "vin must be at most 17 characters")
	}
	if len(problems) > 0 {
		return eris.New("metadata: " + strings.Join(problems, "; "))
	}
	return nil
}

// PhotoInput references one uploaded photo by id and fetchable URL.
type PhotoInput struct {
	PhotoID string `json:"photo_id"`
	URL     string `json:"url"`
}

// EvidenceInputs is everything the caller hands the pipeline for one run.
type EvidenceInputs struct {
	AppraisalID string            `json:"appraisal_id"`
	Photos      []PhotoInput      `json:"photos"`
	Metadata    AppraisalMetadata `json:"metadata"`
	Notes       string            `json:"notes"`
}

// EvidenceBundle is the frozen working set scoring and risk scanning consume.
// Built once per run after all extractions complete; never mutated afterwards.
type EvidenceBundle struct {
	AppraisalID string            `json:"appraisal_id"`
	Extractions []PhotoExtraction `json:"extractions"`
	Metadata    AppraisalMetadata `json:"metadata"`
	Notes       string            `json:"notes"`
}

// SanitizeNotes strips control characters (keeping newlines and tabs) and
// caps the text at the storage limit.
func SanitizeNotes(notes string) string {
	var b strings.Builder
	b.Grow(len(notes))
	for _, r := range notes {
		if r >= 32 || r == '\n' || r == '\t' {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if len(s) > maxNotesLength {
		s = s[:maxNotesLength]
	}
	return s
}
