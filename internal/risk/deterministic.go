package risk

import (
	"fmt"
	"math"
	"strings"

	"github.com/sells-group/appraisal-precheck/internal/model"
)

// Metadata readings further from the best photo reading than this are
// flagged as mismatched.
const mileageMismatchLimit = 100

// DeterministicChecks compares submitted metadata against the extracted
// readings. These flags are produced even when the reasoning capability is
// unavailable.
func DeterministicChecks(bundle *model.EvidenceBundle) []model.RiskFlag {
	var flags []model.RiskFlag

	if bundle.Metadata.Mileage != nil {
		if value, ok := bestOdometer(bundle.Extractions); ok {
			if math.Abs(*bundle.Metadata.Mileage-value) > mileageMismatchLimit {
				flags = append(flags, model.RiskFlag{
					Code:     "METADATA_ODOMETER_MISMATCH",
					Severity: model.SeverityMedium,
					Message: fmt.Sprintf("Metadata mileage (%.0f) differs significantly from photo reading (%.0f)",
						*bundle.Metadata.Mileage, value),
					Evidence: []model.EvidenceRef{
						{Type: "metadata", ID: "mileage", Description: "Submitted mileage"},
						{Type: "vision", Description: "Highest-confidence odometer reading"},
					},
				})
			}
		}
	}

	if metaVIN := strings.ToUpper(strings.TrimSpace(bundle.Metadata.VIN)); metaVIN != "" {
		if photoVIN, ok := bestVIN(bundle.Extractions); ok && photoVIN != metaVIN {
			flags = append(flags, model.RiskFlag{
				Code:     "METADATA_VIN_MISMATCH",
				Severity: model.SeverityHigh,
				Message:  fmt.Sprintf("Metadata VIN (%s) does not match photo VIN (%s)", metaVIN, photoVIN),
				Evidence: []model.EvidenceRef{
					{Type: "metadata", ID: "vin", Description: "Submitted VIN"},
					{Type: "vision", Description: "Highest-confidence extracted VIN"},
				},
			})
		}
	}

	return flags
}

func bestOdometer(extractions []model.PhotoExtraction) (float64, bool) {
	best, bestConf, found := 0.0, 0.0, false
	for _, ex := range extractions {
		o := ex.Extraction.Odometer
		if o.Value != nil && o.Confidence > bestConf {
			best, bestConf, found = *o.Value, o.Confidence, true
		}
	}
	return best, found
}

func bestVIN(extractions []model.PhotoExtraction) (string, bool) {
	best, bestConf := "", 0.0
	for _, ex := range extractions {
		v := ex.Extraction.VIN
		if v.Text != "" && v.Confidence > bestConf {
			best, bestConf = strings.ToUpper(strings.TrimSpace(v.Text)), v.Confidence
		}
	}
	return best, best != ""
}
