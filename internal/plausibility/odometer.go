// Package plausibility holds deterministic, non-ML validation of extracted
// values against physical and format constraints.
package plausibility

import "fmt"

const (
	odometerMax = 500000

	// Readings divisible by this at high confidence are likely misreads of a
	// partially obscured display.
	roundInterval      = 10000
	roundConfThreshold = 0.8
	roundDiscount      = 0.7
)

// CheckOdometer validates an extracted odometer value. It returns the
// adjusted confidence and a warning when the value is implausible or
// suspiciously round. A nil value passes through unchanged.
func CheckOdometer(value *float64, confidence float64) (float64, string) {
	if value == nil {
		return confidence, ""
	}

	v := *value
	if v < 0 || v > odometerMax {
		return 0, fmt.Sprintf("Odometer value %.0f is outside plausible range (0-500,000)", v)
	}

	if v > 0 && int64(v)%roundInterval == 0 && float64(int64(v)) == v && confidence > roundConfThreshold {
		return confidence * roundDiscount, fmt.Sprintf("Odometer value %.0f is suspiciously round", v)
	}

	return confidence, ""
}
