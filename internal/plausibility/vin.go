package plausibility

import (
	"fmt"
	"strings"
)

// vinWeights are the per-position checksum weights; position 9 (the check
// digit itself) carries weight 0.
var vinWeights = [17]int{8, 7, 6, 5, 4, 3, 2, 10, 0, 9, 8, 7, 6, 5, 4, 3, 2}

// vinValues is the canonical North-American VIN transliteration table.
// Digits map to themselves; I, O and Q are not legal VIN characters.
var vinValues = map[byte]int{
	'0': 0, '1': 1, '2': 2, '3': 3, '4': 4, '5': 5, '6': 6, '7': 7, '8': 8, '9': 9,
	'A': 1, 'B': 2, 'C': 3, 'D': 4, 'E': 5, 'F': 6, 'G': 7, 'H': 8,
	'J': 1, 'K': 2, 'L': 3, 'M': 4, 'N': 5, 'P': 7, 'R': 9,
	'S': 2, 'T': 3, 'U': 4, 'V': 5, 'W': 6, 'X': 7, 'Y': 8, 'Z': 9,
}

// ValidateVINCheckDigit computes the weighted checksum over the VIN and
// compares it against the check character at position 9.
func ValidateVINCheckDigit(vin string) bool {
	if len(vin) != 17 {
		return false
	}

	vin = strings.ToUpper(vin)
	total := 0
	for i := 0; i < 17; i++ {
		if i == 8 {
			continue
		}
		v, ok := vinValues[vin[i]]
		if !ok {
			return false
		}
		total += v * vinWeights[i]
	}

	expected := byte('0' + total%11)
	if total%11 == 10 {
		expected = 'X'
	}
	return vin[8] == expected
}

// CheckVIN validates an extracted VIN string: length, alphabet, and check
// digit. It returns the adjusted confidence and a warning. An empty text
// passes through unchanged.
func CheckVIN(text string, confidence float64) (float64, string) {
	if text == "" {
		return confidence, ""
	}

	if len(text) != 17 {
		return 0, fmt.Sprintf("VIN length %d is invalid (must be 17 characters)", len(text))
	}

	upper := strings.ToUpper(text)
	if strings.ContainsAny(upper, "IOQ") {
		// I/O/Q are commonly misread as 1/0; keep a reduced confidence so the
		// photo can still count as a VIN attempt.
		return confidence * 0.5, "VIN contains invalid characters (I, O, or Q)"
	}

	for i := 0; i < 17; i++ {
		if _, ok := vinValues[upper[i]]; !ok {
			return 0, "VIN contains invalid characters (must be A-Z, 0-9, excluding I, O, Q)"
		}
	}

	if !ValidateVINCheckDigit(upper) {
		return 0, "VIN checksum validation failed (invalid VIN)"
	}

	return confidence, ""
}
