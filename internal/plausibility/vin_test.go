package plausibility

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const validVIN = "1HGCM82633A004352"

func TestValidateVINCheckDigit(t *testing.T) {
	assert.True(t, ValidateVINCheckDigit(validVIN))
	assert.True(t, ValidateVINCheckDigit("1hgcm82633a004352"), "case insensitive")

	// Flip the check digit.
	altered := validVIN[:8] + "4" + validVIN[9:]
	assert.False(t, ValidateVINCheckDigit(altered))

	assert.False(t, ValidateVINCheckDigit("SHORT"))
}

func TestCheckVIN(t *testing.T) {
	conf, warn := CheckVIN(validVIN, 0.9)
	assert.Equal(t, 0.9, conf)
	assert.Empty(t, warn)

	// Empty text passes through.
	conf, warn = CheckVIN("", 0.9)
	assert.Equal(t, 0.9, conf)
	assert.Empty(t, warn)

	conf, warn = CheckVIN("1HGCM8263", 0.9)
	assert.Zero(t, conf)
	assert.Contains(t, warn, "length")

	// I/O/Q halves confidence rather than zeroing it.
	withO := validVIN[:3] + "O" + validVIN[4:]
	conf, warn = CheckVIN(withO, 0.8)
	assert.InDelta(t, 0.4, conf, 1e-9)
	assert.Contains(t, warn, "invalid characters")

	// Valid alphabet but wrong checksum.
	altered := validVIN[:8] + "4" + validVIN[9:]
	conf, warn = CheckVIN(altered, 0.9)
	assert.Zero(t, conf)
	assert.Contains(t, warn, "checksum")
}
