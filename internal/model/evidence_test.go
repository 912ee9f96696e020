package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTrimsAndUppercases(t *testing.T) {
	m := &AppraisalMetadata{
		Make:  "  Toyota ",
		Model: " Camry",
		VIN:   " 1hgcm82633a004352 ",
	}
	require.NoError(t, m.Normalize())
	assert.Equal(t, "Toyota", m.Make)
	assert.Equal(t, "Camry", m.Model)
	assert.Equal(t, "1HGCM82633A004352", m.VIN)
}

func TestNormalizeReportsEveryProblem(t *testing.T) {
	year := 1800
	mileage := -5.0
	m := &AppraisalMetadata{
		Year:    &year,
		Mileage: &mileage,
		VIN:     "THISVINISWAYTOOLONGTOBEREAL",
	}
	err := m.Normalize()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "year")
	assert.Contains(t, err.Error(), "mileage")
	assert.Contains(t, err.Error(), "vin")
}

func TestSanitizeNotes(t *testing.T) {
	assert.Equal(t, "line one\nline two", SanitizeNotes("line one\nline two"))
	assert.Equal(t, "ab", SanitizeNotes("a\x00\x07b"))

	long := strings.Repeat("x", 20000)
	assert.Len(t, SanitizeNotes(long), 10000)
}

func TestRunStatusTransitions(t *testing.T) {
	assert.True(t, RunPending.CanTransitionTo(RunRunning))
	assert.True(t, RunRunning.CanTransitionTo(RunCompleted))
	assert.True(t, RunRunning.CanTransitionTo(RunFailed))

	assert.False(t, RunPending.CanTransitionTo(RunCompleted))
	assert.False(t, RunCompleted.CanTransitionTo(RunRunning))
	assert.False(t, RunFailed.CanTransitionTo(RunRunning))

	assert.True(t, RunCompleted.Terminal())
	assert.True(t, RunFailed.Terminal())
	assert.False(t, RunRunning.Terminal())
}
