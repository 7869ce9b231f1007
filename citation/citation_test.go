package citation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/clinextract"
	"github.com/brunobiangulo/clinextract/transcript"
)

func lines() []transcript.LineRecord {
	return []transcript.LineRecord{
		{LineNo: 1, Text: "Patient reports chest pain since yesterday."},
		{LineNo: 2, Text: "No fever noted."},
	}
}

func TestValidateAcceptsExactMatch(t *testing.T) {
	refs := []clinextract.LineReference{
		{Line: 1, Start: 16, End: 26, Text: "chest pain"},
	}
	result := Validate(refs, lines())
	assert.True(t, result.Passed())
}

func TestValidateRejectsUnknownLine(t *testing.T) {
	refs := []clinextract.LineReference{{Line: 99, Start: 0, End: 3, Text: "abc"}}
	result := Validate(refs, lines())
	require.False(t, result.Passed())
	require.Len(t, result.Failures, 1)
}

func TestValidateRejectsOutOfBoundsOffsets(t *testing.T) {
	refs := []clinextract.LineReference{{Line: 1, Start: 5, End: 2, Text: "x"}}
	result := Validate(refs, lines())
	require.False(t, result.Passed())
}

func TestValidateRejectsTextMismatch(t *testing.T) {
	refs := []clinextract.LineReference{{Line: 1, Start: 16, End: 26, Text: "back pain"}}
	result := Validate(refs, lines())
	require.False(t, result.Passed())
}

func TestPassRatioEmptyIsOne(t *testing.T) {
	assert.Equal(t, 1.0, PassRatio(0, 0))
}

func TestPassRatioPartial(t *testing.T) {
	assert.Equal(t, 0.5, PassRatio(4, 2))
}
