package transcript

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeEmptyIsInvalid(t *testing.T) {
	_, _, err := Normalize("", "en", 0)
	require.ErrorIs(t, err, ErrEmptyTranscript)
}

func TestNormalizeOversizeIsInvalid(t *testing.T) {
	_, _, err := Normalize("hello", "en", 3)
	require.ErrorIs(t, err, ErrTranscriptTooLarge)
}

func TestNormalizeBoundarySizeAccepted(t *testing.T) {
	lines, _, err := Normalize("hello", "en", 5)
	require.NoError(t, err)
	require.Len(t, lines, 1)
}

func TestNormalizeAssignsPositionalLineNumbers(t *testing.T) {
	lines, _, err := Normalize("Doctor: How are you?\nPatient: Fine thanks.", "en", 0)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, 1, lines[0].LineNo)
	assert.Equal(t, "Doctor", lines[0].Speaker)
	assert.Equal(t, "How are you?", lines[0].Text)
	assert.Equal(t, 2, lines[1].LineNo)
	assert.Equal(t, "Patient", lines[1].Speaker)
}

func TestNormalizeHonoursExplicitNumbering(t *testing.T) {
	lines, _, err := Normalize("5: Doctor: hi\n6: Patient: hello", "en", 0)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, 5, lines[0].LineNo)
	assert.Equal(t, 6, lines[1].LineNo)
}

func TestNormalizeFallsBackWhenNumberingNotStrictlyIncreasing(t *testing.T) {
	lines, _, err := Normalize("5: a\n3: b", "en", 0)
	require.NoError(t, err)
	// Non-increasing explicit numbering disqualifies the whole transcript
	// from explicit numbering; positions are assigned instead.
	assert.Equal(t, 1, lines[0].LineNo)
	assert.Equal(t, 2, lines[1].LineNo)
}

func TestByteOffsetsAreStable(t *testing.T) {
	lines, _, err := Normalize("abc\ndef", "en", 0)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, 0, lines[0].ByteStart)
	assert.Equal(t, 3, lines[0].ByteEnd)
	assert.Equal(t, 4, lines[1].ByteStart)
	assert.Equal(t, 7, lines[1].ByteEnd)
}

func TestRoundTrip(t *testing.T) {
	original := "line one\nline two\nline three"
	lines, _, err := Normalize(original, "en", 0)
	require.NoError(t, err)
	assert.Equal(t, original, Reassemble(lines))
}

func TestDetectLanguageFallback(t *testing.T) {
	_, lang, err := Normalize("Le patient est stable et le médecin a confirmé.", "", 0)
	require.NoError(t, err)
	assert.Equal(t, "fr", lang)
}
