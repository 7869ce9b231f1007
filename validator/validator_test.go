package validator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/clinextract"
	"github.com/brunobiangulo/clinextract/transcript"
)

func TestValidateAcceptsCleanSection(t *testing.T) {
	s := New(nil)
	lines := []transcript.LineRecord{
		{LineNo: 1, Text: "Patient reports chest pain since yesterday."},
	}
	candidate := clinextract.SectionResult{
		SectionID: "s1",
		Content:   "Patient has chest pain.",
		LineReferences: []clinextract.LineReference{
			{Line: 1, Start: 16, End: 26, Text: "chest pain"},
		},
	}

	outcome, err := s.Validate(context.Background(), candidate, lines, nil, 0.9)
	require.NoError(t, err)
	assert.True(t, outcome.Accepted)
	assert.Equal(t, 0.9, outcome.Confidence)
}

func TestValidateRejectsBadCitation(t *testing.T) {
	s := New(nil)
	lines := []transcript.LineRecord{{LineNo: 1, Text: "Patient reports chest pain."}}
	candidate := clinextract.SectionResult{
		SectionID: "s1",
		Content:   "Patient has back pain.",
		LineReferences: []clinextract.LineReference{
			{Line: 1, Start: 0, End: 5, Text: "wrong"},
		},
	}

	outcome, err := s.Validate(context.Background(), candidate, lines, nil, 0.9)
	require.NoError(t, err)
	assert.False(t, outcome.Accepted)
	require.Len(t, outcome.FailingReferences, 1)
}

func TestValidateRejectsLowConfidence(t *testing.T) {
	s := New(nil)
	candidate := clinextract.SectionResult{SectionID: "s1", Content: "something"}

	outcome, err := s.Validate(context.Background(), candidate, nil, nil, 0.2)
	require.NoError(t, err)
	assert.False(t, outcome.Accepted)
}

func TestValidateRejectsEmptyContentSchema(t *testing.T) {
	s := New(nil)
	candidate := clinextract.SectionResult{SectionID: "s1", Content: ""}

	outcome, err := s.Validate(context.Background(), candidate, nil, nil, 1.0)
	require.NoError(t, err)
	assert.False(t, outcome.Accepted)
}
