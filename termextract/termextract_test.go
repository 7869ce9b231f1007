package termextract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/clinextract/llm"
	"github.com/brunobiangulo/clinextract/transcript"
)

type stubProvider struct {
	response string
}

func (s *stubProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{Content: s.response}, nil
}

func (s *stubProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, nil
}

func TestExtractDiscardsFabricatedOccurrences(t *testing.T) {
	lines := []transcript.LineRecord{
		{LineNo: 1, Text: "Patient reports chest pain since yesterday."},
		{LineNo: 2, Text: "No fever noted."},
	}
	stub := &stubProvider{response: `{"terms": [
		{"surface": "chest pain", "line_no": 1},
		{"surface": "headache", "line_no": 1}
	]}`}
	e := New(Config{}, stub)

	terms, err := e.Extract(context.Background(), lines)
	require.NoError(t, err)
	require.Len(t, terms, 1)
	require.Equal(t, "chest pain", terms[0].Surface)
	require.Len(t, terms[0].Occurrences, 1)
	require.Equal(t, 1, terms[0].Occurrences[0].LineNo)
	require.Equal(t, 16, terms[0].Occurrences[0].CharStart)
}

func TestExtractMergesOccurrencesAcrossWindows(t *testing.T) {
	lines := make([]transcript.LineRecord, 0, 60)
	for i := 1; i <= 60; i++ {
		lines = append(lines, transcript.LineRecord{LineNo: i, Text: "patient denies nausea today"})
	}
	stub := &stubProvider{response: `{"terms": [{"surface": "nausea", "line_no": 1}]}`}
	e := New(Config{WindowLines: 40, StrideLines: 30}, stub)

	terms, err := e.Extract(context.Background(), lines)
	require.NoError(t, err)
	require.Len(t, terms, 1)
	require.Equal(t, "nausea", terms[0].Normalized)
}

func TestExtractEmptyTranscript(t *testing.T) {
	e := New(Config{}, &stubProvider{})
	terms, err := e.Extract(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, terms)
}
