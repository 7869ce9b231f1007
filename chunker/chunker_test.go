package chunker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/clinextract/transcript"
)

func makeLines(n int) []transcript.LineRecord {
	lines := make([]transcript.LineRecord, n)
	for i := 0; i < n; i++ {
		lines[i] = transcript.LineRecord{LineNo: i + 1, Text: "word word word word word"}
	}
	return lines
}

func TestSingleLineTranscriptProducesOneChunk(t *testing.T) {
	lines := makeLines(1)
	c := New(Config{})
	chunks := c.Chunk(lines)
	require.Len(t, chunks, 1)
	assert.Equal(t, 1, chunks[0].LineFirst)
	assert.Equal(t, 1, chunks[0].LineLast)
}

func TestEveryLineIsCovered(t *testing.T) {
	lines := makeLines(200)
	c := New(Config{TargetTokens: 50, OverlapTokens: 10})
	chunks := c.Chunk(lines)
	require.NotEmpty(t, chunks)

	covered := make(map[int]bool)
	for _, ch := range chunks {
		for ln := ch.LineFirst; ln <= ch.LineLast; ln++ {
			covered[ln] = true
		}
	}
	for i := 1; i <= 200; i++ {
		assert.Truef(t, covered[i], "line %d not covered by any chunk", i)
	}
}

func TestAdjacentChunksOverlap(t *testing.T) {
	lines := makeLines(200)
	c := New(Config{TargetTokens: 50, OverlapTokens: 10})
	chunks := c.Chunk(lines)
	require.True(t, len(chunks) > 1)
	for i := 1; i < len(chunks); i++ {
		assert.True(t, chunks[i].LineFirst <= chunks[i-1].LineLast,
			"chunk %d should start at or before the previous chunk ends", i)
	}
}

func TestEmptyTranscriptProducesNoChunks(t *testing.T) {
	c := New(Config{})
	assert.Empty(t, c.Chunk(nil))
}
