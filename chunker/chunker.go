// Package chunker groups transcript line records into overlapping
// semantic windows, preserving line-number metadata, per spec.md §4.2.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strings"

	"github.com/brunobiangulo/clinextract/transcript"
)

// Config is the chunking policy from spec.md §4.2.
type Config struct {
	TargetTokens             int // default 1500
	OverlapTokens            int // default 150
	RespectSpeakerBoundaries bool
	MinLines                 int
	MaxLines                 int
}

// Chunk is a contiguous text window with its originating line span.
type Chunk struct {
	LineFirst int
	LineLast  int
	Text      string
	Hash      string
}

// Chunker builds overlapping chunks from normalized transcript lines.
type Chunker struct {
	cfg Config
}

// New returns a Chunker with defaults filled in for zero-value fields.
func New(cfg Config) *Chunker {
	if cfg.TargetTokens == 0 {
		cfg.TargetTokens = 1500
	}
	if cfg.OverlapTokens == 0 {
		cfg.OverlapTokens = 150
	}
	if cfg.MinLines == 0 {
		cfg.MinLines = 1
	}
	return &Chunker{cfg: cfg}
}

// Chunk performs a greedy walk over lines that never splits a line: every
// line is covered by at least one chunk, and adjacent chunks overlap by
// the configured number of tokens drawn from the tail of the previous
// chunk. When RespectSpeakerBoundaries is set, a boundary is preferred at
// a speaker turn once the target token count has been reached.
func (c *Chunker) Chunk(lines []transcript.LineRecord) []Chunk {
	if len(lines) == 0 {
		return nil
	}

	var chunks []Chunk
	start := 0
	for start < len(lines) {
		end := start
		tokens := 0
		lastSpeakerBoundary := -1

		for end < len(lines) {
			lineTokens := estimateTokens(lines[end].Text)
			if tokens > 0 && tokens+lineTokens > c.cfg.TargetTokens && (end-start) >= c.cfg.MinLines {
				if c.cfg.RespectSpeakerBoundaries && lastSpeakerBoundary > start {
					end = lastSpeakerBoundary
				}
				break
			}
			if c.cfg.MaxLines > 0 && end-start >= c.cfg.MaxLines {
				break
			}
			if lines[end].Speaker != "" && end > start {
				lastSpeakerBoundary = end
			}
			tokens += lineTokens
			end++
		}
		if end == start {
			end = start + 1 // a single oversize line still forms its own chunk
		}

		chunkLines := lines[start:end]
		text := joinLines(chunkLines)
		chunks = append(chunks, Chunk{
			LineFirst: chunkLines[0].LineNo,
			LineLast:  chunkLines[len(chunkLines)-1].LineNo,
			Text:      text,
			Hash:      contentHash(text),
		})

		if end >= len(lines) {
			break
		}

		// Next chunk starts from the line containing the overlap tail,
		// never re-splitting a line.
		start = overlapStart(lines, start, end, c.cfg.OverlapTokens)
	}
	return chunks
}

// overlapStart walks backward from end to the first line index whose
// suffix (through end-1) holds at least overlapTokens worth of text, so
// the next chunk begins with that many tokens of context. It never goes
// back as far as start.
func overlapStart(lines []transcript.LineRecord, start, end, overlapTokens int) int {
	if overlapTokens <= 0 {
		return end
	}
	tokens := 0
	idx := end
	for idx > start+1 {
		idx--
		tokens += estimateTokens(lines[idx].Text)
		if tokens >= overlapTokens {
			return idx
		}
	}
	return start + 1 // guarantee forward progress even on a tiny overlap window
}

func joinLines(lines []transcript.LineRecord) string {
	var b strings.Builder
	for i, l := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		if l.Speaker != "" {
			b.WriteString(l.Speaker)
			b.WriteString(": ")
		}
		b.WriteString(l.Text)
	}
	return b.String()
}

// estimateTokens approximates token count with a word-count heuristic:
// tokens ~ words * 1.3.
func estimateTokens(text string) int {
	words := len(strings.Fields(text))
	return int(math.Ceil(float64(words) * 1.3))
}

func contentHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
