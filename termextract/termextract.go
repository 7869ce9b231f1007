// Package termextract implements the Term Extractor: detection of medical
// term candidates from a normalized transcript (spec.md §4.4) via
// whole-transcript, stride-windowed extraction with occurrence
// verification against the source lines.
package termextract

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/brunobiangulo/clinextract"
	"github.com/brunobiangulo/clinextract/llm"
	"github.com/brunobiangulo/clinextract/transcript"
)

// Config tunes the windowing and LLM calls used for extraction.
type Config struct {
	// WindowLines is the number of transcript lines fed to the LLM per
	// extraction call. Large transcripts are swept in windows advanced by
	// StrideLines, so consecutive windows share WindowLines-StrideLines
	// lines when the window is the larger of the two.
	WindowLines int
	// StrideLines is the number of lines advanced between windows.
	StrideLines int
	Model       string
}

func (c Config) withDefaults() Config {
	if c.WindowLines <= 0 {
		c.WindowLines = 40
	}
	if c.StrideLines <= 0 {
		c.StrideLines = 30
	}
	return c
}

// Extractor surfaces medical term candidates from a transcript.
type Extractor struct {
	cfg  Config
	chat llm.Provider
}

func New(cfg Config, chat llm.Provider) *Extractor {
	return &Extractor{cfg: cfg.withDefaults(), chat: chat}
}

// termExtractionPrompt is a focused instruction, a hints section, and the
// raw window text, asking for strict JSON with no prose.
const termExtractionPrompt = `You are extracting clinically relevant medical terms from a segment of a doctor-patient encounter transcript. Each line below is prefixed with its line number.

Extract every medical term mentioned: symptoms, diagnoses, medications, procedures, anatomical references, and measurements. For each term, report its exact surface form as it appears in the text (do not paraphrase or normalize spelling) and the line number it appears on.
%s
TRANSCRIPT SEGMENT:
%s

Respond with strict JSON only, no markdown fences, no prose, in this shape:
{"terms": [{"surface": "exact text as written", "line_no": 12}]}`

var identifierHintRe = regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s*(?:mg|mcg|ml|g|kg|mmHg|bpm|°[CF])\b`)

// hintsFor mirrors preExtractIdentifiers: regex-detected dosage/measurement
// tokens are surfaced as hints so the model does not drop structured data.
func hintsFor(text string) string {
	matches := identifierHintRe.FindAllString(text, -1)
	if len(matches) == 0 {
		return ""
	}
	seen := make(map[string]bool)
	var uniq []string
	for _, m := range matches {
		key := strings.ToLower(m)
		if !seen[key] {
			seen[key] = true
			uniq = append(uniq, m)
		}
	}
	return fmt.Sprintf("\nHINTS: the following dosage/measurement tokens were detected; make sure to include them if clinically relevant:\n%s\n", strings.Join(uniq, ", "))
}

var codeBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

func extractJSON(raw string) (string, error) {
	if m := codeBlockRe.FindStringSubmatch(raw); len(m) > 1 {
		raw = m[1]
	}
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "{") {
		return raw, nil
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1], nil
	}
	return "", fmt.Errorf("termextract: no JSON object found in response")
}

type rawTerm struct {
	Surface string `json:"surface"`
	LineNo  int    `json:"line_no"`
}

type rawResult struct {
	Terms []rawTerm `json:"terms"`
}

// Extract sweeps lines in overlapping windows, calls the LLM once per
// window, verifies every reported occurrence against the actual line text,
// and deduplicates by normalized surface, merging occurrences across
// windows per spec.md §4.4 ("deduplicated... merging occurrences").
func (e *Extractor) Extract(ctx context.Context, lines []transcript.LineRecord) ([]clinextract.TermCandidate, error) {
	if len(lines) == 0 {
		return nil, nil
	}

	byLine := make(map[int]transcript.LineRecord, len(lines))
	for _, l := range lines {
		byLine[l.LineNo] = l
	}

	merged := make(map[string]*clinextract.TermCandidate)
	var order []string

	for start := 0; start < len(lines); start += e.cfg.StrideLines {
		end := start + e.cfg.WindowLines
		if end > len(lines) {
			end = len(lines)
		}
		window := lines[start:end]
		if len(window) == 0 {
			break
		}

		terms, err := e.extractWindow(ctx, window)
		if err != nil {
			return nil, err
		}

		for _, rt := range terms {
			line, ok := byLine[rt.LineNo]
			if !ok {
				continue
			}
			idx := strings.Index(line.Text, rt.Surface)
			if idx < 0 {
				// The model invented a placement that does not occur on
				// that line; discard rather than fabricate an occurrence.
				continue
			}
			normalized := strings.ToLower(strings.TrimSpace(rt.Surface))
			if normalized == "" {
				continue
			}
			occ := clinextract.Occurrence{
				LineNo:    rt.LineNo,
				CharStart: idx,
				CharEnd:   idx + len(rt.Surface),
			}
			tc, exists := merged[normalized]
			if !exists {
				tc = &clinextract.TermCandidate{Surface: rt.Surface, Normalized: normalized}
				merged[normalized] = tc
				order = append(order, normalized)
			}
			if !hasOccurrence(tc.Occurrences, occ) {
				tc.Occurrences = append(tc.Occurrences, occ)
			}
		}

		if end == len(lines) {
			break
		}
	}

	result := make([]clinextract.TermCandidate, 0, len(order))
	for _, key := range order {
		result = append(result, *merged[key])
	}
	return result, nil
}

func hasOccurrence(occs []clinextract.Occurrence, o clinextract.Occurrence) bool {
	for _, existing := range occs {
		if existing == o {
			return true
		}
	}
	return false
}

func (e *Extractor) extractWindow(ctx context.Context, window []transcript.LineRecord) ([]rawTerm, error) {
	var sb strings.Builder
	for _, l := range window {
		fmt.Fprintf(&sb, "%d: %s\n", l.LineNo, l.Text)
	}
	windowText := sb.String()

	prompt := fmt.Sprintf(termExtractionPrompt, hintsFor(windowText), windowText)

	resp, err := e.chat.Chat(ctx, llm.ChatRequest{
		Model:          e.cfg.Model,
		Messages:       []llm.Message{{Role: "user", Content: prompt}},
		Temperature:    0.0,
		ResponseFormat: "json_object",
	})
	if err != nil {
		return nil, fmt.Errorf("termextract: llm chat: %w", err)
	}

	jsonStr, err := extractJSON(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("termextract: %w", err)
	}

	var result rawResult
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return nil, fmt.Errorf("termextract: unmarshalling result: %w", err)
	}
	return result.Terms, nil
}
