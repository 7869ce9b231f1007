// Package transcript implements the Transcript Normalizer: it turns raw
// speaker-annotated text (or a non-plain-text transcript source) into a
// sequence of indexed LineRecords with stable byte offsets.
package transcript

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/brunobiangulo/clinextract/parser"
)

// LineRecord mirrors clinextract.LineRecord without importing the root
// package, so this package stays a leaf the root package depends on.
type LineRecord struct {
	LineNo    int
	Speaker   string
	Text      string
	ByteStart int
	ByteEnd   int
}

// SourceFormat names the container a transcript was delivered in.
type SourceFormat string

const (
	FormatText      SourceFormat = "text"
	FormatPDF       SourceFormat = "pdf"
	FormatDOCX      SourceFormat = "docx"
	FormatLegacyDoc SourceFormat = "legacy_doc"
)

var (
	numberedLineRe = regexp.MustCompile(`^\s*(\d+)\s*[:|]\s*`)
	speakerRe      = regexp.MustCompile(`(?i)^(Doctor|Patient|Dr\.|Pt\.|Nurse|Clinician|Physician)\s*[:\s]\s*`)
)

// ErrEmptyTranscript and ErrTranscriptTooLarge are the two InvalidTranscript
// causes from spec.md §4.1.
var (
	ErrEmptyTranscript    = fmt.Errorf("transcript: empty input")
	ErrTranscriptTooLarge = fmt.Errorf("transcript: exceeds maximum size")
)

// Load reads a transcript from path in the given source format and
// extracts line-separated text. Byte offsets computed by Normalize are
// always relative to this extracted text, never to the original binary
// container, per SPEC_FULL.md §4.1.
func Load(path string, format SourceFormat) (string, error) {
	if format == "" {
		format = FormatText
	}
	switch format {
	case FormatText:
		data, err := readFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	case FormatPDF:
		return loadViaParser(path, "pdf")
	case FormatDOCX:
		return loadViaParser(path, "docx")
	case FormatLegacyDoc:
		return loadViaParser(path, "doc")
	default:
		return "", fmt.Errorf("transcript: unsupported source format %q", format)
	}
}

func loadViaParser(path, ext string) (string, error) {
	reg := parser.NewRegistry()
	p, err := reg.Get(ext)
	if err != nil {
		return "", err
	}
	result, err := p.Parse(context.Background(), path)
	if err != nil {
		return "", fmt.Errorf("transcript: extracting %s source: %w", ext, err)
	}
	var b strings.Builder
	for _, s := range result.Sections {
		if s.Content != "" {
			b.WriteString(s.Content)
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}

// Normalize implements spec.md §4.1's normalize(raw_text, language_hint)
// contract and returns the resolved language alongside the line records.
func Normalize(rawText, languageHint string, maxBytes int) ([]LineRecord, string, error) {
	if rawText == "" {
		return nil, "", ErrEmptyTranscript
	}
	if maxBytes > 0 && len(rawText) > maxBytes {
		return nil, "", ErrTranscriptTooLarge
	}

	canonical := strings.ReplaceAll(rawText, "\r\n", "\n")
	canonical = strings.ReplaceAll(canonical, "\r", "\n")

	rawLines := strings.Split(canonical, "\n")

	// Determine whether every non-blank line carries an authoritative
	// numeric prefix, and that those prefixes are strictly increasing.
	useExplicitNumbers := len(rawLines) > 0
	lastNumber := 0
	for _, l := range rawLines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		m := numberedLineRe.FindStringSubmatch(l)
		if m == nil {
			useExplicitNumbers = false
			break
		}
	}
	if useExplicitNumbers {
		for _, l := range rawLines {
			if strings.TrimSpace(l) == "" {
				continue
			}
			m := numberedLineRe.FindStringSubmatch(l)
			var n int
			fmt.Sscanf(m[1], "%d", &n)
			if n <= lastNumber {
				useExplicitNumbers = false
				break
			}
			lastNumber = n
		}
	}

	records := make([]LineRecord, 0, len(rawLines))
	byteOffset := 0
	position := 0
	for _, l := range rawLines {
		lineStart := byteOffset
		lineLen := len(l)
		byteOffset += lineLen + 1 // account for the '\n' we split on

		trimmed := strings.TrimRight(l, " \t")
		text := trimmed
		lineNo := position + 1

		if useExplicitNumbers && strings.TrimSpace(l) != "" {
			m := numberedLineRe.FindStringSubmatch(trimmed)
			if m != nil {
				fmt.Sscanf(m[1], "%d", &lineNo)
				text = trimmed[len(m[0]):]
			}
		}

		speaker := ""
		if sm := speakerRe.FindStringSubmatch(text); sm != nil {
			speaker = strings.TrimRight(sm[1], ".")
			text = text[len(sm[0]):]
		}

		records = append(records, LineRecord{
			LineNo:    lineNo,
			Speaker:   speaker,
			Text:      text,
			ByteStart: lineStart,
			ByteEnd:   lineStart + lineLen,
		})
		position++
	}

	language := languageHint
	if language == "" {
		language = detectLanguage(canonical)
	}

	return records, language, nil
}

// Reassemble joins each line's Text with "\n". It reproduces the
// normalized transcript only for lines that carried no speaker label, no
// explicit line-number prefix and no trailing spaces or tabs: Normalize
// strips those from Text, and Reassemble does not restore them.
func Reassemble(lines []LineRecord) string {
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = l.Text
	}
	return strings.Join(parts, "\n")
}

var frenchMarkers = []string{" le ", " la ", " les ", " et ", " est ", " patient ", " médecin", " docteur"}

// detectLanguage is a lightweight heuristic fallback used only when the
// caller supplies no language hint: it counts common French function
// words against common English ones.
func detectLanguage(text string) string {
	lower := strings.ToLower(text)
	frenchScore := 0
	for _, m := range frenchMarkers {
		frenchScore += strings.Count(lower, m)
	}
	englishMarkers := []string{" the ", " and ", " is ", " patient ", " doctor"}
	englishScore := 0
	for _, m := range englishMarkers {
		englishScore += strings.Count(lower, m)
	}
	if frenchScore > englishScore {
		return "fr"
	}
	return "en"
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("transcript: input is not valid UTF-8")
	}
	return data, nil
}
