// Package citation implements the Citation Validator: exact verification
// of every line reference emitted by a generated section against the
// stored transcript lines (spec.md §4.8). Citations must resolve to an
// exact character-offset substring of a real transcript line, not a
// fuzzy chunk-level match.
package citation

import (
	"fmt"

	"golang.org/x/text/unicode/norm"

	"github.com/brunobiangulo/clinextract"
	"github.com/brunobiangulo/clinextract/transcript"
)

// Failure describes one line reference that failed verification.
type Failure struct {
	Reference clinextract.LineReference
	Reason    string
}

// Result is the outcome of validating every line reference in a section.
type Result struct {
	Failures []Failure
}

// Passed reports whether every reference verified.
func (r Result) Passed() bool { return len(r.Failures) == 0 }

// PassRatio is the fraction of references that verified, used by the
// confidence blend (spec.md §9's min(llm_self_score, citation_pass_ratio)
// decision). A section with zero references is treated as fully passing:
// there is nothing to fail.
func PassRatio(total, failed int) float64 {
	if total == 0 {
		return 1.0
	}
	return float64(total-failed) / float64(total)
}

// Validate checks every reference in refs against lines, per spec.md
// §4.8's three rules: the line must exist, the offsets must be in bounds
// and ordered, and the referenced text must match the line's text at
// those offsets exactly after Unicode NFC normalization.
func Validate(refs []clinextract.LineReference, lines []transcript.LineRecord) Result {
	byLine := make(map[int]transcript.LineRecord, len(lines))
	for _, l := range lines {
		byLine[l.LineNo] = l
	}

	var result Result
	for _, ref := range refs {
		if reason, ok := validateOne(ref, byLine); !ok {
			result.Failures = append(result.Failures, Failure{Reference: ref, Reason: reason})
		}
	}
	return result
}

func validateOne(ref clinextract.LineReference, byLine map[int]transcript.LineRecord) (string, bool) {
	line, ok := byLine[ref.Line]
	if !ok {
		return fmt.Sprintf("line %d does not exist", ref.Line), false
	}
	if ref.Start < 0 || ref.Start >= ref.End || ref.End > len(line.Text) {
		return fmt.Sprintf("offsets [%d:%d] out of bounds for line %d (len %d)", ref.Start, ref.End, ref.Line, len(line.Text)), false
	}

	substring := line.Text[ref.Start:ref.End]
	if !equalNFC(substring, ref.Text) {
		return fmt.Sprintf("text mismatch: line says %q, reference claims %q", substring, ref.Text), false
	}
	return "", true
}

func equalNFC(a, b string) bool {
	return norm.NFC.String(a) == norm.NFC.String(b)
}
