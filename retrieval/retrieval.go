// Package retrieval ranks transcript chunks for a section prompt by fusing
// vector similarity with keyword overlap, so that sections whose prompts
// name exact clinical values (dosages, vitals, lab units) are not lost to
// paraphrase-friendly embedding similarity alone.
package retrieval

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/brunobiangulo/clinextract/vectorindex"
)

// clinicalIdentifierPatterns matches tokens that should be retrieved by
// exact match rather than semantic similarity: dosages, routes/frequencies,
// vitals, and lab values with units.
var clinicalIdentifierPatterns = []*regexp.Regexp{
	// Dosages: 500mg, 5 mg/kg, 2.5mcg
	regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s*(?:mg|mcg|g|ml|iu|units?)(?:/kg)?\b`),
	// Frequencies/routes: BID, TID, QID, q8h, PRN, PO, IV, IM, SC
	regexp.MustCompile(`(?i)\b(?:BID|TID|QID|QD|PRN|PO|IV|IM|SC|q\d{1,2}h)\b`),
	// Vitals: 140/90, blood pressure ratios
	regexp.MustCompile(`\b\d{2,3}/\d{2,3}\b`),
	// Temperature/lab values with units: 98.6F, 7.2 mmol/L, 5.4%
	regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s*(?:f|c|mmol/l|mg/dl|%|bpm)\b`),
	// Ontology-style codes: SNOMED/ICD numeric codes
	regexp.MustCompile(`\b\d{5,9}\b`),
}

// detectClinicalIdentifiers reports whether text contains at least one
// exact-match clinical token, signaling that keyword weight should be
// boosted relative to vector weight.
func detectClinicalIdentifiers(text string) bool {
	for _, p := range clinicalIdentifierPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true,
	"this": true, "from": true, "has": true, "have": true, "was": true,
	"were": true, "are": true, "been": true, "will": true, "patient": true,
}

// keywords extracts the significant lowercase terms from a section prompt
// and its type, used as the exact-match leg of retrieval.
func keywords(prompt, sectionType string) []string {
	fields := strings.FieldsFunc(prompt+" "+sectionType, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' && r != '/' && r != '%'
	})
	seen := make(map[string]bool)
	var out []string
	for _, f := range fields {
		lower := strings.ToLower(f)
		if len(lower) > 2 && !stopWords[lower] && !seen[lower] {
			seen[lower] = true
			out = append(out, lower)
		}
	}
	return out
}

// keywordRank scores each candidate by how many of the keywords its text
// contains and returns candidates sorted by descending match count,
// dropping any candidate with zero matches.
func keywordRank(candidates []vectorindex.Result, kws []string) []vectorindex.Result {
	if len(kws) == 0 {
		return nil
	}
	type scored struct {
		result vectorindex.Result
		hits   int
	}
	var entries []scored
	for _, c := range candidates {
		lower := strings.ToLower(c.Text)
		hits := 0
		for _, kw := range kws {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		if hits > 0 {
			entries = append(entries, scored{result: c, hits: hits})
		}
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].hits > entries[j].hits })
	out := make([]vectorindex.Result, len(entries))
	for i, e := range entries {
		out[i] = e.result
	}
	return out
}

const (
	defaultWeightVector  = 0.6
	defaultWeightKeyword = 0.4
	// boostedWeightKeyword applies when the prompt contains an exact-match
	// clinical identifier: exact values should outrank paraphrase-similar text.
	boostedWeightKeyword = 0.7
	boostedWeightVector  = 0.3
)

// Rank fuses a vector-similarity candidate pool with a keyword-overlap
// ranking derived from the section prompt and type, via Reciprocal Rank
// Fusion, and returns the top k results.
func Rank(candidates []vectorindex.Result, prompt, sectionType string, k int) []vectorindex.Result {
	kws := keywords(prompt, sectionType)
	kwRanked := keywordRank(candidates, kws)

	weightVec, weightKw := defaultWeightVector, defaultWeightKeyword
	if detectClinicalIdentifiers(prompt) {
		weightVec, weightKw = boostedWeightVector, boostedWeightKeyword
	}

	fused := fuseRRF(candidates, kwRanked, weightVec, weightKw)
	if k > 0 && len(fused) > k {
		fused = fused[:k]
	}
	return fused
}
