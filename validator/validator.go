// Package validator implements the Validator Service: the QA layer that
// decides whether a candidate SectionResult is accepted, combining the
// Citation Validator, an ontology-grounding subset check, a schema
// validity check, and a confidence blend (spec.md §4.8).
package validator

import (
	"context"
	"fmt"
	"strings"

	"github.com/brunobiangulo/clinextract"
	"github.com/brunobiangulo/clinextract/citation"
	"github.com/brunobiangulo/clinextract/termextract"
	"github.com/brunobiangulo/clinextract/transcript"
)

// ThresholdAccept is θ_accept from spec.md §4.8's default.
const ThresholdAccept = 0.6

// Issue describes one reason a section failed validation, mirroring the
// teacher's reasoning.validationResult issue-list shape
// (reasoning/validator.go) generalized from free-text heuristics to the
// three structural checks spec.md §4.8 actually requires.
type Issue struct {
	Kind   string // "citation", "grounding", "schema", "confidence"
	Detail string
}

// Outcome is the result of validating one candidate SectionResult.
type Outcome struct {
	Accepted   bool
	Confidence float64
	Issues     []Issue
	// FailingReferences is forwarded into the repair prompt so the
	// orchestrator's retry can cite the specific failures, per spec.md
	// §4.8's "repair prompt that cites the specific failing references".
	FailingReferences []clinextract.LineReference
}

// Service validates candidate section results against transcript lines and
// job-scope concept mappings.
type Service struct {
	termExtractor *termextract.Extractor
}

func New(termExtractor *termextract.Extractor) *Service {
	return &Service{termExtractor: termExtractor}
}

// Validate runs the full §4.8 acceptance check: citation soundness,
// ontology grounding, schema validity, then the confidence blend. llmSelfScore
// is the section's self-reported confidence from the LLM Client's
// compositional response.
func (s *Service) Validate(
	ctx context.Context,
	candidate clinextract.SectionResult,
	lines []transcript.LineRecord,
	globalMappings []clinextract.ConceptMapping,
	llmSelfScore float64,
) (Outcome, error) {
	var issues []Issue

	citationResult := citation.Validate(candidate.LineReferences, lines)
	if !citationResult.Passed() {
		for _, f := range citationResult.Failures {
			issues = append(issues, Issue{Kind: "citation", Detail: f.Reason})
		}
	}

	groundingIssues, err := s.checkGrounding(ctx, candidate, globalMappings)
	if err != nil {
		return Outcome{}, fmt.Errorf("validator: checking grounding: %w", err)
	}
	issues = append(issues, groundingIssues...)

	if schemaIssue, ok := checkSchema(candidate); !ok {
		issues = append(issues, Issue{Kind: "schema", Detail: schemaIssue})
	}

	passRatio := citation.PassRatio(len(candidate.LineReferences), len(citationResult.Failures))
	confidence := blendConfidence(llmSelfScore, passRatio)

	if confidence < ThresholdAccept {
		issues = append(issues, Issue{
			Kind:   "confidence",
			Detail: fmt.Sprintf("confidence %.2f below threshold %.2f", confidence, ThresholdAccept),
		})
	}

	var failing []clinextract.LineReference
	for _, f := range citationResult.Failures {
		failing = append(failing, f.Reference)
	}

	return Outcome{
		Accepted:          len(issues) == 0,
		Confidence:        confidence,
		Issues:            issues,
		FailingReferences: failing,
	}, nil
}

// blendConfidence implements the Open Question decision recorded in
// DESIGN.md: min(llm_self_score, citation_pass_ratio).
func blendConfidence(llmSelfScore, citationPassRatio float64) float64 {
	if llmSelfScore < citationPassRatio {
		return llmSelfScore
	}
	return citationPassRatio
}

// checkGrounding implements §4.8(b): every medical entity mentioned in
// content, detected with the same extractor pattern as the Term Extractor,
// must appear in the section's own snomed_mappings or the job's global
// mappings. Terms the Ontology Client could not resolve (partial outage,
// per the Open Question decision) do not by themselves fail this check —
// only a term with zero mapping anywhere does.
func (s *Service) checkGrounding(ctx context.Context, candidate clinextract.SectionResult, globalMappings []clinextract.ConceptMapping) ([]Issue, error) {
	if s.termExtractor == nil {
		return nil, nil
	}

	contentLines := []transcript.LineRecord{{LineNo: 1, Text: candidate.Content}}
	terms, err := s.termExtractor.Extract(ctx, contentLines)
	if err != nil {
		return nil, err
	}
	if len(terms) == 0 {
		return nil, nil
	}

	grounded := make(map[string]bool)
	for _, m := range candidate.SnomedMappings {
		grounded[strings.ToLower(m.OriginalTerm)] = true
	}
	for _, m := range globalMappings {
		grounded[strings.ToLower(m.OriginalTerm)] = true
	}

	var issues []Issue
	for _, t := range terms {
		if !grounded[t.Normalized] {
			issues = append(issues, Issue{
				Kind:   "grounding",
				Detail: fmt.Sprintf("medical entity %q has no concept mapping", t.Surface),
			})
		}
	}
	return issues, nil
}

// checkSchema is the Pydantic-equivalent structural check: the fields
// every section type requires must be present.
func checkSchema(candidate clinextract.SectionResult) (string, bool) {
	if strings.TrimSpace(candidate.Content) == "" {
		return "content is empty", false
	}
	if candidate.SectionID == "" {
		return "section_id is empty", false
	}
	return "", true
}
