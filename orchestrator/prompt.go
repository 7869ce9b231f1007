package orchestrator

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/brunobiangulo/clinextract"
	"github.com/brunobiangulo/clinextract/vectorindex"
)

// sectionGenerationPrompt is an instruction + retrieved context + strict
// JSON response contract shape, built to the structured output schema
// spec.md §4.9 step 5(iv) and §6's outbound publication payload both
// require.
const sectionGenerationPrompt = `You are drafting one section of a clinical document from a transcript.

Section type: %s
Section instructions: %s
Language: %s — write the section content in this language.

Retrieved transcript excerpts (cite these exactly, by line number and character offsets):
%s
%s
%s
Respond with ONLY a JSON object of this exact shape, no markdown fences:
{
  "content": "<section text>",
  "line_references": [{"line": <int>, "start": <int>, "end": <int>, "text": "<exact substring>"}],
  "snomed_mappings": [{"concept_id": "<id>", "preferred_term": "<term>", "original_term": "<term>", "confidence": <float 0-1>, "language": "<lang>"}],
  "self_score": <float 0-1, your own confidence that content is fully grounded>
}`

func buildSectionPrompt(
	spec clinextract.SectionSpec,
	retrieved []vectorindex.Result,
	depResults []clinextract.SectionResult,
	language string,
	repairNote string,
	failingRefs []clinextract.LineReference,
) string {
	var excerpts strings.Builder
	for _, r := range retrieved {
		fmt.Fprintf(&excerpts, "[lines %d-%d] %s\n", r.LineFirst, r.LineLast, r.Text)
	}

	var depContext strings.Builder
	if len(depResults) > 0 {
		depContext.WriteString("Already-completed dependent sections:\n")
		for _, d := range depResults {
			fmt.Fprintf(&depContext, "- %s: %s\n", d.SectionID, d.Content)
		}
	}

	var repair strings.Builder
	if repairNote != "" {
		repair.WriteString("The previous attempt was rejected: ")
		repair.WriteString(repairNote)
		repair.WriteString("\n")
		for _, f := range failingRefs {
			fmt.Fprintf(&repair, "Failing reference: line %d [%d:%d] %q — cite only text that actually appears there.\n", f.Line, f.Start, f.End, f.Text)
		}
	}

	return fmt.Sprintf(sectionGenerationPrompt, spec.SectionType, spec.Prompt, language, excerpts.String(), depContext.String(), repair.String())
}

// codeBlockFenceRe strips a surrounding markdown code fence from LLM output
// that ignores the "no markdown fences" instruction.
var codeBlockFenceRe = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

type rawSectionResponse struct {
	Content        string                     `json:"content"`
	LineReferences []clinextract.LineReference `json:"line_references"`
	SnomedMappings []clinextract.ConceptMapping `json:"snomed_mappings"`
	SelfScore      float64                    `json:"self_score"`
}

func parseSectionResponse(raw string, spec clinextract.SectionSpec) (clinextract.SectionResult, float64, error) {
	cleaned := strings.TrimSpace(raw)
	if m := codeBlockFenceRe.FindStringSubmatch(cleaned); m != nil {
		cleaned = m[1]
	}

	var parsed rawSectionResponse
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return clinextract.SectionResult{}, 0, fmt.Errorf("orchestrator: parsing section response: %w", err)
	}
	if strings.TrimSpace(parsed.Content) == "" {
		return clinextract.SectionResult{}, 0, fmt.Errorf("orchestrator: section response has empty content")
	}

	result := clinextract.SectionResult{
		SectionID:      spec.SectionID,
		TemplateID:     spec.TemplateID,
		SectionType:    spec.SectionType,
		Content:        parsed.Content,
		LineReferences: parsed.LineReferences,
		SnomedMappings: parsed.SnomedMappings,
	}
	return result, parsed.SelfScore, nil
}
