package orchestrator

import (
	"fmt"

	"github.com/brunobiangulo/clinextract"
)

// KnownSectionTypes is the set of section types the Engine knows how to
// generate. SOAP and visit-summary types are the two families named in
// spec.md's end-to-end scenarios; a "custom" catch-all covers the
// generic-field variant spec.md §9 calls out
// ("CustomSection variant parameterized by the caller's field list").
var KnownSectionTypes = map[string]bool{
	"subjective":     true,
	"objective":      true,
	"assessment":     true,
	"plan":           true,
	"visit_summary":  true,
	"custom":         true,
}

// Flatten turns a request's templates into an ordered, dependency-checked
// list of SectionSpecs, preserving template grouping and declared order,
// per spec.md §4.9 step 3.
func Flatten(templates []clinextract.Template) ([]clinextract.SectionSpec, error) {
	var specs []clinextract.SectionSpec
	seen := make(map[string]bool)

	order := 0
	for _, tpl := range templates {
		for _, sec := range tpl.Sections {
			if seen[sec.SectionID] {
				return nil, fmt.Errorf("%w: %q", clinextract.ErrDuplicateSectionID, sec.SectionID)
			}
			seen[sec.SectionID] = true

			if !KnownSectionTypes[sec.Type] {
				return nil, fmt.Errorf("%w: %q", clinextract.ErrUnknownSectionType, sec.Type)
			}

			specs = append(specs, clinextract.SectionSpec{
				TemplateID:  tpl.TemplateID,
				SectionID:   sec.SectionID,
				SectionType: sec.Type,
				Prompt:      sec.Prompt,
				OrderIndex:  order,
				DependsOn:   sec.DependsOn,
			})
			order++
		}
	}

	if err := checkAcyclic(specs); err != nil {
		return nil, err
	}
	return specs, nil
}

// ValidateTemplates runs the same structural checks as Flatten without
// needing a live request, per spec.md §6's ValidateTemplates endpoint.
func ValidateTemplates(templates []clinextract.Template) error {
	_, err := Flatten(templates)
	return err
}

// checkAcyclic runs Kahn's algorithm over the depends_on graph; any
// section left with unresolved in-degree after the sweep is part of a
// cycle.
func checkAcyclic(specs []clinextract.SectionSpec) error {
	inDegree := make(map[string]int, len(specs))
	dependents := make(map[string][]string)
	known := make(map[string]bool, len(specs))

	for _, s := range specs {
		known[s.SectionID] = true
	}
	for _, s := range specs {
		for _, dep := range s.DependsOn {
			if !known[dep] {
				return fmt.Errorf("%w: %q depends on unknown section %q", clinextract.ErrInvalidRequest, s.SectionID, dep)
			}
			inDegree[s.SectionID]++
			dependents[dep] = append(dependents[dep], s.SectionID)
		}
	}

	var queue []string
	for _, s := range specs {
		if inDegree[s.SectionID] == 0 {
			queue = append(queue, s.SectionID)
		}
	}

	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, dependent := range dependents[id] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if visited != len(specs) {
		return clinextract.ErrCyclicDependency
	}
	return nil
}
