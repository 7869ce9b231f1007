package orchestrator

import (
	"errors"
	"testing"

	"github.com/brunobiangulo/clinextract"
)

func TestFlattenOrdersAndTagsSections(t *testing.T) {
	templates := []clinextract.Template{
		{
			TemplateID: "soap",
			Sections: []clinextract.TemplateSection{
				{SectionID: "subj", Type: "subjective", Prompt: "p1"},
				{SectionID: "assess", Type: "assessment", Prompt: "p2", DependsOn: []string{"subj"}},
			},
		},
	}

	specs, err := Flatten(templates)
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("expected 2 specs, got %d", len(specs))
	}
	if specs[0].OrderIndex != 0 || specs[1].OrderIndex != 1 {
		t.Errorf("expected order indices 0,1, got %d,%d", specs[0].OrderIndex, specs[1].OrderIndex)
	}
	if specs[1].DependsOn[0] != "subj" {
		t.Errorf("expected assess to depend on subj, got %v", specs[1].DependsOn)
	}
}

func TestFlattenRejectsDuplicateSectionID(t *testing.T) {
	templates := []clinextract.Template{
		{TemplateID: "a", Sections: []clinextract.TemplateSection{{SectionID: "x", Type: "subjective"}}},
		{TemplateID: "b", Sections: []clinextract.TemplateSection{{SectionID: "x", Type: "objective"}}},
	}
	_, err := Flatten(templates)
	if !errors.Is(err, clinextract.ErrDuplicateSectionID) {
		t.Fatalf("expected ErrDuplicateSectionID, got %v", err)
	}
}

func TestFlattenRejectsUnknownType(t *testing.T) {
	templates := []clinextract.Template{
		{TemplateID: "a", Sections: []clinextract.TemplateSection{{SectionID: "x", Type: "xray"}}},
	}
	_, err := Flatten(templates)
	if !errors.Is(err, clinextract.ErrUnknownSectionType) {
		t.Fatalf("expected ErrUnknownSectionType, got %v", err)
	}
}

func TestFlattenRejectsUnknownDependency(t *testing.T) {
	templates := []clinextract.Template{
		{TemplateID: "a", Sections: []clinextract.TemplateSection{
			{SectionID: "x", Type: "subjective", DependsOn: []string{"ghost"}},
		}},
	}
	_, err := Flatten(templates)
	if !errors.Is(err, clinextract.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestFlattenRejectsCycle(t *testing.T) {
	templates := []clinextract.Template{
		{TemplateID: "a", Sections: []clinextract.TemplateSection{
			{SectionID: "x", Type: "subjective", DependsOn: []string{"y"}},
			{SectionID: "y", Type: "objective", DependsOn: []string{"x"}},
		}},
	}
	_, err := Flatten(templates)
	if !errors.Is(err, clinextract.ErrCyclicDependency) {
		t.Fatalf("expected ErrCyclicDependency, got %v", err)
	}
}

func TestValidateTemplatesMirrorsFlatten(t *testing.T) {
	good := []clinextract.Template{
		{TemplateID: "a", Sections: []clinextract.TemplateSection{{SectionID: "x", Type: "plan"}}},
	}
	if err := ValidateTemplates(good); err != nil {
		t.Fatalf("expected nil error for valid templates, got %v", err)
	}

	bad := []clinextract.Template{
		{TemplateID: "a", Sections: []clinextract.TemplateSection{{SectionID: "x", Type: "bogus"}}},
	}
	if err := ValidateTemplates(bad); err == nil {
		t.Fatal("expected error for unknown section type")
	}
}
