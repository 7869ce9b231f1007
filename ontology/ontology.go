// Package ontology implements the Ontology Client: resolution of free-text
// medical term candidates against a clinical concept graph (spec.md §4.5).
package ontology

import (
	"context"

	"github.com/brunobiangulo/clinextract"
)

// Concept is one node of the seeded concept graph.
type Concept struct {
	ConceptID     string
	PreferredTerm string
	Language      string
	Synonyms      []string
	ParentID      string
}

// Client resolves term candidates to concept mappings. Implementations may
// be backed by a local seeded graph (GraphClient) or a real terminology
// service; callers depend only on this capability interface.
type Client interface {
	// Resolve returns up to nMax best ConceptMapping entries per input
	// TermCandidate, restricted to the given language where the graph
	// carries language-tagged terms. Unresolved candidates are simply
	// absent from the result, never an error — partial ontology coverage
	// is reported via confidence, not failure.
	Resolve(ctx context.Context, terms []clinextract.TermCandidate, language string, nMax int) ([]clinextract.ConceptMapping, error)

	Close() error
}
