package parser

import "fmt"

// Registry dispatches a file format to the Parser that handles it.
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry returns a Registry with the built-in native parsers, covering
// the document container formats transcript.Load accepts: PDF, DOCX, and
// legacy .doc.
func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[string]Parser)}

	pdf := &PDFParser{}
	docx := &DOCXParser{}
	legacy := &LegacyParser{}

	for _, p := range []Parser{pdf, docx, legacy} {
		for _, f := range p.SupportedFormats() {
			r.parsers[f] = p
		}
	}
	return r
}

// Get returns the Parser registered for format, or an error if none is.
func (r *Registry) Get(format string) (Parser, error) {
	p, ok := r.parsers[format]
	if !ok {
		return nil, fmt.Errorf("parser: no parser registered for format %q", format)
	}
	return p, nil
}

// Register overrides or adds a Parser for the given format.
func (r *Registry) Register(format string, p Parser) {
	r.parsers[format] = p
}
