// Package parser recovers plain text from the document containers a
// transcript can arrive in (PDF, DOCX, legacy .doc) so transcript.Load has
// a uniform text stream to hand to Normalize, regardless of how the
// encounter was recorded.
package parser

import "context"

// ParseResult is what a parser produces from a document file.
type ParseResult struct {
	Sections []Section // Ordered text segments extracted from the document
	Method   string    // "native", "legacy_ole2"
	Metadata map[string]string
}

// Section is one ordered chunk of extracted text, e.g. one PDF page or one
// DOCX document body. PageNumber is 1-based and 0 where the source format
// has no page concept (DOCX, legacy .doc).
type Section struct {
	Content    string
	PageNumber int
	Metadata   map[string]string
}

// Parser can parse a specific document format.
type Parser interface {
	Parse(ctx context.Context, path string) (*ParseResult, error)
	SupportedFormats() []string
}
