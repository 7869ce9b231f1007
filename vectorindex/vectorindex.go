// Package vectorindex implements the Vector Index Client: insertion and
// k-nearest retrieval against a text-embedding store, keyed by
// conversation id (spec.md §4.3).
package vectorindex

import "context"

// Chunk is one indexed transcript window.
type Chunk struct {
	ChunkID   string
	LineFirst int
	LineLast  int
	Text      string
	Embedding []float32
}

// Result is a retrieved chunk plus its similarity score in [0,1].
type Result struct {
	Chunk
	Score float64
}

// Client is the capability interface every Vector Index backend
// implements: upsert, query, drop, per spec.md §9's duck-typed-to-capability
// rewrite.
type Client interface {
	// Upsert indexes or re-indexes chunks for a conversation. It is
	// idempotent with respect to ChunkID.
	Upsert(ctx context.Context, conversationID string, chunks []Chunk) error

	// Query returns up to k chunks for conversationID ranked by
	// similarity to embedding, breaking similarity ties by the lower
	// LineFirst per spec.md §4.9's tie-breaking rule.
	Query(ctx context.Context, conversationID string, embedding []float32, k int) ([]Result, error)

	// Drop removes every chunk indexed for conversationID.
	Drop(ctx context.Context, conversationID string) error

	Close() error
}
