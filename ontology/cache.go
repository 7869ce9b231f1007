package ontology

import (
	"context"
	"strings"
	"sync"

	"github.com/brunobiangulo/clinextract"
)

// CachingClient wraps a Client with a job-scoped memo of Resolve results,
// keyed by normalized term and language, per spec.md §4.5's "cached within
// the job scope". One CachingClient is constructed per job and discarded at
// job completion.
type CachingClient struct {
	inner Client

	mu    sync.Mutex
	cache map[string][]clinextract.ConceptMapping
}

// NewCachingClient wraps inner for the lifetime of a single job.
func NewCachingClient(inner Client) *CachingClient {
	return &CachingClient{inner: inner, cache: make(map[string][]clinextract.ConceptMapping)}
}

func cacheKey(normalized, language string) string {
	return language + "\x00" + strings.ToLower(normalized)
}

func (c *CachingClient) Resolve(ctx context.Context, terms []clinextract.TermCandidate, language string, nMax int) ([]clinextract.ConceptMapping, error) {
	var toResolve []clinextract.TermCandidate
	var result []clinextract.ConceptMapping

	c.mu.Lock()
	for _, t := range terms {
		key := cacheKey(t.Normalized, language)
		if cached, ok := c.cache[key]; ok {
			result = append(result, cached...)
			continue
		}
		toResolve = append(toResolve, t)
	}
	c.mu.Unlock()

	if len(toResolve) == 0 {
		return result, nil
	}

	resolved, err := c.inner.Resolve(ctx, toResolve, language, nMax)
	if err != nil {
		return nil, err
	}

	byTerm := make(map[string][]clinextract.ConceptMapping)
	for _, m := range resolved {
		key := cacheKey(m.OriginalTerm, language)
		byTerm[key] = append(byTerm[key], m)
	}

	c.mu.Lock()
	for _, t := range toResolve {
		key := cacheKey(t.Normalized, language)
		c.cache[key] = byTerm[cacheKey(t.Surface, language)]
	}
	c.mu.Unlock()

	result = append(result, resolved...)
	return result, nil
}

func (c *CachingClient) Close() error {
	return c.inner.Close()
}
