// Package sectioncache implements the Section Context Cache: a per-job
// mapping from section_id to SectionResult, covering every template of the
// job's template group, write-once per section (spec.md §4.6).
package sectioncache

import (
	"fmt"
	"sync"

	"github.com/brunobiangulo/clinextract"
)

// Cache is scoped to a single job. One Cache is constructed per running
// job by the orchestrator and discarded once the job terminates: every
// mutation is keyed and guarded by a single lock rather than shared
// globally.
type Cache struct {
	mu      sync.RWMutex
	results map[string]clinextract.SectionResult
}

func New() *Cache {
	return &Cache{results: make(map[string]clinextract.SectionResult)}
}

// Put records the result for sectionID. Calling Put twice for the same
// sectionID is a programming error in the orchestrator: a section is
// scheduled at most once per job, so this returns an error rather than
// silently overwriting a prior result.
func (c *Cache) Put(sectionID string, result clinextract.SectionResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.results[sectionID]; exists {
		return fmt.Errorf("sectioncache: section %q already written", sectionID)
	}
	c.results[sectionID] = result
	return nil
}

// Get returns the result for sectionID and whether it was present.
func (c *Cache) Get(sectionID string) (clinextract.SectionResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result, ok := c.results[sectionID]
	return result, ok
}

// GetDependencies resolves every sectionID in dependsOn that has already
// completed. A prompt assembler reads only entries for
// section_id ∈ depends_on per spec.md §4.6; missing dependencies are
// omitted rather than erroring. This is safe only because
// orchestrator.waitForDependencies already short-circuits a section to
// StatusError with reason dependency_failed before runSection (and hence
// GetDependencies) is ever reached, so every dependsOn entry still present
// at this point named a dependency that reached StatusAccepted.
func (c *Cache) GetDependencies(dependsOn []string) []clinextract.SectionResult {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []clinextract.SectionResult
	for _, id := range dependsOn {
		if result, ok := c.results[id]; ok {
			out = append(out, result)
		}
	}
	return out
}
