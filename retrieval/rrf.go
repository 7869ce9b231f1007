package retrieval

import (
	"sort"

	"github.com/brunobiangulo/clinextract/vectorindex"
)

// rrfK is the standard Reciprocal Rank Fusion smoothing constant.
const rrfK = 60

// fuseRRF combines a vector-similarity ranking and a keyword-overlap
// ranking of the same chunk pool using Reciprocal Rank Fusion:
// score = sum(weight_i / (k + rank_i)). Chunks present in only one
// ranking still score, just lower than chunks both legs agree on.
func fuseRRF(vecResults, kwResults []vectorindex.Result, weightVec, weightKw float64) []vectorindex.Result {
	type fusedEntry struct {
		result vectorindex.Result
		score  float64
	}
	fused := make(map[string]*fusedEntry)

	for rank, r := range vecResults {
		entry, ok := fused[r.ChunkID]
		if !ok {
			entry = &fusedEntry{result: r}
			fused[r.ChunkID] = entry
		}
		entry.score += weightVec / float64(rrfK+rank+1)
	}

	for rank, r := range kwResults {
		entry, ok := fused[r.ChunkID]
		if !ok {
			entry = &fusedEntry{result: r}
			fused[r.ChunkID] = entry
		}
		entry.score += weightKw / float64(rrfK+rank+1)
	}

	entries := make([]*fusedEntry, 0, len(fused))
	for _, e := range fused {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].score > entries[j].score })

	out := make([]vectorindex.Result, len(entries))
	for i, e := range entries {
		e.result.Score = e.score
		out[i] = e.result
	}
	return out
}
