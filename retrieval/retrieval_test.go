package retrieval

import (
	"testing"

	"github.com/brunobiangulo/clinextract/vectorindex"
)

func TestFuseRRFCombinesBothLegs(t *testing.T) {
	vec := []vectorindex.Result{
		{Chunk: vectorindex.Chunk{ChunkID: "a"}},
		{Chunk: vectorindex.Chunk{ChunkID: "b"}},
	}
	kw := []vectorindex.Result{
		{Chunk: vectorindex.Chunk{ChunkID: "b"}},
		{Chunk: vectorindex.Chunk{ChunkID: "c"}},
	}

	fused := fuseRRF(vec, kw, 0.6, 0.4)
	if len(fused) != 3 {
		t.Fatalf("expected 3 fused results, got %d", len(fused))
	}
	// chunk "b" appears in both legs at favorable ranks, should win.
	if fused[0].ChunkID != "b" {
		t.Errorf("expected chunk b to rank first, got %s", fused[0].ChunkID)
	}
}

func TestDetectClinicalIdentifiers(t *testing.T) {
	cases := map[string]bool{
		"patient reports feeling better today":    false,
		"administer 500mg amoxicillin PO BID":     true,
		"blood pressure was 140/90 at last visit":  true,
		"summarize the visit in plain language":   false,
	}
	for text, want := range cases {
		if got := detectClinicalIdentifiers(text); got != want {
			t.Errorf("detectClinicalIdentifiers(%q) = %v, want %v", text, got, want)
		}
	}
}

func TestRankBoostsKeywordOnIdentifierPrompt(t *testing.T) {
	candidates := []vectorindex.Result{
		{Chunk: vectorindex.Chunk{ChunkID: "1", Text: "patient feels generally well"}, Score: 0.9},
		{Chunk: vectorindex.Chunk{ChunkID: "2", Text: "dose increased to 500mg amoxicillin BID"}, Score: 0.5},
	}
	ranked := Rank(candidates, "what dose of amoxicillin BID was prescribed", "plan", 2)
	if len(ranked) != 2 {
		t.Fatalf("expected 2 ranked results, got %d", len(ranked))
	}
	if ranked[0].ChunkID != "2" {
		t.Errorf("expected exact-match chunk to rank first, got %s", ranked[0].ChunkID)
	}
}

func TestKeywordsFiltersStopWordsAndShortTokens(t *testing.T) {
	kws := keywords("the patient has a cough and fever", "subjective")
	for _, kw := range kws {
		if stopWords[kw] || len(kw) <= 2 {
			t.Errorf("unexpected stop/short word in keywords: %s", kw)
		}
	}
}
