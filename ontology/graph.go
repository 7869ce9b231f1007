package ontology

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/brunobiangulo/clinextract"
)

// GraphClient is the local/dev Ontology Client backend: a small seeded
// concept graph (concept id, preferred term, synonyms, parent/child
// hierarchy) stored in the same sqlite family as vectorindex's sqlite-vec
// backend, queried by exact and fuzzy substring match against synonyms.
type GraphClient struct {
	mu sync.Mutex
	db *sql.DB
}

// Seed is one concept graph entry used to populate a fresh GraphClient.
type Seed struct {
	ConceptID     string
	PreferredTerm string
	Language      string
	Synonyms      []string
	ParentID      string
}

// NewGraphClient opens (creating if necessary) a concept graph database at
// path and seeds it with seeds when the concepts table is empty.
func NewGraphClient(path string, seeds []Seed) (*GraphClient, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("ontology: opening concept graph: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	schema := `
CREATE TABLE IF NOT EXISTS concepts (
    concept_id     TEXT PRIMARY KEY,
    preferred_term TEXT NOT NULL,
    language       TEXT NOT NULL,
    parent_id      TEXT
);
CREATE TABLE IF NOT EXISTS synonyms (
    concept_id TEXT NOT NULL,
    synonym    TEXT NOT NULL,
    FOREIGN KEY (concept_id) REFERENCES concepts(concept_id)
);
CREATE INDEX IF NOT EXISTS idx_synonyms_concept ON synonyms(concept_id);
CREATE INDEX IF NOT EXISTS idx_synonyms_synonym ON synonyms(synonym);
`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ontology: creating schema: %w", err)
	}

	g := &GraphClient{db: db}
	if err := g.seedIfEmpty(seeds); err != nil {
		db.Close()
		return nil, err
	}
	return g, nil
}

func (g *GraphClient) seedIfEmpty(seeds []Seed) error {
	var count int
	if err := g.db.QueryRow("SELECT COUNT(*) FROM concepts").Scan(&count); err != nil {
		return fmt.Errorf("ontology: counting concepts: %w", err)
	}
	if count > 0 || len(seeds) == 0 {
		return nil
	}
	return g.LoadSeeds(seeds)
}

// LoadSeeds inserts or replaces the given concepts and their synonyms.
func (g *GraphClient) LoadSeeds(seeds []Seed) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	tx, err := g.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	upsertConcept, err := tx.Prepare(`
		INSERT INTO concepts (concept_id, preferred_term, language, parent_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(concept_id) DO UPDATE SET
			preferred_term = excluded.preferred_term,
			language = excluded.language,
			parent_id = excluded.parent_id
	`)
	if err != nil {
		return err
	}
	defer upsertConcept.Close()

	deleteSynonyms, err := tx.Prepare("DELETE FROM synonyms WHERE concept_id = ?")
	if err != nil {
		return err
	}
	defer deleteSynonyms.Close()

	insertSynonym, err := tx.Prepare("INSERT INTO synonyms (concept_id, synonym) VALUES (?, ?)")
	if err != nil {
		return err
	}
	defer insertSynonym.Close()

	for _, s := range seeds {
		var parent sql.NullString
		if s.ParentID != "" {
			parent = sql.NullString{String: s.ParentID, Valid: true}
		}
		if _, err := upsertConcept.Exec(s.ConceptID, s.PreferredTerm, s.Language, parent); err != nil {
			return fmt.Errorf("ontology: upserting concept %s: %w", s.ConceptID, err)
		}
		if _, err := deleteSynonyms.Exec(s.ConceptID); err != nil {
			return err
		}
		synonyms := append([]string{s.PreferredTerm}, s.Synonyms...)
		for _, syn := range synonyms {
			if _, err := insertSynonym.Exec(s.ConceptID, strings.ToLower(syn)); err != nil {
				return fmt.Errorf("ontology: inserting synonym for %s: %w", s.ConceptID, err)
			}
		}
	}
	return tx.Commit()
}

type candidate struct {
	conceptID     string
	preferredTerm string
	language      string
	score         float64
}

// Resolve implements Client.Resolve by exact-matching normalized term
// surfaces against the synonym table first, then falling back to a
// substring (fuzzy, "LIKE '%term%'") match, scored so exact hits rank
// above substrings.
func (g *GraphClient) Resolve(ctx context.Context, terms []clinextract.TermCandidate, language string, nMax int) ([]clinextract.ConceptMapping, error) {
	if nMax <= 0 {
		nMax = 5
	}
	var mappings []clinextract.ConceptMapping
	for _, term := range terms {
		normalized := strings.ToLower(strings.TrimSpace(term.Normalized))
		if normalized == "" {
			continue
		}
		candidates, err := g.lookup(ctx, normalized, language)
		if err != nil {
			return nil, fmt.Errorf("ontology: resolving %q: %w", term.Surface, err)
		}
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
		if len(candidates) > nMax {
			candidates = candidates[:nMax]
		}
		for _, c := range candidates {
			mappings = append(mappings, clinextract.ConceptMapping{
				OriginalTerm:  term.Surface,
				ConceptID:     c.conceptID,
				PreferredTerm: c.preferredTerm,
				Language:      c.language,
				Confidence:    c.score,
			})
		}
	}
	return mappings, nil
}

func (g *GraphClient) lookup(ctx context.Context, normalized, language string) ([]candidate, error) {
	query := `
		SELECT DISTINCT c.concept_id, c.preferred_term, c.language, s.synonym
		FROM synonyms s
		JOIN concepts c ON c.concept_id = s.concept_id
		WHERE (s.synonym = ? OR s.synonym LIKE ? OR ? LIKE '%' || s.synonym || '%')
	`
	args := []any{normalized, "%" + normalized + "%", normalized}
	if language != "" {
		query += " AND c.language = ?"
		args = append(args, language)
	}

	rows, err := g.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := make(map[string]*candidate)
	for rows.Next() {
		var conceptID, preferredTerm, lang, synonym string
		if err := rows.Scan(&conceptID, &preferredTerm, &lang, &synonym); err != nil {
			return nil, err
		}
		score := fuzzyScore(normalized, synonym)
		if existing, ok := seen[conceptID]; ok {
			if score > existing.score {
				existing.score = score
			}
			continue
		}
		seen[conceptID] = &candidate{conceptID: conceptID, preferredTerm: preferredTerm, language: lang, score: score}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]candidate, 0, len(seen))
	for _, c := range seen {
		out = append(out, *c)
	}
	return out, nil
}

// fuzzyScore gives an exact synonym match confidence 1.0, and a substring
// match a confidence proportional to how much of the shorter string the
// overlap covers, calibrated so near-exact matches stay above θ_apply-style
// thresholds and loose substring hits trail behind them.
func fuzzyScore(normalized, synonym string) float64 {
	if normalized == synonym {
		return 1.0
	}
	shorter, longer := normalized, synonym
	if len(synonym) < len(normalized) {
		shorter, longer = synonym, normalized
	}
	if len(shorter) == 0 {
		return 0
	}
	if strings.Contains(longer, shorter) {
		ratio := float64(len(shorter)) / float64(len(longer))
		return 0.5 + 0.4*ratio
	}
	return 0
}

func (g *GraphClient) Close() error {
	return g.db.Close()
}
