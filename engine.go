package clinextract

import (
	"context"
	"fmt"

	"github.com/brunobiangulo/clinextract/llm"
	"github.com/brunobiangulo/clinextract/ontology"
	"github.com/brunobiangulo/clinextract/orchestrator"
	"github.com/brunobiangulo/clinextract/prefstore"
	"github.com/brunobiangulo/clinextract/publisher"
	"github.com/brunobiangulo/clinextract/registry"
	"github.com/brunobiangulo/clinextract/termextract"
	"github.com/brunobiangulo/clinextract/vectorindex"
)

// Engine is the public facade over the whole extraction pipeline: one
// exported type wiring every subcomponent behind the handful of
// operations callers actually need.
type Engine struct {
	orch *orchestrator.Orchestrator
}

// NewEngine constructs every subcomponent from cfg and wires them into an
// Orchestrator. Callers own the returned Engine's lifecycle and should call
// Close when done.
func NewEngine(cfg Config, sink publisher.Sink) (*Engine, error) {
	vectorClient, err := newVectorClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("clinextract: building vector index client: %w", err)
	}

	ontologyClient, err := ontology.NewGraphClient(cfg.DBPath, nil)
	if err != nil {
		return nil, fmt.Errorf("clinextract: building ontology client: %w", err)
	}

	prefStore, err := newPrefStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("clinextract: building preference store: %w", err)
	}

	chatProvider, err := llm.NewProvider(llm.Config{
		Provider: cfg.Chat.Provider,
		Model:    cfg.Chat.Model,
		BaseURL:  cfg.Chat.BaseURL,
		APIKey:   cfg.Chat.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("clinextract: building chat LLM provider: %w", err)
	}

	embedProvider, err := llm.NewProvider(llm.Config{
		Provider: cfg.Embedding.Provider,
		Model:    cfg.Embedding.Model,
		BaseURL:  cfg.Embedding.BaseURL,
		APIKey:   cfg.Embedding.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("clinextract: building embedding LLM provider: %w", err)
	}

	extractionProvider, err := llm.NewProvider(llm.Config{
		Provider: cfg.Extraction.Provider,
		Model:    cfg.Extraction.Model,
		BaseURL:  cfg.Extraction.BaseURL,
		APIKey:   cfg.Extraction.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("clinextract: building extraction LLM provider: %w", err)
	}

	termExtractor := termextract.New(termextract.Config{
		WindowLines: cfg.TermExtractWindowTokens / 30, // rough heuristic of about 30 tokens per transcript line
		Model:       cfg.Extraction.Model,
	}, extractionProvider)

	pub := publisher.New(publisher.Config{}, sink)
	reg := registry.New()

	orch := orchestrator.New(cfg, vectorClient, ontologyClient, termExtractor, prefStore, chatProvider, embedProvider, pub, reg)

	return &Engine{orch: orch}, nil
}

func newVectorClient(cfg Config) (vectorindex.Client, error) {
	switch cfg.VectorBackend {
	case "qdrant":
		return vectorindex.NewQdrant(cfg.Qdrant)
	case "sqlitevec", "":
		return vectorindex.NewSQLiteVec(cfg.DBPath, cfg.EmbeddingDim)
	default:
		return nil, fmt.Errorf("clinextract: unknown vector backend %q", cfg.VectorBackend)
	}
}

func newPrefStore(cfg Config) (prefstore.Store, error) {
	switch cfg.PrefStoreBackend {
	case "postgres":
		return prefstore.NewPostgresStore(context.Background(), cfg.Postgres)
	case "memory", "":
		return prefstore.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("clinextract: unknown preference store backend %q", cfg.PrefStoreBackend)
	}
}

// ProcessEncounter validates, schedules, and asynchronously runs one
// extraction job, returning an acknowledgment Job snapshot immediately.
func (e *Engine) ProcessEncounter(ctx context.Context, req EncounterRequest) (*Job, error) {
	return e.orch.ProcessEncounter(ctx, req)
}

// CancelJob cooperatively cancels a non-terminal job.
func (e *Engine) CancelJob(jobID string) error {
	return e.orch.CancelJob(jobID)
}

// JobStatus returns a job's current status and per-section states.
func (e *Engine) JobStatus(jobID string) (Job, error) {
	return e.orch.JobStatus(jobID)
}

// ValidateTemplates runs the structural checks spec.md §6 names: acyclic
// dependencies, unique section_id, known types.
func (e *Engine) ValidateTemplates(templates []Template) error {
	return orchestrator.ValidateTemplates(templates)
}

// GetDoctorPreferences returns a doctor's stored preference snapshot.
func (e *Engine) GetDoctorPreferences(ctx context.Context, doctorID string) (DoctorPreferences, error) {
	return e.orch.GetDoctorPreferences(ctx, doctorID)
}

// PutDoctorPreferences bulk-replaces a doctor's preference entries.
func (e *Engine) PutDoctorPreferences(ctx context.Context, doctorID string, entries map[string]PreferenceEntry) error {
	return e.orch.PutDoctorPreferences(ctx, doctorID, entries)
}

// Health probes the Vector Index, Ontology, and LLM Clients.
func (e *Engine) Health(ctx context.Context) error {
	return e.orch.Health(ctx)
}

// Close releases every subcomponent's connections and file handles.
func (e *Engine) Close() error {
	return e.orch.Close()
}
