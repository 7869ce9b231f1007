// Package orchestrator implements the Extraction Orchestrator: it drives
// one job from a normalized transcript through per-section retrieval,
// generation, validation and publication, respecting the section
// dependency graph and the per-job/global concurrency caps (spec.md §4.9,
// §5). Scheduling fans sections out with a semaphore + sync.WaitGroup +
// per-task context.WithTimeout, gated by each section's dependency DAG.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brunobiangulo/clinextract"
	"github.com/brunobiangulo/clinextract/chunker"
	"github.com/brunobiangulo/clinextract/llm"
	"github.com/brunobiangulo/clinextract/ontology"
	"github.com/brunobiangulo/clinextract/prefstore"
	"github.com/brunobiangulo/clinextract/publisher"
	"github.com/brunobiangulo/clinextract/registry"
	"github.com/brunobiangulo/clinextract/sectioncache"
	"github.com/brunobiangulo/clinextract/termextract"
	"github.com/brunobiangulo/clinextract/transcript"
	"github.com/brunobiangulo/clinextract/validator"
	"github.com/brunobiangulo/clinextract/vectorindex"
)

// Orchestrator wires every pipeline subcomponent and drives jobs end to
// end. One Orchestrator is shared across all jobs in a process; its
// global semaphore enforces C_global across them.
type Orchestrator struct {
	cfg clinextract.Config

	vectorClient  vectorindex.Client
	ontologyBase  ontology.Client
	termExtractor *termextract.Extractor
	prefStore     prefstore.Store
	chat          llm.Provider
	embedder      llm.Provider
	validatorSvc  *validator.Service
	publisher     *publisher.Publisher
	registry      *registry.Registry
	chunker       *chunker.Chunker

	globalSem chan struct{}
}

// New builds an Orchestrator from its already-constructed subcomponents.
// Construction and wiring of the concrete backends happens in engine.go;
// this constructor only assembles them.
func New(
	cfg clinextract.Config,
	vectorClient vectorindex.Client,
	ontologyBase ontology.Client,
	termExtractor *termextract.Extractor,
	prefStore prefstore.Store,
	chat llm.Provider,
	embedder llm.Provider,
	pub *publisher.Publisher,
	reg *registry.Registry,
) *Orchestrator {
	globalConcurrency := cfg.GlobalConcurrency
	if globalConcurrency <= 0 {
		globalConcurrency = 32
	}
	return &Orchestrator{
		cfg:           cfg,
		vectorClient:  vectorClient,
		ontologyBase:  ontologyBase,
		termExtractor: termExtractor,
		prefStore:     prefStore,
		chat:          chat,
		embedder:      embedder,
		validatorSvc:  validator.New(termExtractor),
		publisher:     pub,
		registry:      reg,
		chunker: chunker.New(chunker.Config{
			TargetTokens:             cfg.MaxChunkTokens,
			OverlapTokens:            cfg.ChunkOverlap,
			RespectSpeakerBoundaries: cfg.RespectSpeakerBoundaries,
		}),
		globalSem: make(chan struct{}, globalConcurrency),
	}
}

// templateGroupID derives a stable group key from a request's template
// ids so ProcessEncounter can detect a duplicate in-flight submission for
// the same (conversation, template set) per spec.md §4.11. EncounterRequest
// carries no explicit group id field, so the group identity is the joined
// set of template ids in request order.
func templateGroupID(templates []clinextract.Template) string {
	ids := make([]string, len(templates))
	for i, t := range templates {
		ids[i] = t.TemplateID
	}
	// Deliberately not sorted: template order is caller-significant
	// (it also fixes OrderIndex in Flatten), so two requests that list
	// the same templates in a different order are treated as distinct
	// groups rather than collapsed together.
	return strings.Join(ids, "\x1f")
}

// ProcessEncounter validates the request, registers a job, launches
// processing asynchronously, and returns the initial Job snapshot as the
// acknowledgment spec.md §6 requires ("synchronously returns job_id").
func (o *Orchestrator) ProcessEncounter(ctx context.Context, req clinextract.EncounterRequest) (*clinextract.Job, error) {
	specs, err := Flatten(req.Templates)
	if err != nil {
		return nil, clinextract.NewError(clinextract.CodeInvalidRequest, err)
	}

	lines, resolvedLang, err := transcript.Normalize(req.TranscriptionText, req.Language, o.cfg.MaxTranscriptBytes)
	if err != nil {
		return nil, clinextract.NewError(clinextract.CodeInvalidTranscript, err)
	}

	groupID := templateGroupID(req.Templates)
	jobCtx, cancel := context.WithTimeout(context.Background(), o.cfg.JobTimeout)

	job, superseded := o.registry.Start(req.ConversationID, groupID, cancel)
	if superseded != nil {
		slog.Info("orchestrator: cancelling superseded job", "conversation_id", req.ConversationID, "template_group_id", groupID)
		superseded()
	}

	go o.run(jobCtx, job.JobID, req, specs, lines, resolvedLang)

	return job, nil
}

// CancelJob cooperatively cancels a running job. Idempotent by
// construction: registry.Cancel is itself idempotent (Testable Property 6).
func (o *Orchestrator) CancelJob(jobID string) error {
	if !o.registry.Cancel(jobID) {
		return clinextract.NewError(clinextract.CodeInvalidRequest, clinextract.ErrJobNotFound)
	}
	return nil
}

// JobStatus returns the current Job snapshot.
func (o *Orchestrator) JobStatus(jobID string) (clinextract.Job, error) {
	job, ok := o.registry.Status(jobID)
	if !ok {
		return clinextract.Job{}, clinextract.NewError(clinextract.CodeInvalidRequest, clinextract.ErrJobNotFound)
	}
	return job, nil
}

// Close releases every subcomponent that owns a connection or file handle.
func (o *Orchestrator) Close() error {
	var firstErr error
	if err := o.vectorClient.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := o.ontologyBase.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if o.prefStore != nil {
		if err := o.prefStore.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// GetDoctorPreferences returns a doctor's stored preference snapshot.
func (o *Orchestrator) GetDoctorPreferences(ctx context.Context, doctorID string) (clinextract.DoctorPreferences, error) {
	return o.prefStore.Get(ctx, doctorID)
}

// PutDoctorPreferences bulk-replaces a doctor's preference entries.
func (o *Orchestrator) PutDoctorPreferences(ctx context.Context, doctorID string, entries map[string]clinextract.PreferenceEntry) error {
	return o.prefStore.BulkPut(ctx, doctorID, entries)
}

// Health probes every mandatory dependency with a short-lived context,
// per spec.md §6's "ok iff the Vector Index Client, Ontology Client, and
// LLM Client respond within a short probe".
func (o *Orchestrator) Health(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := o.vectorClient.Upsert(probeCtx, "__health__", nil); err != nil {
		return clinextract.NewError(clinextract.CodeDependencyUnavailable, fmt.Errorf("vector index: %w", err))
	}
	if _, err := o.ontologyBase.Resolve(probeCtx, nil, "en", 1); err != nil {
		return clinextract.NewError(clinextract.CodeDependencyUnavailable, fmt.Errorf("ontology client: %w", err))
	}
	if _, err := o.chat.Chat(probeCtx, llm.ChatRequest{Model: o.cfg.Chat.Model, Messages: []llm.Message{{Role: "user", Content: "ping"}}, MaxTokens: 1}); err != nil {
		return clinextract.NewError(clinextract.CodeDependencyUnavailable, fmt.Errorf("llm client: %w", err))
	}
	return nil
}

// run drives one job from ingest through section scheduling to
// termination. It always runs in its own goroutine, spawned by
// ProcessEncounter.
func (o *Orchestrator) run(
	ctx context.Context,
	jobID string,
	req clinextract.EncounterRequest,
	specs []clinextract.SectionSpec,
	lines []transcript.LineRecord,
	resolvedLang string,
) {
	o.registry.SetStatus(jobID, clinextract.JobRunning)

	if err := o.ingest(ctx, req.ConversationID, lines); err != nil {
		slog.Error("orchestrator: ingest failed", "job_id", jobID, "error", err)
		o.registry.SetStatus(jobID, clinextract.JobFailed)
		return
	}

	globalMappings, err := o.resolveGlobalTerms(ctx, lines, resolvedLang)
	if err != nil {
		slog.Error("orchestrator: global term resolution failed", "job_id", jobID, "error", err)
		o.registry.SetStatus(jobID, clinextract.JobFailed)
		return
	}
	o.registry.SetGlobalMappings(jobID, globalMappings)

	prefs, err := o.snapshotPreferences(ctx, req.DoctorID, req.DoctorPreferences)
	if err != nil {
		slog.Warn("orchestrator: preference snapshot failed, proceeding without overlay", "job_id", jobID, "error", err)
		prefs = clinextract.DoctorPreferences{}
	}

	cache := sectioncache.New()
	results := o.scheduleSections(ctx, jobID, req, specs, lines, resolvedLang, globalMappings, prefs, cache)

	status := summarizeJobStatus(ctx, results)
	o.registry.SetStatus(jobID, status)
}

// ingest normalizes-and-embeds the transcript into the vector index so
// per-section retrieval has something to query, per spec.md §4.9 step 1.
func (o *Orchestrator) ingest(ctx context.Context, conversationID string, lines []transcript.LineRecord) error {
	chunks := o.chunker.Chunk(lines)
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	embeddings, err := o.embedder.Embed(ctx, texts)
	if err != nil {
		return clinextract.NewError(clinextract.CodeDependencyUnavailable, fmt.Errorf("embedding transcript chunks: %w", err))
	}

	vecChunks := make([]vectorindex.Chunk, len(chunks))
	for i, c := range chunks {
		var emb []float32
		if i < len(embeddings) {
			emb = embeddings[i]
		}
		vecChunks[i] = vectorindex.Chunk{
			ChunkID:   c.Hash,
			LineFirst: c.LineFirst,
			LineLast:  c.LineLast,
			Text:      c.Text,
			Embedding: emb,
		}
	}

	if err := o.vectorClient.Upsert(ctx, conversationID, vecChunks); err != nil {
		return clinextract.NewError(clinextract.CodeDependencyUnavailable, fmt.Errorf("upserting chunks: %w", err))
	}
	return nil
}

// resolveGlobalTerms runs the Term Extractor over the whole transcript
// once per job and resolves every candidate through a job-scoped caching
// Ontology Client, per spec.md §4.9 step 2 / §4.5.
func (o *Orchestrator) resolveGlobalTerms(ctx context.Context, lines []transcript.LineRecord, language string) ([]clinextract.ConceptMapping, error) {
	if o.termExtractor == nil {
		return nil, nil
	}
	terms, err := o.termExtractor.Extract(ctx, lines)
	if err != nil {
		return nil, clinextract.NewError(clinextract.CodeDependencyUnavailable, fmt.Errorf("extracting terms: %w", err))
	}
	if len(terms) == 0 {
		return nil, nil
	}

	cached := ontology.NewCachingClient(o.ontologyBase)
	nMax := o.cfg.OntologyMaxConcepts
	if nMax <= 0 {
		nMax = 5
	}
	mappings, err := cached.Resolve(ctx, terms, language, nMax)
	if err != nil {
		// Partial ontology outage: spec.md's Open Question decision is to
		// reduce confidence downstream rather than fail the job outright,
		// but a resolve call that errors entirely (not just returns fewer
		// mappings) still means every section runs ungrounded.
		return nil, clinextract.NewError(clinextract.CodeDependencyUnavailable, fmt.Errorf("resolving ontology concepts: %w", err))
	}
	return mappings, nil
}

// snapshotPreferences implements the Open Question decision recorded in
// DESIGN.md: the stored snapshot is read first, then every request-supplied
// doctor_preferences entry overlays (and takes precedence over) the stored
// value for the same original term.
func (o *Orchestrator) snapshotPreferences(ctx context.Context, doctorID string, overlay map[string]string) (clinextract.DoctorPreferences, error) {
	var stored clinextract.DoctorPreferences
	if o.prefStore != nil && doctorID != "" {
		var err error
		stored, err = o.prefStore.Get(ctx, doctorID)
		if err != nil {
			return clinextract.DoctorPreferences{}, err
		}
	}
	if stored.Entries == nil {
		stored.Entries = make(map[string]clinextract.PreferenceEntry)
	}
	stored.DoctorID = doctorID

	for originalTerm, preferred := range overlay {
		stored.Entries[originalTerm] = clinextract.PreferenceEntry{
			Preferred:   preferred,
			Confidence:  1.0, // request-supplied preferences are not probabilistic
			LastUpdated: time.Now(),
		}
	}
	return stored, nil
}

// applyPreferences substitutes preferred terminology for original terms in
// content wherever the preference's confidence is at or above θ_apply,
// per spec.md §4.6.
func applyPreferences(content string, prefs clinextract.DoctorPreferences, threshold float64) string {
	if len(prefs.Entries) == 0 {
		return content
	}
	out := content
	for original, entry := range prefs.Entries {
		if entry.Confidence < threshold || entry.Preferred == "" {
			continue
		}
		out = strings.ReplaceAll(out, original, entry.Preferred)
	}
	return out
}

func summarizeJobStatus(ctx context.Context, results []clinextract.SectionResult) clinextract.JobStatusValue {
	if ctx.Err() != nil {
		return clinextract.JobCancelled
	}
	if len(results) == 0 {
		return clinextract.JobFailed
	}

	accepted, failed, undelivered := 0, 0, 0
	for _, r := range results {
		switch r.Status {
		case clinextract.StatusAccepted:
			accepted++
		case clinextract.StatusDeliveryFailed:
			undelivered++
		default:
			failed++
		}
	}
	switch {
	case failed == 0 && undelivered == 0:
		return clinextract.JobCompleted
	case accepted == 0 && undelivered == 0:
		return clinextract.JobFailed
	default:
		return clinextract.JobPartiallyFailed
	}
}
