package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/brunobiangulo/clinextract"
	"github.com/brunobiangulo/clinextract/llm"
	"github.com/brunobiangulo/clinextract/retrieval"
	"github.com/brunobiangulo/clinextract/sectioncache"
	"github.com/brunobiangulo/clinextract/transcript"
	"github.com/brunobiangulo/clinextract/validator"
	"github.com/brunobiangulo/clinextract/vectorindex"
)

// retrievalK is the number of retrieved chunks fed to the section
// generator.
const retrievalK = 6

// scheduleSections runs every SectionSpec's pipeline concurrently, gated
// by its depends_on edges, bounded by both the per-job semaphore (C_job)
// and the Orchestrator's shared global semaphore (C_global). It returns
// one SectionResult per spec, in spec order, once every section has
// reached a terminal ValidationStatus or the job context expired.
func (o *Orchestrator) scheduleSections(
	ctx context.Context,
	jobID string,
	req clinextract.EncounterRequest,
	specs []clinextract.SectionSpec,
	lines []transcript.LineRecord,
	language string,
	globalMappings []clinextract.ConceptMapping,
	prefs clinextract.DoctorPreferences,
	cache *sectioncache.Cache,
) []clinextract.SectionResult {
	jobSemSize := o.cfg.PerJobConcurrency
	if jobSemSize <= 0 {
		jobSemSize = 4
	}
	jobSem := make(chan struct{}, jobSemSize)

	done := make(map[string]chan struct{}, len(specs))
	for _, s := range specs {
		done[s.SectionID] = make(chan struct{})
	}

	statuses := newSectionStatusTracker()
	results := make([]clinextract.SectionResult, len(specs))
	var wg sync.WaitGroup

	for i, spec := range specs {
		wg.Add(1)
		go func(i int, spec clinextract.SectionSpec) {
			defer wg.Done()
			defer close(done[spec.SectionID])

			switch outcome, failedDep := waitForDependencies(ctx, spec.DependsOn, done, statuses); outcome {
			case depsCancelled:
				result := errorResult(spec, clinextract.StatusError, "job cancelled while waiting on dependencies")
				results[i] = result
				statuses.set(spec.SectionID, clinextract.StatusError)
				o.registry.SetSectionStatus(jobID, spec.SectionID, clinextract.StatusError)
				return
			case depsFailed:
				result := errorResult(spec, clinextract.StatusError, fmt.Sprintf("dependency_failed: %s did not reach accepted", failedDep))
				results[i] = result
				statuses.set(spec.SectionID, clinextract.StatusError)
				o.registry.SetSectionStatus(jobID, spec.SectionID, clinextract.StatusError)
				o.publishFailure(ctx, jobID, req, spec, result)
				return
			}

			select {
			case jobSem <- struct{}{}:
				defer func() { <-jobSem }()
			case <-ctx.Done():
				result := errorResult(spec, clinextract.StatusError, "job cancelled")
				results[i] = result
				statuses.set(spec.SectionID, clinextract.StatusError)
				o.registry.SetSectionStatus(jobID, spec.SectionID, clinextract.StatusError)
				return
			}

			select {
			case o.globalSem <- struct{}{}:
				defer func() { <-o.globalSem }()
			case <-ctx.Done():
				result := errorResult(spec, clinextract.StatusError, "job cancelled")
				results[i] = result
				statuses.set(spec.SectionID, clinextract.StatusError)
				o.registry.SetSectionStatus(jobID, spec.SectionID, clinextract.StatusError)
				return
			}

			sectionCtx, cancel := context.WithTimeout(ctx, o.cfg.SectionTimeout)
			defer cancel()

			result := o.runSection(sectionCtx, jobID, req, spec, lines, language, globalMappings, prefs, cache)
			results[i] = result
			statuses.set(spec.SectionID, result.Status)
			o.registry.SetSectionStatus(jobID, spec.SectionID, result.Status)

			if result.Status == clinextract.StatusAccepted {
				if err := cache.Put(spec.SectionID, result); err != nil {
					slog.Error("orchestrator: section cache put failed", "job_id", jobID, "section_id", spec.SectionID, "error", err)
				}
				o.publishSection(ctx, jobID, req, spec, result)
				if !o.publisher.Delivered(spec.SectionID) {
					results[i].Status = clinextract.StatusDeliveryFailed
				}
			} else if result.Status == clinextract.StatusFailedValidation || result.Status == clinextract.StatusError {
				o.publishFailure(ctx, jobID, req, spec, result)
			}
		}(i, spec)
	}

	wg.Wait()
	return results
}

// sectionStatusTracker records each section's terminal ValidationStatus as
// soon as its goroutine in scheduleSections finishes, independent of
// cache.Put (which only ever holds Accepted results per spec.md §4.6).
// waitForDependencies consults it to tell "dependency still running" apart
// from "dependency reached a terminal non-Accepted status".
type sectionStatusTracker struct {
	mu sync.RWMutex
	m  map[string]clinextract.ValidationStatus
}

func newSectionStatusTracker() *sectionStatusTracker {
	return &sectionStatusTracker{m: make(map[string]clinextract.ValidationStatus)}
}

func (t *sectionStatusTracker) set(sectionID string, status clinextract.ValidationStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m[sectionID] = status
}

func (t *sectionStatusTracker) get(sectionID string) (clinextract.ValidationStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	status, ok := t.m[sectionID]
	return status, ok
}

// depsWaitOutcome is the result of waiting on a section's dependencies.
type depsWaitOutcome int

const (
	depsReady depsWaitOutcome = iota
	depsCancelled
	depsFailed
)

// waitForDependencies blocks until every dependency's done channel closes,
// then checks each one's recorded terminal status. A dependency that ended
// anywhere other than StatusAccepted short-circuits with depsFailed and the
// offending section ID (spec.md §7: "dependents of a failed section become
// Error with reason dependency_failed"), so the caller never proceeds to
// runSection with an unsatisfied dependency (Testable Property 4).
func waitForDependencies(ctx context.Context, dependsOn []string, done map[string]chan struct{}, statuses *sectionStatusTracker) (depsWaitOutcome, string) {
	for _, dep := range dependsOn {
		ch, ok := done[dep]
		if !ok {
			continue
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return depsCancelled, ""
		}
		if status, recorded := statuses.get(dep); recorded && status != clinextract.StatusAccepted {
			return depsFailed, dep
		}
	}
	if ctx.Err() != nil {
		return depsCancelled, ""
	}
	return depsReady, ""
}

// runSection executes one section's retrieve -> generate -> validate loop,
// retrying with a repair prompt up to R_max attempts per spec.md §4.8/§5.
func (o *Orchestrator) runSection(
	ctx context.Context,
	jobID string,
	req clinextract.EncounterRequest,
	spec clinextract.SectionSpec,
	lines []transcript.LineRecord,
	language string,
	globalMappings []clinextract.ConceptMapping,
	prefs clinextract.DoctorPreferences,
	cache *sectioncache.Cache,
) clinextract.SectionResult {
	maxAttempts := o.cfg.MaxRepairAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	o.registry.SetSectionStatus(jobID, spec.SectionID, clinextract.StatusRetrieving)
	retrieved, err := o.retrieve(ctx, req.ConversationID, spec)
	if err != nil {
		return errorResult(spec, clinextract.StatusError, fmt.Sprintf("retrieval failed: %v", err))
	}

	depResults := cache.GetDependencies(spec.DependsOn)

	var lastOutcome string
	var lastFailing []clinextract.LineReference
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return errorResult(spec, clinextract.StatusError, "section timed out")
		}

		o.registry.SetSectionStatus(jobID, spec.SectionID, clinextract.StatusGenerating)
		candidate, selfScore, err := o.generate(ctx, spec, retrieved, depResults, language, prefs, lastOutcome, lastFailing)
		if err != nil {
			if attempt < maxAttempts {
				lastOutcome = err.Error()
				continue
			}
			return errorResult(spec, clinextract.StatusError, fmt.Sprintf("generation failed: %v", err))
		}
		candidate.Attempts = attempt

		o.registry.SetSectionStatus(jobID, spec.SectionID, clinextract.StatusValidating)
		outcome, err := o.validatorSvc.Validate(ctx, candidate, lines, globalMappings, selfScore)
		if err != nil {
			return errorResult(spec, clinextract.StatusError, fmt.Sprintf("validation failed: %v", err))
		}

		if outcome.Accepted {
			candidate.Status = clinextract.StatusAccepted
			candidate.Confidence = outcome.Confidence
			return candidate
		}

		candidate.Confidence = outcome.Confidence
		lastFailing = outcome.FailingReferences
		lastOutcome = issuesSummary(outcome.Issues)

		if attempt == maxAttempts {
			candidate.Status = clinextract.StatusFailedValidation
			candidate.Error = lastOutcome
			return candidate
		}

		o.registry.SetSectionStatus(jobID, spec.SectionID, clinextract.StatusRetrying)
	}

	return errorResult(spec, clinextract.StatusError, "exhausted repair attempts without a terminal result")
}

// retrieve embeds the section prompt and queries the Vector Index Client
// for the top-k most relevant transcript chunks, per spec.md §4.4.
// retrievalPoolMultiplier over-fetches by vector similarity so the keyword
// leg of retrieval.Rank has a wide enough pool to find exact-match chunks
// that a pure cosine ranking would place outside the top retrievalK.
const retrievalPoolMultiplier = 4

func (o *Orchestrator) retrieve(ctx context.Context, conversationID string, spec clinextract.SectionSpec) ([]vectorindex.Result, error) {
	embeddings, err := o.embedder.Embed(ctx, []string{spec.Prompt})
	if err != nil || len(embeddings) == 0 {
		return nil, clinextract.NewError(clinextract.CodeDependencyUnavailable, fmt.Errorf("embedding section prompt: %w", err))
	}
	pool, err := o.vectorClient.Query(ctx, conversationID, embeddings[0], retrievalK*retrievalPoolMultiplier)
	if err != nil {
		return nil, clinextract.NewError(clinextract.CodeDependencyUnavailable, fmt.Errorf("querying vector index: %w", err))
	}
	return retrieval.Rank(pool, spec.Prompt, spec.SectionType, retrievalK), nil
}

// generate calls the compositional-mode LLM Client to produce one
// section's candidate content, citations and concept mappings.
func (o *Orchestrator) generate(
	ctx context.Context,
	spec clinextract.SectionSpec,
	retrieved []vectorindex.Result,
	depResults []clinextract.SectionResult,
	language string,
	prefs clinextract.DoctorPreferences,
	repairNote string,
	failingRefs []clinextract.LineReference,
) (clinextract.SectionResult, float64, error) {
	prompt := buildSectionPrompt(spec, retrieved, depResults, language, repairNote, failingRefs)

	resp, err := o.chat.Chat(ctx, llm.ChatRequest{
		Model:       o.cfg.Chat.Model,
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: 0.3,
		ResponseFormat: "json_object",
	})
	if err != nil {
		return clinextract.SectionResult{}, 0, clinextract.NewError(clinextract.CodeLLMInvalidOutput, err)
	}

	candidate, selfScore, err := parseSectionResponse(resp.Content, spec)
	if err != nil {
		return clinextract.SectionResult{}, 0, clinextract.NewError(clinextract.CodeLLMInvalidOutput, err)
	}

	candidate.Content = applyPreferences(candidate.Content, prefs, preferenceThreshold(o.cfg))
	candidate.Language = language
	return candidate, selfScore, nil
}

func preferenceThreshold(cfg clinextract.Config) float64 {
	if cfg.PreferenceApplyThreshold <= 0 {
		return 0.7
	}
	return cfg.PreferenceApplyThreshold
}

func issuesSummary(issues []validator.Issue) string {
	parts := make([]string, len(issues))
	for i, iss := range issues {
		parts[i] = fmt.Sprintf("%s: %s", iss.Kind, iss.Detail)
	}
	return fmt.Sprintf("%d outstanding issue(s): %v", len(issues), parts)
}

func errorResult(spec clinextract.SectionSpec, status clinextract.ValidationStatus, msg string) clinextract.SectionResult {
	return clinextract.SectionResult{
		SectionID:   spec.SectionID,
		TemplateID:  spec.TemplateID,
		SectionType: spec.SectionType,
		Status:      status,
		Error:       msg,
	}
}

// publishSection hands an accepted section to the Result Publisher.
func (o *Orchestrator) publishSection(ctx context.Context, jobID string, req clinextract.EncounterRequest, spec clinextract.SectionSpec, result clinextract.SectionResult) {
	pub := toPublication(spec, result)
	if err := o.publisher.Publish(ctx, pub); err != nil {
		slog.Error("orchestrator: publish failed", "job_id", jobID, "section_id", spec.SectionID, "error", err)
		o.registry.SetSectionStatus(jobID, spec.SectionID, clinextract.StatusDeliveryFailed)
	}
}

// publishFailure delivers a terminal failure publication so downstream
// consumers learn a section will never arrive, per spec.md §7's
// "failed sections are still published, with validation_status set".
func (o *Orchestrator) publishFailure(ctx context.Context, jobID string, req clinextract.EncounterRequest, spec clinextract.SectionSpec, result clinextract.SectionResult) {
	pub := toPublication(spec, result)
	if err := o.publisher.Publish(ctx, pub); err != nil {
		slog.Error("orchestrator: failure publish failed", "job_id", jobID, "section_id", spec.SectionID, "error", err)
	}
}

func toPublication(spec clinextract.SectionSpec, result clinextract.SectionResult) clinextract.SectionPublication {
	return clinextract.SectionPublication{
		TemplateType:      spec.TemplateID,
		SectionType:       spec.SectionType,
		SectionContent:    result.Content,
		SectionID:         spec.SectionID,
		LineReferences:    result.LineReferences,
		SnomedMappings:    result.SnomedMappings,
		ConfidenceScore:   result.Confidence,
		ExtractedLanguage: result.Language,
		ValidationStatus:  result.Status,
		Error:             result.Error,
		ProcessingMetadata: map[string]any{
			"attempts": result.Attempts,
		},
	}
}
