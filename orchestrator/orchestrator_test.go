package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/clinextract"
	"github.com/brunobiangulo/clinextract/llm"
	"github.com/brunobiangulo/clinextract/ontology"
	"github.com/brunobiangulo/clinextract/prefstore"
	"github.com/brunobiangulo/clinextract/publisher"
	"github.com/brunobiangulo/clinextract/registry"
	"github.com/brunobiangulo/clinextract/termextract"
	"github.com/brunobiangulo/clinextract/vectorindex"
)

// fakeVectorClient is an in-memory stand-in for the Vector Index Client:
// Query just hands back whatever was Upserted for the conversation, in
// insertion order, capped at k.
type fakeVectorClient struct {
	mu     sync.Mutex
	chunks map[string][]vectorindex.Chunk
}

func newFakeVectorClient() *fakeVectorClient {
	return &fakeVectorClient{chunks: make(map[string][]vectorindex.Chunk)}
}

func (f *fakeVectorClient) Upsert(ctx context.Context, conversationID string, chunks []vectorindex.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks[conversationID] = append(f.chunks[conversationID], chunks...)
	return nil
}

func (f *fakeVectorClient) Query(ctx context.Context, conversationID string, embedding []float32, k int) ([]vectorindex.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := f.chunks[conversationID]
	if k > len(stored) {
		k = len(stored)
	}
	out := make([]vectorindex.Result, 0, k)
	for i := 0; i < k; i++ {
		out = append(out, vectorindex.Result{Chunk: stored[i], Score: 1.0 - float64(i)*0.01})
	}
	return out, nil
}

func (f *fakeVectorClient) Drop(ctx context.Context, conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.chunks, conversationID)
	return nil
}

func (f *fakeVectorClient) Close() error { return nil }

// fakeOntologyClient resolves nothing, exercising the partial-coverage
// path that empty-maps rather than fails per spec.md's Open Question.
type fakeOntologyClient struct{}

func (fakeOntologyClient) Resolve(ctx context.Context, terms []clinextract.TermCandidate, language string, nMax int) ([]clinextract.ConceptMapping, error) {
	return nil, nil
}
func (fakeOntologyClient) Close() error { return nil }

// fakeProvider dispatches on prompt shape: term-extraction windows always
// report no terms (keeps the grounding check a no-op so tests isolate the
// behavior under test), section-generation prompts are answered per a
// caller-supplied responder keyed by section type.
type fakeProvider struct {
	mu        sync.Mutex
	responder func(sectionType, prompt string) string
	calls     int
}

func (p *fakeProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()

	content := req.Messages[len(req.Messages)-1].Content
	if strings.Contains(content, "TRANSCRIPT SEGMENT:") {
		return &llm.ChatResponse{Content: `{"terms":[]}`}, nil
	}

	sectionType := extractSectionType(content)
	return &llm.ChatResponse{Content: p.responder(sectionType, content)}, nil
}

func (p *fakeProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

func extractSectionType(prompt string) string {
	const marker = "Section type: "
	idx := strings.Index(prompt, marker)
	if idx < 0 {
		return ""
	}
	rest := prompt[idx+len(marker):]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[:nl]
	}
	return rest
}

func acceptingResponse(content string) string {
	body, _ := json.Marshal(struct {
		Content        string                      `json:"content"`
		LineReferences []clinextract.LineReference `json:"line_references"`
		SnomedMappings []clinextract.ConceptMapping `json:"snomed_mappings"`
		SelfScore      float64                     `json:"self_score"`
	}{
		Content: content,
		LineReferences: []clinextract.LineReference{
			{Line: 1, Start: 0, End: len(firstLineText), Text: firstLineText},
		},
		SelfScore: 0.95,
	})
	return string(body)
}

// badCitationResponse cites a line reference whose text does not match
// the transcript, so citation.Validate always rejects it.
func badCitationResponse(content string) string {
	body, _ := json.Marshal(struct {
		Content        string                      `json:"content"`
		LineReferences []clinextract.LineReference `json:"line_references"`
		SelfScore      float64                     `json:"self_score"`
	}{
		Content:        content,
		LineReferences: []clinextract.LineReference{{Line: 1, Start: 0, End: 5, Text: "this text is not on line 1"}},
		SelfScore:      0.95,
	})
	return string(body)
}

const firstLineText = "Patient reports mild headache for three days."

func testConfig() clinextract.Config {
	return clinextract.Config{
		MaxChunkTokens:            200,
		ChunkOverlap:              0,
		PerJobConcurrency:         4,
		GlobalConcurrency:         8,
		SectionTimeout:            5 * time.Second,
		JobTimeout:                10 * time.Second,
		MaxTranscriptBytes:        1 << 20,
		MaxRepairAttempts:         3,
		ConfidenceAcceptThreshold: 0.6,
		PreferenceApplyThreshold:  0.7,
		OntologyMaxConcepts:       5,
	}
}

func newTestOrchestrator(t *testing.T, responder func(sectionType, prompt string) string) (*Orchestrator, *fakeProvider, chan clinextract.SectionPublication) {
	t.Helper()
	cfg := testConfig()
	vec := newFakeVectorClient()
	ont := fakeOntologyClient{}
	chat := &fakeProvider{responder: responder}
	prefs := prefstore.NewMemoryStore()
	reg := registry.New()

	published := make(chan clinextract.SectionPublication, 64)
	pub := publisher.New(publisher.Config{}, publisher.SinkFunc(func(ctx context.Context, p clinextract.SectionPublication) error {
		published <- p
		return nil
	}))

	termExtractor := termextract.New(termextract.Config{WindowLines: 40, Model: "test"}, chat)
	orch := New(cfg, vec, ont, termExtractor, prefs, chat, chat, pub, reg)
	return orch, chat, published
}

func drainUntilTerminal(t *testing.T, orch *Orchestrator, jobID string, timeout time.Duration) clinextract.Job {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		job, err := orch.JobStatus(jobID)
		require.NoError(t, err)
		switch job.Status {
		case clinextract.JobCompleted, clinextract.JobFailed, clinextract.JobPartiallyFailed, clinextract.JobCancelled:
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach a terminal status within %s", jobID, timeout)
	return clinextract.Job{}
}

func baseRequest() clinextract.EncounterRequest {
	return clinextract.EncounterRequest{
		ConversationID: "conv-1",
		TranscriptionText: firstLineText + "\n" +
			"No known allergies reported today.\n" +
			"Follow up in two weeks as scheduled.",
		Language: "en",
		Templates: []clinextract.Template{
			{
				TemplateID: "soap",
				Sections: []clinextract.TemplateSection{
					{SectionID: "subjective", Type: "subjective", Prompt: "Summarize the subjective complaint."},
					{SectionID: "assessment", Type: "assessment", Prompt: "Summarize the assessment.", DependsOn: []string{"subjective"}},
				},
			},
		},
	}
}

func TestProcessEncounterRespectsDependencyOrder(t *testing.T) {
	var mu sync.Mutex
	var order []string

	orch, _, published := newTestOrchestrator(t, func(sectionType, prompt string) string {
		mu.Lock()
		order = append(order, sectionType)
		mu.Unlock()
		if sectionType == "assessment" && !strings.Contains(prompt, "Already-completed dependent sections") {
			t.Errorf("assessment generated before its dependency completed")
		}
		return acceptingResponse(fmt.Sprintf("%s content", sectionType))
	})

	job, err := orch.ProcessEncounter(context.Background(), baseRequest())
	require.NoError(t, err)

	final := drainUntilTerminal(t, orch, job.JobID, 5*time.Second)
	require.Equal(t, clinextract.JobCompleted, final.Status)

	close(published)
	var publishedSections []string
	for p := range published {
		publishedSections = append(publishedSections, p.SectionID)
	}
	require.ElementsMatch(t, []string{"subjective", "assessment"}, publishedSections)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"subjective", "assessment"}, order)
}

func TestProcessEncounterPublishesEachSectionAtMostOnce(t *testing.T) {
	orch, _, published := newTestOrchestrator(t, func(sectionType, prompt string) string {
		return acceptingResponse(sectionType + " content")
	})

	job, err := orch.ProcessEncounter(context.Background(), baseRequest())
	require.NoError(t, err)
	drainUntilTerminal(t, orch, job.JobID, 5*time.Second)

	close(published)
	counts := make(map[string]int)
	for p := range published {
		counts[p.SectionID]++
	}
	for sectionID, n := range counts {
		require.Equalf(t, 1, n, "section %s published %d times, want at most once", sectionID, n)
	}
}

func TestProcessEncounterFailsValidationAfterMaxRepairAttempts(t *testing.T) {
	var attempts int32
	orch, _, published := newTestOrchestrator(t, func(sectionType, prompt string) string {
		attempts++
		return badCitationResponse(sectionType + " content")
	})

	req := baseRequest()
	req.Templates = []clinextract.Template{
		{TemplateID: "soap", Sections: []clinextract.TemplateSection{
			{SectionID: "subjective", Type: "subjective", Prompt: "Summarize the subjective complaint."},
		}},
	}

	job, err := orch.ProcessEncounter(context.Background(), req)
	require.NoError(t, err)

	final := drainUntilTerminal(t, orch, job.JobID, 5*time.Second)
	require.Equal(t, clinextract.JobFailed, final.Status)
	require.Equal(t, clinextract.StatusFailedValidation, final.SectionStates["subjective"])

	close(published)
	var count int
	for p := range published {
		count++
		require.Equal(t, clinextract.StatusFailedValidation, p.ValidationStatus)
	}
	require.Equal(t, 1, count, "a failed section is still published exactly once, per spec.md §7")
}

func TestProcessEncounterCancellationStopsPendingSections(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)

	orch, _, _ := newTestOrchestrator(t, func(sectionType, prompt string) string {
		if sectionType == "subjective" {
			select {
			case started <- struct{}{}:
			default:
			}
			<-release
		}
		return acceptingResponse(sectionType + " content")
	})

	job, err := orch.ProcessEncounter(context.Background(), baseRequest())
	require.NoError(t, err)

	<-started
	require.NoError(t, orch.CancelJob(job.JobID))
	close(release)

	final := drainUntilTerminal(t, orch, job.JobID, 5*time.Second)
	require.Equal(t, clinextract.JobCancelled, final.Status)
}

func TestProcessEncounterAppliesDoctorPreferences(t *testing.T) {
	orch, _, published := newTestOrchestrator(t, func(sectionType, prompt string) string {
		return acceptingResponse("patient has htn and takes metformin")
	})

	ctx := context.Background()
	require.NoError(t, orch.PutDoctorPreferences(ctx, "dr-1", map[string]clinextract.PreferenceEntry{
		"htn": {Preferred: "hypertension", Confidence: 0.9},
	}))

	req := baseRequest()
	req.DoctorID = "dr-1"
	req.Templates = []clinextract.Template{
		{TemplateID: "soap", Sections: []clinextract.TemplateSection{
			{SectionID: "assessment", Type: "assessment", Prompt: "Summarize the assessment."},
		}},
	}

	job, err := orch.ProcessEncounter(ctx, req)
	require.NoError(t, err)
	drainUntilTerminal(t, orch, job.JobID, 5*time.Second)

	close(published)
	var content string
	for p := range published {
		content = p.SectionContent
	}
	require.Contains(t, content, "hypertension")
	require.NotContains(t, content, "htn")
}

func TestProcessEncounterDuplicateSubmissionCancelsFirstJob(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)

	orch, _, published := newTestOrchestrator(t, func(sectionType, prompt string) string {
		if sectionType == "subjective" {
			select {
			case started <- struct{}{}:
			default:
			}
			<-release
		}
		return acceptingResponse(sectionType + " content")
	})

	req := baseRequest()
	req.Templates = []clinextract.Template{
		{TemplateID: "soap", Sections: []clinextract.TemplateSection{
			{SectionID: "subjective", Type: "subjective", Prompt: "Summarize the subjective complaint."},
		}},
	}

	first, err := orch.ProcessEncounter(context.Background(), req)
	require.NoError(t, err)
	<-started

	second, err := orch.ProcessEncounter(context.Background(), req)
	require.NoError(t, err)
	require.NotEqual(t, first.JobID, second.JobID)

	close(release)

	firstFinal := drainUntilTerminal(t, orch, first.JobID, 5*time.Second)
	require.Equal(t, clinextract.JobCancelled, firstFinal.Status, "resubmitting the same (conversation, template set) cancels the in-flight job")

	secondFinal := drainUntilTerminal(t, orch, second.JobID, 5*time.Second)
	require.Equal(t, clinextract.JobCompleted, secondFinal.Status)

	close(published)
	counts := make(map[string]int)
	for p := range published {
		counts[p.SectionID]++
	}
	require.Equalf(t, 1, counts["subjective"], "subjective published %d times across both jobs, want exactly once", counts["subjective"])
}

func TestProcessEncounterHandlesMultilingualTranscript(t *testing.T) {
	const frenchFirstLine = "Le patient signale des maux de tete depuis trois jours."

	orch, _, published := newTestOrchestrator(t, func(sectionType, prompt string) string {
		require.Contains(t, prompt, "Language: fr", "section generation prompt should carry the request language through")
		body, _ := json.Marshal(struct {
			Content        string                      `json:"content"`
			LineReferences []clinextract.LineReference `json:"line_references"`
			SelfScore      float64                     `json:"self_score"`
		}{
			Content: "le patient signale une cephalee",
			LineReferences: []clinextract.LineReference{
				{Line: 1, Start: 0, End: len(frenchFirstLine), Text: frenchFirstLine},
			},
			SelfScore: 0.95,
		})
		return string(body)
	})

	req := baseRequest()
	req.Language = "fr"
	req.TranscriptionText = frenchFirstLine + "\n" +
		"Aucune allergie connue signalee.\n" +
		"Suivi prevu dans deux semaines."
	req.Templates = []clinextract.Template{
		{TemplateID: "soap", Sections: []clinextract.TemplateSection{
			{SectionID: "subjective", Type: "subjective", Prompt: "Resumez la plainte subjective."},
		}},
	}

	job, err := orch.ProcessEncounter(context.Background(), req)
	require.NoError(t, err)

	final := drainUntilTerminal(t, orch, job.JobID, 5*time.Second)
	require.Equal(t, clinextract.JobCompleted, final.Status)

	close(published)
	var content string
	for p := range published {
		content = p.SectionContent
	}
	require.Contains(t, content, "cephalee")
}

func TestProcessEncounterDependentSectionErrorsWhenDependencyFailsValidation(t *testing.T) {
	orch, _, published := newTestOrchestrator(t, func(sectionType, prompt string) string {
		if sectionType == "subjective" {
			return badCitationResponse("subjective content")
		}
		t.Errorf("assessment should never be generated once its dependency fails validation, got prompt: %s", prompt)
		return acceptingResponse("assessment content")
	})

	job, err := orch.ProcessEncounter(context.Background(), baseRequest())
	require.NoError(t, err)

	final := drainUntilTerminal(t, orch, job.JobID, 5*time.Second)
	require.Equal(t, clinextract.JobFailed, final.Status)
	require.Equal(t, clinextract.StatusFailedValidation, final.SectionStates["subjective"])
	require.Equal(t, clinextract.StatusError, final.SectionStates["assessment"],
		"a dependent of a failed section becomes Error per spec.md §7, not Accepted")

	close(published)
	var assessmentPub clinextract.SectionPublication
	for p := range published {
		if p.SectionID == "assessment" {
			assessmentPub = p
		}
	}
	require.Equal(t, clinextract.StatusError, assessmentPub.ValidationStatus)
	require.Contains(t, assessmentPub.Error, "dependency_failed")
}
