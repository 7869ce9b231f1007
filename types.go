// Package clinextract implements the clinical note extraction engine: a
// multi-RAG orchestrator that turns a speaker-annotated encounter
// transcript into structured clinical document sections, each one
// traceable to exact transcript lines and validated against a clinical
// ontology.
package clinextract

import "time"

// LineRecord is one line of a normalized transcript.
type LineRecord struct {
	LineNo    int    `json:"line_no"`
	Speaker   string `json:"speaker,omitempty"`
	Text      string `json:"text"`
	ByteStart int    `json:"byte_start"`
	ByteEnd   int    `json:"byte_end"`
}

// LineSpan is an inclusive range of line numbers.
type LineSpan struct {
	First int `json:"first"`
	Last  int `json:"last"`
}

// Chunk is an overlapping semantic window over the transcript.
type Chunk struct {
	ChunkID        string    `json:"chunk_id"`
	ConversationID string    `json:"conversation_id"`
	LineSpan       LineSpan  `json:"line_span"`
	Text           string    `json:"text"`
	Embedding      []float32 `json:"-"`
}

// Occurrence locates a term surface inside a specific transcript line.
type Occurrence struct {
	LineNo    int `json:"line_no"`
	CharStart int `json:"char_start"`
	CharEnd   int `json:"char_end"`
}

// TermCandidate is a deduplicated medical term surfaced from the transcript.
type TermCandidate struct {
	Surface     string       `json:"surface"`
	Normalized  string       `json:"normalized"`
	Occurrences []Occurrence `json:"occurrences"`
}

// ConceptMapping links a free-text term to a clinical ontology concept.
type ConceptMapping struct {
	OriginalTerm  string  `json:"original_term"`
	ConceptID     string  `json:"concept_id"`
	PreferredTerm string  `json:"preferred_term"`
	Language      string  `json:"language"`
	Confidence    float64 `json:"confidence"`
}

// SectionSpec describes one schedulable section of a template.
type SectionSpec struct {
	TemplateID  string   `json:"template_id"`
	SectionID   string   `json:"section_id"`
	SectionType string   `json:"section_type"`
	Prompt      string   `json:"prompt"`
	OrderIndex  int      `json:"order_index"`
	DependsOn   []string `json:"depends_on,omitempty"`
}

// ValidationStatus is the terminal or in-flight disposition of a section.
type ValidationStatus string

const (
	StatusPending           ValidationStatus = "pending"
	StatusRetrieving        ValidationStatus = "retrieving"
	StatusGenerating         ValidationStatus = "generating"
	StatusValidating        ValidationStatus = "validating"
	StatusRetrying          ValidationStatus = "retrying"
	StatusAccepted          ValidationStatus = "accepted"
	StatusFailedValidation  ValidationStatus = "failed_validation"
	StatusError             ValidationStatus = "error"
	StatusDeliveryFailed    ValidationStatus = "delivery_failed"
)

// LineReference is an emitted citation into the transcript.
type LineReference struct {
	Line  int    `json:"line"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

// SectionResult is the generated content for one section plus its grounding.
type SectionResult struct {
	SectionID      string           `json:"section_id"`
	TemplateID     string           `json:"template_id"`
	SectionType    string           `json:"section_type"`
	Content        string           `json:"content"`
	LineReferences []LineReference  `json:"line_references"`
	SnomedMappings []ConceptMapping `json:"snomed_mappings"`
	Confidence     float64          `json:"confidence_score"`
	Language       string           `json:"extracted_language"`
	Status         ValidationStatus `json:"validation_status"`
	Error          string           `json:"error,omitempty"`
	Attempts       int              `json:"-"`
}

// JobStatusValue is the terminal or in-flight disposition of a Job.
type JobStatusValue string

const (
	JobPending         JobStatusValue = "Pending"
	JobRunning         JobStatusValue = "Running"
	JobCancelled       JobStatusValue = "Cancelled"
	JobCompleted       JobStatusValue = "Completed"
	JobPartiallyFailed JobStatusValue = "PartiallyFailed"
	JobFailed          JobStatusValue = "Failed"
)

// Job is one invocation of the pipeline for one encounter and template group.
type Job struct {
	JobID            string                      `json:"job_id"`
	ConversationID   string                      `json:"conversation_id"`
	TemplateGroupID string                      `json:"template_group_id"`
	Status           JobStatusValue              `json:"status"`
	SectionStates    map[string]ValidationStatus `json:"section_states"`
	StartedAt        time.Time                   `json:"started_at"`
	GlobalMappings   []ConceptMapping            `json:"-"`
}

// PreferenceEntry is one learned term substitution for a doctor.
type PreferenceEntry struct {
	Preferred   string    `json:"preferred"`
	Confidence  float64   `json:"confidence"`
	LastUpdated time.Time `json:"last_updated"`
}

// DoctorPreferences is a doctor's learned terminology-preference map.
type DoctorPreferences struct {
	DoctorID string                     `json:"doctor_id"`
	Entries  map[string]PreferenceEntry `json:"entries"`
}

// TemplateSection is one inbound section definition within a template.
type TemplateSection struct {
	SectionID string   `json:"section_id"`
	Type      string   `json:"type"`
	Prompt    string   `json:"prompt"`
	DependsOn []string `json:"depends_on,omitempty"`
}

// Template is an ordered collection of sections with dependencies.
type Template struct {
	TemplateID string            `json:"template_id"`
	Sections   []TemplateSection `json:"sections"`
}

// EncounterRequest is the inbound ProcessEncounter payload.
type EncounterRequest struct {
	ConversationID    string            `json:"conversation_id"`
	Templates         []Template        `json:"templates"`
	TranscriptionText string            `json:"transcription_text"`
	DoctorID          string            `json:"doctor_id"`
	DoctorPreferences map[string]string `json:"doctor_preferences,omitempty"`
	Language          string            `json:"language"`
}

// SectionPublication is the outbound payload delivered for each section.
type SectionPublication struct {
	TemplateType       string           `json:"template_type"`
	SectionType        string           `json:"section_type"`
	SectionContent     string           `json:"section_content"`
	SectionID          string           `json:"section_id"`
	LineReferences     []LineReference  `json:"line_references"`
	SnomedMappings     []ConceptMapping `json:"snomed_mappings"`
	ConfidenceScore    float64          `json:"confidence_score"`
	ExtractedLanguage  string           `json:"extracted_language"`
	ProcessingMetadata map[string]any   `json:"processing_metadata,omitempty"`
	ValidationStatus   ValidationStatus `json:"validation_status"`
	Error              string           `json:"error,omitempty"`
}
