package clinextract

import "time"

// Config holds all configuration for the extraction Engine.
type Config struct {
	// Storage
	DBPath       string `json:"db_path" yaml:"db_path"`
	EmbeddingDim int    `json:"embedding_dim" yaml:"embedding_dim"`

	// Vector index backend: "sqlitevec" (default, local/dev) or "qdrant".
	VectorBackend string       `json:"vector_backend" yaml:"vector_backend"`
	Qdrant        QdrantConfig `json:"qdrant" yaml:"qdrant"`

	// Preference store backend: "memory" (default, tests) or "postgres".
	PrefStoreBackend string         `json:"prefstore_backend" yaml:"prefstore_backend"`
	Postgres         PostgresConfig `json:"postgres" yaml:"postgres"`

	// LLM providers.
	Chat       LLMConfig `json:"chat" yaml:"chat"`
	Embedding  LLMConfig `json:"embedding" yaml:"embedding"`
	Extraction LLMConfig `json:"extraction" yaml:"extraction"` // deterministic-mode provider (term/entity extraction, judge)

	// Chunking.
	MaxChunkTokens          int  `json:"max_chunk_tokens" yaml:"max_chunk_tokens"`
	ChunkOverlap            int  `json:"chunk_overlap" yaml:"chunk_overlap"`
	RespectSpeakerBoundaries bool `json:"respect_speaker_boundaries" yaml:"respect_speaker_boundaries"`

	// Ontology.
	OntologyMaxConcepts int `json:"ontology_max_concepts" yaml:"ontology_max_concepts"` // N_max, default 5

	// Preference application.
	PreferenceApplyThreshold float64 `json:"preference_apply_threshold" yaml:"preference_apply_threshold"` // theta_apply, default 0.7

	// Validation.
	ConfidenceAcceptThreshold float64 `json:"confidence_accept_threshold" yaml:"confidence_accept_threshold"` // theta_accept, default 0.6; not read: the validator applies its fixed validator.ThresholdAccept (0.6)
	MaxRepairAttempts         int     `json:"max_repair_attempts" yaml:"max_repair_attempts"`                 // R_max, default 3

	// Concurrency and timeouts.
	PerJobConcurrency   int           `json:"per_job_concurrency" yaml:"per_job_concurrency"`     // C_job, default 4
	GlobalConcurrency   int           `json:"global_concurrency" yaml:"global_concurrency"`       // C_global
	SectionTimeout      time.Duration `json:"section_timeout" yaml:"section_timeout"`             // T_sec, default 30s
	JobTimeout          time.Duration `json:"job_timeout" yaml:"job_timeout"`                     // T_job, default 20m
	LLMTimeout          time.Duration `json:"llm_timeout" yaml:"llm_timeout"`                     // T_llm, default 20s
	MaxTranscriptBytes  int           `json:"max_transcript_bytes" yaml:"max_transcript_bytes"`

	// Term extraction window size in tokens; the engine turns it into
	// lines at about 30 tokens a line. The stride between windows is
	// termextract's own default.
	TermExtractWindowTokens int `json:"term_extract_window_tokens" yaml:"term_extract_window_tokens"`
}

// LLMConfig configures a single LLM provider endpoint.
type LLMConfig struct {
	Provider string `json:"provider" yaml:"provider"` // ollama, lmstudio, openrouter, openai, groq, xai, gemini, anthropic, custom
	Model    string `json:"model" yaml:"model"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
	APIKey   string `json:"api_key" yaml:"api_key"`
}

// QdrantConfig configures the production Vector Index Client backend.
type QdrantConfig struct {
	URL            string `json:"url" yaml:"url"`
	CollectionName string `json:"collection_name" yaml:"collection_name"`
	UseTLS         bool   `json:"use_tls" yaml:"use_tls"`
	APIKey         string `json:"api_key" yaml:"api_key"`
}

// PostgresConfig configures the Preference Store's persisted backend.
type PostgresConfig struct {
	Host            string `json:"host" yaml:"host"`
	Port            int    `json:"port" yaml:"port"`
	User            string `json:"user" yaml:"user"`
	Password        string `json:"password" yaml:"password"`
	Database        string `json:"database" yaml:"database"`
	SSLMode         string `json:"ssl_mode" yaml:"ssl_mode"`
	MaxOpenConns    int    `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int    `json:"max_idle_conns" yaml:"max_idle_conns"`
}

// DefaultConfig returns a Config with the defaults named throughout spec.md.
func DefaultConfig() Config {
	return Config{
		DBPath:                   "clinextract.db",
		EmbeddingDim:             768,
		VectorBackend:            "sqlitevec",
		PrefStoreBackend:         "memory",
		Chat: LLMConfig{
			Provider: "ollama",
			Model:    "llama3.1:8b",
			BaseURL:  "http://localhost:11434",
		},
		Embedding: LLMConfig{
			Provider: "ollama",
			Model:    "nomic-embed-text",
			BaseURL:  "http://localhost:11434",
		},
		Extraction: LLMConfig{
			Provider: "ollama",
			Model:    "llama3.1:8b",
			BaseURL:  "http://localhost:11434",
		},
		MaxChunkTokens:            1500,
		ChunkOverlap:              150,
		RespectSpeakerBoundaries:  true,
		OntologyMaxConcepts:       5,
		PreferenceApplyThreshold:  0.7,
		ConfidenceAcceptThreshold: 0.6,
		MaxRepairAttempts:         3,
		PerJobConcurrency:         4,
		GlobalConcurrency:         32,
		SectionTimeout:            30 * time.Second,
		JobTimeout:                20 * time.Minute,
		LLMTimeout:                20 * time.Second,
		MaxTranscriptBytes:        5 << 20, // 5 MiB
		TermExtractWindowTokens:   1500,
	}
}
