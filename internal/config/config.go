package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the AI core service.
type Config struct {
	Port    int
	Version string
	DataDir string // snapshot dir for the in-memory store; empty disables persistence

	// APIKeys is a comma-separated list of accepted API keys. Empty
	// disables request authentication.
	APIKeys string

	LLM       LLMConfig
	RAG       RAGConfig
	Embedding EmbeddingConfig
	Vector    VectorConfig
	Telemetry TelemetryConfig
}

type LLMConfig struct {
	CacheSize        int
	CacheTTL         time.Duration
	MaxConcurrent    int
	GateFailFast     bool
	MaxAnalysisChars int
	SubQueryCount    int

	GeminiModel string
	GroqModel   string

	OllamaBaseURL      string
	OllamaModel        string
	OllamaProbeTimeout time.Duration
	RequestTimeout     time.Duration
}

type RAGConfig struct {
	ChunkSize    int
	ChunkOverlap int
	TopK         int
}

type EmbeddingConfig struct {
	Driver    string // "ollama" or "openai"
	Endpoint  string // ollama base URL or openai-compatible endpoint
	Model     string
	OpenAIKey string
}

type VectorConfig struct {
	Driver      string // "embedded" or "pgvector"
	PgvectorURL string
	MaxVectors  int
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:    envInt("FUSEDCHAT_PORT", 8080),
		Version: envStr("FUSEDCHAT_VERSION", "0.1.0"),
		DataDir: envStr("FUSEDCHAT_DATA_DIR", ""),
		APIKeys: envStr("FUSEDCHAT_API_KEYS", ""),
		LLM: LLMConfig{
			CacheSize:        envInt("LLM_CACHE_SIZE", 1000),
			CacheTTL:         envDur("LLM_CACHE_TTL", time.Hour),
			MaxConcurrent:    envInt("LLM_MAX_CONCURRENT", 10),
			GateFailFast:     envBool("LLM_GATE_FAIL_FAST", false),
			MaxAnalysisChars: envInt("LLM_MAX_ANALYSIS_CHARS", 8000),
			SubQueryCount:    envInt("LLM_SUB_QUERY_COUNT", 3),

			GeminiModel: envStr("GEMINI_DEFAULT_MODEL", "gemini-1.5-flash"),
			GroqModel:   envStr("GROQ_DEFAULT_MODEL", "llama3-8b-8192"),

			OllamaBaseURL:      envStr("OLLAMA_BASE_URL", "http://localhost:11434"),
			OllamaModel:        envStr("OLLAMA_DEFAULT_MODEL", "llama3"),
			OllamaProbeTimeout: envDur("OLLAMA_PROBE_TIMEOUT", 2*time.Second),
			RequestTimeout:     envDur("LLM_REQUEST_TIMEOUT", 120*time.Second),
		},
		RAG: RAGConfig{
			ChunkSize:    envInt("RAG_CHUNK_SIZE", 512),
			ChunkOverlap: envInt("RAG_CHUNK_OVERLAP", 50),
			TopK:         envInt("RAG_TOP_K", 5),
		},
		Embedding: EmbeddingConfig{
			Driver:    envStr("EMBEDDING_DRIVER", "ollama"),
			Endpoint:  envStr("EMBEDDING_ENDPOINT", ""),
			Model:     envStr("EMBEDDING_MODEL", ""),
			OpenAIKey: envStr("OPENAI_API_KEY", ""),
		},
		Vector: VectorConfig{
			Driver:      envStr("VECTOR_DRIVER", "embedded"),
			PgvectorURL: envStr("FUSEDCHAT_PGVECTOR_URL", ""),
			MaxVectors:  envInt("VECTOR_MAX_VECTORS", 0),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "fusedchat-ai-core"),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDur(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
