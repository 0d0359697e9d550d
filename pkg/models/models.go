package models

import "time"

// ── Chat ─────────────────────────────────────────────────────

// Message roles as stored in chat history. Drivers translate these into
// each backend's native role vocabulary (Gemini: user/model, Groq:
// user/assistant, Ollama: user/assistant).
const (
	RoleUser  = "user"
	RoleModel = "model"
)

type ChatMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Credentials carries the per-request secret bundle. It is supplied fresh
// by the caller on every request and never persisted by the core.
type Credentials struct {
	GeminiKey string `json:"gemini_key,omitempty"`
	GroqKey   string `json:"groq_key,omitempty"`

	// OllamaHost overrides the configured default Ollama base URL.
	OllamaHost string `json:"ollama_host,omitempty"`
}

// GenerationRequest is the input to the response router's synthesis path.
type GenerationRequest struct {
	Provider     string        `json:"provider"`
	Query        string        `json:"query"`
	Context      string        `json:"context,omitempty"`
	History      []ChatMessage `json:"history,omitempty"`
	SystemPrompt string        `json:"system_prompt,omitempty"`
	Model        string        `json:"model,omitempty"`
	Credentials  Credentials   `json:"credentials"`
}

// GenerationResult is the uniform answer shape returned by the core.
// Thinking is empty unless the call went through the analysis path and
// the model emitted a <thinking> block.
type GenerationResult struct {
	Answer    string `json:"answer"`
	Thinking  string `json:"thinking,omitempty"`
	Provider  string `json:"provider"`
	Model     string `json:"model,omitempty"`
	Cached    bool   `json:"cached"`
	LatencyMs int64  `json:"latency_ms"`
}

// ── Document Analysis ────────────────────────────────────────

type AnalysisType string

const (
	AnalysisFAQ     AnalysisType = "faq"
	AnalysisTopics  AnalysisType = "topics"
	AnalysisMindmap AnalysisType = "mindmap"
)

// AnalysisRequest is the input to the single-shot document analysis path.
type AnalysisRequest struct {
	DocumentText string       `json:"document_text"`
	Type         AnalysisType `json:"analysis_type"`
	Provider     string       `json:"provider"`
	Model        string       `json:"model,omitempty"`
	Credentials  Credentials  `json:"credentials"`
}

// ── Documents & Sessions ─────────────────────────────────────

// Document is an uploaded source document tracked by the store. The
// chunked content lives in the vector index; the store keeps metadata.
type Document struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	UserID     string    `json:"user_id"`
	ChunkCount int       `json:"chunk_count"`
	SizeChars  int       `json:"size_chars"`
	CreatedAt  time.Time `json:"created_at"`
}

// Session is a multi-turn chat session. History is ordered oldest first.
type Session struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id"`
	Title     string        `json:"title,omitempty"`
	History   []ChatMessage `json:"history"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// ── Retrieval ────────────────────────────────────────────────

// VectorDoc is a chunk stored in the vector index.
type VectorDoc struct {
	ID         string            `json:"id"`
	UserID     string            `json:"user_id"`
	DocumentID string            `json:"document_id"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Vector     []float64         `json:"vector"`
	CreatedAt  time.Time         `json:"created_at"`
}

// SearchResult is a single vector search hit.
type SearchResult struct {
	Doc   VectorDoc `json:"doc"`
	Score float64   `json:"score"`
}

// RetrievalRequest is the input to the retrieval endpoint.
type RetrievalRequest struct {
	UserID   string  `json:"user_id"`
	Query    string  `json:"query"`
	TopK     int     `json:"top_k,omitempty"`
	MinScore float64 `json:"min_score,omitempty"`

	// Expand controls sub-query expansion: the query is decomposed into
	// auxiliary search queries before retrieval to widen recall.
	Expand      bool        `json:"expand,omitempty"`
	Provider    string      `json:"provider,omitempty"`
	Model       string      `json:"model,omitempty"`
	Credentials Credentials `json:"credentials,omitempty"`
}

// RetrievalResult is the output of retrieval: the ranked hits plus the
// pre-assembled context block with `[n] Source: ...` citation markers
// that the synthesis prompt consumes.
type RetrievalResult struct {
	Sources    []SearchResult `json:"sources"`
	Context    string         `json:"context"`
	SubQueries []string       `json:"sub_queries,omitempty"`
	LatencyMs  int64          `json:"latency_ms"`
}

// IngestRequest is the input to the document ingestion endpoint.
type IngestRequest struct {
	UserID       string `json:"user_id"`
	Name         string `json:"name"`
	Content      string `json:"content"`
	ChunkSize    int    `json:"chunk_size,omitempty"`
	ChunkOverlap int    `json:"chunk_overlap,omitempty"`
}

// IngestResult is the output of document ingestion.
type IngestResult struct {
	Document      Document `json:"document"`
	ChunksCreated int      `json:"chunks_created"`
	VectorsStored int      `json:"vectors_stored"`
	LatencyMs     int64    `json:"latency_ms"`
}
