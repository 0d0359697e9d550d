// Package handlers implements the HTTP handlers for the AI core API:
// chat synthesis, document ingestion and analysis, retrieval, and
// session management.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fusedchat/fusedchat/ai-core/internal/embeddings"
	"github.com/fusedchat/fusedchat/ai-core/internal/llm"
	"github.com/fusedchat/fusedchat/ai-core/internal/rag"
	"github.com/fusedchat/fusedchat/ai-core/internal/store"
	"github.com/fusedchat/fusedchat/ai-core/internal/vectorstore"
	"github.com/fusedchat/fusedchat/ai-core/pkg/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Store        store.Store
	LLM          *llm.Router
	Retriever    *rag.Retriever
	Ingester     *rag.Ingester
	Vectors      vectorstore.Driver
	Embeddings   *embeddings.Registry
	VectorStores *vectorstore.Registry
	Version      string
}

// New creates a new Handlers instance with all dependencies.
func New(s store.Store, router *llm.Router, ret *rag.Retriever, ing *rag.Ingester, vectors vectorstore.Driver, emb *embeddings.Registry, vecs *vectorstore.Registry, version string) *Handlers {
	return &Handlers{
		Store:        s,
		LLM:          router,
		Retriever:    ret,
		Ingester:     ing,
		Vectors:      vectors,
		Embeddings:   emb,
		VectorStores: vecs,
		Version:      version,
	}
}

// ══════════════════════════════════════════════════════════════
// ── Health & Version ─────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// Health pings the metadata store and every registered embedding and
// vector store driver, reporting each component separately. Any failure
// degrades the overall status to 503.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	components := map[string]string{}
	healthy := true

	record := func(name string, err error) {
		if err != nil {
			components[name] = err.Error()
			healthy = false
			return
		}
		components[name] = "ok"
	}

	record("store", h.Store.Ping(r.Context()))
	for name, err := range h.Embeddings.HealthCheckAll(r.Context()) {
		record("embedding:"+name, err)
	}
	for name, err := range h.VectorStores.HealthCheckAll(r.Context()) {
		record("vectorstore:"+name, err)
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	respondJSON(w, code, map[string]interface{}{
		"status":     status,
		"components": components,
	})
}

func (h *Handlers) GetVersion(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"version":           h.Version,
		"providers":         h.LLM.Providers(),
		"embedding_drivers": h.Embeddings.List(),
		"vector_drivers":    h.VectorStores.List(),
	})
}

// ══════════════════════════════════════════════════════════════
// ── Chat Handlers ────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

type chatRequest struct {
	UserID       string             `json:"user_id"`
	SessionID    string             `json:"session_id,omitempty"`
	Message      string             `json:"message"`
	Provider     string             `json:"provider"`
	Model        string             `json:"model,omitempty"`
	SystemPrompt string             `json:"system_prompt,omitempty"`
	UseRAG       bool               `json:"use_rag,omitempty"`
	Expand       bool               `json:"expand,omitempty"`
	TopK         int                `json:"top_k,omitempty"`
	MinScore     float64            `json:"min_score,omitempty"`
	Credentials  models.Credentials `json:"credentials"`
}

// Chat runs one turn of a conversation: optional retrieval, synthesis
// through the response router, thinking extraction, and session
// persistence.
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == "" || strings.TrimSpace(req.Message) == "" || req.Provider == "" {
		respondError(w, http.StatusBadRequest, "user_id, message and provider are required")
		return
	}

	var sess *models.Session
	if req.SessionID != "" {
		found, err := h.Store.GetSession(r.Context(), req.SessionID)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		if found.UserID != req.UserID {
			respondError(w, http.StatusNotFound, "session not found: "+req.SessionID)
			return
		}
		sess = found
	}

	var history []models.ChatMessage
	if sess != nil {
		history = sess.History
	}

	var retrieval *models.RetrievalResult
	if req.UseRAG {
		var err error
		retrieval, err = h.Retriever.Retrieve(r.Context(), &models.RetrievalRequest{
			UserID:      req.UserID,
			Query:       req.Message,
			TopK:        req.TopK,
			MinScore:    req.MinScore,
			Expand:      req.Expand,
			Provider:    req.Provider,
			Model:       req.Model,
			Credentials: req.Credentials,
		})
		if err != nil {
			respondServiceError(w, err)
			return
		}
	}

	genReq := &models.GenerationRequest{
		Provider:     req.Provider,
		Query:        req.Message,
		History:      history,
		SystemPrompt: req.SystemPrompt,
		Model:        req.Model,
		Credentials:  req.Credentials,
	}
	if retrieval != nil {
		genReq.Context = retrieval.Context
	}

	result, err := h.LLM.Generate(r.Context(), genReq)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	// The synthesis prompt asks the model to reason inside a <thinking>
	// block; strip it here so the cache keeps the raw text while clients
	// get the clean answer.
	answer, thinking := llm.ParseThinking(result.Answer)

	sess = h.persistTurn(r, sess, &req, answer)

	resp := map[string]interface{}{
		"session_id": sess.ID,
		"answer":     answer,
		"provider":   result.Provider,
		"model":      result.Model,
		"cached":     result.Cached,
		"latency_ms": result.LatencyMs,
	}
	if thinking != "" {
		resp["thinking"] = thinking
	}
	if retrieval != nil {
		resp["sources"] = retrieval.Sources
		if len(retrieval.SubQueries) > 0 {
			resp["sub_queries"] = retrieval.SubQueries
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

// persistTurn appends the user/model exchange to the session, creating
// it on first turn. Persistence failures are logged, not surfaced: the
// answer was already produced.
func (h *Handlers) persistTurn(r *http.Request, sess *models.Session, req *chatRequest, answer string) *models.Session {
	turn := []models.ChatMessage{
		{Role: models.RoleUser, Text: req.Message},
		{Role: models.RoleModel, Text: answer},
	}

	if sess == nil {
		sess = &models.Session{
			ID:      uuid.NewString(),
			UserID:  req.UserID,
			Title:   sessionTitle(req.Message),
			History: turn,
		}
		if err := h.Store.CreateSession(r.Context(), sess); err != nil {
			log.Warn().Err(err).Str("session", sess.ID).Msg("failed to create session")
		}
		return sess
	}

	sess.History = append(sess.History, turn...)
	if err := h.Store.UpdateSession(r.Context(), sess); err != nil {
		log.Warn().Err(err).Str("session", sess.ID).Msg("failed to update session")
	}
	return sess
}

func sessionTitle(message string) string {
	title := strings.TrimSpace(message)
	if len(title) > 80 {
		title = title[:80]
	}
	return title
}

// ══════════════════════════════════════════════════════════════
// ── Session Handlers ─────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		respondError(w, http.StatusBadRequest, "user_id query parameter is required")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	sessions, err := h.Store.ListSessions(r.Context(), userID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sessions == nil {
		sessions = []models.Session{}
	}
	respondJSON(w, http.StatusOK, sessions)
}

func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	sess, err := h.Store.GetSession(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	if err := h.Store.DeleteSession(r.Context(), sessionID); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ══════════════════════════════════════════════════════════════
// ── Document Handlers ────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

func (h *Handlers) IngestDocument(w http.ResponseWriter, r *http.Request) {
	var req models.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == "" || req.Name == "" || strings.TrimSpace(req.Content) == "" {
		respondError(w, http.StatusBadRequest, "user_id, name and content are required")
		return
	}

	result, err := h.Ingester.Ingest(r.Context(), &req)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	log.Info().
		Str("document", result.Document.ID).
		Str("user", req.UserID).
		Int("chunks", result.ChunksCreated).
		Msg("document ingested")
	respondJSON(w, http.StatusCreated, result)
}

func (h *Handlers) ListDocuments(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		respondError(w, http.StatusBadRequest, "user_id query parameter is required")
		return
	}

	docs, err := h.Store.ListDocuments(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if docs == nil {
		docs = []models.Document{}
	}
	respondJSON(w, http.StatusOK, docs)
}

func (h *Handlers) GetDocument(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentId")
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		respondError(w, http.StatusBadRequest, "user_id query parameter is required")
		return
	}

	doc, err := h.Store.GetDocument(r.Context(), userID, documentID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, doc)
}

func (h *Handlers) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentId")
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		respondError(w, http.StatusBadRequest, "user_id query parameter is required")
		return
	}

	if err := h.Ingester.Delete(r.Context(), userID, documentID); err != nil {
		respondServiceError(w, err)
		return
	}

	log.Info().Str("document", documentID).Str("user", userID).Msg("document deleted")
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted", "document_id": documentID})
}

type analyzeRequest struct {
	UserID       string              `json:"user_id"`
	Type         models.AnalysisType `json:"analysis_type"`
	Provider     string              `json:"provider"`
	Model        string              `json:"model,omitempty"`
	DocumentText string              `json:"document_text,omitempty"`
	Credentials  models.Credentials  `json:"credentials"`
}

// AnalyzeDocument runs a single-shot analysis (faq, topics, mindmap)
// over a document. The caller may supply document_text directly; when
// absent the text is reassembled from the document's indexed chunks.
func (h *Handlers) AnalyzeDocument(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentId")

	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == "" || req.Provider == "" {
		respondError(w, http.StatusBadRequest, "user_id and provider are required")
		return
	}

	doc, err := h.Store.GetDocument(r.Context(), req.UserID, documentID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	text := req.DocumentText
	if text == "" {
		text, err = h.reassembleDocument(r, req.UserID, documentID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	result, err := h.LLM.Analyze(r.Context(), &models.AnalysisRequest{
		DocumentText: text,
		Type:         req.Type,
		Provider:     req.Provider,
		Model:        req.Model,
		Credentials:  req.Credentials,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	log.Info().
		Str("document", documentID).
		Str("type", string(req.Type)).
		Str("provider", req.Provider).
		Msg("document analyzed")

	resp := map[string]interface{}{
		"document_id":   documentID,
		"document_name": doc.Name,
		"analysis_type": req.Type,
		"result":        result.Answer,
		"provider":      result.Provider,
		"model":         result.Model,
		"latency_ms":    result.LatencyMs,
	}
	if result.Thinking != "" {
		resp["thinking"] = result.Thinking
	}
	respondJSON(w, http.StatusOK, resp)
}

// reassembleDocument joins the document's chunks back into analysis
// input. Chunk overlap means the joined text is an approximation of the
// original, which is acceptable for summarization-style analysis.
func (h *Handlers) reassembleDocument(r *http.Request, userID, documentID string) (string, error) {
	chunks, err := h.Vectors.GetByDocument(r.Context(), userID, documentID)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		parts = append(parts, c.Content)
	}
	return strings.Join(parts, "\n"), nil
}

// ══════════════════════════════════════════════════════════════
// ── Retrieval Handlers ───────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// Query runs raw retrieval: embed, search, rank, assemble context. No
// synthesis happens here.
func (h *Handlers) Query(w http.ResponseWriter, r *http.Request) {
	var req models.RetrievalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == "" || strings.TrimSpace(req.Query) == "" {
		respondError(w, http.StatusBadRequest, "user_id and query are required")
		return
	}

	result, err := h.Retriever.Retrieve(r.Context(), &req)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

type expandRequest struct {
	Query       string             `json:"query"`
	Provider    string             `json:"provider"`
	Model       string             `json:"model,omitempty"`
	Count       int                `json:"count,omitempty"`
	Credentials models.Credentials `json:"credentials"`
}

// Expand decomposes a question into auxiliary search queries. Expansion
// is best-effort: a backend failure yields an empty list, not an error.
func (h *Handlers) Expand(w http.ResponseWriter, r *http.Request) {
	var req expandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" || req.Provider == "" {
		respondError(w, http.StatusBadRequest, "query and provider are required")
		return
	}
	if req.Count <= 0 {
		req.Count = 3
	}

	start := time.Now()
	subQueries := h.LLM.ExpandQuery(r.Context(), req.Query, req.Provider, req.Model, req.Credentials, req.Count)
	if subQueries == nil {
		subQueries = []string{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"query":       req.Query,
		"sub_queries": subQueries,
		"latency_ms":  time.Since(start).Milliseconds(),
	})
}

// ══════════════════════════════════════════════════════════════
// ── Response Helpers ─────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// respondServiceError maps the error taxonomy onto HTTP statuses:
// misconfiguration is the caller's fault, capacity saturation is
// retryable, backend unreachability is a gateway failure.
func respondServiceError(w http.ResponseWriter, err error) {
	var cfgErr *llm.ConfigError
	var capErr *llm.CapacityError
	var connErr *llm.ConnectionError
	var notFound *store.ErrNotFound

	switch {
	case errors.As(err, &cfgErr):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &capErr):
		respondError(w, http.StatusTooManyRequests, err.Error())
	case errors.As(err, &connErr):
		respondError(w, http.StatusBadGateway, err.Error())
	case errors.As(err, &notFound):
		respondError(w, http.StatusNotFound, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
