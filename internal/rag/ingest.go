package rag

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fusedchat/fusedchat/ai-core/internal/embeddings"
	"github.com/fusedchat/fusedchat/ai-core/internal/store"
	"github.com/fusedchat/fusedchat/ai-core/internal/vectorstore"
	"github.com/fusedchat/fusedchat/ai-core/pkg/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Ingester handles document ingestion: chunk, embed, upsert into the
// vector index, and record document metadata in the store.
type Ingester struct {
	embeddings embeddings.Driver
	vectors    vectorstore.Driver
	documents  store.DocumentStore
	chunker    ChunkerConfig
}

// NewIngester creates a document ingester.
func NewIngester(emb embeddings.Driver, vs vectorstore.Driver, docs store.DocumentStore, chunker ChunkerConfig) *Ingester {
	return &Ingester{
		embeddings: emb,
		vectors:    vs,
		documents:  docs,
		chunker:    chunker,
	}
}

// Ingest splits the document into chunks, embeds them in batches, and
// stores both the vectors and the document record.
func (ing *Ingester) Ingest(ctx context.Context, req *models.IngestRequest) (*models.IngestResult, error) {
	start := time.Now()

	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, fmt.Errorf("document content is empty")
	}
	if req.UserID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	config := ing.chunker
	if req.ChunkSize > 0 {
		config.ChunkSize = req.ChunkSize
	}
	if req.ChunkOverlap > 0 {
		config.ChunkOverlap = req.ChunkOverlap
	}

	chunks := ChunkText(content, config)
	docID := uuid.NewString()

	log.Info().
		Str("document_id", docID).
		Int("chunks", len(chunks)).
		Int("size_chars", len(content)).
		Msg("chunking complete")

	// Embed in driver-sized batches.
	batchSize := ing.embeddings.MaxBatchSize()
	var allVectors [][]float64
	for i := 0; i < len(chunks); i += batchSize {
		end := i + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, end-i)
		for j, c := range chunks[i:end] {
			texts[j] = c.Text
		}
		vectors, err := ing.embeddings.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", i, end, err)
		}
		allVectors = append(allVectors, vectors...)
	}

	now := time.Now().UTC()
	vecDocs := make([]models.VectorDoc, len(chunks))
	for i, chunk := range chunks {
		vecDocs[i] = models.VectorDoc{
			ID:         uuid.NewString(),
			UserID:     req.UserID,
			DocumentID: docID,
			Content:    chunk.Text,
			Metadata: map[string]string{
				"source":      req.Name,
				"chunk_index": strconv.Itoa(chunk.Index),
			},
			Vector:    allVectors[i],
			CreatedAt: now,
		}
	}

	if err := ing.vectors.Upsert(ctx, req.UserID, vecDocs); err != nil {
		return nil, fmt.Errorf("upsert vectors: %w", err)
	}

	doc := models.Document{
		ID:         docID,
		Name:       req.Name,
		UserID:     req.UserID,
		ChunkCount: len(chunks),
		SizeChars:  len(content),
		CreatedAt:  now,
	}
	if err := ing.documents.CreateDocument(ctx, &doc); err != nil {
		return nil, fmt.Errorf("create document record: %w", err)
	}

	elapsed := time.Since(start)
	log.Info().
		Str("document_id", docID).
		Int("chunks_created", len(chunks)).
		Dur("elapsed", elapsed).
		Msg("ingestion complete")

	return &models.IngestResult{
		Document:      doc,
		ChunksCreated: len(chunks),
		VectorsStored: len(vecDocs),
		LatencyMs:     elapsed.Milliseconds(),
	}, nil
}

// Delete removes a document's vectors and its metadata record.
func (ing *Ingester) Delete(ctx context.Context, userID, documentID string) error {
	removed, err := ing.vectors.DeleteByDocument(ctx, userID, documentID)
	if err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	if err := ing.documents.DeleteDocument(ctx, userID, documentID); err != nil {
		return err
	}
	log.Info().Str("document_id", documentID).Int("chunks_removed", removed).Msg("document deleted")
	return nil
}
