package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/fusedchat/fusedchat/ai-core/pkg/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultMaxVectors caps the embedded store at 50K chunks.
const DefaultMaxVectors = 50_000

// EmbeddedStore is an in-memory vector index using brute-force cosine
// similarity. Suitable for development and small corpora; larger
// deployments should use the pgvector driver.
type EmbeddedStore struct {
	mu         sync.RWMutex
	docs       map[string]*models.VectorDoc // key: userID + ":" + chunk id
	maxVectors int
}

// EmbeddedOption configures the embedded store.
type EmbeddedOption func(*EmbeddedStore)

// WithMaxVectors overrides the chunk cap.
func WithMaxVectors(max int) EmbeddedOption {
	return func(s *EmbeddedStore) { s.maxVectors = max }
}

// NewEmbeddedStore creates an in-memory vector index.
func NewEmbeddedStore(opts ...EmbeddedOption) *EmbeddedStore {
	s := &EmbeddedStore{
		docs:       make(map[string]*models.VectorDoc),
		maxVectors: DefaultMaxVectors,
	}
	for _, opt := range opts {
		opt(s)
	}
	log.Info().Int("max_vectors", s.maxVectors).Msg("embedded vector store initialized")
	return s
}

func (s *EmbeddedStore) Kind() string { return "embedded" }

func (s *EmbeddedStore) Upsert(_ context.Context, userID string, docs []models.VectorDoc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	newCount := 0
	for _, d := range docs {
		if _, exists := s.docs[chunkKey(userID, d.ID)]; !exists {
			newCount++
		}
	}
	total := len(s.docs) + newCount
	if total > s.maxVectors {
		return fmt.Errorf("embedded vector store capacity exceeded: %d > %d (switch to the pgvector driver)", total, s.maxVectors)
	}
	if total > int(float64(s.maxVectors)*0.9) {
		log.Warn().Int("count", total).Int("max", s.maxVectors).Msg("embedded vector store nearing capacity")
	}

	now := time.Now()
	for _, d := range docs {
		cp := d
		cp.UserID = userID
		if cp.ID == "" {
			cp.ID = uuid.NewString()
		}
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = now
		}
		s.docs[chunkKey(userID, cp.ID)] = &cp
	}
	return nil
}

func (s *EmbeddedStore) Search(_ context.Context, userID string, vector []float64, topK int, filter map[string]string) ([]models.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		doc   *models.VectorDoc
		score float64
	}
	var candidates []scored

	docID := filter["document_id"]
	for _, d := range s.docs {
		if d.UserID != userID {
			continue
		}
		if docID != "" && d.DocumentID != docID {
			continue
		}
		if len(d.Vector) != len(vector) {
			continue
		}
		match := true
		for fk, fv := range filter {
			if fk == "document_id" {
				continue
			}
			if d.Metadata[fk] != fv {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		candidates = append(candidates, scored{doc: d, score: cosineSimilarity(vector, d.Vector)})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	if topK > len(candidates) {
		topK = len(candidates)
	}
	results := make([]models.SearchResult, topK)
	for i := 0; i < topK; i++ {
		results[i] = models.SearchResult{Doc: *candidates[i].doc, Score: candidates[i].score}
	}
	return results, nil
}

func (s *EmbeddedStore) GetByDocument(_ context.Context, userID, documentID string) ([]models.VectorDoc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.VectorDoc
	for _, d := range s.docs {
		if d.UserID == userID && d.DocumentID == documentID {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return chunkIndex(out[i].Metadata) < chunkIndex(out[j].Metadata)
	})
	return out, nil
}

func (s *EmbeddedStore) Delete(_ context.Context, userID string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.docs, chunkKey(userID, id))
	}
	return nil
}

func (s *EmbeddedStore) DeleteByDocument(_ context.Context, userID, documentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k, d := range s.docs {
		if d.UserID == userID && d.DocumentID == documentID {
			delete(s.docs, k)
			removed++
		}
	}
	return removed, nil
}

func (s *EmbeddedStore) Count(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, d := range s.docs {
		if d.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (s *EmbeddedStore) HealthCheck(_ context.Context) error {
	return nil // in-memory, always healthy
}

func chunkKey(userID, id string) string {
	return userID + ":" + id
}

func chunkIndex(metadata map[string]string) int {
	i, _ := strconv.Atoi(metadata["chunk_index"])
	return i
}

func cosineSimilarity(a, b []float64) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
