// Package vectorstore provides the vector index driver registry and two
// drivers: embedded (in-memory brute-force cosine) and pgvector
// (user-provided PostgreSQL with the pgvector extension).
package vectorstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/fusedchat/fusedchat/ai-core/pkg/models"
	"github.com/rs/zerolog/log"
)

// Driver is one vector index backend. All operations are scoped to a
// user: one user's chunks are never visible to another's searches.
type Driver interface {
	Kind() string

	// Upsert inserts or replaces chunks by (user, id).
	Upsert(ctx context.Context, userID string, docs []models.VectorDoc) error

	// Search returns the topK most similar chunks for the user. The
	// filter's "document_id" key restricts hits to one source document;
	// remaining keys match against chunk metadata exactly.
	Search(ctx context.Context, userID string, vector []float64, topK int, filter map[string]string) ([]models.SearchResult, error)

	// GetByDocument returns every chunk of one source document, ordered
	// by chunk index.
	GetByDocument(ctx context.Context, userID, documentID string) ([]models.VectorDoc, error)

	// Delete removes chunks by id.
	Delete(ctx context.Context, userID string, ids []string) error

	// DeleteByDocument removes every chunk of one source document and
	// reports how many were removed.
	DeleteByDocument(ctx context.Context, userID, documentID string) (int, error)

	// Count reports the user's stored chunk count.
	Count(ctx context.Context, userID string) (int, error)

	HealthCheck(ctx context.Context) error
}

// Registry holds named vector store drivers. Thread-safe.
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]Driver
}

func NewRegistry() *Registry {
	return &Registry{drivers: make(map[string]Driver)}
}

// Register adds a driver under name, replacing any previous one.
func (r *Registry) Register(name string, d Driver) {
	r.mu.Lock()
	r.drivers[name] = d
	r.mu.Unlock()
	log.Info().Str("name", name).Str("kind", d.Kind()).Msg("vector store driver registered")
}

func (r *Registry) Get(name string) (Driver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drivers[name]
	if !ok {
		return nil, fmt.Errorf("vector store driver not found: %s", name)
	}
	return d, nil
}

func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		names = append(names, name)
	}
	return names
}

// HealthCheckAll pings every registered driver, keyed by name.
func (r *Registry) HealthCheckAll(ctx context.Context) map[string]error {
	r.mu.RLock()
	snapshot := make(map[string]Driver, len(r.drivers))
	for k, v := range r.drivers {
		snapshot[k] = v
	}
	r.mu.RUnlock()

	results := make(map[string]error, len(snapshot))
	for name, d := range snapshot {
		results[name] = d.HealthCheck(ctx)
	}
	return results
}
