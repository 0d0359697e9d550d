// Package embeddings turns text chunks into vectors for the retrieval
// index. Two drivers ship: Ollama (nomic-embed-text and friends, local)
// and any OpenAI-compatible embeddings endpoint.
package embeddings

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Driver is one embedding backend.
type Driver interface {
	// Kind identifies the backend family ("ollama", "openai").
	Kind() string

	// Dimensions is the vector width this driver produces.
	Dimensions() int

	// MaxBatchSize is the most texts one Embed call accepts.
	MaxBatchSize() int

	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float64, error)

	// HealthCheck verifies the backend is reachable and the model loads.
	HealthCheck(ctx context.Context) error
}

// Registry holds named embedding drivers. Thread-safe.
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
	log.Info().Str("name", name).Str("kind", d.Kind()).Int("dims", d.Dimensions()).Msg("embedding driver registered")
}

func (r *Registry) Get(name string) (Driver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drivers[name]
	if !ok {
		return nil, fmt.Errorf("embedding driver not found: %s", name)
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
