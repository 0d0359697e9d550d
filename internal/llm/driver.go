// Package llm implements the multi-provider response-generation core:
// a response cache, an admission gate, one driver per backend family
// (Gemini, Groq, Ollama), a thinking-block parser, sub-query expansion,
// and the Router façade that ties them together.
package llm

import (
	"context"
	"strings"

	"github.com/fusedchat/fusedchat/ai-core/pkg/models"
)

// CallRequest is the uniform input to a provider driver. Prompt is the
// fully rendered user prompt (synthesis template applied for chat, bare
// task prompt for analysis and sub-query expansion). History is empty on
// the single-shot task path.
type CallRequest struct {
	Prompt       string
	History      []models.ChatMessage
	SystemPrompt string
	Model        string
	Credentials  models.Credentials
}

// Driver translates the uniform generation contract into one backend
// family's native wire format. Implementations return the backend's raw
// text; they never persist or log credential values.
type Driver interface {
	// Family returns the provider family identifier ("gemini", "groq",
	// "ollama"). Provider names sharing this prefix route here.
	Family() string

	// Generate performs one blocking generation call.
	Generate(ctx context.Context, req CallRequest) (string, error)
}

// registry resolves provider names to drivers by family prefix, so
// variant identifiers like "groq_llama3" and "groq_other_variant" land
// on the same driver. Registration order decides prefix precedence.
type registry struct {
	families []string
	drivers  map[string]Driver
}

func newRegistry(drivers ...Driver) *registry {
	r := &registry{drivers: make(map[string]Driver)}
	for _, d := range drivers {
		r.register(d)
	}
	return r
}

func (r *registry) register(d Driver) {
	fam := d.Family()
	if _, exists := r.drivers[fam]; !exists {
		r.families = append(r.families, fam)
	}
	r.drivers[fam] = d
}

// resolve returns the driver whose family is a prefix of provider.
func (r *registry) resolve(provider string) (Driver, bool) {
	for _, fam := range r.families {
		if strings.HasPrefix(provider, fam) {
			return r.drivers[fam], true
		}
	}
	return nil, false
}

func (r *registry) list() []string {
	out := make([]string, len(r.families))
	copy(out, r.families)
	return out
}
