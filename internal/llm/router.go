package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fusedchat/fusedchat/ai-core/pkg/models"
	"github.com/rs/zerolog/log"
)

const analysisTruncationMarker = "\n\n... [CONTENT TRUNCATED FOR ANALYSIS]"

// RouterOptions tunes router behavior.
type RouterOptions struct {
	// FailFast makes the admission gate reject immediately with a
	// CapacityError when saturated instead of blocking the caller.
	FailFast bool

	// MaxAnalysisChars caps document text fed to the analysis path.
	// Longer input is cut and marked as truncated. Default 8000.
	MaxAnalysisChars int
}

// Router is the façade over the response-generation core. It is
// stateless between calls; all shared state lives in the injected cache
// and gate, which are constructed once at startup and outlive requests.
type Router struct {
	cache   *ResponseCache
	gate    *AdmissionGate
	drivers *registry
	opts    RouterOptions
}

// NewRouter wires the cache, gate, and provider drivers into a router.
func NewRouter(cache *ResponseCache, gate *AdmissionGate, opts RouterOptions, drivers ...Driver) *Router {
	if opts.MaxAnalysisChars <= 0 {
		opts.MaxAnalysisChars = 8000
	}
	return &Router{
		cache:   cache,
		gate:    gate,
		drivers: newRegistry(drivers...),
		opts:    opts,
	}
}

// Providers lists the registered provider families.
func (r *Router) Providers() []string { return r.drivers.list() }

// Generate runs the multi-turn synthesis path: cache lookup, gate
// admission, driver dispatch, cache store. The raw backend text is
// returned unparsed — the synthesis prompt's <thinking> convention is the
// caller's to interpret on this path.
func (r *Router) Generate(ctx context.Context, req *models.GenerationRequest) (*models.GenerationResult, error) {
	if req.Query == "" {
		return nil, &ConfigError{Reason: "query must not be empty"}
	}
	if req.Provider == "" {
		return nil, &ConfigError{Reason: "provider must not be empty"}
	}

	if answer, ok := r.cache.Get(req.Query, req.Context, req.Provider, req.Model); ok {
		return &models.GenerationResult{
			Answer:   answer,
			Provider: req.Provider,
			Model:    req.Model,
			Cached:   true,
		}, nil
	}

	if r.opts.FailFast {
		if !r.gate.TryAcquire() {
			return nil, &CapacityError{Limit: r.gate.Max()}
		}
	} else if err := r.gate.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("acquire generation slot: %w", err)
	}
	defer r.gate.Release()

	drv, ok := r.drivers.resolve(req.Provider)
	if !ok {
		return nil, &ConfigError{Reason: fmt.Sprintf("unsupported LLM provider: %s", req.Provider)}
	}

	start := time.Now()
	raw, err := drv.Generate(ctx, CallRequest{
		Prompt:       renderSynthesisPrompt(req.Query, req.Context),
		History:      req.History,
		SystemPrompt: req.SystemPrompt,
		Model:        req.Model,
		Credentials:  req.Credentials,
	})
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	r.cache.Set(req.Query, req.Context, req.Provider, req.Model, raw)

	log.Info().
		Str("provider", req.Provider).
		Dur("elapsed", elapsed).
		Msg("response generated")

	return &models.GenerationResult{
		Answer:    raw,
		Provider:  req.Provider,
		Model:     req.Model,
		LatencyMs: elapsed.Milliseconds(),
	}, nil
}

// Analyze runs the single-shot document analysis path. The faq and
// topics types go through the thinking parser; mindmap output is
// structured diagram text and passes through verbatim.
func (r *Router) Analyze(ctx context.Context, req *models.AnalysisRequest) (*models.GenerationResult, error) {
	docText := strings.TrimSpace(req.DocumentText)
	if docText == "" {
		return nil, &ConfigError{Reason: "document content is empty, cannot perform analysis"}
	}

	originalLen := len(docText)
	if originalLen > r.opts.MaxAnalysisChars {
		log.Warn().
			Int("length", originalLen).
			Int("max", r.opts.MaxAnalysisChars).
			Msg("document truncated for analysis")
		// Back the cut up to a rune boundary so the prompt stays valid
		// UTF-8 when the cap lands mid-rune.
		cut := r.opts.MaxAnalysisChars
		for cut > 0 && !utf8.RuneStart(docText[cut]) {
			cut--
		}
		docText = docText[:cut] + analysisTruncationMarker
	}

	prompt, ok := renderAnalysisPrompt(string(req.Type), docText, analysisItemTarget(originalLen))
	if !ok {
		return nil, &ConfigError{Reason: fmt.Sprintf("analysis type %q is not supported (want faq, topics, or mindmap)", req.Type)}
	}

	start := time.Now()
	raw, err := r.taskCall(ctx, req.Provider, CallRequest{
		Prompt:      prompt,
		Model:       req.Model,
		Credentials: req.Credentials,
	})
	if err != nil {
		return nil, err
	}

	result := &models.GenerationResult{
		Provider:  req.Provider,
		Model:     req.Model,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if req.Type == models.AnalysisMindmap {
		result.Answer = strings.TrimSpace(raw)
	} else {
		result.Answer, result.Thinking = ParseThinking(raw)
	}
	return result, nil
}

// taskCall dispatches a bare single-prompt task (analysis, sub-query
// expansion) to the provider resolved by family prefix. Task calls skip
// the cache and the gate: they are short, caller-driven, and were never
// admission-controlled in the synthesis sense.
func (r *Router) taskCall(ctx context.Context, provider string, req CallRequest) (string, error) {
	if provider == "" {
		return "", &ConfigError{Reason: "provider must not be empty"}
	}
	drv, ok := r.drivers.resolve(provider)
	if !ok {
		return "", &ConfigError{Reason: fmt.Sprintf("unsupported LLM provider: %s", provider)}
	}
	return drv.Generate(ctx, req)
}

// analysisItemTarget scales the requested item count with document
// length: 3 for short notes, up to 20 for book-sized input.
func analysisItemTarget(docLen int) int {
	if docLen <= 500 {
		return 3
	}
	const base, max = 5, 20
	n := base + docLen/4000
	if n > max {
		return max
	}
	return n
}
