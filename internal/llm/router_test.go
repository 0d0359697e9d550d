package llm_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/fusedchat/fusedchat/ai-core/internal/llm"
	"github.com/fusedchat/fusedchat/ai-core/pkg/models"
)

// stubDriver is a scriptable backend for router tests.
type stubDriver struct {
	family     string
	response   string
	err        error
	calls      atomic.Int64
	lastPrompt atomic.Value // string
	block      chan struct{}
	entered    chan struct{}
}

func (d *stubDriver) Family() string { return d.family }

func (d *stubDriver) Generate(_ context.Context, req llm.CallRequest) (string, error) {
	d.calls.Add(1)
	d.lastPrompt.Store(req.Prompt)
	if d.entered != nil {
		d.entered <- struct{}{}
	}
	if d.block != nil {
		<-d.block
	}
	return d.response, d.err
}

func newTestRouter(t *testing.T, opts llm.RouterOptions, drivers ...llm.Driver) *llm.Router {
	t.Helper()
	return llm.NewRouter(llm.NewResponseCache(100, time.Hour), llm.NewAdmissionGate(10), opts, drivers...)
}

func TestRouterPrefixRouting(t *testing.T) {
	gemini := &stubDriver{family: "gemini", response: "from gemini"}
	groq := &stubDriver{family: "groq", response: "from groq"}
	r := newTestRouter(t, llm.RouterOptions{}, gemini, groq)

	for provider, want := range map[string]string{
		"gemini":             "from gemini",
		"gemini-1.5-pro":     "from gemini",
		"groq_llama3":        "from groq",
		"groq_other_variant": "from groq",
	} {
		res, err := r.Generate(context.Background(), &models.GenerationRequest{
			Provider: provider,
			Query:    "q-" + provider,
		})
		if err != nil {
			t.Fatalf("Generate(%s): %v", provider, err)
		}
		if res.Answer != want {
			t.Errorf("Generate(%s) = %q, want %q", provider, res.Answer, want)
		}
	}
}

func TestRouterUnsupportedProvider(t *testing.T) {
	r := newTestRouter(t, llm.RouterOptions{}, &stubDriver{family: "gemini"})

	_, err := r.Generate(context.Background(), &models.GenerationRequest{
		Provider: "anthropic",
		Query:    "hello",
	})
	var cfgErr *llm.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %v, want *ConfigError", err)
	}
	if !strings.Contains(cfgErr.Reason, "anthropic") {
		t.Errorf("error should name the provider, got %q", cfgErr.Reason)
	}
}

func TestRouterRejectsEmptyRequest(t *testing.T) {
	r := newTestRouter(t, llm.RouterOptions{}, &stubDriver{family: "gemini"})

	var cfgErr *llm.ConfigError
	if _, err := r.Generate(context.Background(), &models.GenerationRequest{Provider: "gemini"}); !errors.As(err, &cfgErr) {
		t.Errorf("empty query: err = %v, want *ConfigError", err)
	}
	if _, err := r.Generate(context.Background(), &models.GenerationRequest{Query: "q"}); !errors.As(err, &cfgErr) {
		t.Errorf("empty provider: err = %v, want *ConfigError", err)
	}
}

func TestRouterCacheHitSkipsBackend(t *testing.T) {
	drv := &stubDriver{family: "gemini", response: "answer"}
	r := newTestRouter(t, llm.RouterOptions{}, drv)

	req := &models.GenerationRequest{Provider: "gemini", Query: "q", Context: "ctx"}

	first, err := r.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("first Generate: %v", err)
	}
	if first.Cached {
		t.Error("first call should not be a cache hit")
	}

	second, err := r.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("second Generate: %v", err)
	}
	if !second.Cached {
		t.Error("second call should be a cache hit")
	}
	if second.Answer != "answer" {
		t.Errorf("cached answer = %q, want %q", second.Answer, "answer")
	}
	if got := drv.calls.Load(); got != 1 {
		t.Errorf("backend called %d times, want 1", got)
	}
}

func TestRouterBackendErrorNotCached(t *testing.T) {
	drv := &stubDriver{family: "gemini", err: &llm.ConnectionError{Provider: "gemini", Reason: "down"}}
	r := newTestRouter(t, llm.RouterOptions{}, drv)

	req := &models.GenerationRequest{Provider: "gemini", Query: "q"}
	for i := 0; i < 2; i++ {
		var connErr *llm.ConnectionError
		if _, err := r.Generate(context.Background(), req); !errors.As(err, &connErr) {
			t.Fatalf("call %d: err = %v, want *ConnectionError", i, err)
		}
	}
	if got := drv.calls.Load(); got != 2 {
		t.Errorf("backend called %d times, want 2 (failures must not be cached)", got)
	}
}

func TestRouterReleasesSlotOnBackendError(t *testing.T) {
	drv := &stubDriver{family: "gemini", err: errors.New("boom")}
	r := llm.NewRouter(llm.NewResponseCache(10, time.Hour), llm.NewAdmissionGate(1), llm.RouterOptions{}, drv)

	// With one slot, a leak on the error path would deadlock the second call.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := 0; i < 3; i++ {
		if _, err := r.Generate(ctx, &models.GenerationRequest{Provider: "gemini", Query: "q"}); err == nil {
			t.Fatal("expected backend error")
		} else if ctx.Err() != nil {
			t.Fatal("gate slot leaked on error path")
		}
	}
}

func TestRouterFailFastCapacity(t *testing.T) {
	drv := &stubDriver{
		family:   "gemini",
		response: "slow answer",
		block:    make(chan struct{}),
		entered:  make(chan struct{}, 1),
	}
	r := llm.NewRouter(llm.NewResponseCache(10, time.Hour), llm.NewAdmissionGate(1),
		llm.RouterOptions{FailFast: true}, drv)

	done := make(chan error, 1)
	go func() {
		_, err := r.Generate(context.Background(), &models.GenerationRequest{Provider: "gemini", Query: "slow"})
		done <- err
	}()
	<-drv.entered // first call holds the only slot

	_, err := r.Generate(context.Background(), &models.GenerationRequest{Provider: "gemini", Query: "fast"})
	var capErr *llm.CapacityError
	if !errors.As(err, &capErr) {
		t.Fatalf("err = %v, want *CapacityError", err)
	}
	if capErr.Limit != 1 {
		t.Errorf("Limit = %d, want 1", capErr.Limit)
	}

	close(drv.block)
	if err := <-done; err != nil {
		t.Fatalf("blocked call failed after release: %v", err)
	}
}

func TestRouterAnalyze(t *testing.T) {
	drv := &stubDriver{family: "ollama", response: "<thinking>scan the doc</thinking>Q: What is X?\nA: X is Y."}
	r := newTestRouter(t, llm.RouterOptions{}, drv)

	res, err := r.Analyze(context.Background(), &models.AnalysisRequest{
		Type:         models.AnalysisFAQ,
		Provider:     "ollama",
		DocumentText: "X is Y. This document explains X.",
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !strings.HasPrefix(res.Answer, "Q:") {
		t.Errorf("answer = %q, want the parsed text after the thinking block", res.Answer)
	}
	if res.Thinking != "scan the doc" {
		t.Errorf("thinking = %q, want %q", res.Thinking, "scan the doc")
	}
}

func TestRouterAnalyzeMindmapSkipsParser(t *testing.T) {
	raw := "mindmap\n  root((Doc))\n    A\n    B\n"
	drv := &stubDriver{family: "gemini", response: raw}
	r := newTestRouter(t, llm.RouterOptions{}, drv)

	res, err := r.Analyze(context.Background(), &models.AnalysisRequest{
		Type:         models.AnalysisMindmap,
		Provider:     "gemini",
		DocumentText: "some document",
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Answer != strings.TrimSpace(raw) {
		t.Errorf("mindmap output must pass through verbatim, got %q", res.Answer)
	}
	if res.Thinking != "" {
		t.Errorf("mindmap result should carry no thinking, got %q", res.Thinking)
	}
}

func TestRouterAnalyzeValidation(t *testing.T) {
	r := newTestRouter(t, llm.RouterOptions{}, &stubDriver{family: "gemini"})

	var cfgErr *llm.ConfigError
	_, err := r.Analyze(context.Background(), &models.AnalysisRequest{
		Type: models.AnalysisFAQ, Provider: "gemini", DocumentText: "  \n ",
	})
	if !errors.As(err, &cfgErr) {
		t.Errorf("empty document: err = %v, want *ConfigError", err)
	}

	_, err = r.Analyze(context.Background(), &models.AnalysisRequest{
		Type: "sentiment", Provider: "gemini", DocumentText: "text",
	})
	if !errors.As(err, &cfgErr) {
		t.Errorf("unknown analysis type: err = %v, want *ConfigError", err)
	}
}

func TestRouterAnalyzeTruncatesLongDocuments(t *testing.T) {
	drv := &stubDriver{family: "gemini", response: "ok"}
	r := newTestRouter(t, llm.RouterOptions{MaxAnalysisChars: 100}, drv)

	_, err := r.Analyze(context.Background(), &models.AnalysisRequest{
		Type:         models.AnalysisFAQ,
		Provider:     "gemini",
		DocumentText: strings.Repeat("a", 500),
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	prompt, _ := drv.lastPrompt.Load().(string)
	if !strings.Contains(prompt, "[CONTENT TRUNCATED FOR ANALYSIS]") {
		t.Error("prompt should carry the truncation marker")
	}
	if strings.Contains(prompt, strings.Repeat("a", 101)) {
		t.Error("prompt carries more document text than the configured cap")
	}
}

func TestRouterAnalyzeTruncatesOnRuneBoundary(t *testing.T) {
	drv := &stubDriver{family: "gemini", response: "ok"}
	// An odd cap over two-byte runes lands mid-rune; the cut must move
	// back to the previous boundary rather than emit invalid UTF-8.
	r := newTestRouter(t, llm.RouterOptions{MaxAnalysisChars: 101}, drv)

	_, err := r.Analyze(context.Background(), &models.AnalysisRequest{
		Type:         models.AnalysisFAQ,
		Provider:     "gemini",
		DocumentText: strings.Repeat("é", 200),
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	prompt, _ := drv.lastPrompt.Load().(string)
	if !utf8.ValidString(prompt) {
		t.Error("truncated prompt is not valid UTF-8")
	}
	if !strings.Contains(prompt, "[CONTENT TRUNCATED FOR ANALYSIS]") {
		t.Error("prompt should carry the truncation marker")
	}
}

func TestExpandQuery(t *testing.T) {
	drv := &stubDriver{family: "groq", response: "1. first query\n- second query\n\n* third query\nfourth query\nfifth query"}
	r := newTestRouter(t, llm.RouterOptions{}, drv)

	got := r.ExpandQuery(context.Background(), "big question", "groq_llama3", "", models.Credentials{}, 3)
	want := []string{"first query", "second query", "third query"}
	if len(got) != len(want) {
		t.Fatalf("got %d sub-queries %v, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sub-query[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestExpandQueryKeepsLeadingDigitsInContent(t *testing.T) {
	drv := &stubDriver{family: "groq", response: "1. 2023 trends in AI\n2) 10 largest economies\n- 5G rollout timeline"}
	r := newTestRouter(t, llm.RouterOptions{}, drv)

	got := r.ExpandQuery(context.Background(), "q", "groq_llama3", "", models.Credentials{}, 3)
	want := []string{"2023 trends in AI", "10 largest economies", "5G rollout timeline"}
	if len(got) != len(want) {
		t.Fatalf("got %d sub-queries %v, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sub-query[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestExpandQueryZeroCountSkipsBackend(t *testing.T) {
	drv := &stubDriver{family: "groq", response: "should not be called"}
	r := newTestRouter(t, llm.RouterOptions{}, drv)

	if got := r.ExpandQuery(context.Background(), "q", "groq_llama3", "", models.Credentials{}, 0); got != nil {
		t.Errorf("count=0 should return nil, got %v", got)
	}
	if drv.calls.Load() != 0 {
		t.Error("count=0 must not reach the backend")
	}
}

func TestExpandQueryFailureIsBestEffort(t *testing.T) {
	drv := &stubDriver{family: "groq", err: errors.New("backend down")}
	r := newTestRouter(t, llm.RouterOptions{}, drv)

	if got := r.ExpandQuery(context.Background(), "q", "groq_llama3", "", models.Credentials{}, 3); got != nil {
		t.Errorf("failed expansion should return nil, got %v", got)
	}
	// Unknown provider too: expansion never propagates errors.
	if got := r.ExpandQuery(context.Background(), "q", "nope", "", models.Credentials{}, 3); got != nil {
		t.Errorf("unknown provider should return nil, got %v", got)
	}
}
