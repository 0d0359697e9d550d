package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fusedchat/fusedchat/ai-core/internal/llm"
	"github.com/fusedchat/fusedchat/ai-core/pkg/models"
)

func geminiTextResponse(parts ...string) map[string]any {
	var p []map[string]string
	for _, s := range parts {
		p = append(p, map[string]string{"text": s})
	}
	return map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"role": "model", "parts": p}, "finishReason": "STOP"},
		},
	}
}

func TestGeminiDriverGenerate(t *testing.T) {
	var gotPath, gotKey, gotQuery string
	var gotReq map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		gotQuery = r.URL.RawQuery
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(geminiTextResponse("Hello ", "world"))
	}))
	defer srv.Close()

	d := llm.NewGeminiDriver(srv.URL, "gemini-1.5-flash")
	got, err := d.Generate(context.Background(), llm.CallRequest{
		Prompt: "say hello",
		History: []models.ChatMessage{
			{Role: models.RoleUser, Text: "hi"},
			{Role: models.RoleModel, Text: "hello"},
		},
		SystemPrompt: "be brief",
		Credentials:  models.Credentials{GeminiKey: "test-key"},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "Hello world" {
		t.Errorf("answer = %q, want parts joined", got)
	}
	if gotPath != "/models/gemini-1.5-flash:generateContent" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Error("API key should travel in the x-goog-api-key header")
	}
	if strings.Contains(gotQuery, "test-key") {
		t.Error("API key must not appear in the URL")
	}
	if contents, _ := gotReq["contents"].([]any); len(contents) != 3 {
		t.Errorf("contents has %d entries, want history plus prompt = 3", len(contents))
	}
	if _, ok := gotReq["systemInstruction"]; !ok {
		t.Error("system prompt should be sent as systemInstruction")
	}
}

func TestGeminiDriverMissingKey(t *testing.T) {
	d := llm.NewGeminiDriver("", "")
	_, err := d.Generate(context.Background(), llm.CallRequest{Prompt: "q"})
	var cfgErr *llm.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %v, want *ConfigError", err)
	}
}

func TestGeminiDriverSafetyBlockIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"candidates":     []any{},
			"promptFeedback": map[string]string{"blockReason": "SAFETY"},
		})
	}))
	defer srv.Close()

	d := llm.NewGeminiDriver(srv.URL, "")
	got, err := d.Generate(context.Background(), llm.CallRequest{
		Prompt:      "blocked prompt",
		Credentials: models.Credentials{GeminiKey: "k"},
	})
	if err != nil {
		t.Fatalf("a content-policy block must not surface as an error, got %v", err)
	}
	if !strings.Contains(got, "SAFETY") {
		t.Errorf("synthetic answer should carry the block reason, got %q", got)
	}
	if !strings.Contains(got, "content safety policy") {
		t.Errorf("synthetic answer should explain the decline, got %q", got)
	}
}

func TestGeminiDriverHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"API key not valid"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	d := llm.NewGeminiDriver(srv.URL, "")
	_, err := d.Generate(context.Background(), llm.CallRequest{
		Prompt:      "q",
		Credentials: models.Credentials{GeminiKey: "bad"},
	})
	var connErr *llm.ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("err = %v, want *ConnectionError", err)
	}
	if connErr.Provider != "gemini" {
		t.Errorf("Provider = %q, want gemini", connErr.Provider)
	}
}
