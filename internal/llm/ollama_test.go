package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fusedchat/fusedchat/ai-core/internal/llm"
	"github.com/fusedchat/fusedchat/ai-core/pkg/models"
)

func ollamaServer(t *testing.T, answer string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"models":[]}`))
	})
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if stream, ok := req["stream"].(bool); !ok || stream {
			t.Error("chat request must set stream=false")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"role": "assistant", "content": answer},
		})
	})
	return httptest.NewServer(mux)
}

func TestOllamaDriverFallsBackToDefaultHost(t *testing.T) {
	good := ollamaServer(t, "from default host")
	defer good.Close()

	// The user-supplied host is unreachable; the default must answer.
	dead := httptest.NewServer(http.NotFoundHandler())
	dead.Close()

	d := llm.NewOllamaDriver(good.URL, "llama3", 200*time.Millisecond, time.Second)
	got, err := d.Generate(context.Background(), llm.CallRequest{
		Prompt:      "q",
		Credentials: models.Credentials{OllamaHost: dead.URL},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "from default host" {
		t.Errorf("answer = %q, want the fallback host's answer", got)
	}
}

func TestOllamaDriverPrefersUserHost(t *testing.T) {
	userSrv := ollamaServer(t, "from user host")
	defer userSrv.Close()
	defaultSrv := ollamaServer(t, "from default host")
	defer defaultSrv.Close()

	d := llm.NewOllamaDriver(defaultSrv.URL, "llama3", 200*time.Millisecond, time.Second)
	got, err := d.Generate(context.Background(), llm.CallRequest{
		Prompt:      "q",
		Credentials: models.Credentials{OllamaHost: userSrv.URL + "/"},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "from user host" {
		t.Errorf("answer = %q, want the user host's answer", got)
	}
}

func TestOllamaDriverAllHostsDown(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	dead.Close()

	d := llm.NewOllamaDriver(dead.URL, "llama3", 100*time.Millisecond, time.Second)
	_, err := d.Generate(context.Background(), llm.CallRequest{Prompt: "q"})

	var connErr *llm.ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("err = %v, want *ConnectionError", err)
	}
	if connErr.Provider != "ollama" {
		t.Errorf("Provider = %q, want ollama", connErr.Provider)
	}
	if connErr.Unwrap() == nil {
		t.Error("connection error should wrap the last host failure")
	}
}

func TestOllamaDriverSkipsHostFailingProbe(t *testing.T) {
	// Probe passes but chat fails on the first host; the chain must move on.
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "loading", http.StatusServiceUnavailable)
	})
	flaky := httptest.NewServer(mux)
	defer flaky.Close()

	good := ollamaServer(t, "recovered")
	defer good.Close()

	d := llm.NewOllamaDriver(good.URL, "llama3", 200*time.Millisecond, time.Second)
	got, err := d.Generate(context.Background(), llm.CallRequest{
		Prompt:      "q",
		Credentials: models.Credentials{OllamaHost: flaky.URL},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "recovered" {
		t.Errorf("answer = %q, want the healthy host's answer", got)
	}
}
