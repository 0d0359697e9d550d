package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fusedchat/fusedchat/ai-core/pkg/models"
	"github.com/rs/zerolog/log"
)

const defaultOllamaHost = "http://localhost:11434"

// OllamaDriver calls a local Ollama server's native chat API. Because the
// server runs on a variable, user-specified network location that is not
// always reachable, every call walks a host-fallback chain: the
// caller-supplied host first (when present), then the configured default.
// Each candidate is probed with a short-timeout reachability check before
// the chat call so an unreachable host cannot stall the chain.
type OllamaDriver struct {
	defaultHost  string
	defaultModel string
	probeClient  *http.Client
	chatClient   *http.Client
}

// NewOllamaDriver creates the Ollama family driver.
func NewOllamaDriver(defaultHost, defaultModel string, probeTimeout, requestTimeout time.Duration) *OllamaDriver {
	if defaultHost == "" {
		defaultHost = defaultOllamaHost
	}
	if defaultModel == "" {
		defaultModel = "llama3"
	}
	if probeTimeout <= 0 {
		probeTimeout = 2 * time.Second
	}
	if requestTimeout <= 0 {
		requestTimeout = 120 * time.Second
	}
	return &OllamaDriver{
		defaultHost:  strings.TrimRight(defaultHost, "/"),
		defaultModel: defaultModel,
		probeClient:  &http.Client{Timeout: probeTimeout},
		chatClient:   &http.Client{Timeout: requestTimeout},
	}
}

func (d *OllamaDriver) Family() string { return "ollama" }

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []openAIChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
}

type ollamaChatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

// hostChain builds the ordered candidate list: the caller's host (trimmed,
// when non-empty) followed by the configured default, deduplicated.
func (d *OllamaDriver) hostChain(userHost string) []string {
	var hosts []string
	if h := strings.TrimRight(strings.TrimSpace(userHost), "/"); h != "" {
		hosts = append(hosts, h)
	}
	for _, h := range hosts {
		if h == d.defaultHost {
			return hosts
		}
	}
	return append(hosts, d.defaultHost)
}

// probe checks that an Ollama host answers /api/tags.
func (d *OllamaDriver) probe(ctx context.Context, host string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, host+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := d.probeClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d from /api/tags", resp.StatusCode)
	}
	return nil
}

// Generate tries each candidate host in order and returns the first
// success. When every host fails, the connection error wraps the last
// failure so callers can see why the chain was exhausted.
func (d *OllamaDriver) Generate(ctx context.Context, req CallRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = d.defaultModel
	}

	messages := make([]openAIChatMessage, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		messages = append(messages, openAIChatMessage{Role: "system", Content: req.SystemPrompt})
	}
	for _, m := range req.History {
		if m.Text == "" {
			continue
		}
		role := "user"
		if m.Role == models.RoleModel {
			role = "assistant"
		}
		messages = append(messages, openAIChatMessage{Role: role, Content: m.Text})
	}
	messages = append(messages, openAIChatMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(ollamaChatRequest{Model: model, Messages: messages, Stream: false})
	if err != nil {
		return "", fmt.Errorf("ollama: marshal request: %w", err)
	}

	var lastErr error
	for _, host := range d.hostChain(req.Credentials.OllamaHost) {
		log.Debug().Str("host", host).Str("model", model).Msg("trying Ollama host")

		if err := d.probe(ctx, host); err != nil {
			log.Warn().Str("host", host).Err(err).Msg("Ollama host unreachable, trying next")
			lastErr = err
			continue
		}

		text, err := d.chat(ctx, host, body)
		if err != nil {
			log.Warn().Str("host", host).Err(err).Msg("Ollama request failed, trying next")
			lastErr = err
			continue
		}
		return text, nil
	}

	return "", &ConnectionError{Provider: "ollama", Reason: "all hosts failed", Err: lastErr}
}

func (d *OllamaDriver) chat(ctx context.Context, host string, body []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := d.chatClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d: %s", httpResp.StatusCode, truncateForLog(respBody))
	}

	var apiResp ollamaChatResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return apiResp.Message.Content, nil
}

var (
	_ Driver = (*GeminiDriver)(nil)
	_ Driver = (*GroqDriver)(nil)
	_ Driver = (*OllamaDriver)(nil)
)
