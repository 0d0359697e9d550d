package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fusedchat/fusedchat/ai-core/pkg/models"
	"github.com/rs/zerolog/log"
)

const defaultGroqEndpoint = "https://api.groq.com/openai/v1"

// GroqDriver calls Groq's OpenAI-compatible chat completions API.
type GroqDriver struct {
	endpoint     string
	defaultModel string
	client       *http.Client
}

// NewGroqDriver creates the Groq family driver. An empty endpoint selects
// the public API.
func NewGroqDriver(endpoint, defaultModel string) *GroqDriver {
	if endpoint == "" {
		endpoint = defaultGroqEndpoint
	}
	if defaultModel == "" {
		defaultModel = "llama3-8b-8192"
	}
	return &GroqDriver{
		endpoint:     endpoint,
		defaultModel: defaultModel,
		client:       &http.Client{Timeout: 120 * time.Second},
	}
}

func (d *GroqDriver) Family() string { return "groq" }

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatRequest struct {
	Model    string              `json:"model"`
	Messages []openAIChatMessage `json:"messages"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (d *GroqDriver) Generate(ctx context.Context, req CallRequest) (string, error) {
	if req.Credentials.GroqKey == "" {
		return "", &ConfigError{Reason: "groq: API key is required but was not provided"}
	}

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

	body, err := json.Marshal(openAIChatRequest{Model: model, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("groq: marshal request: %w", err)
	}

	url := d.endpoint + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("groq: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.Credentials.GroqKey)

	log.Debug().Str("model", model).Int("messages", len(messages)).Msg("calling Groq")

	httpResp, err := d.client.Do(httpReq)
	if err != nil {
		return "", &ConnectionError{Provider: "groq", Reason: "request failed", Err: err}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", &ConnectionError{Provider: "groq", Reason: "read response", Err: err}
	}
	if httpResp.StatusCode != http.StatusOK {
		return "", &ConnectionError{
			Provider: "groq",
			Reason:   fmt.Sprintf("status %d: %s", httpResp.StatusCode, truncateForLog(respBody)),
		}
	}

	var apiResp openAIChatResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", &ConnectionError{Provider: "groq", Reason: "decode response", Err: err}
	}
	if len(apiResp.Choices) == 0 {
		return "", &ConnectionError{Provider: "groq", Reason: "response contained no choices"}
	}
	return apiResp.Choices[0].Message.Content, nil
}
