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

const defaultGeminiEndpoint = "https://generativelanguage.googleapis.com/v1beta"

// GeminiDriver calls the Google Generative Language REST API.
type GeminiDriver struct {
	endpoint     string
	defaultModel string
	client       *http.Client
}

// NewGeminiDriver creates the Gemini family driver. An empty endpoint
// selects the public API; tests point it at a local server.
func NewGeminiDriver(endpoint, defaultModel string) *GeminiDriver {
	if endpoint == "" {
		endpoint = defaultGeminiEndpoint
	}
	if defaultModel == "" {
		defaultModel = "gemini-1.5-flash"
	}
	return &GeminiDriver{
		endpoint:     endpoint,
		defaultModel: defaultModel,
		client:       &http.Client{Timeout: 120 * time.Second},
	}
}

func (d *GeminiDriver) Family() string { return "gemini" }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiSafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type geminiRequest struct {
	Contents          []geminiContent       `json:"contents"`
	SystemInstruction *geminiContent        `json:"systemInstruction,omitempty"`
	GenerationConfig  map[string]any        `json:"generationConfig,omitempty"`
	SafetySettings    []geminiSafetySetting `json:"safetySettings,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

func defaultGeminiSafetySettings() []geminiSafetySetting {
	categories := []string{
		"HARM_CATEGORY_HARASSMENT",
		"HARM_CATEGORY_HATE_SPEECH",
		"HARM_CATEGORY_SEXUALLY_EXPLICIT",
		"HARM_CATEGORY_DANGEROUS_CONTENT",
	}
	settings := make([]geminiSafetySetting, 0, len(categories))
	for _, c := range categories {
		settings = append(settings, geminiSafetySetting{Category: c, Threshold: "BLOCK_ONLY_HIGH"})
	}
	return settings
}

// Generate sends history plus the rendered prompt to Gemini. A safety
// block is not an error: it comes back as a synthetic result string
// embedding the decline reason, so callers can cache and display it.
func (d *GeminiDriver) Generate(ctx context.Context, req CallRequest) (string, error) {
	if req.Credentials.GeminiKey == "" {
		return "", &ConfigError{Reason: "gemini: API key is required but was not provided"}
	}

	model := req.Model
	if model == "" {
		model = d.defaultModel
	}

	contents := make([]geminiContent, 0, len(req.History)+1)
	for _, m := range req.History {
		if m.Text == "" {
			continue
		}
		role := "model"
		if m.Role == models.RoleUser {
			role = "user"
		}
		contents = append(contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Text}}})
	}
	contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}})

	apiReq := geminiRequest{
		Contents: contents,
		GenerationConfig: map[string]any{
			"temperature":     0.7,
			"maxOutputTokens": 4096,
		},
		SafetySettings: defaultGeminiSafetySettings(),
	}
	if req.SystemPrompt != "" {
		apiReq.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.SystemPrompt}}}
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return "", fmt.Errorf("gemini: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", d.endpoint, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("gemini: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", req.Credentials.GeminiKey)

	log.Debug().Str("model", model).Int("history", len(contents)-1).Msg("calling Gemini")

	httpResp, err := d.client.Do(httpReq)
	if err != nil {
		return "", &ConnectionError{Provider: "gemini", Reason: "request failed", Err: err}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", &ConnectionError{Provider: "gemini", Reason: "read response", Err: err}
	}
	if httpResp.StatusCode != http.StatusOK {
		return "", &ConnectionError{
			Provider: "gemini",
			Reason:   fmt.Sprintf("status %d: %s", httpResp.StatusCode, truncateForLog(respBody)),
		}
	}

	var apiResp geminiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", &ConnectionError{Provider: "gemini", Reason: "decode response", Err: err}
	}

	if len(apiResp.Candidates) == 0 || len(apiResp.Candidates[0].Content.Parts) == 0 {
		reason := apiResp.PromptFeedback.BlockReason
		if reason == "" {
			reason = "UNKNOWN"
		}
		log.Warn().Str("block_reason", reason).Msg("Gemini returned no content")
		return fmt.Sprintf("Analysis failed: The request was blocked by the AI provider's content safety policy (Reason: %s).", reason), nil
	}

	cand := apiResp.Candidates[0]
	if cand.FinishReason != "" && cand.FinishReason != "STOP" && cand.FinishReason != "MAX_TOKENS" {
		log.Warn().Str("finish_reason", cand.FinishReason).Msg("Gemini response terminated unexpectedly")
	}

	var text bytes.Buffer
	for _, p := range cand.Content.Parts {
		text.WriteString(p.Text)
	}
	return text.String(), nil
}

// truncateForLog keeps provider error bodies readable in wrapped errors.
func truncateForLog(b []byte) string {
	const max = 512
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
