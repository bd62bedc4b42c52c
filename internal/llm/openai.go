package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/telemacho-dev/pressgen/config"
	"github.com/telemacho-dev/pressgen/internal/httpx"
)

// OpenAIProvider implements Provider over the OpenAI chat completions API
// (or any API-compatible endpoint via base_url).
type OpenAIProvider struct {
	cfg    config.LLMProvider
	models map[string]config.LLMModel
	http   *httpx.Client
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(cfg config.LLMProvider) *OpenAIProvider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIProvider{
		cfg:    cfg,
		models: cfg.Models,
		http:   httpx.New(timeout, 1, 500*time.Millisecond),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature,omitempty"`
	MaxTokens      int            `json:"max_tokens,omitempty"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// GenerateStructured sends prompt to the routed model requesting a JSON object
// response and decodes it into out.
func (p *OpenAIProvider) GenerateStructured(ctx context.Context, model string, prompt string, out interface{}) error {
	apiKey := p.cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return fmt.Errorf("OpenAI API key not configured")
	}

	m, ok := p.models[model]
	if !ok {
		return fmt.Errorf("model %s not configured", model)
	}
	apiModel := m.APIName
	if apiModel == "" {
		apiModel = m.Name
	}
	if apiModel == "" {
		apiModel = model
	}

	baseURL := p.cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	reqBody := chatRequest{
		Model:          apiModel,
		Messages:       []chatMessage{{Role: "user", Content: prompt}},
		Temperature:    m.Temperature,
		MaxTokens:      m.MaxTokens,
		ResponseFormat: map[string]any{"type": "json_object"},
	}

	var resp chatResponse
	headers := map[string]string{"Authorization": "Bearer " + apiKey}
	if err := p.http.DoJSON(ctx, "POST", baseURL+"/chat/completions", headers, reqBody, &resp); err != nil {
		return fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("no choices in response")
	}

	content := stripFences(resp.Choices[0].Message.Content)
	dec := json.NewDecoder(strings.NewReader(content))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		// retry leniently: some models add fields beyond the requested schema
		if err2 := json.Unmarshal([]byte(content), out); err2 != nil {
			return fmt.Errorf("decode structured response: %w", err2)
		}
	}
	return nil
}

// stripFences removes a markdown code fence if the model wrapped its JSON in one.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
