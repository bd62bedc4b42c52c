package llm

import (
	"context"
	"fmt"

	"github.com/telemacho-dev/pressgen/config"
)

// Provider is the structured-generation contract the pipeline stages consume.
// The prompt must instruct the model to answer with a single JSON object; the
// response is decoded straight into out, and any decode mismatch is returned
// as an error so callers can fold it into their failure policy.
type Provider interface {
	GenerateStructured(ctx context.Context, model string, prompt string, out interface{}) error
}

// NewProvider creates an LLM provider based on configuration.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("no LLM providers configured")
	}
	for _, provider := range cfg.Providers {
		switch provider.Type {
		case "openai", "compatible", "":
			return NewOpenAIProvider(provider), nil
		default:
			return nil, fmt.Errorf("unsupported LLM provider type: %s", provider.Type)
		}
	}
	return nil, fmt.Errorf("no valid LLM providers found")
}
