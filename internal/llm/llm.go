// Package llm implements the upstream model providers.
package llm

import (
	"context"
	"fmt"

	"github.com/codementor-labs/codementor/internal/chat"
	"github.com/codementor-labs/codementor/internal/config"
)

// Build constructs providers in the order given by cfg.ProviderOrder,
// skipping any provider without an API key.
func Build(ctx context.Context, cfg config.LLMConfig) ([]chat.Provider, error) {
	var providers []chat.Provider
	for _, name := range cfg.ProviderOrder {
		switch name {
		case "gemini":
			if cfg.GeminiAPIKey == "" {
				continue
			}
			g, err := NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiContextLimit, cfg.Temperature)
			if err != nil {
				return nil, err
			}
			providers = append(providers, g)
		case "openai":
			if cfg.OpenAIAPIKey == "" {
				continue
			}
			providers = append(providers, NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIContextLimit, cfg.Temperature))
		default:
			return nil, fmt.Errorf("unknown provider %q", name)
		}
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}
	return providers, nil
}
