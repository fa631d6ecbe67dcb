package completion

import (
	"context"
	"fmt"
	"strings"
)

// NewBackend picks a backend from cfg.Provider: openai, gemini, mock or auto.
// auto prefers an OpenAI-compatible key, then a Gemini key, then the mock.
func NewBackend(ctx context.Context, cfg Config) (Backend, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = "auto"
	}

	switch provider {
	case "openai":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, fmt.Errorf("completion api key is required for provider openai")
		}
		return NewOpenAIBackend(cfg.BaseURL, cfg.APIKey, nil), nil
	case "gemini":
		return newGemini(ctx, cfg)
	case "mock":
		return NewMockBackend(), nil
	case "auto":
		if strings.TrimSpace(cfg.APIKey) != "" {
			return NewOpenAIBackend(cfg.BaseURL, cfg.APIKey, nil), nil
		}
		if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
			return newGemini(ctx, cfg)
		}
		return NewMockBackend(), nil
	default:
		return nil, fmt.Errorf("unsupported completion provider %q", cfg.Provider)
	}
}

func newGemini(ctx context.Context, cfg Config) (Backend, error) {
	b, err := NewGeminiBackend(ctx, cfg.GeminiAPIKey, cfg.Model)
	if err != nil {
		return nil, err
	}
	return b, nil
}
