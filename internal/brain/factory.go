package brain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Config selects and configures the model provider.
type Config struct {
	Mode          string
	GeminiAPIKey  string
	GeminiModel   string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
}

// NewProvider builds the provider for cfg.Mode. A named provider without a
// credential is still returned; its conversations fail with ErrNotConfigured.
func NewProvider(ctx context.Context, cfg Config) (Provider, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "gemini"
	}

	switch mode {
	case "auto":
		return newAutoProvider(ctx, cfg)
	case "gemini":
		return gemini(ctx, cfg)
	case "openai":
		return openAI(cfg)
	case "mock":
		return NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unsupported model provider %q", cfg.Mode)
	}
}

func newAutoProvider(ctx context.Context, cfg Config) (Provider, error) {
	if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
		return gemini(ctx, cfg)
	}
	if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
		return openAI(cfg)
	}
	return NewMockProvider(), nil
}

func gemini(ctx context.Context, cfg Config) (Provider, error) {
	p, err := NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if errors.Is(err, ErrNotConfigured) {
		return unconfigured{name: "gemini"}, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func openAI(cfg Config) (Provider, error) {
	p, err := NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
	if errors.Is(err, ErrNotConfigured) {
		return unconfigured{name: "openai"}, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// IsConfigured reports whether p can reach a model.
func IsConfigured(p Provider) bool {
	_, missing := p.(unconfigured)
	return !missing
}
