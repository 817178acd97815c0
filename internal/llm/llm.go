// Package llm sends single prompts to a generative-text API and returns the
// reply text. The evaluator depends only on the Generator interface.
package llm

import (
	"context"
	"fmt"
)

// Generator turns one prompt into one free-form text reply.
type Generator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
	Model() string
}

// Provider names a supported generative-text backend.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// Default models per provider.
const (
	DefaultAnthropicModel = "claude-haiku-4-5-20251001"
	DefaultOpenAIModel    = "gpt-4o-mini"
)

const defaultMaxTokens = 4096

// Config selects and configures a provider.
type Config struct {
	Provider  Provider
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int
}

// New returns the Generator for cfg.Provider. An empty model falls back to
// the provider default.
func New(cfg Config) (Generator, error) {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}

	switch cfg.Provider {
	case ProviderAnthropic, "":
		if cfg.Model == "" {
			cfg.Model = DefaultAnthropicModel
		}
		return NewAnthropicClient(cfg), nil
	case ProviderOpenAI:
		if cfg.Model == "" {
			cfg.Model = DefaultOpenAIModel
		}
		return NewOpenAIClient(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %q", cfg.Provider)
	}
}
