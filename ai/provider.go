// Package ai turns manuscript text into poster content using a hosted
// language model.
package ai

import (
	"context"
	"fmt"
	"strings"
)

// Provider names
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// ProviderOrder is the fallback order when the requested provider fails
var ProviderOrder = []string{ProviderOpenAI, ProviderAnthropic, ProviderGemini}

// Provider sends one system instruction and one user prompt and returns the
// model's text reply.
type Provider interface {
	Name() string
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// ProviderConfig carries the keys and model names for every provider
type ProviderConfig struct {
	OpenAIKey      string
	OpenAIModel    string
	AnthropicKey   string
	AnthropicModel string
	GeminiKey      string
	GeminiModel    string
	Temperature    float32
	MaxTokens      int
}

// NewProviders builds a client for every provider that has a key. No
// network calls are made here.
func NewProviders(ctx context.Context, cfg ProviderConfig) (map[string]Provider, error) {
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.4
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}

	providers := make(map[string]Provider)
	if cfg.OpenAIKey != "" {
		providers[ProviderOpenAI] = NewOpenAIClient(cfg.OpenAIKey, cfg.OpenAIModel, cfg.Temperature, cfg.MaxTokens)
	}
	if cfg.AnthropicKey != "" {
		providers[ProviderAnthropic] = NewClaudeClient(cfg.AnthropicKey, cfg.AnthropicModel, cfg.Temperature, cfg.MaxTokens)
	}
	if cfg.GeminiKey != "" {
		g, err := NewGeminiClient(ctx, cfg.GeminiKey, cfg.GeminiModel, cfg.Temperature, cfg.MaxTokens)
		if err != nil {
			return nil, fmt.Errorf("gemini init failed: %w", err)
		}
		providers[ProviderGemini] = g
	}
	return providers, nil
}

// NormalizeProvider maps user spellings onto provider names
func NormalizeProvider(name string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "openai", "gpt", "chatgpt":
		return ProviderOpenAI, true
	case "anthropic", "claude":
		return ProviderAnthropic, true
	case "gemini", "google":
		return ProviderGemini, true
	}
	return "", false
}
