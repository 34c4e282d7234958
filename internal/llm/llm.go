// Package llm defines the provider-agnostic Client the analysis pipeline
// calls, plus the factory that wires a concrete provider implementation
// from the "ai" config section.
package llm

import (
	"context"
	"fmt"

	"github.com/heytcass/jasper/internal/llm/provider/anthropic"
	"github.com/heytcass/jasper/internal/llm/provider/ollama"
	"github.com/heytcass/jasper/internal/llm/provider/openai"
	"github.com/heytcass/jasper/internal/llm/types"
)

// Client is the single method the analysis pipeline needs from any LLM
// provider: turn a context bundle into a structured insight draft.
type Client interface {
	Summarize(ctx context.Context, req types.SummarizeRequest) (types.SummarizeResponse, error)
}

// ProviderConfig carries the provider-agnostic knobs every adapter shares.
type ProviderConfig struct {
	Provider   string // anthropic | openai | ollama
	APIKey     string
	Model      string
	BaseURL    string
	MaxRetries int
}

// New builds the Client for cfg.Provider.
func New(cfg ProviderConfig) (Client, error) {
	switch cfg.Provider {
	case "anthropic":
		return anthropic.NewClient(anthropic.Config{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL, MaxRetries: cfg.MaxRetries}), nil
	case "openai":
		return openai.NewClient(openai.Config{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL, MaxRetries: cfg.MaxRetries}), nil
	case "ollama":
		return ollama.NewClient(ollama.Config{Model: cfg.Model, BaseURL: cfg.BaseURL, MaxRetries: cfg.MaxRetries}), nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}
