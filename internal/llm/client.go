// Package llm provides a provider-selecting client over the summarizer
// prompt/response shape the workers need: a single blocking call per batch,
// no streaming, no tool calling, no multi-turn state.
package llm

import (
	"context"
	"fmt"
	"time"
)

// DefaultCallTimeout bounds a single Call, independent of any caller deadline.
const DefaultCallTimeout = 60 * time.Second

// DefaultTemperature matches the low-variance setting the summarizer prompts
// are tuned against.
const DefaultTemperature = 0.3

// Request is the input to one summarization call.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
}

// Response is the output of one summarization call.
type Response struct {
	Content     string
	TotalTokens int
}

// Client performs one blocking LLM call. Both providers implement this
// directly; nothing else in this package depends on their concrete types.
type Client interface {
	Call(ctx context.Context, req Request) (Response, error)
}

// Provider selects which backend Client to construct.
type Provider string

const (
	ProviderOpenRouter Provider = "openrouter"
	ProviderGemini     Provider = "gemini"
)

// Config configures the provider-selecting client.
type Config struct {
	Provider Provider

	OpenRouterAPIKey string
	OpenRouterModel  string

	GeminiAPIKey string
	GeminiModel  string

	CallTimeout time.Duration
}

// New constructs the Client for cfg.Provider. Returns a KindAuthMissing
// *Error if the selected provider's credential is absent, so callers can
// surface a clear startup failure rather than an opaque first-call error.
func New(cfg Config) (Client, error) {
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}

	switch cfg.Provider {
	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, newError(KindAuthMissing, "gemini", cfg.GeminiModel, fmt.Errorf("GEMINI_API_KEY not configured"))
		}
		return newGeminiClient(geminiConfig{
			APIKey:  cfg.GeminiAPIKey,
			Model:   cfg.GeminiModel,
			Timeout: timeout,
		})
	case ProviderOpenRouter, "":
		if cfg.OpenRouterAPIKey == "" {
			return nil, newError(KindAuthMissing, "openrouter", cfg.OpenRouterModel, fmt.Errorf("OPENROUTER_API_KEY not configured"))
		}
		return newOpenRouterClient(openRouterConfig{
			APIKey:  cfg.OpenRouterAPIKey,
			Model:   cfg.OpenRouterModel,
			Timeout: timeout,
		}), nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}
