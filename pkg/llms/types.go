// Package llms defines the LLM provider contract consumed by the planner
// and executor, the normalized provider error, and concrete providers for
// OpenAI-compatible and Anthropic APIs plus a deterministic mock.
package llms

import (
	"context"
	"time"
)

// Default request timeout applied when a provider config does not set one.
const DefaultTimeout = 30 * time.Second

// ChatMessage is a single prompt message in provider-neutral form.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ModelConfig selects and parameterizes the active model.
type ModelConfig struct {
	Provider    string        `json:"provider" yaml:"provider"`
	Model       string        `json:"model" yaml:"model"`
	APIKey      string        `json:"-" yaml:"api_key"`
	BaseURL     string        `json:"base_url,omitempty" yaml:"base_url"`
	MaxTokens   int           `json:"max_tokens,omitempty" yaml:"max_tokens"`
	Temperature float64       `json:"temperature,omitempty" yaml:"temperature"`
	Timeout     time.Duration `json:"timeout,omitempty" yaml:"timeout"`
}

// GenerateResult is the normalized response of a generate call.
type GenerateResult struct {
	Text             string `json:"text"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
}

// Provider is the generate contract. Transport failures must be
// normalized to *ProviderError.
type Provider interface {
	Generate(ctx context.Context, messages []ChatMessage, cfg ModelConfig) (*GenerateResult, error)

	GetName() string
}
