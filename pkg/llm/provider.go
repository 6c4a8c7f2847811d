// Package llm routes generation requests across interchangeable text-generation
// backends, with explicit provider choice, keyword based selection and a
// linear fallback chain.
package llm

import (
	"context"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`    // "system", "user", or "assistant"
	Content string `json:"content"` // Message content
}

// GenerateRequest is a provider-agnostic generation request.
type GenerateRequest struct {
	// Provider names the backend to use. Empty means the router default.
	Provider string

	// Model overrides the provider's configured model when set.
	Model string

	// SystemPrompt is sent as the system instruction when non-empty.
	SystemPrompt string

	// Prompt is the user turn.
	Prompt string

	// Temperature controls randomness. nil uses the provider default.
	Temperature *float64

	// MaxTokens limits response length. 0 uses the provider default.
	MaxTokens int
}

// Messages renders the request as chat turns.
func (r GenerateRequest) Messages() []Message {
	msgs := make([]Message, 0, 2)
	if r.SystemPrompt != "" {
		msgs = append(msgs, Message{Role: "system", Content: r.SystemPrompt})
	}
	return append(msgs, Message{Role: "user", Content: r.Prompt})
}

// TokenUsage represents token consumption details for a generation.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// GenerateResponse is the result of a single successful generation.
type GenerateResponse struct {
	Content      string
	Provider     string
	Model        string
	Usage        TokenUsage
	FinishReason string
	// Confidence is nil when the provider gave nothing to score.
	Confidence *float64
}

// RateLimit is the advisory throughput a provider advertises.
type RateLimit struct {
	RequestsPerMinute int `json:"requests_per_minute"`
	TokensPerMinute   int `json:"tokens_per_minute"`
}

// Provider is the capability every backend adapter implements.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
	IsAvailable() bool
	RateLimit() RateLimit
}

// ProviderStatus is the externally visible state of a registered provider.
type ProviderStatus struct {
	Name      string    `json:"name"`
	Available bool      `json:"available"`
	RateLimit RateLimit `json:"rate_limit"`
}
