// Package providers implements llm.Provider adapters for hosted and local backends.
package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/Steve-IX/Ezra/pkg/config"
	"github.com/Steve-IX/Ezra/pkg/llm"
)

// OpenAI talks to the Chat Completions API. Ollama reuses it through its
// OpenAI-compatible endpoint.
type OpenAI struct {
	name       string
	model      string
	available  bool
	limit      llm.RateLimit
	client     *openai.Client
	confidence llm.ConfidenceFunc
}

// Option configures an adapter.
type Option func(*options)

type options struct {
	httpClient *http.Client
	confidence llm.ConfidenceFunc
}

// WithHTTPClient sets the HTTP client used for upstream calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithConfidence replaces the finish-reason confidence scorer.
func WithConfidence(fn llm.ConfidenceFunc) Option {
	return func(o *options) {
		o.confidence = fn
	}
}

func buildOptions(opts []Option) options {
	o := options{httpClient: &http.Client{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewOpenAI creates an OpenAI adapter. It is available when an API key is set.
func NewOpenAI(cfg config.ProviderConfig, opts ...Option) *OpenAI {
	o := buildOptions(opts)
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	oc.HTTPClient = o.httpClient
	return &OpenAI{
		name:       nameOr(cfg, config.KindOpenAI),
		model:      modelOr(cfg, "gpt-4o"),
		available:  cfg.APIKey != "",
		limit:      limitOr(cfg, llm.RateLimit{RequestsPerMinute: 500, TokensPerMinute: 30000}),
		client:     openai.NewClientWithConfig(oc),
		confidence: o.confidence,
	}
}

// NewOllama creates an adapter for a local Ollama server. It needs no key and
// is available when a base URL is configured.
func NewOllama(cfg config.ProviderConfig, opts ...Option) *OpenAI {
	o := buildOptions(opts)
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	if base != "" && !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	oc := openai.DefaultConfig("ollama")
	oc.BaseURL = base
	oc.HTTPClient = o.httpClient
	return &OpenAI{
		name:       nameOr(cfg, config.KindOllama),
		model:      modelOr(cfg, "llama3.1"),
		available:  base != "",
		limit:      limitOr(cfg, llm.RateLimit{RequestsPerMinute: 60}),
		client:     openai.NewClientWithConfig(oc),
		confidence: o.confidence,
	}
}

// Name implements llm.Provider.
func (p *OpenAI) Name() string { return p.name }

// IsAvailable implements llm.Provider.
func (p *OpenAI) IsAvailable() bool { return p.available }

// RateLimit implements llm.Provider.
func (p *OpenAI) RateLimit() llm.RateLimit { return p.limit }

// Generate implements llm.Provider.
func (p *OpenAI) Generate(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	creq := openai.ChatCompletionRequest{
		Model:     model,
		MaxTokens: req.MaxTokens,
	}
	if req.Temperature != nil {
		creq.Temperature = float32(*req.Temperature)
	}
	for _, m := range req.Messages() {
		creq.Messages = append(creq.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := p.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return nil, p.classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, llm.NewTransientError(fmt.Errorf("%s: response has no choices", p.name))
	}

	choice := resp.Choices[0]
	finish := string(choice.FinishReason)
	return &llm.GenerateResponse{
		Content:  choice.Message.Content,
		Provider: p.name,
		Model:    resp.Model,
		Usage: llm.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		FinishReason: finish,
		Confidence:   llm.Score(p.confidence, finish),
	}, nil
}

func (p *OpenAI) classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return llm.ClassifyHTTPError(p.name, apiErr.HTTPStatusCode, []byte(apiErr.Message))
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return llm.ClassifyHTTPError(p.name, reqErr.HTTPStatusCode, []byte(reqErr.Error()))
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	// Transport failures.
	return llm.NewTransientError(fmt.Errorf("%s request failed: %w", p.name, err))
}

func nameOr(cfg config.ProviderConfig, def string) string {
	if cfg.Name != "" {
		return cfg.Name
	}
	return def
}

func modelOr(cfg config.ProviderConfig, def string) string {
	if cfg.Model != "" {
		return cfg.Model
	}
	return def
}

func limitOr(cfg config.ProviderConfig, def llm.RateLimit) llm.RateLimit {
	if cfg.RequestsPerMinute > 0 {
		def.RequestsPerMinute = cfg.RequestsPerMinute
	}
	if cfg.TokensPerMinute > 0 {
		def.TokensPerMinute = cfg.TokensPerMinute
	}
	return def
}
