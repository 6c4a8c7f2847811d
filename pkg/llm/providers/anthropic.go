package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Steve-IX/Ezra/pkg/config"
	"github.com/Steve-IX/Ezra/pkg/llm"
)

// anthropicVersion is the Messages API version header value.
const anthropicVersion = "2023-06-01"

// maxResponseSize limits upstream bodies to prevent memory exhaustion.
const maxResponseSize = 10 * 1024 * 1024

// Anthropic talks to the Messages API.
type Anthropic struct {
	name       string
	model      string
	apiKey     string
	baseURL    string
	limit      llm.RateLimit
	httpClient *http.Client
	confidence llm.ConfidenceFunc
}

// NewAnthropic creates an Anthropic adapter. It is available when an API key is set.
func NewAnthropic(cfg config.ProviderConfig, opts ...Option) *Anthropic {
	o := buildOptions(opts)
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.anthropic.com"
	}
	return &Anthropic{
		name:       nameOr(cfg, config.KindAnthropic),
		model:      modelOr(cfg, "claude-3-5-sonnet-latest"),
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimSuffix(base, "/"),
		limit:      limitOr(cfg, llm.RateLimit{RequestsPerMinute: 50, TokensPerMinute: 40000}),
		httpClient: o.httpClient,
		confidence: o.confidence,
	}
}

// Name implements llm.Provider.
func (a *Anthropic) Name() string { return a.name }

// IsAvailable implements llm.Provider.
func (a *Anthropic) IsAvailable() bool { return a.apiKey != "" }

// RateLimit implements llm.Provider.
func (a *Anthropic) RateLimit() llm.RateLimit { return a.limit }

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Generate implements llm.Provider.
func (a *Anthropic) Generate(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
	model := req.Model
	if model == "" {
		model = a.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	body, err := json.Marshal(anthropicRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Messages:    []anthropicMessage{{Role: "user", Content: req.Prompt}},
		System:      req.SystemPrompt,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, llm.NewFatalError(fmt.Errorf("build request body: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, llm.NewFatalError(fmt.Errorf("create HTTP request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	respBody, err := doJSON(a.httpClient, httpReq, a.name)
	if err != nil {
		return nil, err
	}

	var resp anthropicResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, llm.NewTransientError(fmt.Errorf("parse anthropic response: %w", err))
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	return &llm.GenerateResponse{
		Content:  content.String(),
		Provider: a.name,
		Model:    resp.Model,
		Usage: llm.TokenUsage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
		FinishReason: resp.StopReason,
		Confidence:   llm.Score(a.confidence, resp.StopReason),
	}, nil
}

// doJSON executes req and returns the body of a 2xx response.
func doJSON(client *http.Client, req *http.Request, provider string) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, llm.NewTransientError(fmt.Errorf("%s HTTP request failed: %w", provider, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, llm.NewTransientError(fmt.Errorf("read response body: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, llm.ClassifyHTTPError(provider, resp.StatusCode, body)
	}
	return body, nil
}
