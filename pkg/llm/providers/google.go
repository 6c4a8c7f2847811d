package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Steve-IX/Ezra/pkg/config"
	"github.com/Steve-IX/Ezra/pkg/llm"
)

// Google talks to the Gemini generateContent API.
type Google struct {
	name       string
	model      string
	apiKey     string
	baseURL    string
	limit      llm.RateLimit
	httpClient *http.Client
	confidence llm.ConfidenceFunc
}

// NewGoogle creates a Gemini adapter. It is available when an API key is set.
func NewGoogle(cfg config.ProviderConfig, opts ...Option) *Google {
	o := buildOptions(opts)
	base := cfg.BaseURL
	if base == "" {
		base = "https://generativelanguage.googleapis.com"
	}
	return &Google{
		name:       nameOr(cfg, config.KindGoogle),
		model:      modelOr(cfg, "gemini-1.5-pro"),
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimSuffix(base, "/"),
		limit:      limitOr(cfg, llm.RateLimit{RequestsPerMinute: 60, TokensPerMinute: 32000}),
		httpClient: o.httpClient,
		confidence: o.confidence,
	}
}

// Name implements llm.Provider.
func (g *Google) Name() string { return g.name }

// IsAvailable implements llm.Provider.
func (g *Google) IsAvailable() bool { return g.apiKey != "" }

// RateLimit implements llm.Provider.
func (g *Google) RateLimit() llm.RateLimit { return g.limit }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion"`
}

// Generate implements llm.Provider.
func (g *Google) Generate(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
	model := req.Model
	if model == "" {
		model = g.model
	}
	greq := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}}},
	}
	if req.SystemPrompt != "" {
		greq.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.SystemPrompt}}}
	}
	if req.Temperature != nil || req.MaxTokens > 0 {
		greq.GenerationConfig = &geminiGenerationConfig{Temperature: req.Temperature, MaxOutputTokens: req.MaxTokens}
	}
	body, err := json.Marshal(greq)
	if err != nil {
		return nil, llm.NewFatalError(fmt.Errorf("build request body: %w", err))
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.baseURL, url.PathEscape(model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, llm.NewFatalError(fmt.Errorf("create HTTP request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

	respBody, err := doJSON(g.httpClient, httpReq, g.name)
	if err != nil {
		return nil, err
	}

	var resp geminiResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, llm.NewTransientError(fmt.Errorf("parse gemini response: %w", err))
	}
	if len(resp.Candidates) == 0 {
		return nil, llm.NewTransientError(fmt.Errorf("%s: response has no candidates", g.name))
	}

	cand := resp.Candidates[0]
	var content strings.Builder
	for _, part := range cand.Content.Parts {
		content.WriteString(part.Text)
	}
	if resp.ModelVersion != "" {
		model = resp.ModelVersion
	}
	return &llm.GenerateResponse{
		Content:  content.String(),
		Provider: g.name,
		Model:    model,
		Usage: llm.TokenUsage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		},
		FinishReason: cand.FinishReason,
		Confidence:   llm.Score(g.confidence, cand.FinishReason),
	}, nil
}
