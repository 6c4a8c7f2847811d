// Package llmtest provides a scriptable llm.Provider for tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/Steve-IX/Ezra/pkg/llm"
)

// Provider is a thread-safe fake provider. It returns Responses in sequence,
// or Err when set. Hook, when set, replaces both.
type Provider struct {
	ProviderName string
	Unavailable  bool
	Limit        llm.RateLimit
	Responses    []*llm.GenerateResponse
	Err          error
	Hook         func(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error)

	mu       sync.Mutex
	requests []llm.GenerateRequest
	next     int
}

// New returns an available provider that always replies with content.
func New(name, content string) *Provider {
	return &Provider{
		ProviderName: name,
		Responses: []*llm.GenerateResponse{{
			Content:      content,
			Model:        name + "-test",
			FinishReason: "stop",
		}},
	}
}

// Failing returns an available provider that always fails with err.
func Failing(name string, err error) *Provider {
	return &Provider{ProviderName: name, Err: err}
}

// Name implements llm.Provider.
func (p *Provider) Name() string { return p.ProviderName }

// IsAvailable implements llm.Provider.
func (p *Provider) IsAvailable() bool { return !p.Unavailable }

// RateLimit implements llm.Provider.
func (p *Provider) RateLimit() llm.RateLimit { return p.Limit }

// Generate implements llm.Provider.
func (p *Provider) Generate(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	hook := p.Hook
	p.mu.Unlock()

	if hook != nil {
		return hook(ctx, req)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return nil, p.Err
	}
	if len(p.Responses) == 0 {
		return &llm.GenerateResponse{Model: p.ProviderName + "-test"}, nil
	}
	resp := p.Responses[p.next]
	if p.next < len(p.Responses)-1 {
		p.next++
	}
	out := *resp
	return &out, nil
}

// Calls returns the number of Generate calls.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

// LastRequest returns the most recent request, if any.
func (p *Provider) LastRequest() (llm.GenerateRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) == 0 {
		return llm.GenerateRequest{}, false
	}
	return p.requests[len(p.requests)-1], true
}
