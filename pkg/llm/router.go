package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// DefaultCallTimeout bounds a single provider call.
const DefaultCallTimeout = 60 * time.Second

// Keyword routing preferences.
var (
	codingKeywords = []string{"code", "technical"}
	proseKeywords  = []string{"creative", "writing"}
)

// Router holds an immutable, ordered provider registry.
type Router struct {
	providers       map[string]Provider
	order           []string
	defaultProvider string
	codingProvider  string
	proseProvider   string
	callTimeout     time.Duration
	metrics         *Metrics
	logger          *slog.Logger
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithCallTimeout bounds each individual provider call. Zero disables the bound.
func WithCallTimeout(d time.Duration) RouterOption {
	return func(r *Router) {
		r.callTimeout = d
	}
}

// WithCodingProvider sets the provider preferred for code and technical tasks.
func WithCodingProvider(name string) RouterOption {
	return func(r *Router) {
		r.codingProvider = name
	}
}

// WithProseProvider sets the provider preferred for creative and writing tasks.
func WithProseProvider(name string) RouterOption {
	return func(r *Router) {
		r.proseProvider = name
	}
}

// WithMetrics records call outcomes on m.
func WithMetrics(m *Metrics) RouterOption {
	return func(r *Router) {
		r.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

// NewRouter registers providers in the given order. A later provider with a
// duplicate name replaces the earlier one but keeps its position.
func NewRouter(defaultProvider string, providers []Provider, opts ...RouterOption) *Router {
	r := &Router{
		providers:       make(map[string]Provider, len(providers)),
		defaultProvider: defaultProvider,
		codingProvider:  "openai",
		proseProvider:   "anthropic",
		callTimeout:     DefaultCallTimeout,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "llm.router")

	for _, p := range providers {
		if p == nil {
			continue
		}
		name := p.Name()
		if _, seen := r.providers[name]; !seen {
			r.order = append(r.order, name)
		}
		r.providers[name] = p
	}
	return r
}

// DefaultProvider returns the configured default provider name.
func (r *Router) DefaultProvider() string { return r.defaultProvider }

// Generate sends req to the provider it names, or the default provider.
func (r *Router) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	name := req.Provider
	if name == "" {
		name = r.defaultProvider
	}
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, name)
	}
	if !p.IsAvailable() {
		r.metrics.observe(name, outcomeUnavailable, 0)
		return nil, fmt.Errorf("%w: %s", ErrProviderUnavailable, name)
	}
	return r.call(ctx, p, req)
}

func (r *Router) call(ctx context.Context, p Provider, req GenerateRequest) (*GenerateResponse, error) {
	callCtx := ctx
	if r.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.callTimeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := p.Generate(callCtx, req)
	elapsed := time.Since(start)

	if err != nil {
		outcome := outcomeError
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			outcome = outcomeTimeout
			err = NewTransientError(fmt.Errorf("%s: call timed out after %s: %w", p.Name(), elapsed.Round(time.Millisecond), err))
		}
		r.metrics.observe(p.Name(), outcome, elapsed)
		return nil, err
	}
	if resp == nil {
		r.metrics.observe(p.Name(), outcomeError, elapsed)
		return nil, NewFatalError(fmt.Errorf("%s returned no response", p.Name()))
	}
	if resp.Provider == "" {
		resp.Provider = p.Name()
	}
	r.metrics.observe(p.Name(), outcomeSuccess, elapsed)
	r.logger.Debug("generation complete",
		"provider", resp.Provider,
		"model", resp.Model,
		"finish_reason", resp.FinishReason,
		"duration", elapsed)
	return resp, nil
}

// GenerateWithFallback tries req.Provider (or the default) first and then each
// fallback in order, one attempt each. The first success wins. When every
// candidate fails the result matches ErrAllProvidersFailed.
func (r *Router) GenerateWithFallback(ctx context.Context, req GenerateRequest, fallbacks []string) (*GenerateResponse, error) {
	primary := req.Provider
	if primary == "" {
		primary = r.defaultProvider
	}
	chain := make([]string, 0, len(fallbacks)+1)
	seen := make(map[string]bool, len(fallbacks)+1)
	for _, name := range append([]string{primary}, fallbacks...) {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		chain = append(chain, name)
	}

	fe := &FallbackError{}
	for _, name := range chain {
		if err := ctx.Err(); err != nil {
			fe.Attempts = append(fe.Attempts, &AttemptError{Provider: name, Err: err})
			break
		}
		attempt := req
		attempt.Provider = name
		resp, err := r.Generate(ctx, attempt)
		if err == nil {
			if len(fe.Attempts) > 0 {
				r.logger.Info("fallback provider succeeded", "provider", name, "failed", len(fe.Attempts))
			}
			return resp, nil
		}
		fe.Attempts = append(fe.Attempts, &AttemptError{Provider: name, Err: err})
		r.logger.Warn("provider failed, trying fallback", "provider", name, "error", err)
	}
	return nil, fe
}

// SelectProvider picks a provider by keyword. "code"/"technical" prefer the
// coding provider and "creative"/"writing" the prose provider when those are
// available; otherwise the first available provider in registration order;
// otherwise the default name, available or not.
func (r *Router) SelectProvider(task string) string {
	lower := strings.ToLower(task)
	if containsAny(lower, codingKeywords) && r.available(r.codingProvider) {
		return r.codingProvider
	}
	if containsAny(lower, proseKeywords) && r.available(r.proseProvider) {
		return r.proseProvider
	}
	if avail := r.ListAvailable(); len(avail) > 0 {
		return avail[0]
	}
	return r.defaultProvider
}

// ListAvailable returns available provider names in registration order.
func (r *Router) ListAvailable() []string {
	out := make([]string, 0, len(r.order))
	for _, name := range r.order {
		if r.providers[name].IsAvailable() {
			out = append(out, name)
		}
	}
	return out
}

// Status reports every registered provider in registration order.
func (r *Router) Status() []ProviderStatus {
	out := make([]ProviderStatus, 0, len(r.order))
	for _, name := range r.order {
		p := r.providers[name]
		out = append(out, ProviderStatus{Name: name, Available: p.IsAvailable(), RateLimit: p.RateLimit()})
	}
	return out
}

func (r *Router) available(name string) bool {
	p, ok := r.providers[name]
	return ok && p.IsAvailable()
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
