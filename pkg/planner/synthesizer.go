// Package planner turns free-form model replies into structured action plans.
package planner

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Steve-IX/Ezra/pkg/contracts"
	"github.com/Steve-IX/Ezra/pkg/llm"
)

// Generation parameters for plan synthesis.
const (
	DefaultMaxTokens   = 2000
	DefaultTemperature = 0.3
	// DefaultConfidence is recorded when the provider gave no score.
	DefaultConfidence = 0.5
)

// Router is the subset of llm.Router the synthesizer needs.
type Router interface {
	SelectProvider(task string) string
	Generate(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error)
	GenerateWithFallback(ctx context.Context, req llm.GenerateRequest, fallbacks []string) (*llm.GenerateResponse, error)
}

// Synthesizer builds unsigned plans from a request and a device snapshot.
type Synthesizer struct {
	router    Router
	fallbacks []string
	ttl       time.Duration
	now       func() time.Time
	newID     func() string
	logger    *slog.Logger
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithFallbacks routes through GenerateWithFallback using these providers
// after the selected one.
func WithFallbacks(names ...string) Option {
	return func(s *Synthesizer) {
		s.fallbacks = append([]string(nil), names...)
	}
}

// WithPlanTTL sets how long plans stay valid.
func WithPlanTTL(d time.Duration) Option {
	return func(s *Synthesizer) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Synthesizer) {
		s.now = now
	}
}

// WithIDGenerator overrides plan id generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Synthesizer) {
		s.newID = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Synthesizer) {
		s.logger = logger
	}
}

// New creates a Synthesizer over router.
func New(router Router, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		router: router,
		ttl:    contracts.DefaultPlanTTL,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "planner")
	return s
}

// Synthesize asks a provider for a plan and parses the reply. Provider
// errors are returned unchanged; unparseable replies degrade to a single
// consent-gated fallback action.
func (s *Synthesizer) Synthesize(ctx context.Context, req contracts.PlanRequest, device contracts.DeviceInfo) (*contracts.ActionPlan, error) {
	temperature := DefaultTemperature
	genReq := llm.GenerateRequest{
		Provider:     s.router.SelectProvider(req.UserPrompt),
		SystemPrompt: SystemPrompt(device),
		Prompt:       UserPrompt(req),
		MaxTokens:    DefaultMaxTokens,
		Temperature:  &temperature,
	}

	var (
		resp *llm.GenerateResponse
		err  error
	)
	if len(s.fallbacks) > 0 {
		resp, err = s.router.GenerateWithFallback(ctx, genReq, s.fallbacks)
	} else {
		resp, err = s.router.Generate(ctx, genReq)
	}
	if err != nil {
		return nil, err
	}

	fallback := false
	actions, perr := ExtractActions(resp.Content)
	if perr != nil {
		s.logger.Warn("could not parse plan from reply, using fallback action",
			"provider", resp.Provider,
			"model", resp.Model,
			"error", perr)
		actions = []contracts.Action{FallbackAction(resp.Content)}
		fallback = true
	}

	confidence := DefaultConfidence
	if resp.Confidence != nil {
		confidence = *resp.Confidence
	}

	now := s.now().UTC()
	plan := &contracts.ActionPlan{
		ID:            s.newID(),
		DeviceID:      device.ID,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.ttl),
		SchemaVersion: contracts.PlanSchemaVersion,
		Actions:       actions,
		Metadata: contracts.PlanMetadata{
			Provider:   resp.Provider,
			Model:      resp.Model,
			Confidence: confidence,
			Reasoning:  resp.Content,
			Fallback:   fallback,
		},
	}
	if resp.Usage.TotalTokens > 0 {
		usage := contracts.TokenUsage(resp.Usage)
		plan.Metadata.TokenUsage = &usage
	}
	return plan, nil
}

// FallbackAction wraps an unparseable reply so a human can review it.
func FallbackAction(reply string) contracts.Action {
	return contracts.Action{
		ID:              "action_1",
		Type:            contracts.ActionConfigure,
		Description:     "Review the assistant's reply; it could not be parsed into discrete steps",
		RiskLevel:       contracts.RiskMedium,
		RequiresConsent: true,
		Commands:        []string{"echo " + shellQuote(nfc(reply))},
	}
}

// shellQuote single-quotes s for a POSIX shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
