// Package agent runs the plan pipeline: synthesize, assess risk, sign, and
// verify plans that come back from executors.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/Steve-IX/Ezra/pkg/artifacts"
	"github.com/Steve-IX/Ezra/pkg/canonicalize"
	"github.com/Steve-IX/Ezra/pkg/contracts"
	"github.com/Steve-IX/Ezra/pkg/crypto"
	"github.com/Steve-IX/Ezra/pkg/events"
	"github.com/Steve-IX/Ezra/pkg/observability"
	"github.com/Steve-IX/Ezra/pkg/risk"
	"github.com/Steve-IX/Ezra/pkg/store"
)

// ErrInvalidRequest marks a plan request the caller must fix.
var ErrInvalidRequest = errors.New("invalid plan request")

const actor = "ezra-companion"

// Synthesizer produces an unsigned plan for a request.
type Synthesizer interface {
	Synthesize(ctx context.Context, req contracts.PlanRequest, device contracts.DeviceInfo) (*contracts.ActionPlan, error)
}

// Service is the plan pipeline. It is safe for concurrent use once built.
type Service struct {
	synth     Synthesizer
	signer    *crypto.Ed25519Signer
	policy    *risk.Policy
	ledger    store.Ledger
	archive   *artifacts.Archive
	publisher events.Publisher
	obs       *observability.Provider
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithPolicy escalates risk with operator rules before aggregation.
func WithPolicy(p *risk.Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithLedger records issued and verified plans.
func WithLedger(l store.Ledger) Option {
	return func(s *Service) {
		if l != nil {
			s.ledger = l
		}
	}
}

// WithArchive stores every signed plan envelope.
func WithArchive(a *artifacts.Archive) Option {
	return func(s *Service) { s.archive = a }
}

// WithPublisher announces plan events.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithObservability traces pipeline operations.
func WithObservability(p *observability.Provider) Option {
	return func(s *Service) { s.obs = p }
}

// WithClock overrides the verification timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger.With("component", "agent") }
}

// NewService wires the pipeline. Sinks default to no-ops.
func NewService(synth Synthesizer, signer *crypto.Ed25519Signer, opts ...Option) *Service {
	s := &Service{
		synth:     synth,
		signer:    signer,
		ledger:    store.Nop{},
		publisher: events.Nop{},
		now:       time.Now,
		logger:    slog.Default().With("component", "agent"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PublicKey returns the base64 signing key.
func (s *Service) PublicKey() string { return s.signer.PublicKey() }

// Algorithm returns the signature algorithm name.
func (s *Service) Algorithm() string { return s.signer.Algorithm() }

func validateRequest(req contracts.PlanRequest) error {
	if err := req.Device.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if strings.TrimSpace(req.UserPrompt) == "" {
		return fmt.Errorf("%w: user_prompt is required", ErrInvalidRequest)
	}
	return nil
}

// GeneratePlan synthesizes, risk-assesses and signs a plan. The signature
// covers the plan's risk level and consent flag.
func (s *Service) GeneratePlan(ctx context.Context, req contracts.PlanRequest) (_ *contracts.PlanResult, err error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	ctx, done := s.obs.TrackOperation(ctx, "plan.generate",
		observability.PlanOperation(req.Device.ID, string(req.Device.Platform))...)
	defer func() { done(err) }()

	plan, err := s.synth.Synthesize(ctx, req, req.Device)
	if err != nil {
		return nil, fmt.Errorf("synthesize plan: %w", err)
	}

	s.policy.Escalate(plan.Actions, req.Device)
	risk.Apply(plan)

	sig, err := s.signer.Sign(plan.Unsigned())
	if err != nil {
		return nil, fmt.Errorf("sign plan: %w", err)
	}
	plan.Signature = &sig
	trace.SpanFromContext(ctx).SetAttributes(
		observability.AttrPlanID.String(plan.ID),
		observability.AttrRiskLevel.String(string(plan.RiskLevel)),
		observability.AttrProvider.String(plan.Metadata.Provider),
	)

	s.logger.InfoContext(ctx, "plan issued",
		"plan_id", plan.ID,
		"device_id", plan.DeviceID,
		"actions", len(plan.Actions),
		"risk", plan.RiskLevel,
		"consent", plan.ConsentRequired,
		"provider", plan.Metadata.Provider,
		"fallback", plan.Metadata.Fallback,
	)
	s.recordIssued(ctx, plan)

	return &contracts.PlanResult{
		ActionPlan:           plan,
		HumanReadableSummary: risk.Summarize(plan.Actions),
		ConsentRequired:      plan.ConsentRequired,
		EstimatedRisk:        plan.RiskLevel,
	}, nil
}

// recordIssued feeds the archive, ledger and bus. Failures are logged only.
func (s *Service) recordIssued(ctx context.Context, plan *contracts.ActionPlan) {
	data, err := json.Marshal(plan.Unsigned())
	if err != nil {
		s.logger.WarnContext(ctx, "marshal plan for sinks", "plan_id", plan.ID, "error", err)
		return
	}
	// The ledger hash covers the exact bytes the signature was made over.
	payloadHash := ""
	if sum, err := canonicalize.CanonicalHash(data); err == nil {
		payloadHash = "sha256:" + sum
	}

	var ref string
	if s.archive != nil {
		ref, err = s.archive.PutPlan(ctx, contracts.SignedEnvelope{Data: data, Signature: *plan.Signature})
		if err != nil {
			s.logger.WarnContext(ctx, "archive plan failed", "plan_id", plan.ID, "error", err)
		}
	}

	entry := store.Entry{
		Event:       store.EventPlanned,
		Actor:       actor,
		PlanID:      plan.ID,
		DeviceID:    plan.DeviceID,
		RiskLevel:   string(plan.RiskLevel),
		Consent:     plan.ConsentRequired,
		PayloadHash: payloadHash,
		ArchiveRef:  ref,
	}
	if err := s.ledger.Record(ctx, entry); err != nil {
		s.logger.WarnContext(ctx, "ledger record failed", "plan_id", plan.ID, "error", err)
	}

	ev := events.PlanEvent{
		PlanID:          plan.ID,
		DeviceID:        plan.DeviceID,
		RiskLevel:       string(plan.RiskLevel),
		ConsentRequired: plan.ConsentRequired,
		Provider:        plan.Metadata.Provider,
		ContentHash:     ref,
		Timestamp:       plan.CreatedAt,
	}
	if err := s.publisher.Publish(ctx, events.SubjectPlanIssued, ev); err != nil {
		s.logger.WarnContext(ctx, "publish plan event failed", "plan_id", plan.ID, "error", err)
	}
}
