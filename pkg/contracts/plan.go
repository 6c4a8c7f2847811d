package contracts

import "time"

// DefaultPlanTTL is how long a plan stays advisory-valid after creation.
const DefaultPlanTTL = 24 * time.Hour

// TokenUsage records provider token accounting for one generation.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// PlanMetadata describes how a plan was produced.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type PlanMetadata struct {
	Provider   string      `json:"provider"`
	Model      string      `json:"model"`
	Confidence float64     `json:"confidence"`
	Reasoning  string      `json:"reasoning"`
	TokenUsage *TokenUsage `json:"token_usage,omitempty"`
	// Fallback is set when the reply could not be parsed into steps.
	Fallback bool `json:"fallback,omitempty"`
}

// ActionPlan is the signed unit handed to executors.
//
// RiskLevel and ConsentRequired are filled in before signing so the
// signature covers them. Signature is attached afterwards and never part
// of the signed bytes.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type ActionPlan struct {
	ID              string       `json:"id"`
	DeviceID        string       `json:"device_id"`
	CreatedAt       time.Time    `json:"created_at"`
	ExpiresAt       time.Time    `json:"expires_at"`
	SchemaVersion   string       `json:"schema_version"`
	Actions         []Action     `json:"actions"`
	RiskLevel       RiskLevel    `json:"risk_level,omitempty"`
	ConsentRequired bool         `json:"consent_required"`
	Metadata        PlanMetadata `json:"metadata"`
	Signature       *Signature   `json:"signature,omitempty"`
}

// Unsigned returns a copy of p without its signature.
func (p ActionPlan) Unsigned() ActionPlan {
	p.Signature = nil
	return p
}

// Expired reports whether the plan's advisory expiry has passed at now.
func (p ActionPlan) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && now.After(p.ExpiresAt)
}

// PlanRequest is the input to plan generation.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type PlanRequest struct {
	Device     DeviceInfo   `json:"device_info"`
	UserPrompt string       `json:"user_prompt"`
	Context    *PlanContext `json:"context,omitempty"`
}

// PlanContext carries optional history and constraints for the prompt.
type PlanContext struct {
	PreviousActions []string `json:"previous_actions,omitempty"`
	Constraints     []string `json:"constraints,omitempty"`
}

// PlanResult is returned by plan generation.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type PlanResult struct {
	ActionPlan           *ActionPlan `json:"action_plan"`
	HumanReadableSummary string      `json:"human_readable_summary"`
	ConsentRequired      bool        `json:"consent_required"`
	EstimatedRisk        RiskLevel   `json:"estimated_risk"`
}
