// Package store records the plan audit trail: which plans were issued and
// every verification attempt made against them.
package store

import (
	"context"
	"errors"
	"time"
)

// Event is the kind of audit entry.
type Event string

// Audit events.
const (
	EventPlanned            Event = "planned"
	EventVerified           Event = "verified"
	EventVerificationFailed Event = "verification_failed"
)

// ErrNotFound is returned when a plan has no entries.
var ErrNotFound = errors.New("not found")

// Entry is one audit record.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type Entry struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Event       Event     `json:"event"`
	Actor       string    `json:"actor"`
	PlanID      string    `json:"plan_id"`
	DeviceID    string    `json:"device_id"`
	RiskLevel   string    `json:"risk_level,omitempty"`
	Consent     bool      `json:"consent_required"`
	PayloadHash string    `json:"payload_hash,omitempty"`
	ArchiveRef  string    `json:"archive_ref,omitempty"`
}

// Ledger is an append-only audit log.
type Ledger interface {
	Record(ctx context.Context, e Entry) error
	ListForPlan(ctx context.Context, planID string) ([]Entry, error)
}

// Nop discards entries.
type Nop struct{}

// Record implements Ledger.
func (Nop) Record(context.Context, Entry) error { return nil }

// ListForPlan implements Ledger.
func (Nop) ListForPlan(context.Context, string) ([]Entry, error) { return nil, ErrNotFound }
