package agent

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/Steve-IX/Ezra/pkg/canonicalize"
	"github.com/Steve-IX/Ezra/pkg/contracts"
	"github.com/Steve-IX/Ezra/pkg/crypto"
	"github.com/Steve-IX/Ezra/pkg/events"
	"github.com/Steve-IX/Ezra/pkg/observability"
	"github.com/Steve-IX/Ezra/pkg/store"
)

// Verification is the outcome of checking a presented plan.
type Verification struct {
	Valid bool `json:"valid"`
	// Trusted is set when the plan was signed with this companion's key.
	Trusted          bool      `json:"trusted"`
	SchemaCompatible bool      `json:"schema_compatible"`
	Expired          bool      `json:"expired"`
	Timestamp        time.Time `json:"timestamp"`
}

// planHeader is the subset of plan fields used for bookkeeping.
type planHeader struct {
	ID            string    `json:"id"`
	DeviceID      string    `json:"device_id"`
	SchemaVersion string    `json:"schema_version"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// VerifyPlan reports whether sig is a valid signature over data. Malformed
// input yields false.
func (s *Service) VerifyPlan(ctx context.Context, data json.RawMessage, sig contracts.Signature) bool {
	return s.Inspect(ctx, data, sig).Valid
}

// Inspect verifies data and reports trust, schema and expiry details. A
// top-level "signature" member is ignored because plans are signed before
// their signature is attached. Expiry is advisory and does not affect Valid.
func (s *Service) Inspect(ctx context.Context, data json.RawMessage, sig contracts.Signature) (v Verification) {
	v.Timestamp = s.now().UTC()

	ctx, done := s.obs.TrackOperation(ctx, "plan.verify")
	defer func() {
		trace.SpanFromContext(ctx).SetAttributes(observability.AttrVerified.Bool(v.Valid))
		done(nil)
	}()

	payload, ok := stripSignature(data)
	if !ok {
		s.logger.DebugContext(ctx, "verify: malformed plan JSON")
		return v
	}
	v.Valid = crypto.Verify(payload, sig)
	v.Trusted = v.Valid && s.signer.Trusted(sig)

	var hdr planHeader
	_ = json.Unmarshal(payload, &hdr)
	compatible, err := contracts.SchemaCompatible(hdr.SchemaVersion)
	v.SchemaCompatible = err == nil && compatible
	v.Expired = !hdr.ExpiresAt.IsZero() && v.Timestamp.After(hdr.ExpiresAt)

	s.recordVerified(ctx, hdr, v)
	return v
}

// stripSignature drops a top-level "signature" member from an object.
// Non-object JSON is returned unchanged. Input with duplicate member names is
// rejected, since decoding it into a map would keep only the last value.
func stripSignature(data json.RawMessage) (json.RawMessage, bool) {
	if _, err := canonicalize.JCS(data); err != nil {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return data, true
	}
	if _, ok := obj["signature"]; !ok {
		return data, true
	}
	delete(obj, "signature")
	out, err := json.Marshal(obj)
	if err != nil {
		return nil, false
	}
	return out, true
}

func (s *Service) recordVerified(ctx context.Context, hdr planHeader, v Verification) {
	event := store.EventVerified
	if !v.Valid {
		event = store.EventVerificationFailed
	}
	s.logger.InfoContext(ctx, "plan verification",
		"plan_id", hdr.ID,
		"valid", v.Valid,
		"trusted", v.Trusted,
		"schema_compatible", v.SchemaCompatible,
	)
	if hdr.ID == "" {
		return
	}

	if err := s.ledger.Record(ctx, store.Entry{
		Timestamp: v.Timestamp,
		Event:     event,
		Actor:     actor,
		PlanID:    hdr.ID,
		DeviceID:  hdr.DeviceID,
	}); err != nil {
		s.logger.WarnContext(ctx, "ledger record failed", "plan_id", hdr.ID, "error", err)
	}

	valid := v.Valid
	if err := s.publisher.Publish(ctx, events.SubjectPlanVerified, events.PlanEvent{
		PlanID:    hdr.ID,
		DeviceID:  hdr.DeviceID,
		Valid:     &valid,
		Timestamp: v.Timestamp,
	}); err != nil {
		s.logger.WarnContext(ctx, "publish verify event failed", "plan_id", hdr.ID, "error", err)
	}
}
