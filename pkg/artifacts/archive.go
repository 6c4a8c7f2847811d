package artifacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Steve-IX/Ezra/pkg/canonicalize"
	"github.com/Steve-IX/Ezra/pkg/contracts"
	"github.com/Steve-IX/Ezra/pkg/crypto"
)

// ErrInvalidSignature is returned when an archived envelope no longer verifies.
var ErrInvalidSignature = errors.New("archived plan signature invalid")

// Archive stores signed plan envelopes and re-verifies them on read.
type Archive struct {
	store Store
}

// NewArchive wraps store.
func NewArchive(store Store) *Archive {
	return &Archive{store: store}
}

// PutPlan stores the canonical form of env and returns its content hash.
// Identical envelopes always map to the same hash.
func (a *Archive) PutPlan(ctx context.Context, env contracts.SignedEnvelope) (string, error) {
	if len(env.Data) == 0 {
		return "", errors.New("archive: empty envelope data")
	}
	data, err := canonicalize.JCS(env)
	if err != nil {
		return "", fmt.Errorf("archive: canonicalize envelope: %w", err)
	}
	return a.store.Store(ctx, data)
}

// GetPlan loads an envelope and checks its signature still holds.
func (a *Archive) GetPlan(ctx context.Context, hash string) (*contracts.SignedEnvelope, error) {
	data, err := a.store.Get(ctx, hash)
	if err != nil {
		return nil, err
	}
	if got, _ := ContentHash(data); got != hash {
		return nil, fmt.Errorf("archive: integrity mismatch for %s", hash)
	}

	var env contracts.SignedEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("archive: decode envelope: %w", err)
	}
	if ok, _ := crypto.OpenEnvelope(env); !ok {
		return nil, ErrInvalidSignature
	}
	return &env, nil
}
