package crypto

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/Steve-IX/Ezra/pkg/canonicalize"
	"github.com/Steve-IX/Ezra/pkg/contracts"
)

// Verify checks a detached signature against the canonical JSON of payload.
// It never panics and reports every failure, including malformed input, as false.
func Verify(payload any, sig contracts.Signature) bool {
	if !strings.EqualFold(strings.TrimSpace(sig.Algorithm), contracts.AlgorithmEd25519) {
		return false
	}
	pub, err := base64.StdEncoding.DecodeString(strings.TrimSpace(sig.PublicKey))
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(sig.Signature))
	if err != nil || len(raw) != ed25519.SignatureSize {
		return false
	}
	msg, err := canonicalize.JCS(payload)
	if err != nil {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), msg, raw)
}

// OpenEnvelope verifies env and returns its data only when the signature holds.
func OpenEnvelope(env contracts.SignedEnvelope) (bool, json.RawMessage) {
	if len(env.Data) == 0 || !Verify(env.Data, env.Signature) {
		return false, nil
	}
	return true, env.Data
}
