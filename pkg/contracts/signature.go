package contracts

import (
	"encoding/json"
	"time"
)

// AlgorithmEd25519 is the only signature algorithm issued by the companion.
const AlgorithmEd25519 = "Ed25519"

// Signature is a detached signature over the canonical form of a payload.
type Signature struct {
	Algorithm string    `json:"algorithm"`
	PublicKey string    `json:"public_key"` // base64 std
	Signature string    `json:"signature"`  // base64 std
	Timestamp time.Time `json:"timestamp"`
}

// SignedEnvelope pairs a payload with its signature.
type SignedEnvelope struct {
	Data      json.RawMessage `json:"data"`
	Signature Signature       `json:"signature"`
}
