// Package crypto holds the companion's signing identity: one Ed25519 keypair
// used to sign action plans and to verify plans presented back to it.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/Steve-IX/Ezra/pkg/canonicalize"
	"github.com/Steve-IX/Ezra/pkg/contracts"
)

// seedInfo domain-separates seed stretching from any other HKDF use of the same material.
const seedInfo = "ezra-signing-seed"

// ErrEmptySeed is returned when deterministic key derivation gets no material.
var ErrEmptySeed = errors.New("signing seed is empty")

// Signer signs arbitrary payloads and verifies detached signatures.
type Signer interface {
	Sign(payload any) (contracts.Signature, error)
	Verify(payload any, sig contracts.Signature) bool
	PublicKey() string
	Algorithm() string
}

// Ed25519Signer holds one keypair for the life of the process. It is read-only
// after construction and safe for concurrent use.
type Ed25519Signer struct {
	privKey ed25519.PrivateKey
	pubKey  ed25519.PublicKey
	now     func() time.Time
}

// NewEd25519Signer generates a fresh keypair.
func NewEd25519Signer() (*Ed25519Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("key generation failed: %w", err)
	}
	return &Ed25519Signer{privKey: priv, pubKey: pub, now: time.Now}, nil
}

// NewEd25519SignerFromSeed derives a keypair deterministically. A 32-byte seed
// is used as the Ed25519 seed directly; other material is stretched with
// HKDF-SHA256.
func NewEd25519SignerFromSeed(seed []byte) (*Ed25519Signer, error) {
	if len(seed) == 0 {
		return nil, ErrEmptySeed
	}
	keySeed := seed
	if len(seed) != ed25519.SeedSize {
		keySeed = make([]byte, ed25519.SeedSize)
		r := hkdf.New(sha256.New, seed, nil, []byte(seedInfo))
		if _, err := io.ReadFull(r, keySeed); err != nil {
			return nil, fmt.Errorf("seed derivation failed: %w", err)
		}
	}
	priv := ed25519.NewKeyFromSeed(keySeed)
	return NewEd25519SignerFromKey(priv), nil
}

// NewEd25519SignerFromKey wraps an existing private key.
func NewEd25519SignerFromKey(priv ed25519.PrivateKey) *Ed25519Signer {
	return &Ed25519Signer{
		privKey: priv,
		pubKey:  priv.Public().(ed25519.PublicKey),
		now:     time.Now,
	}
}

// Sign produces a detached signature over the canonical JSON of payload.
func (s *Ed25519Signer) Sign(payload any) (contracts.Signature, error) {
	msg, err := canonicalize.JCS(payload)
	if err != nil {
		return contracts.Signature{}, fmt.Errorf("canonicalize payload: %w", err)
	}
	return contracts.Signature{
		Algorithm: contracts.AlgorithmEd25519,
		PublicKey: s.PublicKey(),
		Signature: base64.StdEncoding.EncodeToString(ed25519.Sign(s.privKey, msg)),
		Timestamp: s.now().UTC(),
	}, nil
}

// Verify checks sig against the canonical JSON of payload using the public
// key embedded in sig. Any decoding problem or mismatch yields false.
func (s *Ed25519Signer) Verify(payload any, sig contracts.Signature) bool {
	return Verify(payload, sig)
}

// PublicKey returns the base64 encoded public key.
func (s *Ed25519Signer) PublicKey() string {
	return base64.StdEncoding.EncodeToString(s.pubKey)
}

// PublicKeyBytes returns the raw public key.
func (s *Ed25519Signer) PublicKeyBytes() []byte {
	return s.pubKey
}

// Algorithm names the signature scheme.
func (s *Ed25519Signer) Algorithm() string { return contracts.AlgorithmEd25519 }

// SignEnvelope signs payload and returns it together with its signature.
func (s *Ed25519Signer) SignEnvelope(payload any) (contracts.SignedEnvelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return contracts.SignedEnvelope{}, fmt.Errorf("marshal payload: %w", err)
	}
	sig, err := s.Sign(json.RawMessage(data))
	if err != nil {
		return contracts.SignedEnvelope{}, err
	}
	return contracts.SignedEnvelope{Data: data, Signature: sig}, nil
}

// Trusted reports whether sig was made with this signer's key.
func (s *Ed25519Signer) Trusted(sig contracts.Signature) bool {
	return sig.PublicKey == s.PublicKey()
}
