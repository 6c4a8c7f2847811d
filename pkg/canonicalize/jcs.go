// Package canonicalize provides RFC 8785 (JSON Canonicalization Scheme) serialization
// so that signatures over plans do not depend on field order or number formatting.
package canonicalize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// JCS returns the RFC 8785 canonical JSON representation of v.
//
// v is first marshaled with encoding/json so struct tags and omitempty are
// honored, then transformed: object members are sorted by UTF-16 code units,
// numbers use the ES6 shortest form and strings are minimally escaped.
// A json.RawMessage or []byte holding JSON is canonicalized as-is.
func JCS(v any) ([]byte, error) {
	var raw []byte
	switch t := v.(type) {
	case json.RawMessage:
		raw = t
	case []byte:
		raw = t
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("jcs: pre-marshal failed: %w", err)
		}
		raw = b
	}

	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("jcs: transform failed: %w", err)
	}
	return out, nil
}

// CanonicalHash returns the SHA-256 hex digest of the canonical JSON representation of v.
func CanonicalHash(v any) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes computes SHA-256 hash of raw bytes and returns hex string
func HashBytes(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
