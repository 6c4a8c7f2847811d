package crypto

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ErrKeyRequired is returned in production mode when no key file exists.
var ErrKeyRequired = errors.New("production mode requires an existing signing key")

// LoadOrGenerateSigner loads a hex encoded seed from path. When the file is
// missing it generates a new key, persists the seed (0600) and writes the
// base64 public key next to it as <path>.pub. Production mode refuses to
// generate.
func LoadOrGenerateSigner(path string, production bool) (*Ed25519Signer, error) {
	if keyHex, err := os.ReadFile(path); err == nil {
		seed, err := hex.DecodeString(strings.TrimSpace(string(keyHex)))
		if err != nil {
			return nil, fmt.Errorf("invalid key file %s: %w", path, err)
		}
		if len(seed) != ed25519.SeedSize {
			return nil, fmt.Errorf("invalid key file %s: seed must be %d bytes", path, ed25519.SeedSize)
		}
		slog.Info("signing key loaded", "path", path)
		return NewEd25519SignerFromKey(ed25519.NewKeyFromSeed(seed)), nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	if production {
		return nil, fmt.Errorf("%w: %s", ErrKeyRequired, path)
	}

	slog.Warn("generating new signing key; use a managed key in production", "path", path)
	signer, err := NewEd25519Signer()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create key dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(signer.privKey.Seed())), 0o600); err != nil {
		return nil, fmt.Errorf("save key file: %w", err)
	}
	pub := base64.StdEncoding.EncodeToString(signer.pubKey)
	if err := os.WriteFile(path+".pub", []byte(pub+"\n"), 0o644); err != nil { //nolint:gosec // public key
		slog.Warn("failed to save public key", "path", path+".pub", "error", err)
	}
	return signer, nil
}
