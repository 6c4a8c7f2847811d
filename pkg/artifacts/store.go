// Package artifacts archives signed plans in content-addressed storage.
package artifacts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Steve-IX/Ezra/pkg/canonicalize"
)

// ErrNotFound is returned when no blob exists for a hash.
var ErrNotFound = errors.New("artifact not found")

const hashPrefix = "sha256:"

// Store is content-addressed blob storage keyed by "sha256:<hex>".
type Store interface {
	// Store persists data and returns its content hash.
	Store(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, hash string) ([]byte, error)
	Exists(ctx context.Context, hash string) (bool, error)
	Delete(ctx context.Context, hash string) error
}

// ContentHash returns the prefixed SHA-256 of data and its bare hex form.
func ContentHash(data []byte) (prefixed, raw string) {
	raw = canonicalize.HashBytes(data)
	return hashPrefix + raw, raw
}

// rawHash validates a "sha256:<hex>" reference and returns the hex part.
func rawHash(hash string) (string, error) {
	raw, ok := strings.CutPrefix(hash, hashPrefix)
	if !ok {
		return "", fmt.Errorf("invalid hash format: %s", hash)
	}
	if b, err := hex.DecodeString(raw); err != nil || len(b) != sha256.Size {
		return "", fmt.Errorf("invalid hash hex: %s", hash)
	}
	return raw, nil
}

// FileStore is a filesystem-backed implementation of Store.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileStore creates a store rooted at baseDir.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to ensure archive dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) path(raw string) string {
	return filepath.Join(s.baseDir, raw+".json")
}

func (s *FileStore) Store(_ context.Context, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefixed, raw := ContentHash(data)
	path := s.path(raw)
	if _, err := os.Stat(path); err == nil {
		return prefixed, nil
	}

	// Write to temp, then rename
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("failed to commit blob: %w", err)
	}
	return prefixed, nil
}

func (s *FileStore) Get(_ context.Context, hash string) ([]byte, error) {
	raw, err := rawHash(hash)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(raw)) //nolint:gosec // hash validated as hex
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, hash)
	}
	return data, err
}

func (s *FileStore) Exists(_ context.Context, hash string) (bool, error) {
	raw, err := rawHash(hash)
	if err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err = os.Stat(s.path(raw))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

func (s *FileStore) Delete(_ context.Context, hash string) error {
	raw, err := rawHash(hash)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(raw)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}
