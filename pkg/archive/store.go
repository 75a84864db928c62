// Package archive keeps exported event bundles and their manifests in
// content-addressed storage.
package archive

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
)

const keyPrefix = "sha256:"

var (
	// ErrInvalidKey is returned for keys that are not "sha256:<hex>".
	ErrInvalidKey = errors.New("archive: invalid content key")
	// ErrNotFound is returned when no object exists under a key.
	ErrNotFound = errors.New("archive: object not found")
)

// Store is content-addressed storage: objects are keyed by the SHA-256 of
// their bytes, so writes are idempotent.
type Store interface {
	Store(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// digest returns the prefixed key and its bare hex form.
func digest(data []byte) (key, raw string) {
	sum := sha256.Sum256(data)
	raw = hex.EncodeToString(sum[:])
	return keyPrefix + raw, raw
}

// parseKey validates key and returns the bare hex digest.
func parseKey(key string) (string, error) {
	raw, ok := strings.CutPrefix(key, keyPrefix)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	b, err := hex.DecodeString(raw)
	if err != nil || len(b) != sha256.Size {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return raw, nil
}

func objectName(prefix, raw string) string {
	return prefix + raw + ".blob"
}

// FileStore keeps objects as files under a directory.
type FileStore struct {
	dir string
	mu  sync.RWMutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	//nolint:gosec // G301: bundles are meant to be shared read-only
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(raw string) string {
	return filepath.Join(s.dir, objectName("", raw))
}

// Store writes data atomically (temp file, then rename).
func (s *FileStore) Store(_ context.Context, data []byte) (string, error) {
	key, raw := digest(data)

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(raw)
	if _, err := os.Stat(path); err == nil {
		return key, nil
	}

	tmp := path + ".tmp"
	//nolint:gosec // G306: bundles are meant to be shared read-only
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write object: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("failed to commit object: %w", err)
	}
	return key, nil
}

// Get reads the object stored under key.
func (s *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	raw, err := parseKey(key)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(raw)) //nolint:gosec // key validated as hex
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, err
	}
	return data, nil
}

// Exists reports whether key is stored.
func (s *FileStore) Exists(_ context.Context, key string) (bool, error) {
	raw, err := parseKey(key)
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

// Delete removes key. Deleting a missing object is not an error.
func (s *FileStore) Delete(_ context.Context, key string) error {
	raw, err := parseKey(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(raw)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}
