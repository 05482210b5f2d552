package providers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LocalObjectStore implements ObjectStorePort against a filesystem
// directory. Keys are chosen by the caller; this adapter just maps a key to
// a path.
type LocalObjectStore struct {
	root string
}

func NewLocalObjectStore(root string) *LocalObjectStore {
	return &LocalObjectStore{root: root}
}

func (s *LocalObjectStore) keyPath(key string) string {
	return filepath.Join(s.root, key)
}

func (s *LocalObjectStore) Put(ctx context.Context, key string, data []byte) error {
	full := s.keyPath(key)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("mkdir object dir: %w", err)
	}
	return os.WriteFile(full, data, 0o644)
}

func (s *LocalObjectStore) Get(ctx context.Context, key string) ([]byte, error) {
	return os.ReadFile(s.keyPath(key))
}

func (s *LocalObjectStore) Delete(ctx context.Context, key string) error {
	err := os.Remove(s.keyPath(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// PresignedRead has no real pre-signing on a local filesystem; it returns a
// file:// URL, good enough for a local/dev deployment and the one place a
// real S3-backed ObjectStorePort implementation would diverge.
func (s *LocalObjectStore) PresignedRead(ctx context.Context, key string, ttl time.Duration) (string, error) {
	full := s.keyPath(key)
	if _, err := os.Stat(full); err != nil {
		return "", err
	}
	return "file://" + full, nil
}
