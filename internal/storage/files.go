// Package storage writes uploaded payment evidence to disk. Stored paths are
// namespaced by school and request with a randomized filename, so a
// user-supplied name never becomes a storage key.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// EvidenceStore is the file-storage contract the evidence service depends on.
type EvidenceStore interface {
	// Write stores content and returns the path, relative to the store root,
	// that the database row should reference.
	Write(ctx context.Context, schoolID, requestID, ext string, content []byte) (string, error)
	// Read returns the content previously stored at a returned path.
	Read(ctx context.Context, storedPath string) ([]byte, error)
}

// LocalStore stores evidence files under a root directory.
type LocalStore struct {
	root string
}

// NewLocalStore creates the root directory if needed.
func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create evidence root: %w", err)
	}
	return &LocalStore{root: root}, nil
}

// Write stores content at <school>/<request>/<random>.<ext> and returns that
// relative path.
func (s *LocalStore) Write(_ context.Context, schoolID, requestID, ext string, content []byte) (string, error) {
	rel := filepath.Join(schoolID, requestID, fmt.Sprintf("%s.%s", uuid.NewString(), ext))
	abs := filepath.Join(s.root, rel)

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("create evidence dir: %w", err)
	}
	if err := os.WriteFile(abs, content, 0o644); err != nil {
		return "", fmt.Errorf("write evidence file: %w", err)
	}
	return rel, nil
}

// Read loads a stored evidence file. Paths that escape the root are refused.
func (s *LocalStore) Read(_ context.Context, storedPath string) ([]byte, error) {
	abs := filepath.Join(s.root, filepath.Clean(string(filepath.Separator)+storedPath))
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read evidence file: %w", err)
	}
	return data, nil
}
