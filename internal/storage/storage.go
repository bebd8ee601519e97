// Package storage persists scrape artifacts. Every research run stores the
// raw homepage snapshot so a classification can be traced back to the exact
// bytes it was derived from.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ignite/leadflow/internal/config"
)

// Store reads and writes scrape artifacts.
type Store interface {
	Put(ctx context.Context, leadID, name string, data []byte) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

// New selects the configured backend.
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Type {
	case "s3":
		return NewS3Store(ctx, cfg.S3Bucket, cfg.AWSRegion, "artifacts")
	case "local", "":
		return NewLocalStore(cfg.LocalPath)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// LocalStore writes artifacts under a base directory on the local
// filesystem. Suitable for single-node deployments and tests.
type LocalStore struct {
	baseDir string
}

// NewLocalStore creates the base directory if needed.
func NewLocalStore(baseDir string) (*LocalStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &LocalStore{baseDir: baseDir}, nil
}

// Put stores one artifact and returns its path relative to the base dir.
func (s *LocalStore) Put(_ context.Context, leadID, name string, data []byte) (string, error) {
	rel := artifactKey(leadID, name)
	full := filepath.Join(s.baseDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create lead dir: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return rel, nil
}

// Get reads an artifact back by the path Put returned.
func (s *LocalStore) Get(_ context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, filepath.FromSlash(path)))
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return data, nil
}

// artifactKey builds the stable lead-scoped key used by both backends.
// Path separators in the name are flattened so a crafted name cannot
// escape the lead's prefix.
func artifactKey(leadID, name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	return leadID + "/" + name
}
