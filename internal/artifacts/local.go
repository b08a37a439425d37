package artifacts

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
)

// LocalStore stores artifacts on local disk, for development and
// single-node deployments.
type LocalStore struct {
	basePath string
}

// NewLocalStore creates a filesystem-backed artifact store rooted at basePath.
func NewLocalStore(basePath string) (*LocalStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("artifacts: create base dir: %w", err)
	}
	return &LocalStore{basePath: basePath}, nil
}

func (l *LocalStore) Store(ctx context.Context, key string, data []byte) (string, error) {
	path := filepath.Join(l.basePath, url.PathEscape(key))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("artifacts: write: %w", err)
	}
	return path, nil
}

func (l *LocalStore) Retrieve(ctx context.Context, reference string) ([]byte, error) {
	return os.ReadFile(reference)
}
