// Package imagestorelocal implements the image store on local disk,
// for development and tests.
package imagestorelocal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/relightlabs/relight/pkg/imagestore"
)

// LocalStore implements imagestore.Store using local disk
type LocalStore struct {
	basePath string
}

// New creates a local image store rooted at basePath.
func New(basePath string) (*LocalStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	return &LocalStore{basePath: absPath}, nil
}

func (s *LocalStore) Upload(ctx context.Context, key string, data []byte, meta imagestore.Meta) (string, error) {
	if len(data) == 0 {
		return "", imagestore.NewEmptyData()
	}

	fullPath := filepath.Join(s.basePath, filepath.Clean("/"+key))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", imagestore.WrapUpload(err)
	}
	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return "", imagestore.WrapUpload(err)
	}
	return "file://" + fullPath, nil
}

// PresignedDownloadURL has no expiry semantics on disk; the file URL
// itself is returned.
func (s *LocalStore) PresignedDownloadURL(ctx context.Context, key string, _ time.Duration) (string, error) {
	fullPath := filepath.Join(s.basePath, filepath.Clean("/"+key))
	if _, err := os.Stat(fullPath); err != nil {
		return "", imagestore.WrapPresign(err)
	}
	return "file://" + fullPath, nil
}
