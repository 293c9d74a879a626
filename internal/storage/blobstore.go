package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var ErrUnsupportedContentType = errors.New("unsupported content type")

// BlobStore stores binary blobs and hands back opaque references
type BlobStore interface {
	Store(ctx context.Context, r io.Reader, contentType string) (string, error)
	Delete(ctx context.Context, reference string) error
}

type fileBlobStore struct {
	dir string
}

// NewFileBlobStore creates a BlobStore backed by a local directory
func NewFileBlobStore(dir string) (BlobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &fileBlobStore{dir: dir}, nil
}

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Store writes the blob under a generated name and returns its reference
func (s *fileBlobStore) Store(ctx context.Context, r io.Reader, contentType string) (string, error) {
	ext, ok := extensions[strings.ToLower(contentType)]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedContentType, contentType)
	}

	name := uuid.New().String() + ext
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create blob file: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to write blob: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to close blob file: %w", err)
	}

	return name, nil
}

// Delete removes a stored blob. A missing blob is not an error.
func (s *fileBlobStore) Delete(ctx context.Context, reference string) error {
	// Reject path traversal in references
	if reference != filepath.Base(reference) {
		return fmt.Errorf("invalid blob reference: %s", reference)
	}

	err := os.Remove(filepath.Join(s.dir, reference))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}
