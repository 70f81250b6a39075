// Package storage persists user uploads (payment screenshots, acceptance
// selfies, college IDs) and returns URLs the API can hand back to clients.
package storage

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store saves uploaded files and returns a URL path for later retrieval.
type Store interface {
	Save(file *multipart.FileHeader, category string) (string, error)
}

// DiskStore writes uploads under a base directory, one subdirectory per
// category, and serves them from a static route prefix.
type DiskStore struct {
	baseDir   string
	urlPrefix string
}

func NewDiskStore(baseDir, urlPrefix string) (*DiskStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &DiskStore{baseDir: baseDir, urlPrefix: strings.TrimSuffix(urlPrefix, "/")}, nil
}

func (s *DiskStore) Save(file *multipart.FileHeader, category string) (string, error) {
	ext := filepath.Ext(file.Filename)
	name := uuid.NewString() + ext

	dir := filepath.Join(s.baseDir, category)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create category dir: %w", err)
	}

	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("failed to write upload: %w", err)
	}

	return fmt.Sprintf("%s/%s/%s", s.urlPrefix, category, name), nil
}

// Dir returns the base directory so the server can mount it as a static root.
func (s *DiskStore) Dir() string { return s.baseDir }
