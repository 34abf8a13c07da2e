package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"membership-backend/internal/logger"
)

// LocalBlobStore keeps blobs on the local filesystem and serves them through
// the API's /files route.
type LocalBlobStore struct {
	baseURL string // public prefix, e.g. "http://localhost:8080/api/v1/files"
	dir     string
}

func NewLocalBlobStore(baseURL, dir string) (*LocalBlobStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &LocalBlobStore{baseURL: strings.TrimRight(baseURL, "/"), dir: dir}, nil
}

func (s *LocalBlobStore) Store(ctx context.Context, data []byte, contentType string) (string, error) {
	key := uuid.NewString() + extensionFor(contentType)
	logger.ExternalServiceCall("blobstore", "Store", "key", key, "size", len(data), "contentType", contentType)

	err := os.WriteFile(filepath.Join(s.dir, key), data, 0644)
	if err == nil {
		err = os.WriteFile(filepath.Join(s.dir, key+".type"), []byte(contentType), 0644)
	}
	logger.ExternalServiceResult("blobstore", "Store", err, "key", key)
	if err != nil {
		return "", fmt.Errorf("failed to store blob: %w", err)
	}
	return s.baseURL + "/" + key, nil
}

func (s *LocalBlobStore) Delete(ctx context.Context, url string) error {
	key, err := s.keyFor(url)
	if err != nil {
		return err
	}
	logger.ExternalServiceCall("blobstore", "Delete", "key", key)
	err = os.Remove(filepath.Join(s.dir, key))
	if err != nil && !os.IsNotExist(err) {
		logger.ExternalServiceResult("blobstore", "Delete", err, "key", key)
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	_ = os.Remove(filepath.Join(s.dir, key+".type"))
	logger.ExternalServiceResult("blobstore", "Delete", nil, "key", key)
	return nil
}

func (s *LocalBlobStore) Open(ctx context.Context, key string) (io.ReadCloser, string, error) {
	if err := validKey(key); err != nil {
		return nil, "", err
	}
	f, err := os.Open(filepath.Join(s.dir, key))
	if os.IsNotExist(err) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}
	contentType := "application/octet-stream"
	if ct, err := os.ReadFile(filepath.Join(s.dir, key+".type")); err == nil && len(ct) > 0 {
		contentType = string(ct)
	}
	return f, contentType, nil
}

func (s *LocalBlobStore) keyFor(url string) (string, error) {
	if !strings.HasPrefix(url, s.baseURL+"/") {
		return "", fmt.Errorf("blob url %q is not served by this store", url)
	}
	key := strings.TrimPrefix(url, s.baseURL+"/")
	return key, validKey(key)
}

func validKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") || strings.HasSuffix(key, ".type") {
		return fmt.Errorf("invalid blob key %q", key)
	}
	return nil
}

func extensionFor(contentType string) string {
	switch contentType {
	case "text/html", "text/html; charset=utf-8":
		return ".html"
	case "image/jpeg":
		return ".jpg"
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}
