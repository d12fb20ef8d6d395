package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gaitserver/internal/domain"
)

// FileStore persists artifacts onto the local filesystem. It is intended
// for development and test environments where an object storage service is
// not available. Presigned links are formed from a configured base URL;
// serving the base path at that URL is left to whatever fronts the
// service in development (a static file server or reverse proxy).
type FileStore struct {
	basePath string
	baseURL  string
}

// NewFileStore initializes a FileStore rooted at basePath.
func NewFileStore(basePath, baseURL string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &FileStore{basePath: basePath, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *FileStore) Exists(ctx context.Context, key string) (bool, error) {
	path, err := s.resolve(ctx, key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("storage: stat %s: %v: %w", key, err, domain.ErrStorageUnavailable)
	}
	return true, nil
}

func (s *FileStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := s.resolve(ctx, key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("storage: get %s: %w", key, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("storage: get %s: %v: %w", key, err, domain.ErrStorageUnavailable)
	}
	return f, nil
}

// Put writes through a temporary file and renames at the end, so a
// partially written object never becomes visible under the canonical key.
func (s *FileStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	path, err := s.resolve(ctx, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("storage: ensure directory: %v: %w", err, domain.ErrStorageUnavailable)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return fmt.Errorf("storage: temp file: %v: %w", err, domain.ErrStorageUnavailable)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("storage: write %s: %v: %w", key, err, domain.ErrStorageUnavailable)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close %s: %v: %w", key, err, domain.ErrStorageUnavailable)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("storage: commit %s: %v: %w", key, err, domain.ErrStorageUnavailable)
	}
	return nil
}

func (s *FileStore) Delete(ctx context.Context, key string) error {
	path, err := s.resolve(ctx, key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: delete %s: %v: %w", key, err, domain.ErrStorageUnavailable)
	}
	return nil
}

func (s *FileStore) Presign(ctx context.Context, key string, ttl time.Duration) (*url.URL, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(s.baseURL + "/" + cleanKey)
	if err != nil {
		return nil, fmt.Errorf("storage: presign %s: %v: %w", key, err, domain.ErrStorageUnavailable)
	}
	return u, nil
}

// resolve validates the key and maps it onto the local filesystem.
func (s *FileStore) resolve(ctx context.Context, key string) (string, error) {
	if s == nil {
		return "", errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.basePath, filepath.FromSlash(cleanKey)), nil
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.Clean(key)
	cleaned = strings.ReplaceAll(cleaned, "\\", "/")
	if cleaned == "." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}
