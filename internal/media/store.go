package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Store is the narrow capability the domain consumes from object storage:
// persist a blob, hand back a public URL, and delete by key. S3-compatible
// backends plug in behind the same interface.
type Store interface {
	Put(ctx context.Context, key string, contentType string, content io.Reader) (string, error)
	Delete(ctx context.Context, key string) error
}

var (
	// ErrInvalidKey indicates an empty or path-escaping object key.
	ErrInvalidKey = errors.New("media: invalid object key")

	errMissingRootDir = errors.New("media: root directory is required")
	errMissingBaseURL = errors.New("media: public base url is required")
)

// LocalStore persists objects on the local filesystem under a public base URL.
type LocalStore struct {
	rootDir string
	baseURL string
}

// NewLocalStore constructs a filesystem-backed media store.
func NewLocalStore(rootDir, baseURL string) (*LocalStore, error) {
	rootDir = strings.TrimSpace(rootDir)
	if rootDir == "" {
		return nil, errMissingRootDir
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errMissingBaseURL
	}
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, err
	}
	return &LocalStore{rootDir: rootDir, baseURL: baseURL}, nil
}

func (s *LocalStore) resolve(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrInvalidKey
	}
	cleaned := filepath.Clean(key)
	if cleaned == "." || strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(s.rootDir, cleaned), nil
}

// Put writes the object and returns its public URL.
func (s *LocalStore) Put(_ context.Context, key string, _ string, content io.Reader) (string, error) {
	target, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", err
	}
	file, err := os.Create(target)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(file, content); err != nil {
		file.Close()
		os.Remove(target)
		return "", err
	}
	if err := file.Close(); err != nil {
		return "", err
	}
	return s.baseURL + "/" + filepath.ToSlash(filepath.Clean(key)), nil
}

// Delete removes the object. Deleting a missing object is not an error.
func (s *LocalStore) Delete(_ context.Context, key string) error {
	target, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// KeyFromURL maps a public URL issued by this store back to its object key.
func (s *LocalStore) KeyFromURL(url string) (string, bool) {
	prefix := s.baseURL + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	return strings.TrimPrefix(url, prefix), true
}
