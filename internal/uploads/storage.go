package uploads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var (
	errMissingStorageRoot   = errors.New("uploads: storage directory required")
	errMissingPublicBaseURL = errors.New("uploads: public base url required")
	errInvalidObjectKey     = errors.New("uploads: invalid object key")
)

// Storage is the hosted file store. Put returns the URL the object is served from;
// callers persist that URL verbatim and delete objects by key only.
type Storage interface {
	Put(ctx context.Context, key string, contentType string, body io.Reader) (string, error)
	Delete(ctx context.Context, key string) error
}

// LocalStorage keeps objects on disk under a root directory served at a public base URL.
type LocalStorage struct {
	root    string
	baseURL string
}

// NewLocalStorage constructs disk-backed storage.
func NewLocalStorage(root, publicBaseURL string) (*LocalStorage, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errMissingStorageRoot
	}
	publicBaseURL = strings.TrimSpace(publicBaseURL)
	if publicBaseURL == "" {
		return nil, errMissingPublicBaseURL
	}
	if _, err := url.Parse(publicBaseURL); err != nil {
		return nil, fmt.Errorf("uploads: invalid public base url: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("uploads: create storage directory: %w", err)
	}
	return &LocalStorage{root: root, baseURL: publicBaseURL}, nil
}

// Root returns the directory objects are written to.
func (s *LocalStorage) Root() string {
	return s.root
}

// Put writes body under key and returns its public URL.
func (s *LocalStorage) Put(ctx context.Context, key string, _ string, body io.Reader) (string, error) {
	target, err := s.pathFor(key)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", err
	}
	file, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return "", err
	}
	tempName := file.Name()
	if _, err := io.Copy(file, body); err != nil {
		file.Close()
		os.Remove(tempName)
		return "", err
	}
	if err := file.Close(); err != nil {
		os.Remove(tempName)
		return "", err
	}
	if err := os.Rename(tempName, target); err != nil {
		os.Remove(tempName)
		return "", err
	}
	return url.JoinPath(s.baseURL, key)
}

// Delete removes the object stored under key. Missing objects are not an error.
func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	target, err := s.pathFor(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *LocalStorage) pathFor(key string) (string, error) {
	cleaned := path.Clean("/" + key)
	if key == "" || cleaned == "/" || cleaned != "/"+key {
		return "", fmt.Errorf("%w: %q", errInvalidObjectKey, key)
	}
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(cleaned, "/"))), nil
}
