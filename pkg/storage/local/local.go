package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/docuchat/docuchat/pkg/logger"
)

// Storage keeps document blobs as plain files under a single directory.
// Keys are file names; nested paths are rejected so a key can never
// escape the directory.
type Storage struct {
	dir    string
	logger logger.Logger
}

func NewStorage(dir string, log logger.Logger) (*Storage, error) {
	if dir == "" {
		dir = "data/files"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &Storage{dir: dir, logger: log}, nil
}

func (s *Storage) path(key string) (string, error) {
	if key == "" || key != filepath.Base(key) {
		return "", fmt.Errorf("invalid storage key: %q", key)
	}
	return filepath.Join(s.dir, key), nil
}

// Store implements Storage.Store
func (s *Storage) Store(ctx context.Context, reader io.Reader, key string) (string, error) {
	path, err := s.path(key)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to finalize file: %w", err)
	}

	return key, nil
}

// Get implements Storage.Get
func (s *Storage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, nil
}

// Delete implements Storage.Delete
func (s *Storage) Delete(ctx context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Exists implements Storage.Exists
func (s *Storage) Exists(ctx context.Context, key string) (bool, error) {
	path, err := s.path(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Wipe implements Storage.Wipe
func (s *Storage) Wipe(ctx context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to list storage directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			s.logger.Error("Failed to remove file during wipe",
				logger.String("file", entry.Name()),
				logger.Error(err),
			)
			return err
		}
	}
	return nil
}

// Dir returns the backing directory.
func (s *Storage) Dir() string {
	return s.dir
}
