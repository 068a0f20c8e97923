package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// FSStore is a Store rooted at a directory on the local filesystem.
type FSStore struct {
	root   string
	logger zerolog.Logger
}

// NewFSStore creates the root directory if needed and returns a store over it.
func NewFSStore(root string, logger zerolog.Logger) (*FSStore, error) {
	if root == "" {
		return nil, fmt.Errorf("storage root must not be empty")
	}
	absolute, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}
	if err := os.MkdirAll(absolute, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &FSStore{
		root:   absolute,
		logger: logger.With().Str("component", "fs_store").Logger(),
	}, nil
}

func (s *FSStore) resolve(blobPath string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(blobPath))
	if cleaned == "." || strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("invalid blob path %q", blobPath)
	}
	return filepath.Join(s.root, cleaned), nil
}

// Save writes the blob, creating parent directories as required.
func (s *FSStore) Save(_ context.Context, blobPath string, r io.Reader) error {
	target, err := s.resolve(blobPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create blob directory: %w", err)
	}
	file, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create blob: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, r); err != nil {
		return fmt.Errorf("failed to write blob: %w", err)
	}
	return nil
}

// Open returns the blob for streaming.
func (s *FSStore) Open(_ context.Context, blobPath string) (io.ReadCloser, error) {
	target, err := s.resolve(blobPath)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotExist
		}
		return nil, err
	}
	return file, nil
}

// Exists reports blob presence without opening it.
func (s *FSStore) Exists(_ context.Context, blobPath string) (bool, error) {
	target, err := s.resolve(blobPath)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(target); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ModTime returns the blob's last-modified time.
func (s *FSStore) ModTime(_ context.Context, blobPath string) (time.Time, error) {
	target, err := s.resolve(blobPath)
	if err != nil {
		return time.Time{}, err
	}
	info, err := os.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, ErrNotExist
		}
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// Remove deletes the blob if present.
func (s *FSStore) Remove(_ context.Context, blobPath string) error {
	target, err := s.resolve(blobPath)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
