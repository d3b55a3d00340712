package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// LocalStore writes photos below a directory that is served statically.
type LocalStore struct {
	baseDir       string
	publicBaseURL string
}

// NewLocalStore creates baseDir if needed.
func NewLocalStore(baseDir, publicBaseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("error creating directory %s: %w", baseDir, err)
	}
	return &LocalStore{baseDir: baseDir, publicBaseURL: publicBaseURL}, nil
}

func (s *LocalStore) Name() string { return "local" }

// BaseDir returns the directory objects are written to.
func (s *LocalStore) BaseDir() string { return s.baseDir }

func (s *LocalStore) Ping(ctx context.Context) error {
	info, err := os.Stat(s.baseDir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", s.baseDir)
	}
	return nil
}

func (s *LocalStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (*PutResult, error) {
	key, err := CleanKey(key)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	fullPath := filepath.Join(s.baseDir, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", key, err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file %s: %w", fullPath, err)
	}

	written, err := io.Copy(file, body)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		// Clean up partial file
		os.Remove(fullPath)
		return nil, fmt.Errorf("failed to write file %s: %w", fullPath, err)
	}

	result := &PutResult{
		Key:         key,
		URL:         joinURL(s.publicBaseURL, key),
		Size:        written,
		ContentType: contentType,
		Duration:    time.Since(start),
	}
	log.Infof("[Storage] Saved %s (%d bytes) in %v", fullPath, written, result.Duration)
	return result, nil
}

func (s *LocalStore) Delete(ctx context.Context, key string) error {
	key, err := CleanKey(key)
	if err != nil {
		return err
	}
	fullPath := filepath.Join(s.baseDir, filepath.FromSlash(key))
	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete file %s: %w", fullPath, err)
	}
	log.Infof("[Storage] Deleted %s", fullPath)
	return nil
}

func (s *LocalStore) KeyFromURL(publicURL string) (string, bool) {
	return keyUnder(s.publicBaseURL, publicURL)
}
