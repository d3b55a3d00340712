package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/ManuelReschke/PhotoShrink/internal/pkg/env"
)

var (
	ErrNotFound   = errors.New("object not found")
	ErrInvalidKey = errors.New("invalid object key")
)

// ObjectStore is where compressed photos end up.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (*PutResult, error)
	Delete(ctx context.Context, key string) error
	// KeyFromURL reports the object key behind a public URL, or false when
	// the URL does not belong to this store.
	KeyFromURL(publicURL string) (string, bool)
	Ping(ctx context.Context) error
	Name() string
}

// PutResult contains the result of a successful upload
type PutResult struct {
	Key         string        `json:"key"`
	URL         string        `json:"url"`
	Size        int64         `json:"size"`
	ContentType string        `json:"content_type"`
	Duration    time.Duration `json:"duration"`
}

// NewFromEnv builds the store selected by STORAGE_DRIVER (s3 or local).
func NewFromEnv(ctx context.Context) (ObjectStore, error) {
	driver := strings.ToLower(env.GetEnv("STORAGE_DRIVER", "local"))
	switch driver {
	case "s3":
		cfg, err := LoadS3Config()
		if err != nil {
			return nil, err
		}
		return NewS3Store(ctx, cfg)
	case "local":
		return NewLocalStore(
			env.GetEnv("STORAGE_LOCAL_DIR", "uploads"),
			env.GetEnv("STORAGE_PUBLIC_BASE_URL", "/uploads"),
		)
	case "memory":
		return NewMemoryStore(env.GetEnv("STORAGE_PUBLIC_BASE_URL", "memory://photos")), nil
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", driver)
	}
}

// CleanKey normalizes key to a relative slash path and rejects traversal.
func CleanKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean("/" + key)[1:]
	if cleaned == "" || cleaned != strings.TrimPrefix(key, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return cleaned, nil
}

// joinURL appends key to base with exactly one slash between them. Each key
// segment is escaped so characters like '#' and '?' stay part of the path.
func joinURL(base, key string) string {
	segments := strings.Split(strings.TrimLeft(key, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(segments, "/")
}

// keyUnder strips base from publicURL and returns the remaining key.
func keyUnder(base, publicURL string) (string, bool) {
	if base == "" || publicURL == "" {
		return "", false
	}
	publicURL, _, _ = strings.Cut(publicURL, "?")
	publicURL, _, _ = strings.Cut(publicURL, "#")
	prefix := strings.TrimRight(base, "/") + "/"
	if !strings.HasPrefix(publicURL, prefix) {
		return "", false
	}
	raw, err := url.PathUnescape(strings.TrimPrefix(publicURL, prefix))
	if err != nil {
		return "", false
	}
	key, err := CleanKey(raw)
	if err != nil {
		return "", false
	}
	return key, true
}
