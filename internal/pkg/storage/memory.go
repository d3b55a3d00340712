package storage

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"
)

// Object is a stored blob held by MemoryStore.
type Object struct {
	Data        []byte
	ContentType string
	StoredAt    time.Time
}

// MemoryStore keeps objects in a map. It is meant for tests and local runs.
type MemoryStore struct {
	mu            sync.RWMutex
	objects       map[string]Object
	publicBaseURL string
	// PutErr and DeleteErr, when set, are returned instead of storing/deleting.
	PutErr    error
	DeleteErr error
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore(publicBaseURL string) *MemoryStore {
	return &MemoryStore{
		objects:       make(map[string]Object),
		publicBaseURL: publicBaseURL,
	}
}

func (m *MemoryStore) Name() string { return "memory" }

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func (m *MemoryStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (*PutResult, error) {
	if m.PutErr != nil {
		return nil, m.PutErr
	}
	key, err := CleanKey(key)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = Object{Data: data, ContentType: contentType, StoredAt: time.Now().UTC()}

	return &PutResult{
		Key:         key,
		URL:         joinURL(m.publicBaseURL, key),
		Size:        int64(len(data)),
		ContentType: contentType,
	}, nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	key, err := CleanKey(key)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return ErrNotFound
	}
	delete(m.objects, key)
	return nil
}

func (m *MemoryStore) KeyFromURL(publicURL string) (string, bool) {
	return keyUnder(m.publicBaseURL, publicURL)
}

// Get returns the object stored under key.
func (m *MemoryStore) Get(key string) (Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	return obj, ok
}

// Keys returns all stored keys in sorted order.
func (m *MemoryStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
