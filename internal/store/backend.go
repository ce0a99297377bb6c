package store

import (
	"context"
	"errors"
	"sync"
)

// ErrStoreUnavailable is wrapped by every backend failure other than a
// missing entry. Callers decide how to degrade: reads become "absent",
// deletes become no-ops, writes must surface.
var ErrStoreUnavailable = errors.New("secret store unavailable")

// ErrNotFound is returned by a Backend when no value exists for a name.
var ErrNotFound = errors.New("secret not found")

// Backend persists opaque secret blobs by name.
type Backend interface {
	Get(ctx context.Context, name string) ([]byte, error)
	Put(ctx context.Context, name string, value []byte) error
	Delete(ctx context.Context, name string) error
	Close() error
}

// MemoryBackend keeps secrets in process memory only.
type MemoryBackend struct {
	mu      sync.RWMutex
	secrets map[string][]byte
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{secrets: make(map[string][]byte)}
}

func (m *MemoryBackend) Get(_ context.Context, name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.secrets[name]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryBackend) Put(_ context.Context, name string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets[name] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.secrets, name)
	return nil
}

func (m *MemoryBackend) Close() error { return nil }
