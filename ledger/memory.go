package ledger

import (
	"context"
	"sync"
)

// MemoryBackend keeps blobs in process memory. It backs tests and servers
// started without any database.
type MemoryBackend struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{blobs: make(map[string][]byte)}
}

// Load returns a copy of the stored blob, or nil.
func (m *MemoryBackend) Load(_ context.Context, owner, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[owner+"\x00"+key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), b...), nil
}

// Save replaces the stored blob.
func (m *MemoryBackend) Save(_ context.Context, owner, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[owner+"\x00"+key] = append([]byte(nil), value...)
	return nil
}
