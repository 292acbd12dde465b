package persistence

import (
	"context"
	"sync"
)

// MemoryStore keeps encoded values in memory.
// Values are copied through the codec, so callers never share state with the store.
type MemoryStore struct {
	mu     sync.RWMutex
	items  map[string][]byte
	closed bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string][]byte)}
}

// GetItem implements Storage.
func (s *MemoryStore) GetItem(_ context.Context, key string, dst any) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, ErrClosed
	}
	data, ok := s.items[key]
	if !ok {
		return false, nil
	}
	return true, Unmarshal(data, dst)
}

// SetItem implements Storage.
func (s *MemoryStore) SetItem(_ context.Context, key string, value any) error {
	if err := validateKey(key); err != nil {
		return err
	}
	data, err := Marshal(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.items[key] = data
	return nil
}

// RemoveItem implements Storage.
func (s *MemoryStore) RemoveItem(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	delete(s.items, key)
	return nil
}

// Len returns the number of stored keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Close implements Storage.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Compile-time interface satisfaction check.
var _ Storage = (*MemoryStore)(nil)
