package provider

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process ContextStore. Values are copied on Save and
// Load so callers never share the stored value; the copy is shallow.
type MemoryStore[C any] struct {
	mu    sync.RWMutex
	items map[string]memEntry[C]
	saves int
}

type memEntry[C any] struct {
	val       C
	expiresAt time.Time
}

// NewMemoryStore creates a new in-memory ContextStore.
func NewMemoryStore[C any]() *MemoryStore[C] {
	return &MemoryStore[C]{items: make(map[string]memEntry[C])}
}

// Load retrieves state. Returns (nil, nil) if key doesn't exist or has expired.
func (s *MemoryStore[C]) Load(_ context.Context, key string) (*C, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.items[key]
	if !ok {
		return nil, nil
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		delete(s.items, key)
		return nil, nil
	}
	val := entry.val
	return &val, nil
}

// Save persists state with optional TTL.
func (s *MemoryStore[C]) Save(_ context.Context, key string, val *C, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := memEntry[C]{val: *val}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	s.items[key] = entry
	s.saves++
	return nil
}

// Delete removes state.
func (s *MemoryStore[C]) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

// Len returns the number of entries, including expired ones not yet evicted.
func (s *MemoryStore[C]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Saves returns how many times Save has been called.
func (s *MemoryStore[C]) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

var _ ContextStore[any] = (*MemoryStore[any])(nil)
