package repository

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	value     []byte
	expiresAt time.Time
	hasTTL    bool
}

func (e memEntry) expired(now time.Time) bool {
	return e.hasTTL && now.After(e.expiresAt)
}

type memoryStateStore struct {
	mu      sync.RWMutex
	entries map[string]memEntry
	now     func() time.Time
}

func NewMemoryStateStore() StateStore {
	return newMemoryStateStore(time.Now)
}

func newMemoryStateStore(now func() time.Time) *memoryStateStore {
	return &memoryStateStore{
		entries: make(map[string]memEntry),
		now:     now,
	}
}

func (s *memoryStateStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := memEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.hasTTL = true
		entry.expiresAt = s.now().Add(ttl)
	}

	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
	return nil
}

// lookup returns the live entry for key, dropping it if it has expired.
func (s *memoryStateStore) lookup(key string) (memEntry, bool) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return memEntry{}, false
	}

	now := s.now()
	if entry.expired(now) {
		s.mu.Lock()
		if e, exists := s.entries[key]; exists && e.expired(now) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return memEntry{}, false
	}
	return entry, true
}

func (s *memoryStateStore) Get(_ context.Context, key string) ([]byte, error) {
	entry, ok := s.lookup(key)
	if !ok {
		return nil, nil
	}
	return entry.value, nil
}

func (s *memoryStateStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

func (s *memoryStateStore) Exists(_ context.Context, key string) (bool, error) {
	_, ok := s.lookup(key)
	return ok, nil
}
