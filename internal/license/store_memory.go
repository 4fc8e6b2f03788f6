package license

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCapacity bounds the in-memory store when no capacity is configured.
const DefaultCapacity = 10000

type memoryStore struct {
	entries *lru.Cache[string, Entry]
}

// NewMemoryStore returns an LRU-bounded store. Expired entries are left in
// place until overwritten or evicted; freshness is the Cache's call.
func NewMemoryStore(capacity int) (Store, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	entries, err := lru.New[string, Entry](capacity)
	if err != nil {
		return nil, err
	}
	return &memoryStore{entries: entries}, nil
}

func (s *memoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	entry, ok := s.entries.Get(key)
	return entry, ok, nil
}

func (s *memoryStore) Set(_ context.Context, key string, entry Entry, _ time.Duration) error {
	s.entries.Add(key, entry)
	return nil
}

func (s *memoryStore) Delete(_ context.Context, key string) error {
	s.entries.Remove(key)
	return nil
}

func (s *memoryStore) Clear(_ context.Context) error {
	s.entries.Purge()
	return nil
}

func (s *memoryStore) Len(_ context.Context) (int, error) {
	return s.entries.Len(), nil
}
