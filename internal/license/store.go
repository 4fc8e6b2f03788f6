package license

import (
	"context"
	"time"
)

// Entry is one cached verdict.
type Entry struct {
	Verified  bool      `json:"verified"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store abstracts where entries live.
// Implementations: bounded in-memory LRU or Redis.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Len(ctx context.Context) (int, error)
}
