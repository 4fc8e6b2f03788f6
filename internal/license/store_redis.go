package license

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const scanBatch = 500

type redisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore keeps entries under "<prefix>:<user>:<item>" with a Redis TTL,
// so stale verdicts are reclaimed by Redis itself.
func NewRedisStore(client *redis.Client, prefix string) Store {
	if prefix == "" {
		prefix = "license"
	}
	return &redisStore{client: client, prefix: prefix}
}

func (s *redisStore) key(k string) string {
	return s.prefix + ":" + k
}

func (s *redisStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("decode license entry: %w", err)
	}
	return entry, true, nil
}

func (s *redisStore) Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

func (s *redisStore) Clear(ctx context.Context) error {
	return s.scan(ctx, func(keys []string) error {
		return s.client.Del(ctx, keys...).Err()
	})
}

func (s *redisStore) Len(ctx context.Context) (int, error) {
	n := 0
	err := s.scan(ctx, func(keys []string) error {
		n += len(keys)
		return nil
	})
	return n, err
}

func (s *redisStore) scan(ctx context.Context, fn func(keys []string) error) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+":*", scanBatch).Result()
		if err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
