package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStateStore(t *testing.T, s StateStore) {
	t.Helper()
	ctx := context.Background()

	v, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, s.Set(ctx, "conn:vercel:u1", []byte("token"), time.Hour))
	v, err = s.Get(ctx, "conn:vercel:u1")
	require.NoError(t, err)
	assert.Equal(t, []byte("token"), v)

	ok, err := s.Exists(ctx, "conn:vercel:u1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Delete(ctx, "conn:vercel:u1"))
	ok, err = s.Exists(ctx, "conn:vercel:u1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStateStore(t *testing.T) {
	exerciseStateStore(t, NewMemoryStateStore())
}

func TestMemoryStateStore_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newMemoryStateStore(func() time.Time { return now })

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, s.Set(ctx, "forever", []byte("v"), 0))

	now = now.Add(2 * time.Minute)
	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.NotContains(t, s.entries, "k")

	ok, err := s.Exists(ctx, "forever")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisStateStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	s := NewRedisStateStore(client, "kairos")
	exerciseStateStore(t, s)

	require.NoError(t, s.Set(context.Background(), "k", []byte("v"), time.Minute))
	assert.True(t, mr.Exists("kairos:k"))
	mr.FastForward(2 * time.Minute)
	ok, err := s.Exists(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
