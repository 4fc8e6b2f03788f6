// Package license memoizes marketplace purchase checks per (user, item).
package license

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"kairos/launch/internal/metrics"
	"kairos/launch/pkg/logging"
)

// TTL is how long a verification result, positive or negative, stays fresh.
const TTL = time.Hour

// KeySeparator joins user and item ids. Keys are only collision-free when
// neither id contains it.
const KeySeparator = ":"

// Verifier asks the marketplace whether userID owns itemID.
type Verifier func(ctx context.Context, userID, itemID string) (bool, error)

// Result of a Verify call. Err is set only when the verifier failed, in which
// case nothing was cached.
type Result struct {
	Verified bool
	Cached   bool
	Err      error
}

type Option func(*Cache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

type Cache struct {
	store Store
	now   func() time.Time
	group singleflight.Group
}

func New(store Store, opts ...Option) *Cache {
	c := &Cache{store: store, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func Key(userID, itemID string) string {
	return userID + KeySeparator + itemID
}

// Verify returns the cached verdict for (userID, itemID) while it is fresh and
// otherwise asks verify. Store failures are logged and treated as a miss.
func (c *Cache) Verify(ctx context.Context, userID, itemID string, verify Verifier) Result {
	logger := logging.FromContext(ctx).With(
		zap.String("user_id", userID),
		zap.String("item_id", itemID),
	)
	key := Key(userID, itemID)

	entry, ok, err := c.store.Get(ctx, key)
	switch {
	case err != nil:
		metrics.LicenseCacheLookups.WithLabelValues("error").Inc()
		logger.Warn("license cache read failed", zap.Error(err))
	case ok && entry.ExpiresAt.After(c.now()):
		metrics.LicenseCacheLookups.WithLabelValues("hit").Inc()
		return Result{Verified: entry.Verified, Cached: true}
	default:
		metrics.LicenseCacheLookups.WithLabelValues("miss").Inc()
	}

	ch := c.group.DoChan(key, func() (interface{}, error) {
		return c.fetch(ctx, key, userID, itemID, verify, logger)
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return Result{Err: ctx.Err()}
	}

	// The shared call ran under whichever caller got there first. If that
	// caller went away, ask again under our own context.
	if res.Err != nil && res.Shared && isContextErr(res.Err) && ctx.Err() == nil {
		res.Val, res.Err = c.fetch(ctx, key, userID, itemID, verify, logger)
	}
	if res.Err != nil {
		logger.Error("license verification failed", zap.Error(res.Err), zap.Bool("shared", res.Shared))
		return Result{Err: res.Err}
	}
	return Result{Verified: res.Val.(bool)}
}

func (c *Cache) fetch(ctx context.Context, key, userID, itemID string, verify Verifier, logger *zap.Logger) (interface{}, error) {
	verified, err := verify(ctx, userID, itemID)
	if err != nil {
		return false, err
	}
	fresh := Entry{Verified: verified, ExpiresAt: c.now().Add(TTL)}
	if err := c.store.Set(ctx, key, fresh, TTL); err != nil {
		logger.Warn("license cache write failed", zap.Error(err))
	}
	return verified, nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Clear drops the entry for one (userID, itemID) pair.
func (c *Cache) Clear(ctx context.Context, userID, itemID string) error {
	return c.store.Delete(ctx, Key(userID, itemID))
}

// ClearAll empties the cache.
func (c *Cache) ClearAll(ctx context.Context) error {
	return c.store.Clear(ctx)
}

func (c *Cache) Len(ctx context.Context) (int, error) {
	return c.store.Len(ctx)
}
