package cache

import (
	"context"
	"time"
)

// KV is the string store the cache-aside helpers need.
type KV interface {
	// Get returns "" and a nil error for a missing key.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
}

// Cache is everything grading and stats keep in Redis: read-through rows,
// daily quota counters, in-flight guards, and per-user stats.
type Cache interface {
	KV

	// IncrWithExpireAt increments key and pins its expiry to at in one transaction.
	IncrWithExpireAt(ctx context.Context, key string, at time.Time) (int64, error)

	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HIncrBy(ctx context.Context, key, field string, incr int64) (int64, error)
	SAdd(ctx context.Context, key string, members ...interface{}) (int64, error)
	SCard(ctx context.Context, key string) (int64, error)

	// TryLock stores owner under key when the key is free.
	TryLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	// Unlock deletes key only while it still holds owner.
	Unlock(ctx context.Context, key, owner string) error

	Ping(ctx context.Context) error
	Close() error
}
