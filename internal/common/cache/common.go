package cache

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"time"
)

// NullCacheValue marks a cached miss so lookups for absent rows stay off the database.
const NullCacheValue = "$NULL$"

// GetJSONWithCached reads key as JSON, falling back to load on a miss. A nil
// result is remembered as NullCacheValue for emptyTTL; anything else is stored
// for a jittered ttl. Cache errors never fail the read.
func GetJSONWithCached[T any](
	ctx context.Context,
	kv KV,
	key string,
	ttl, emptyTTL time.Duration,
	load func(context.Context) (*T, error),
) (*T, error) {
	if cached, err := kv.Get(ctx, key); err == nil && cached != "" {
		if cached == NullCacheValue {
			return nil, nil
		}
		var v T
		if json.Unmarshal([]byte(cached), &v) == nil {
			return &v, nil
		}
	}

	v, err := load(ctx)
	if err != nil {
		return nil, err
	}
	if v == nil {
		_ = kv.Set(ctx, key, NullCacheValue, emptyTTL)
		return nil, nil
	}
	if encoded, err := json.Marshal(v); err == nil {
		_ = kv.Set(ctx, key, string(encoded), JitterTTL(ttl))
	}
	return v, nil
}

// UpdateCached runs write and, only if it succeeds, drops key so the next
// read reloads it.
func UpdateCached(ctx context.Context, kv KV, key string, write func(context.Context) error) error {
	if err := write(ctx); err != nil {
		return err
	}
	_ = kv.Del(ctx, key)
	return nil
}

// JitterTTL shortens ttl by up to 10% so entries written together expire apart.
func JitterTTL(ttl time.Duration) time.Duration {
	spread := int64(ttl / 10)
	if spread <= 0 {
		return ttl
	}
	return ttl - time.Duration(rand.Int64N(spread+1))
}
