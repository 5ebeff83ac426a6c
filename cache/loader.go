package cache

import (
	"context"
	"time"
)

// GetOrLoad returns the cached value of key, or calls load and caches its result for ttl.
// A nil client always loads. Cache errors never fail the call.
func GetOrLoad[T any](ctx context.Context, r *RedisClient, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	if r != nil {
		var cached T
		if err := r.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}

	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	if r != nil {
		_ = r.Set(ctx, key, v, ttl)
	}
	return v, nil
}
