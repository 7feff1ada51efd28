package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"sccompanion/internal/observability"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by GetJSON when the key is absent or Redis is off.
var ErrMiss = errors.New("cache miss")

// GetJSON decodes the value stored at key into dest.
func GetJSON(ctx context.Context, key string, dest any) error {
	if client == nil {
		return ErrMiss
	}
	raw, err := client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// SetJSON stores value at key with ttl.
func SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	if client == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return client.Set(ctx, key, raw, ttl).Err()
}

// Aside reads key into dest, falling back to fetch on a miss and storing
// its result. Cache errors never fail the call.
func Aside[T any](ctx context.Context, name, key string, ttl time.Duration, fetch func(context.Context) (T, error)) (T, error) {
	var cached T
	if err := GetJSON(ctx, key, &cached); err == nil {
		observability.RecordCacheLookup(name, true)
		return cached, nil
	}
	observability.RecordCacheLookup(name, false)

	value, err := fetch(ctx)
	if err != nil {
		return value, err
	}
	_ = SetJSON(ctx, key, value, ttl)
	return value, nil
}
