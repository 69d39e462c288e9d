// Package cache provides the volatile key/value tier shared by every instance.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Cache is a string key/value store with per-key expiry.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)

	// CompareAndSwap replaces the value only if it currently equals expected.
	CompareAndSwap(ctx context.Context, key, expected, next string, ttl time.Duration) (bool, error)
	// CompareAndDelete removes the key only if it currently equals expected.
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)
}
