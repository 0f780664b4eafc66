// Package kvstore provides the keyed TTL store used for trigger dedupe and per-entity state.
package kvstore

import (
	"context"
	"errors"
	"strings"
	"time"
)

var ErrUnsupportedStore = errors.New("unsupported kv store")

// Store is a string key/value store with per-key expiry. A zero ttl means no expiry.
type Store interface {
	// SetNX stores value only when key is absent and reports whether it did.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// New opens a store from a URL: "memory://" or a redis:// / rediss:// URL.
func New(url string) (Store, error) {
	switch {
	case url == "" || strings.HasPrefix(url, "memory://"):
		return NewMemory(nil), nil
	case strings.HasPrefix(url, "redis://"), strings.HasPrefix(url, "rediss://"):
		return NewRedis(url)
	default:
		return nil, ErrUnsupportedStore
	}
}
