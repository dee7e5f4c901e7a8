package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/shopavnu/avnu-marketplace-sub008/internal/cacheinfra"
)

// RemoteStore is the shared, fallible tier. *cacheinfra.RedisStore implements it.
type RemoteStore interface {
	// GetWithTTL also reports the remaining lifetime, zero when unknown.
	GetWithTTL(ctx context.Context, key string) ([]byte, time.Duration, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Reset(ctx context.Context) error
}

// FallbackStore is the in-process tier. *cacheinfra.FallbackStore implements it.
type FallbackStore interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration)
	Delete(key string)
	Reset()
}

// Cache exposes the byte level operations every higher level cache is built on.
// It is exported so that other packages can provide alternate backends in tests.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Reset(ctx context.Context) error
}

// FetchFn is the function signature GetOrFetch expects when fetching from the source of truth.
type FetchFn[T any] func(ctx context.Context) (T, error)

// Typed is a Cache view bound to a single payload type.
type Typed[V any] struct {
	cache  Cache
	logger *zap.Logger
}

// NewTyped binds c to the payload type V. A nil logger disables logging.
func NewTyped[V any](c Cache, logger *zap.Logger) *Typed[V] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Typed[V]{cache: c, logger: logger}
}

// Get returns the decoded value. Undecodable entries are dropped and
// reported as a miss.
func (t *Typed[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V

	data, ok, err := t.cache.Get(ctx, key)
	if err != nil || !ok {
		return zero, false, err
	}

	value, err := cacheinfra.Decode[V](data)
	if err != nil {
		t.logger.Warn("dropping undecodable cache entry", zap.String("key", key), zap.Error(err))
		_ = t.cache.Del(ctx, key)
		return zero, false, nil
	}
	return value, true, nil
}

// Set encodes value and stores it with ttl.
func (t *Typed[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	data, err := cacheinfra.Encode(value)
	if err != nil {
		return err
	}
	return t.cache.Set(ctx, key, data, ttl)
}

// Del removes key.
func (t *Typed[V]) Del(ctx context.Context, key string) error {
	return t.cache.Del(ctx, key)
}

// GetOrFetch returns the cached value or calls fetchFn and stores its result.
// Errors from fetchFn are returned untouched and nothing is cached.
func (t *Typed[V]) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetchFn FetchFn[V]) (V, error) {
	if value, ok, err := t.Get(ctx, key); err != nil {
		var zero V
		return zero, err
	} else if ok {
		return value, nil
	}

	value, err := fetchFn(ctx)
	if err != nil {
		var zero V
		return zero, err
	}

	if err := t.Set(ctx, key, value, ttl); err != nil {
		t.logger.Warn("failed to cache fetched value", zap.String("key", key), zap.Error(err))
	}
	return value, nil
}
