package cache

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"go.uber.org/zap"

	"github.com/shopavnu/avnu-marketplace-sub008/breaker"
	"github.com/shopavnu/avnu-marketplace-sub008/pkg/metrics"
)

// DefaultTTL applies when Set is called without a positive ttl.
const DefaultTTL = 5 * time.Minute

// TextCodeBackingStoreUnavailable tags logged remote failures.
const TextCodeBackingStoreUnavailable = "BACKING_STORE_UNAVAILABLE"

// Option configures a ResilientCache.
type Option func(*ResilientCache)

// WithLogger sets the logger used for degraded operations.
func WithLogger(logger *zap.Logger) Option {
	return func(c *ResilientCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics reports lookups per tier.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *ResilientCache) {
		c.metrics = m
	}
}

// WithDefaultTTL overrides DefaultTTL.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *ResilientCache) {
		if ttl > 0 {
			c.defaultTTL = ttl
		}
	}
}

// WithName labels metrics, useful when several caches share a collector.
func WithName(name string) Option {
	return func(c *ResilientCache) {
		if name != "" {
			c.name = name
		}
	}
}

// ResilientCache is a two tier cache. Reads and writes go to the remote
// store through a circuit breaker; the in-process fallback store is always
// written first and serves reads whenever the remote cannot.
//
// No method returns an error caused by the remote store. The only errors
// surfaced are context cancellations.
type ResilientCache struct {
	name       string
	remote     RemoteStore
	fallback   FallbackStore
	breaker    *breaker.CircuitBreaker
	logger     *zap.Logger
	metrics    *metrics.Collector
	defaultTTL time.Duration
}

var _ Cache = (*ResilientCache)(nil)

// NewResilientCache wires the two tiers and the breaker guarding the remote.
func NewResilientCache(remote RemoteStore, fallback FallbackStore, cb *breaker.CircuitBreaker, opts ...Option) *ResilientCache {
	c := &ResilientCache{
		name:       "resilient",
		remote:     remote,
		fallback:   fallback,
		breaker:    cb,
		logger:     zap.NewNop(),
		defaultTTL: DefaultTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Breaker exposes the circuit breaker guarding the remote store.
func (c *ResilientCache) Breaker() *breaker.CircuitBreaker {
	return c.breaker
}

type lookup struct {
	data     []byte
	ttl      time.Duration
	found    bool
	degraded bool
}

// Get reads key from the remote store, mirroring hits into the fallback.
// The fallback only answers when the remote is unavailable; a remote miss
// is a miss.
func (c *ResilientCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	res, _ := breaker.Do(ctx, c.breaker,
		func(ctx context.Context) (lookup, error) {
			data, ttl, ok, err := c.remote.GetWithTTL(ctx, key)
			if err != nil {
				return lookup{}, err
			}
			return lookup{data: data, ttl: ttl, found: ok}, nil
		},
		func(_ context.Context, cause error) (lookup, error) {
			c.logDegraded("get", key, cause)
			return lookup{degraded: true}, nil
		},
	)

	if res.found {
		c.fallback.Set(key, res.data, res.ttl)
		c.metrics.ObserveCacheLookup(c.name, "remote", "hit")
		return res.data, true, nil
	}
	if !res.degraded {
		c.metrics.ObserveCacheLookup(c.name, "remote", "miss")
		return nil, false, ctx.Err()
	}

	if data, ok := c.fallback.Get(key); ok {
		c.metrics.ObserveCacheLookup(c.name, "fallback", "hit")
		return data, true, nil
	}
	c.metrics.ObserveCacheLookup(c.name, "fallback", "miss")

	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	return nil, false, nil
}

// Set writes the fallback store, then the remote store best effort.
func (c *ResilientCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.fallback.Set(key, value, ttl)

	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.remote.Set(ctx, key, value, ttl)
	}, nil)
	return c.swallow(ctx, "set", key, err)
}

// Del removes key from both tiers.
func (c *ResilientCache) Del(ctx context.Context, key string) error {
	c.fallback.Delete(key)

	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.remote.Delete(ctx, key)
	}, nil)
	return c.swallow(ctx, "del", key, err)
}

// Reset clears both tiers.
func (c *ResilientCache) Reset(ctx context.Context) error {
	c.fallback.Reset()

	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.remote.Reset(ctx)
	}, nil)
	return c.swallow(ctx, "reset", "*", err)
}

// swallow logs a failed remote write and only propagates cancellation.
func (c *ResilientCache) swallow(ctx context.Context, op, key string, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	c.metrics.ObserveCacheWriteError(op)
	c.logDegraded(op, key, err)
	return nil
}

func (c *ResilientCache) logDegraded(op, key string, cause error) {
	if breaker.IsCircuitOpen(cause) {
		c.logger.Debug("remote cache skipped, circuit open",
			zap.String("operation", op),
			zap.String("key", key),
		)
		return
	}

	err := goerrors.Wrap(cause, goerrors.CategoryExternal, "remote cache unavailable")
	if err != nil {
		err = err.WithTextCode(TextCodeBackingStoreUnavailable).
			WithMetadata(map[string]any{"operation": op, "key": key})
	}
	c.logger.Warn("remote cache operation failed, using fallback",
		zap.String("operation", op),
		zap.String("key", key),
		zap.Error(err),
	)
}
