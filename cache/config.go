package cache

import (
	"time"

	"go.uber.org/zap"

	"github.com/shopavnu/avnu-marketplace-sub008/breaker"
	"github.com/shopavnu/avnu-marketplace-sub008/internal/cacheinfra"
	"github.com/shopavnu/avnu-marketplace-sub008/pkg/metrics"
)

// Config exposes cache configuration options for consumers of the cache package.
type Config struct {
	Fallback   FallbackConfig
	Redis      RedisConfig
	Breaker    breaker.Config
	DefaultTTL time.Duration
}

// FallbackConfig mirrors the in-process store options.
type FallbackConfig struct {
	Capacity           int
	NumShards          int
	TTL                time.Duration
	EvictionPercentage int
	EvictionInterval   time.Duration
}

// RedisConfig mirrors the remote store connection options.
type RedisConfig struct {
	Addr         string
	Username     string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Fallback:   convertFromInternal(cacheinfra.DefaultConfig()),
		Redis:      RedisConfig(cacheinfra.DefaultRedisConfig()),
		Breaker:    breaker.DefaultConfig(),
		DefaultTTL: DefaultTTL,
	}
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	if err := c.Fallback.toInternal().Validate(); err != nil {
		return err
	}
	if err := cacheinfra.RedisConfig(c.Redis).Validate(); err != nil {
		return err
	}
	if c.DefaultTTL < 0 {
		return &cacheinfra.ConfigError{Field: "DefaultTTL", Message: "must be non-negative"}
	}
	return c.Breaker.Validate()
}

// Build is what NewFromConfig returns: the cache plus the resources the
// caller must close.
type Build struct {
	Cache  *ResilientCache
	Remote *cacheinfra.RedisStore
}

// Close stops the breaker timers and closes the redis client.
func (b *Build) Close() error {
	if b == nil {
		return nil
	}
	_ = b.Cache.Breaker().Close()
	return b.Remote.Close()
}

// NewFromConfig constructs the default ResilientCache: sturdyc fallback,
// go-redis remote, and a breaker that checks redis with PING while open.
func NewFromConfig(cfg Config, logger *zap.Logger, m *metrics.Collector) (*Build, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	fallback, err := cacheinfra.NewFallbackStore(cfg.Fallback.toInternal())
	if err != nil {
		return nil, err
	}

	client, err := cacheinfra.NewRedisClient(cacheinfra.RedisConfig(cfg.Redis))
	if err != nil {
		return nil, err
	}
	remote := cacheinfra.NewRedisStore(client)

	cb := breaker.New(cfg.Breaker,
		breaker.WithName("redis"),
		breaker.WithLogger(logger.Named("breaker")),
		breaker.WithMetrics(m),
		breaker.WithHealthCheck(remote.Ping),
	)

	rc := NewResilientCache(remote, fallback, cb,
		WithLogger(logger.Named("cache")),
		WithMetrics(m),
		WithDefaultTTL(cfg.DefaultTTL),
	)

	return &Build{Cache: rc, Remote: remote}, nil
}

func (c FallbackConfig) toInternal() cacheinfra.Config {
	return cacheinfra.Config{
		Capacity:           c.Capacity,
		NumShards:          c.NumShards,
		TTL:                c.TTL,
		EvictionPercentage: c.EvictionPercentage,
		EvictionInterval:   c.EvictionInterval,
	}
}

func convertFromInternal(cfg cacheinfra.Config) FallbackConfig {
	return FallbackConfig{
		Capacity:           cfg.Capacity,
		NumShards:          cfg.NumShards,
		TTL:                cfg.TTL,
		EvictionPercentage: cfg.EvictionPercentage,
		EvictionInterval:   cfg.EvictionInterval,
	}
}
