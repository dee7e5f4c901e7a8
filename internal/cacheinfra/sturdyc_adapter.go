package cacheinfra

import (
	"time"

	"github.com/viccon/sturdyc"
)

// Config holds the configuration for the in-process fallback store.
type Config struct {
	// Capacity defines the maximum number of entries the fallback store keeps.
	// Must be greater than 0.
	Capacity int

	// NumShards determines the number of cache shards for concurrent access.
	// Must be greater than 0 and not larger than Capacity.
	NumShards int

	// TTL caps the lifetime of every fallback entry. An entry lives for the
	// shorter of this and the TTL requested for the remote store.
	TTL time.Duration

	// EvictionPercentage specifies what percentage of entries to evict
	// when a shard reaches its capacity. Must be between 1-100.
	EvictionPercentage int

	// EvictionInterval sets how often expired entries are swept.
	// Zero value uses the sturdyc default.
	EvictionInterval time.Duration
}

// DefaultConfig returns the fallback store defaults: a small, short lived
// store that only has to bridge remote outages.
func DefaultConfig() Config {
	return Config{
		Capacity:           1000,
		NumShards:          16,
		TTL:                time.Minute,
		EvictionPercentage: 10,
		EvictionInterval:   0, // Use default
	}
}

// ToSturdycOptions converts the optional settings to sturdyc options.
// Capacity, NumShards, TTL, and EvictionPercentage are passed directly
// to sturdyc.New().
func (c Config) ToSturdycOptions() []sturdyc.Option {
	var options []sturdyc.Option

	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}

	return options
}

// Validate checks if the configuration values are valid.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	}

	if c.NumShards <= 0 {
		return &ConfigError{Field: "NumShards", Message: "must be greater than 0"}
	}

	if c.NumShards > c.Capacity {
		return &ConfigError{Field: "NumShards", Message: "must not exceed Capacity"}
	}

	if c.TTL <= 0 {
		return &ConfigError{Field: "TTL", Message: "must be greater than 0"}
	}

	if c.EvictionPercentage < 1 || c.EvictionPercentage > 100 {
		return &ConfigError{Field: "EvictionPercentage", Message: "must be between 1 and 100"}
	}

	if c.EvictionInterval < 0 {
		return &ConfigError{Field: "EvictionInterval", Message: "must be non-negative"}
	}

	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}

// FallbackStore is the always available in-process tier. Its operations
// never block on I/O and never fail.
type FallbackStore struct {
	client *sturdyc.Client[fallbackEntry]
	ttl    time.Duration
	now    func() time.Time
}

// fallbackEntry carries its own deadline because sturdyc only knows the
// store wide TTL.
type fallbackEntry struct {
	data      []byte
	expiresAt time.Time
}

// NewFallbackStore validates cfg and creates a sturdyc backed store.
func NewFallbackStore(cfg Config) (*FallbackStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := sturdyc.New[fallbackEntry](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		cfg.ToSturdycOptions()...,
	)

	return &FallbackStore{client: client, ttl: cfg.TTL, now: time.Now}, nil
}

// Get returns the stored bytes and whether the key was present and not
// past its deadline.
func (s *FallbackStore) Get(key string) ([]byte, bool) {
	e, ok := s.client.Get(key)
	if !ok {
		return nil, false
	}
	if !s.now().Before(e.expiresAt) {
		s.client.Delete(key)
		return nil, false
	}
	return e.data, true
}

// Set stores value under key for min(ttl, store TTL). A non-positive ttl
// uses the store TTL.
func (s *FallbackStore) Set(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 || ttl > s.ttl {
		ttl = s.ttl
	}
	s.client.Set(key, fallbackEntry{data: value, expiresAt: s.now().Add(ttl)})
}

// Delete removes a single entry.
func (s *FallbackStore) Delete(key string) {
	s.client.Delete(key)
}

// Reset removes every entry.
func (s *FallbackStore) Reset() {
	for _, key := range s.client.ScanKeys() {
		s.client.Delete(key)
	}
}

// Len reports the number of entries held, expired ones included until
// they are read or swept.
func (s *FallbackStore) Len() int {
	return s.client.Size()
}

// TTL returns the upper bound on entry lifetime.
func (s *FallbackStore) TTL() time.Duration {
	return s.ttl
}
