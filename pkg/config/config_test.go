package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopavnu/avnu-marketplace-sub008/analytics"
	"github.com/shopavnu/avnu-marketplace-sub008/cache"
	"github.com/shopavnu/avnu-marketplace-sub008/optimizer"
	"github.com/shopavnu/avnu-marketplace-sub008/pagination"
	"github.com/shopavnu/avnu-marketplace-sub008/productcache"
)

func TestDefaultMatchesPackageDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, cache.DefaultConfig(), cfg.CacheConfig())
	assert.Equal(t, pagination.DefaultTTLConfig(), cfg.PaginationTTLs())
	assert.Equal(t, optimizer.DefaultTTLConfig(), cfg.OptimizerTTLs())
	assert.Equal(t, analytics.DefaultConfig(), cfg.AnalyticsConfig())
	assert.Equal(t, productcache.DefaultTTLConfig(), cfg.ProductTTLs())

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Invalidation.Async)
	assert.Equal(t, 128, cfg.Invalidation.Buffer)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("AVNU_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("AVNU_PRODUCTS_POPULAR_TTL", "15m")
	t.Setenv("AVNU_DATABASE_DRIVER", "sqlite3")
	t.Setenv("AVNU_DATABASE_DSN", "file::memory:?cache=shared")
	t.Setenv("AVNU_INVALIDATION_ASYNC", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, "redis.internal:6380", cfg.CacheConfig().Redis.Addr)
	assert.Equal(t, 15*time.Minute, cfg.ProductTTLs().Popular)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.True(t, cfg.Invalidation.Async)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
service:
  name: catalog-api
breaker:
  failure_threshold: 3
  reset_timeout: 10s
pagination:
  default_ttl: 20m
analytics:
  slow_query_threshold: 250ms
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := NewLoader(EnvPrefix).Load(path)
	require.NoError(t, err)

	assert.Equal(t, "catalog-api", cfg.Service.Name)
	assert.Equal(t, 3, cfg.CacheConfig().Breaker.FailureThreshold)
	assert.Equal(t, 10*time.Second, cfg.CacheConfig().Breaker.ResetTimeout)
	assert.Equal(t, 20*time.Minute, cfg.PaginationTTLs().Default)
	assert.Equal(t, 250*time.Millisecond, cfg.AnalyticsConfig().SlowQueryThreshold)
	// untouched keys keep their defaults
	assert.Equal(t, cache.DefaultConfig().Redis.Addr, cfg.Redis.Addr)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, TextCodeInvalidConfig, richErr.TextCode)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Loader)
	}{
		{"unknown driver", func(l *Loader) { l.Set("database.driver", "mysql") }},
		{"empty dsn", func(l *Loader) { l.Set("database.dsn", "") }},
		{"unknown log level", func(l *Loader) { l.Set("logging.level", "trace") }},
		{"pagination default above max", func(l *Loader) { l.Set("pagination.default_ttl", 48*time.Hour) }},
		{"optimizer min ttl zero", func(l *Loader) { l.Set("optimizer.min_ttl", 0) }},
		{"async without buffer", func(l *Loader) {
			l.Set("invalidation.async", true)
			l.Set("invalidation.buffer", 0)
		}},
		{"zero product ttl", func(l *Loader) { l.Set("products.product_ttl", 0) }},
		{"zero discovery ttl", func(l *Loader) { l.Set("products.discovery_ttl", 0) }},
		{"negative cache ttl", func(l *Loader) { l.Set("cache.default_ttl", -time.Second) }},
		{"zero analytics queue", func(l *Loader) { l.Set("analytics.queue_size", 0) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLoader("")
			tt.mutate(l)
			_, err := l.Load("")
			assert.Error(t, err)
		})
	}
}

func TestValidate_ServiceErrorsCarryCategory(t *testing.T) {
	cfg := Default()
	cfg.Database.Driver = "oracle"

	err := cfg.Validate()
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryValidation, richErr.Category)
	assert.Contains(t, err.Error(), "database")
}
