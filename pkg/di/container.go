// Package di wires the product read path: the resilient cache, the query
// optimizer, pagination, analytics, the product cache and the repository
// decorator that keeps them consistent.
package di

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"go.uber.org/zap"

	"github.com/shopavnu/avnu-marketplace-sub008/analytics"
	"github.com/shopavnu/avnu-marketplace-sub008/cache"
	"github.com/shopavnu/avnu-marketplace-sub008/catalog"
	"github.com/shopavnu/avnu-marketplace-sub008/optimizer"
	"github.com/shopavnu/avnu-marketplace-sub008/pagination"
	"github.com/shopavnu/avnu-marketplace-sub008/pkg/config"
	"github.com/shopavnu/avnu-marketplace-sub008/pkg/metrics"
	"github.com/shopavnu/avnu-marketplace-sub008/productcache"
	"github.com/shopavnu/avnu-marketplace-sub008/repositorycache"
)

// ProductStore is the go-repository-bun repository the container decorates.
type ProductStore = repository.Repository[*catalog.Product]

// StoreFactory builds the base product repository over the opened database.
type StoreFactory func(db *bun.DB) (ProductStore, error)

type Option func(*Container)

// WithLogger replaces the logger built from the logging section.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Container) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRegisterer registers the metrics on reg. Without it a private
// registry is used.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Container) {
		c.registerer = reg
	}
}

// WithDB uses db instead of opening the configured database. The
// container does not close a supplied handle.
func WithDB(db *bun.DB) Option {
	return func(c *Container) {
		c.db = db
	}
}

// Container owns every component of the read path and their lifecycle.
type Container struct {
	cfg        config.Config
	instanceID string
	logger     *zap.Logger
	registerer prometheus.Registerer
	ownsDB     bool

	db        *bun.DB
	metrics   *metrics.Collector
	build     *cache.Build
	pages     *pagination.Cache
	analytics *analytics.Collector
	optimizer *optimizer.Optimizer
	products  *productcache.Cache
	worker    *repositorycache.Worker[*catalog.Product]
	repo      *repositorycache.CachedRepository[*catalog.Product]

	closeOnce sync.Once
	closeErr  error
}

// NewContainer builds the graph. Nothing runs in the background until
// Start; Close releases everything NewContainer opened.
func NewContainer(cfg config.Config, newStore StoreFactory, opts ...Option) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if newStore == nil {
		return nil, goerrors.New("a product store factory is required", goerrors.CategoryBadInput).
			WithTextCode("MISSING_STORE_FACTORY")
	}

	c := &Container{cfg: cfg, instanceID: uuid.NewString()}
	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		logger, err := newLogger(cfg.Logging)
		if err != nil {
			return nil, err
		}
		c.logger = logger
	}
	c.logger = c.logger.With(
		zap.String("service", cfg.Service.Name),
		zap.String("instance", c.instanceID),
	)

	if err := c.wire(newStore); err != nil {
		_ = c.Close()
		return nil, err
	}

	c.logger.Info("container ready",
		zap.String("driver", cfg.Database.Driver),
		zap.String("strategy", c.optimizer.Strategy().Name()),
		zap.Bool("async_invalidation", c.worker != nil),
	)
	return c, nil
}

func (c *Container) wire(newStore StoreFactory) error {
	cfg := c.cfg

	if cfg.Metrics.Enabled {
		m, err := metrics.NewCollector(cfg.Metrics.Namespace, c.registerer)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to register metrics")
		}
		c.metrics = m
	}

	build, err := cache.NewFromConfig(cfg.CacheConfig(), c.logger, c.metrics)
	if err != nil {
		return err
	}
	c.build = build

	if c.db == nil {
		db, err := openDB(cfg.Database)
		if err != nil {
			return err
		}
		c.db = db
		c.ownsDB = true
	}

	store, err := newStore(c.db)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build product store")
	}

	strategy := optimizer.SelectStrategy(c.db.Dialect())

	c.pages = pagination.New(build.Cache,
		pagination.WithLogger(c.logger.Named("pagination")),
		pagination.WithTTLConfig(cfg.PaginationTTLs()),
	)

	c.analytics, err = analytics.New(build.Cache, cfg.AnalyticsConfig(),
		analytics.WithLogger(c.logger.Named("analytics")),
		analytics.WithMetrics(c.metrics),
	)
	if err != nil {
		return err
	}

	c.optimizer = optimizer.New(store, strategy, build.Cache, c.pages, c.analytics,
		optimizer.WithLogger(c.logger.Named("optimizer")),
		optimizer.WithMetrics(c.metrics),
		optimizer.WithTTLConfig(cfg.OptimizerTTLs()),
	)

	c.products = productcache.New(build.Cache,
		productcache.WithLogger(c.logger.Named("products")),
		productcache.WithMetrics(c.metrics),
		productcache.WithTTLConfig(cfg.ProductTTLs()),
		productcache.WithPagination(c.pages),
		productcache.WithListings(c.optimizer),
		productcache.WithSource(store, strategy),
	)

	var inv repositorycache.Invalidator[*catalog.Product] = c.products
	if cfg.Invalidation.Async {
		c.worker = repositorycache.NewWorker[*catalog.Product](c.products, cfg.Invalidation.Buffer, c.logger.Named("invalidation"))
		inv = c.worker
	}
	c.repo = NewCachedRepository(c, store, inv)
	return nil
}

// NewCachedRepository decorates base with the container's logger.
func NewCachedRepository[T any](c *Container, base repository.Repository[T], inv repositorycache.Invalidator[T]) *repositorycache.CachedRepository[T] {
	return repositorycache.New(base, inv, repositorycache.WithLogger(c.logger.Named("repository")))
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid log level").
			WithTextCode(config.TextCodeInvalidConfig)
	}

	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	return zc.Build()
}

func openDB(cfg config.DatabaseConfig) (*bun.DB, error) {
	sqldb, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, fmt.Sprintf("failed to open %s database", cfg.Driver))
	}
	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	switch cfg.Driver {
	case "postgres":
		return bun.NewDB(sqldb, pgdialect.New()), nil
	case "sqlite3":
		return bun.NewDB(sqldb, sqlitedialect.New()), nil
	}
	_ = sqldb.Close()
	return nil, goerrors.New("unsupported database driver "+cfg.Driver, goerrors.CategoryBadInput).
		WithTextCode(config.TextCodeInvalidConfig)
}

// Start launches analytics and the invalidation worker, then warms the
// caches enabled in the configuration. Warmup failures are logged only.
func (c *Container) Start(ctx context.Context) error {
	if err := c.analytics.Start(ctx); err != nil {
		return err
	}
	if c.worker != nil {
		c.worker.Start(ctx)
	}

	if c.cfg.Optimizer.WarmOnStart {
		if err := c.optimizer.WarmupQueryCache(ctx); err != nil {
			c.logger.Warn("query cache warmup failed", zap.Error(err))
		}
	}
	if c.cfg.Products.WarmOnStart {
		if err := c.products.WarmAll(ctx); err != nil {
			c.logger.Warn("product cache warmup failed", zap.Error(err))
		}
	}
	return nil
}

// Close stops the background work first so queued invalidations still
// reach redis, then releases connections. It returns the first error and
// is safe to call more than once.
func (c *Container) Close() error {
	c.closeOnce.Do(func() {
		keep := func(err error) {
			if err != nil && c.closeErr == nil {
				c.closeErr = err
			}
		}

		if c.worker != nil {
			keep(c.worker.Close())
		}
		if c.analytics != nil {
			keep(c.analytics.Close())
		}
		if c.build != nil {
			keep(c.build.Close())
		}
		if c.db != nil && c.ownsDB {
			keep(c.db.Close())
		}
		if c.logger != nil {
			_ = c.logger.Sync()
		}
	})
	return c.closeErr
}

func (c *Container) Config() config.Config { return c.cfg }
func (c *Container) InstanceID() string { return c.instanceID }
func (c *Container) Logger() *zap.Logger { return c.logger }
func (c *Container) Metrics() *metrics.Collector { return c.metrics }
func (c *Container) DB() *bun.DB { return c.db }
func (c *Container) Cache() *cache.ResilientCache { return c.build.Cache }
func (c *Container) Pagination() *pagination.Cache { return c.pages }
func (c *Container) Analytics() *analytics.Collector { return c.analytics }
func (c *Container) Optimizer() *optimizer.Optimizer { return c.optimizer }
func (c *Container) ProductCache() *productcache.Cache { return c.products }

// Products is the decorated product repository. Writes through it
// invalidate the caches.
func (c *Container) Products() *repositorycache.CachedRepository[*catalog.Product] {
	return c.repo
}
