// Package productcache caches single products and the fixed product
// listings (merchant, category, popular, search), invalidates them on
// catalog changes and warms the hot ones from the repository.
package productcache

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shopavnu/avnu-marketplace-sub008/cache"
	"github.com/shopavnu/avnu-marketplace-sub008/catalog"
	"github.com/shopavnu/avnu-marketplace-sub008/optimizer"
	"github.com/shopavnu/avnu-marketplace-sub008/pagination"
	"github.com/shopavnu/avnu-marketplace-sub008/pkg/metrics"
)

// metricsName labels this cache in the lookup counters.
const metricsName = "product"

// Option configures a Cache.
type Option func(*Cache)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics counts hits and misses per entry kind.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

func WithTTLConfig(cfg TTLConfig) Option {
	return func(c *Cache) {
		c.ttl = cfg
	}
}

// WithPagination lets product updates drop the related paginated
// listings as well.
func WithPagination(pages *pagination.Cache) Option {
	return func(c *Cache) {
		c.pages = pages
	}
}

// ListingCache is the optimizer's view of its cached listings.
type ListingCache interface {
	InvalidateListings(ctx context.Context) error
}

// WithListings lets product updates drop the optimizer's cached query
// results and listing pages.
func WithListings(l ListingCache) Option {
	return func(c *Cache) {
		c.listings = l
	}
}

// WithSource sets the repository read by the warmers. A nil strategy
// falls back to optimizer.StandardStrategy.
func WithSource(repo optimizer.ProductRepository, strategy optimizer.Strategy) Option {
	return func(c *Cache) {
		c.source = repo
		if strategy != nil {
			c.strategy = strategy
		}
	}
}

// Cache is the product level cache.
type Cache struct {
	store    cache.Cache
	products *cache.Typed[*catalog.Product]
	pageSets *cache.Typed[catalog.Page]
	cursors  *cache.Typed[catalog.CursorPage]
	lists    *cache.Typed[[]*catalog.Product]
	index    *cache.Typed[[]string]

	pages    *pagination.Cache
	listings ListingCache
	source   optimizer.ProductRepository
	strategy optimizer.Strategy

	ttl     TTLConfig
	logger  *zap.Logger
	metrics *metrics.Collector
	events  chan Event

	// indexMu serializes read-modify-write of the merchant and feed indexes.
	indexMu sync.Mutex
}

// New creates a product cache over store.
func New(store cache.Cache, opts ...Option) *Cache {
	c := &Cache{
		store:    store,
		strategy: optimizer.StandardStrategy{},
		ttl:      DefaultTTLConfig(),
		logger:   zap.NewNop(),
		events:   make(chan Event, eventBuffer),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.products = cache.NewTyped[*catalog.Product](store, c.logger)
	c.pageSets = cache.NewTyped[catalog.Page](store, c.logger)
	c.cursors = cache.NewTyped[catalog.CursorPage](store, c.logger)
	c.lists = cache.NewTyped[[]*catalog.Product](store, c.logger)
	c.index = cache.NewTyped[[]string](store, c.logger)
	return c
}

// Events returns invalidation and warming notifications. Events are
// dropped when nobody reads them.
func (c *Cache) Events() <-chan Event { return c.events }

// TTLs returns the configured lifetimes.
func (c *Cache) TTLs() TTLConfig { return c.ttl }

// lookup reads key and records a hit or a miss. Store errors count as a
// miss.
func lookup[V any](ctx context.Context, c *Cache, t *cache.Typed[V], kind, key string) (V, bool) {
	v, ok, err := t.Get(ctx, key)
	if err != nil {
		c.logger.Warn("product cache lookup failed", zap.String("key", key), zap.Error(err))
	}
	if err != nil || !ok {
		c.metrics.ObserveCacheLookup(metricsName, kind, "miss")
		var zero V
		return zero, false
	}
	c.metrics.ObserveCacheLookup(metricsName, kind, "hit")
	c.logger.Debug("product cache hit", zap.String("key", key))
	return v, true
}

func put[V any](ctx context.Context, c *Cache, t *cache.Typed[V], key string, v V, ttl time.Duration) error {
	if err := t.Set(ctx, key, v, ttl); err != nil {
		c.metrics.ObserveCacheWriteError("set")
		c.logger.Warn("failed to cache products", zap.String("key", key), zap.Error(err))
		return err
	}
	c.logger.Debug("cached products", zap.String("key", key))
	return nil
}

func (c *Cache) GetProduct(ctx context.Context, id string) (*catalog.Product, bool) {
	return lookup(ctx, c, c.products, "product", ProductKey(id))
}

func (c *Cache) CacheProduct(ctx context.Context, p *catalog.Product) error {
	return put(ctx, c, c.products, ProductKey(p.ID), p, c.ttl.Product)
}

func (c *Cache) GetProductsList(ctx context.Context, page, limit int) (catalog.Page, bool) {
	return lookup(ctx, c, c.pageSets, "list", ListKey(page, limit))
}

func (c *Cache) CacheProductsList(ctx context.Context, page, limit int, data catalog.Page) error {
	return put(ctx, c, c.pageSets, ListKey(page, limit), data, c.ttl.Product)
}

func (c *Cache) GetProductsByCursor(ctx context.Context, cursor string, limit int) (catalog.CursorPage, bool) {
	return lookup(ctx, c, c.cursors, "cursor", CursorKey(cursor, limit))
}

func (c *Cache) CacheProductsByCursor(ctx context.Context, cursor string, limit int, data catalog.CursorPage) error {
	key := CursorKey(cursor, limit)
	if err := put(ctx, c, c.cursors, key, data, c.ttl.Product); err != nil {
		return err
	}
	return c.indexFeedKey(ctx, key)
}

func (c *Cache) GetMerchantProducts(ctx context.Context, merchantID string, page, limit int) (catalog.Page, bool) {
	return lookup(ctx, c, c.pageSets, "merchant", MerchantKey(merchantID, page, limit))
}

// CacheMerchantProducts stores one merchant listing page and records its
// key in the merchant index.
func (c *Cache) CacheMerchantProducts(ctx context.Context, merchantID string, page, limit int, data catalog.Page) error {
	key := MerchantKey(merchantID, page, limit)
	if err := put(ctx, c, c.pageSets, key, data, c.ttl.Merchant); err != nil {
		return err
	}
	return c.indexMerchantKey(ctx, merchantID, key)
}

func (c *Cache) GetCategoryProducts(ctx context.Context, category string, page, limit int) (catalog.Page, bool) {
	return lookup(ctx, c, c.pageSets, "category", CategoryKey(category, page, limit))
}

func (c *Cache) CacheCategoryProducts(ctx context.Context, category string, page, limit int, data catalog.Page) error {
	return put(ctx, c, c.pageSets, CategoryKey(category, page, limit), data, c.ttl.Category)
}

func (c *Cache) GetPopularProducts(ctx context.Context, limit int) ([]*catalog.Product, bool) {
	return lookup(ctx, c, c.lists, "popular", PopularKey(limit))
}

func (c *Cache) CachePopularProducts(ctx context.Context, limit int, products []*catalog.Product) error {
	return put(ctx, c, c.lists, PopularKey(limit), products, c.ttl.Popular)
}

func (c *Cache) GetRecommendedProducts(ctx context.Context, userID string, limit int) ([]*catalog.Product, bool) {
	return lookup(ctx, c, c.lists, "recommended", RecommendedKey(userID, limit))
}

func (c *Cache) CacheRecommendedProducts(ctx context.Context, userID string, limit int, products []*catalog.Product) error {
	key := RecommendedKey(userID, limit)
	if err := put(ctx, c, c.lists, key, products, c.ttl.Product); err != nil {
		return err
	}
	return c.indexFeedKey(ctx, key)
}

func (c *Cache) GetDiscoveryProducts(ctx context.Context, limit int) ([]*catalog.Product, bool) {
	return lookup(ctx, c, c.lists, "discovery", DiscoveryKey(limit))
}

func (c *Cache) CacheDiscoveryProducts(ctx context.Context, limit int, products []*catalog.Product) error {
	key := DiscoveryKey(limit)
	if err := put(ctx, c, c.lists, key, products, c.ttl.Discovery); err != nil {
		return err
	}
	return c.indexFeedKey(ctx, key)
}

func (c *Cache) GetSearchProducts(ctx context.Context, query string, page, limit int, filters any) (catalog.Page, bool) {
	return lookup(ctx, c, c.pageSets, "search", SearchKey(query, page, limit, filters))
}

func (c *Cache) CacheSearchProducts(ctx context.Context, query string, page, limit int, filters any, data catalog.Page) error {
	return put(ctx, c, c.pageSets, SearchKey(query, page, limit, filters), data, c.ttl.Product)
}

func (c *Cache) indexMerchantKey(ctx context.Context, merchantID, key string) error {
	return c.addToIndex(ctx, merchantIndexKey(merchantID), key, c.ttl.Merchant)
}

// indexFeedKey records key for InvalidateFeeds. The index lives as long
// as the longest lived feed entry.
func (c *Cache) indexFeedKey(ctx context.Context, key string) error {
	return c.addToIndex(ctx, feedIndexKey, key, max(c.ttl.Product, c.ttl.Discovery))
}

func (c *Cache) addToIndex(ctx context.Context, indexKey, key string, ttl time.Duration) error {
	c.indexMu.Lock()
	defer c.indexMu.Unlock()

	keys, _, err := c.index.Get(ctx, indexKey)
	if err != nil {
		return err
	}
	if slices.Contains(keys, key) {
		return nil
	}
	return c.index.Set(ctx, indexKey, append(keys, key), ttl)
}
