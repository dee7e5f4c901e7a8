// Package pagination caches paged listings as separate content and
// metadata records, with per-page access stamps driving adaptive expiry.
package pagination

import (
	"context"
	"encoding/json"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"go.uber.org/zap"

	"github.com/shopavnu/avnu-marketplace-sub008/cache"
	"github.com/shopavnu/avnu-marketplace-sub008/catalog"
)

// Key prefixes.
const (
	MetaKeyPrefix   = "pagination:meta"
	PageKeyPrefix   = "pagination:page"
	AccessKeyPrefix = "pagination:access"
)

// TTLConfig holds the lifetimes used by the pagination cache.
type TTLConfig struct {
	Default  time.Duration
	Min      time.Duration
	Max      time.Duration
	Metadata time.Duration
	Access   time.Duration
}

// DefaultTTLConfig returns 300s/60s/3600s content lifetimes and 600s for
// metadata and access stamps.
func DefaultTTLConfig() TTLConfig {
	return TTLConfig{
		Default:  300 * time.Second,
		Min:      60 * time.Second,
		Max:      3600 * time.Second,
		Metadata: 600 * time.Second,
		Access:   600 * time.Second,
	}
}

// Metadata describes every page cached for one (prefix, filters) pair.
type Metadata struct {
	TotalItems  int            `json:"totalItems"`
	PageSize    int            `json:"pageSize"`
	TotalPages  int            `json:"totalPages"`
	LastUpdated time.Time      `json:"lastUpdated"`
	KeyPrefix   string         `json:"keyPrefix"`
	Filters     map[string]any `json:"filters"`
}

// Page is a cache hit.
type Page[T any] struct {
	Items    []T
	Metadata Metadata
}

// CacheOptions describes the page being stored.
type CacheOptions struct {
	KeyPrefix  string
	Filters    any
	TotalItems int
	PageSize   int
	// TTL of the page content; zero uses TTLConfig.Default.
	TTL time.Duration
}

// Option configures a Cache.
type Option func(*Cache)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock overrides time.Now for access tracking.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

func WithTTLConfig(cfg TTLConfig) Option {
	return func(c *Cache) {
		c.ttl = cfg
	}
}

// Cache stores page content apart from the metadata shared by all pages
// of a query, so the metadata can outlive individual pages and drive bulk
// invalidation.
type Cache struct {
	store  cache.Cache
	meta   *cache.Typed[Metadata]
	access *cache.Typed[int64]
	keys   cache.KeySerializer
	logger *zap.Logger
	now    func() time.Time
	ttl    TTLConfig
}

// New creates a pagination cache on top of store.
func New(store cache.Cache, opts ...Option) *Cache {
	c := &Cache{
		store:  store,
		keys:   cache.NewDefaultKeySerializer(),
		logger: zap.NewNop(),
		now:    time.Now,
		ttl:    DefaultTTLConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.meta = cache.NewTyped[Metadata](store, c.logger)
	c.access = cache.NewTyped[int64](store, c.logger)
	return c
}

// TTLs returns the configured lifetimes.
func (c *Cache) TTLs() TTLConfig { return c.ttl }

// MetaKey returns pagination:meta:{prefix}:{filters}.
func (c *Cache) MetaKey(keyPrefix string, filters any) string {
	return c.keys.SerializeKey(MetaKeyPrefix, keyPrefix, cache.CanonicalJSON(filters))
}

// PageKey returns pagination:page:{prefix}:{filters}:{page}.
func (c *Cache) PageKey(keyPrefix string, filters any, page int) string {
	return c.keys.SerializeKey(PageKeyPrefix, keyPrefix, cache.CanonicalJSON(filters), page)
}

// AccessKey returns pagination:access:{pageKey}.
func (c *Cache) AccessKey(pageKey string) string {
	return c.keys.SerializeKey(AccessKeyPrefix, pageKey)
}

// CachePage stores items as page number page together with the pagination
// metadata for the query and an access stamp for the page.
func CachePage[T any](ctx context.Context, c *Cache, page int, items []T, opts CacheOptions) error {
	if opts.PageSize <= 0 {
		return goerrors.New("page size must be greater than 0", goerrors.CategoryBadInput).
			WithTextCode("INVALID_PAGE_SIZE")
	}
	if page < 1 {
		return goerrors.New("page must be 1 or greater", goerrors.CategoryBadInput).
			WithTextCode("INVALID_PAGE")
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = c.ttl.Default
	}

	meta := Metadata{
		TotalItems:  opts.TotalItems,
		PageSize:    opts.PageSize,
		TotalPages:  TotalPages(opts.TotalItems, opts.PageSize),
		LastUpdated: c.now().UTC(),
		KeyPrefix:   opts.KeyPrefix,
		Filters:     filterMap(opts.Filters),
	}

	if err := c.meta.Set(ctx, c.MetaKey(opts.KeyPrefix, opts.Filters), meta, c.ttl.Metadata); err != nil {
		return err
	}

	pageKey := c.PageKey(opts.KeyPrefix, opts.Filters, page)
	if err := cache.NewTyped[[]T](c.store, c.logger).Set(ctx, pageKey, items, ttl); err != nil {
		return err
	}

	c.logger.Debug("cached page",
		zap.String("key", pageKey),
		zap.Int("items", len(items)),
		zap.Int("total_pages", meta.TotalPages),
		zap.Duration("ttl", ttl),
	)

	return c.touch(ctx, pageKey)
}

// GetPage returns the cached page, or false when it is missing. Content
// found without its metadata is treated as invalid and deleted.
func GetPage[T any](ctx context.Context, c *Cache, keyPrefix string, filters any, page int) (*Page[T], bool, error) {
	pageKey := c.PageKey(keyPrefix, filters, page)

	items, ok, err := cache.NewTyped[[]T](c.store, c.logger).Get(ctx, pageKey)
	if err != nil || !ok {
		return nil, false, err
	}

	meta, ok, err := c.meta.Get(ctx, c.MetaKey(keyPrefix, filters))
	if err != nil {
		return nil, false, err
	}
	if !ok {
		c.logger.Debug("page content without metadata, dropping", zap.String("key", pageKey))
		if err := c.store.Del(ctx, pageKey); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}

	if err := c.touch(ctx, pageKey); err != nil {
		return nil, false, err
	}

	return &Page[T]{Items: items, Metadata: meta}, true, nil
}

// InvalidatePages removes the metadata and every page, with its access
// stamp, of the (prefix, filters) pair. Missing metadata is a no-op.
func (c *Cache) InvalidatePages(ctx context.Context, keyPrefix string, filters any) error {
	metaKey := c.MetaKey(keyPrefix, filters)

	meta, ok, err := c.meta.Get(ctx, metaKey)
	if err != nil || !ok {
		return err
	}

	if err := c.store.Del(ctx, metaKey); err != nil {
		return err
	}
	for page := 1; page <= meta.TotalPages; page++ {
		pageKey := c.PageKey(keyPrefix, filters, page)
		if err := c.store.Del(ctx, pageKey); err != nil {
			return err
		}
		if err := c.store.Del(ctx, c.AccessKey(pageKey)); err != nil {
			return err
		}
	}

	c.logger.Debug("invalidated pages",
		zap.String("prefix", keyPrefix),
		zap.String("filters", cache.CanonicalJSON(filters)),
		zap.Int("pages", meta.TotalPages),
	)
	return nil
}

// Family is a cached query family that may contain a given product.
type Family struct {
	KeyPrefix string
	Filters   map[string]any
}

// NewFamily captures filters in the form used to build keys, so the
// family can be stored and invalidated later.
func NewFamily(keyPrefix string, filters any) Family {
	return Family{KeyPrefix: keyPrefix, Filters: filterMap(filters)}
}

// RelatedFamilies lists the families touched by a change to p: its
// merchant, each of its categories, featured when flagged, and recent.
func RelatedFamilies(p *catalog.Product) []Family {
	families := []Family{
		{KeyPrefix: "merchant", Filters: map[string]any{"merchantId": p.MerchantID}},
	}
	for _, category := range p.Categories {
		families = append(families, Family{KeyPrefix: "category", Filters: map[string]any{"category": category}})
	}
	if p.Featured {
		families = append(families, Family{KeyPrefix: "featured", Filters: map[string]any{}})
	}
	return append(families, Family{KeyPrefix: "recent", Filters: map[string]any{}})
}

// InvalidateRelatedPages invalidates every family that could list p.
func (c *Cache) InvalidateRelatedPages(ctx context.Context, p *catalog.Product) error {
	if p == nil {
		return nil
	}
	for _, f := range RelatedFamilies(p) {
		if err := c.InvalidatePages(ctx, f.KeyPrefix, f.Filters); err != nil {
			return err
		}
	}
	return nil
}

// DetermineOptimalTTL picks a content TTL from how recently the page was
// read: under a minute is hot, over an hour is cold.
func (c *Cache) DetermineOptimalTTL(ctx context.Context, keyPrefix string, filters any, page int) time.Duration {
	pageKey := c.PageKey(keyPrefix, filters, page)

	last, ok, err := c.access.Get(ctx, c.AccessKey(pageKey))
	if err != nil || !ok {
		return c.ttl.Default
	}

	since := c.now().Sub(time.UnixMilli(last))
	switch {
	case since < time.Minute:
		return c.ttl.Max
	case since < 5*time.Minute:
		return 2 * c.ttl.Default
	case since < time.Hour:
		return c.ttl.Default
	default:
		return c.ttl.Min
	}
}

func (c *Cache) touch(ctx context.Context, pageKey string) error {
	return c.access.Set(ctx, c.AccessKey(pageKey), c.now().UnixMilli(), c.ttl.Access)
}

// TotalPages is ceil(totalItems / pageSize).
func TotalPages(totalItems, pageSize int) int {
	if pageSize <= 0 || totalItems <= 0 {
		return 0
	}
	return (totalItems + pageSize - 1) / pageSize
}

func filterMap(filters any) map[string]any {
	out := map[string]any{}
	_ = json.Unmarshal([]byte(cache.CanonicalJSON(filters)), &out)
	return out
}
