// Package optimizer answers product listing queries from the pagination
// cache, then the result cache, then the repository. Cache lifetimes come
// from the query analytics of each filter combination.
package optimizer

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"go.uber.org/zap"

	"github.com/shopavnu/avnu-marketplace-sub008/analytics"
	"github.com/shopavnu/avnu-marketplace-sub008/cache"
	"github.com/shopavnu/avnu-marketplace-sub008/catalog"
	"github.com/shopavnu/avnu-marketplace-sub008/pagination"
	"github.com/shopavnu/avnu-marketplace-sub008/pkg/metrics"
)

// ListingPattern names the product listing query in analytics.
const ListingPattern = "ProductListing"

// TextCodeRepositoryQueryFailed marks errors returned by the repository.
const TextCodeRepositoryQueryFailed = "REPOSITORY_QUERY_FAILED"

// ProductRepository is the read side of the product store. A
// go-repository-bun Repository[*catalog.Product] satisfies it.
type ProductRepository interface {
	List(ctx context.Context, criteria ...repository.SelectCriteria) ([]*catalog.Product, int, error)
}

// Analytics is what the optimizer needs from the analytics collector.
type Analytics interface {
	RecordQuery(pattern string, filters any, executionTime time.Duration, resultCount int) string
	GetQueryAnalyticsByID(ctx context.Context, queryID string) (analytics.QueryAnalytics, bool, error)
}

// TTLConfig bounds the computed cache lifetime.
type TTLConfig struct {
	Default time.Duration
	Min     time.Duration
	Max     time.Duration
}

// DefaultTTLConfig returns 300s, bounded to [60s, 3600s].
func DefaultTTLConfig() TTLConfig {
	return TTLConfig{
		Default: 300 * time.Second,
		Min:     60 * time.Second,
		Max:     3600 * time.Second,
	}
}

// Option configures an Optimizer.
type Option func(*Optimizer)

func WithLogger(logger *zap.Logger) Option {
	return func(o *Optimizer) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Collector) Option {
	return func(o *Optimizer) {
		o.metrics = m
	}
}

func WithTTLConfig(cfg TTLConfig) Option {
	return func(o *Optimizer) {
		o.ttl = cfg
	}
}

// WithClock replaces time.Now when measuring repository queries.
func WithClock(now func() time.Time) Option {
	return func(o *Optimizer) {
		if now != nil {
			o.now = now
		}
	}
}

// Optimizer serves product listings with the fewest repository reads.
type Optimizer struct {
	repo      ProductRepository
	strategy  Strategy
	pages     *pagination.Cache
	results   *cache.Typed[ProductResult]
	index     *cache.Typed[listingIndex]
	analytics Analytics
	keys      cache.KeySerializer
	logger    *zap.Logger
	metrics   *metrics.Collector
	ttl       TTLConfig
	now       func() time.Time

	// indexMu serializes read-modify-write of the listing index.
	indexMu sync.Mutex
}

// New creates an Optimizer. The strategy is fixed for its lifetime; use
// SelectStrategy with the database dialect to pick it.
func New(repo ProductRepository, strategy Strategy, results cache.Cache, pages *pagination.Cache, a Analytics, opts ...Option) *Optimizer {
	o := &Optimizer{
		repo:      repo,
		strategy:  strategy,
		pages:     pages,
		analytics: a,
		keys:      cache.NewDefaultKeySerializer(),
		logger:    zap.NewNop(),
		ttl:       DefaultTTLConfig(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.results = cache.NewTyped[ProductResult](results, o.logger)
	o.index = cache.NewTyped[listingIndex](results, o.logger)

	o.logger.Info("query optimizer ready", zap.String("strategy", strategy.Name()))
	return o
}

// Strategy returns the query strategy in use.
func (o *Optimizer) Strategy() Strategy { return o.strategy }

// QueryCacheKey returns products:query:{filters}:page:{page}:limit:{limit}.
func (o *Optimizer) QueryCacheKey(f QueryFilters, p Pagination) string {
	return o.keys.SerializeKey("products:query", cache.CanonicalJSON(f), "page", p.Page, "limit", p.Limit)
}

// pagePrefix scopes pagination entries by page size, so the same page
// number under two limits never shares an entry.
func pagePrefix(p Pagination) string {
	return fmt.Sprintf("%s:limit:%d", ListingPattern, p.Limit)
}

// OptimizedQuery returns one page of products matching f.
func (o *Optimizer) OptimizedQuery(ctx context.Context, f QueryFilters, p Pagination) (ProductResult, error) {
	p = p.Normalize()
	if err := f.Validate(); err != nil {
		return ProductResult{}, err
	}
	if err := p.Validate(); err != nil {
		return ProductResult{}, err
	}

	prefix := pagePrefix(p)
	cacheKey := o.QueryCacheKey(f, p)

	page, ok, err := pagination.GetPage[*catalog.Product](ctx, o.pages, prefix, f, p.Page)
	switch {
	case err != nil:
		o.logger.Warn("pagination cache lookup failed", zap.String("prefix", prefix), zap.Error(err))
	case ok:
		o.metrics.ObserveCacheLookup("optimizer", "pagination", "hit")
		return ProductResult{Items: page.Items, Total: page.Metadata.TotalItems}, nil
	}

	cached, ok, err := o.results.Get(ctx, cacheKey)
	switch {
	case err != nil:
		o.logger.Warn("result cache lookup failed", zap.String("key", cacheKey), zap.Error(err))
	case ok:
		o.metrics.ObserveCacheLookup("optimizer", "result", "hit")
		return cached, nil
	}
	o.metrics.ObserveCacheLookup("optimizer", "result", "miss")

	if err := ctx.Err(); err != nil {
		return ProductResult{}, err
	}

	start := o.now()
	items, total, err := o.repo.List(ctx, o.strategy.Criteria(f, p)...)
	elapsed := o.now().Sub(start)
	if err != nil {
		return ProductResult{}, goerrors.Wrap(err, goerrors.CategoryExternal, "product query failed").
			WithTextCode(TextCodeRepositoryQueryFailed).
			WithMetadata(map[string]any{
				"strategy": o.strategy.Name(),
				"page":     p.Page,
				"limit":    p.Limit,
			})
	}

	o.logger.Debug("executed product query",
		zap.String("strategy", o.strategy.Name()),
		zap.Duration("elapsed", elapsed),
		zap.Int("items", len(items)),
		zap.Int("total", total),
	)

	if o.analytics != nil {
		o.analytics.RecordQuery(ListingPattern, f, elapsed, len(items))
	}

	result := ProductResult{Items: items, Total: total}
	ttl := o.DetermineOptimalCacheTTL(ctx, ListingPattern, f, elapsed)

	if err := o.results.Set(ctx, cacheKey, result, ttl); err != nil {
		o.logger.Warn("failed to cache query result", zap.String("key", cacheKey), zap.Error(err))
	}
	err = pagination.CachePage(ctx, o.pages, p.Page, items, pagination.CacheOptions{
		KeyPrefix:  prefix,
		Filters:    f,
		TotalItems: total,
		PageSize:   p.Limit,
		TTL:        ttl,
	})
	if err != nil {
		o.logger.Warn("failed to cache result page", zap.String("prefix", prefix), zap.Error(err))
	}
	if err := o.trackListing(ctx, cacheKey, pagination.NewFamily(prefix, f)); err != nil {
		o.logger.Warn("failed to index cached listing", zap.String("key", cacheKey), zap.Error(err))
	}

	return result, nil
}

// DetermineOptimalCacheTTL scales the default lifetime by how often the
// query ran in the last hour and how long this execution took. Without
// analytics the default is returned unchanged.
func (o *Optimizer) DetermineOptimalCacheTTL(ctx context.Context, pattern string, filters any, executionTime time.Duration) time.Duration {
	if o.analytics == nil {
		return o.ttl.Default
	}

	id := analytics.GenerateQueryID(pattern, filters)
	stats, ok, err := o.analytics.GetQueryAnalyticsByID(ctx, id)
	if err != nil {
		o.logger.Warn("failed to read query analytics", zap.String("query_id", id), zap.Error(err))
		return o.ttl.Default
	}
	if !ok {
		return o.ttl.Default
	}

	ttl := o.ttl.Default.Seconds()
	minTTL, maxTTL := o.ttl.Min.Seconds(), o.ttl.Max.Seconds()

	switch {
	case stats.Frequency > 100:
		ttl = math.Min(maxTTL, ttl*2)
	case stats.Frequency > 50:
		ttl = math.Min(maxTTL, ttl*1.5)
	case stats.Frequency < 5:
		ttl = math.Max(minTTL, ttl*0.8)
	}

	switch {
	case executionTime > 500*time.Millisecond:
		ttl = math.Min(maxTTL, ttl*1.5)
	case executionTime > 200*time.Millisecond:
		ttl = math.Min(maxTTL, ttl*1.2)
	}

	return time.Duration(math.Round(ttl)) * time.Second
}

// WarmupCombination is one query run by WarmupQueryCache.
type WarmupCombination struct {
	Filters    QueryFilters
	Pagination Pagination
}

// WarmupCombinations returns the hot listings: in-stock active products,
// featured ones and unsuppressed ones, each at limits 10, 20 and 50.
func WarmupCombinations() []WarmupCombination {
	filters := []QueryFilters{
		{InStock: Bool(true), IsActive: Bool(true)},
		{Featured: Bool(true), InStock: Bool(true), IsActive: Bool(true)},
		{IsSuppressed: Bool(false), IsActive: Bool(true)},
	}
	limits := []int{10, 20, 50}

	combos := make([]WarmupCombination, 0, len(filters)*len(limits))
	for _, f := range filters {
		for _, limit := range limits {
			combos = append(combos, WarmupCombination{Filters: f, Pagination: Pagination{Page: 1, Limit: limit}})
		}
	}
	return combos
}

// WarmupQueryCache runs every warmup combination concurrently. Failures
// are logged; the first one is returned once all queries finish.
func (o *Optimizer) WarmupQueryCache(ctx context.Context) error {
	combos := WarmupCombinations()
	o.logger.Info("starting query cache warmup", zap.Int("queries", len(combos)))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failed   int
		firstErr error
	)
	for _, combo := range combos {
		wg.Add(1)
		go func(combo WarmupCombination) {
			defer wg.Done()
			if _, err := o.OptimizedQuery(ctx, combo.Filters, combo.Pagination); err != nil {
				o.logger.Warn("warmup query failed",
					zap.String("filters", cache.CanonicalJSON(combo.Filters)),
					zap.Int("limit", combo.Pagination.Limit),
					zap.Error(err),
				)
				mu.Lock()
				failed++
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(combo)
	}
	wg.Wait()

	if firstErr != nil {
		return goerrors.Wrap(firstErr, goerrors.CategoryExternal, fmt.Sprintf("%d of %d warmup queries failed", failed, len(combos))).
			WithTextCode("WARMUP_FAILED")
	}
	o.logger.Info("query cache warmup completed")
	return nil
}
