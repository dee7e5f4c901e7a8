package productcache

import (
	"context"
	"sort"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"go.uber.org/zap"

	"github.com/shopavnu/avnu-marketplace-sub008/catalog"
	"github.com/shopavnu/avnu-marketplace-sub008/optimizer"
)

// ErrNoSource is returned by the warmers when no repository was configured.
var ErrNoSource = goerrors.New("product cache has no source repository", goerrors.CategoryInternal).
	WithTextCode("NO_PRODUCT_SOURCE")

// Warming parameters.
var (
	PopularLimits     = []int{10, 20, 50}
	WarmCategoryNames = []string{"electronics", "clothing", "home", "beauty"}
	CategoryPages     = []int{1, 2}
	CategoryLimits    = []int{10, 20}
	MerchantLimits    = []int{10, 20}
)

const (
	popularTake  = 50
	categoryTake = 50
	merchantTake = 20
	topMerchants = 10
)

func (c *Cache) query(ctx context.Context, f optimizer.QueryFilters, limit int) ([]*catalog.Product, int, error) {
	if c.source == nil {
		return nil, 0, ErrNoSource
	}
	return c.source.List(ctx, c.strategy.Criteria(f, optimizer.Pagination{Page: 1, Limit: limit})...)
}

// WarmPopular caches the newest active, in-stock products under every
// popular limit.
func (c *Cache) WarmPopular(ctx context.Context) error {
	c.logger.Info("warming popular products cache")

	products, _, err := c.query(ctx, optimizer.QueryFilters{
		IsActive: optimizer.Bool(true),
		InStock:  optimizer.Bool(true),
	}, popularTake)
	if err != nil {
		return err
	}

	for _, limit := range PopularLimits {
		if err := c.CachePopularProducts(ctx, limit, head(products, 0, limit)); err != nil {
			return err
		}
	}
	return nil
}

// WarmCategories caches the first pages of each warm category.
func (c *Cache) WarmCategories(ctx context.Context) error {
	c.logger.Info("warming category products cache")

	for _, category := range WarmCategoryNames {
		products, _, err := c.query(ctx, optimizer.QueryFilters{
			Categories: []string{category},
			IsActive:   optimizer.Bool(true),
		}, categoryTake)
		if err != nil {
			return err
		}

		for _, page := range CategoryPages {
			for _, limit := range CategoryLimits {
				data := catalog.Page{Items: head(products, (page-1)*limit, limit), Total: len(products)}
				if err := c.CacheCategoryProducts(ctx, category, page, limit, data); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// WarmMerchants caches the first listing page of the merchants with the
// most active products in a recent sample.
func (c *Cache) WarmMerchants(ctx context.Context) error {
	c.logger.Info("warming merchant products cache")

	sample, _, err := c.query(ctx, optimizer.QueryFilters{IsActive: optimizer.Bool(true)}, optimizer.MaxLimit)
	if err != nil {
		return err
	}

	for _, merchantID := range rankMerchants(sample, topMerchants) {
		products, total, err := c.query(ctx, optimizer.QueryFilters{
			MerchantID: merchantID,
			IsActive:   optimizer.Bool(true),
		}, merchantTake)
		if err != nil {
			return err
		}

		for _, limit := range MerchantLimits {
			data := catalog.Page{Items: head(products, 0, limit), Total: total}
			if err := c.CacheMerchantProducts(ctx, merchantID, 1, limit, data); err != nil {
				return err
			}
		}
	}
	return nil
}

// WarmAll runs every warmer. A failing warmer is logged and does not
// stop the others; the first failure is returned.
func (c *Cache) WarmAll(ctx context.Context) error {
	c.logger.Info("starting cache warming")
	start := time.Now()

	var first error
	for _, w := range []struct {
		name string
		fn   func(context.Context) error
	}{
		{"popular", c.WarmPopular},
		{"categories", c.WarmCategories},
		{"merchants", c.WarmMerchants},
	} {
		if err := w.fn(ctx); err != nil {
			c.logger.Error("cache warming failed", zap.String("warmer", w.name), zap.Error(err))
			if first == nil {
				first = err
			}
		}
	}

	elapsed := time.Since(start)
	c.logger.Info("cache warming completed", zap.Duration("elapsed", elapsed))
	c.emit(Event{Kind: EventCacheWarmed, Duration: elapsed})
	return first
}

// rankMerchants orders merchant ids by product count, then id, and keeps
// the first n. Empty ids are skipped.
func rankMerchants(products []*catalog.Product, n int) []string {
	counts := map[string]int{}
	for _, p := range products {
		if p.MerchantID != "" {
			counts[p.MerchantID]++
		}
	}

	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if counts[ids[i]] != counts[ids[j]] {
			return counts[ids[i]] > counts[ids[j]]
		}
		return ids[i] < ids[j]
	})

	if len(ids) > n {
		ids = ids[:n]
	}
	return ids
}

// head returns up to limit items starting at offset.
func head(products []*catalog.Product, offset, limit int) []*catalog.Product {
	if offset >= len(products) {
		return []*catalog.Product{}
	}
	return products[offset:min(offset+limit, len(products))]
}
