package productcache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/shopavnu/avnu-marketplace-sub008/catalog"
	"github.com/shopavnu/avnu-marketplace-sub008/optimizer"
)

// DiscoveryProducts returns the discovery listing, reading the newest
// active in-stock products from the source on a miss.
func (c *Cache) DiscoveryProducts(ctx context.Context, limit int) ([]*catalog.Product, error) {
	return c.readThrough(ctx, "discovery", DiscoveryKey(limit), c.ttl.Discovery, limit)
}

// RecommendedProducts returns the cached recommendations for userID. On a
// miss the newest active in-stock products stand in for a ranking.
func (c *Cache) RecommendedProducts(ctx context.Context, userID string, limit int) ([]*catalog.Product, error) {
	return c.readThrough(ctx, "recommended", RecommendedKey(userID, limit), c.ttl.Product, limit)
}

func (c *Cache) readThrough(ctx context.Context, kind, key string, ttl time.Duration, limit int) ([]*catalog.Product, error) {
	if limit <= 0 {
		limit = optimizer.DefaultLimit
	}

	fetched := false
	products, err := c.lists.GetOrFetch(ctx, key, ttl, func(ctx context.Context) ([]*catalog.Product, error) {
		fetched = true
		products, _, err := c.query(ctx, optimizer.QueryFilters{
			IsActive: optimizer.Bool(true),
			InStock:  optimizer.Bool(true),
		}, limit)
		if err != nil {
			return nil, err
		}
		if err := c.indexFeedKey(ctx, key); err != nil {
			c.logger.Warn("failed to index feed", zap.String("key", key), zap.Error(err))
		}
		return products, nil
	})
	if err != nil {
		return nil, err
	}

	if fetched {
		c.metrics.ObserveCacheLookup(metricsName, kind, "miss")
	} else {
		c.metrics.ObserveCacheLookup(metricsName, kind, "hit")
	}
	return products, nil
}
