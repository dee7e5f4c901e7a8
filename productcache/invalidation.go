package productcache

import (
	"context"

	"go.uber.org/zap"

	"github.com/shopavnu/avnu-marketplace-sub008/catalog"
)

// InvalidateProduct drops the single product entry.
func (c *Cache) InvalidateProduct(ctx context.Context, id string) error {
	if err := c.store.Del(ctx, ProductKey(id)); err != nil {
		c.logger.Error("failed to invalidate product", zap.String("product_id", id), zap.Error(err))
		return err
	}
	c.logger.Debug("invalidated product", zap.String("product_id", id))
	c.emit(Event{Kind: EventCacheInvalidated, Scope: ScopeProduct, ID: id})
	return nil
}

// InvalidateMerchant drops every merchant listing recorded in the
// merchant index, then the index itself.
func (c *Cache) InvalidateMerchant(ctx context.Context, merchantID string) error {
	n, err := c.dropIndexed(ctx, merchantIndexKey(merchantID))
	if err != nil {
		c.logger.Error("failed to invalidate merchant listings", zap.String("merchant_id", merchantID), zap.Error(err))
		return err
	}
	c.logger.Debug("invalidated merchant listings",
		zap.String("merchant_id", merchantID),
		zap.Int("keys", n),
	)
	c.emit(Event{Kind: EventCacheInvalidated, Scope: ScopeMerchant, ID: merchantID})
	return nil
}

// InvalidateFeeds drops every cursor page, recommendation and discovery
// listing recorded in the feed index.
func (c *Cache) InvalidateFeeds(ctx context.Context) error {
	n, err := c.dropIndexed(ctx, feedIndexKey)
	if err != nil {
		c.logger.Error("failed to invalidate product feeds", zap.Error(err))
		return err
	}
	c.logger.Debug("invalidated product feeds", zap.Int("keys", n))
	c.emit(Event{Kind: EventCacheInvalidated, Scope: ScopeFeeds})
	return nil
}

// dropIndexed deletes every key listed under indexKey, then the index.
func (c *Cache) dropIndexed(ctx context.Context, indexKey string) (int, error) {
	c.indexMu.Lock()
	defer c.indexMu.Unlock()

	keys, _, err := c.index.Get(ctx, indexKey)
	if err != nil {
		return 0, err
	}
	for _, key := range append(keys, indexKey) {
		if err := c.store.Del(ctx, key); err != nil {
			return 0, err
		}
	}
	return len(keys), nil
}

// InvalidateAll resets the whole store.
func (c *Cache) InvalidateAll(ctx context.Context) error {
	if err := c.store.Reset(ctx); err != nil {
		c.logger.Error("failed to reset product cache", zap.Error(err))
		return err
	}
	c.logger.Debug("invalidated all product caches")
	c.emit(Event{Kind: EventCacheInvalidated, Scope: ScopeAll})
	return nil
}

// ProductCreated resets the cache: a new product may belong to any
// cached listing.
func (c *Cache) ProductCreated(ctx context.Context, p *catalog.Product) error {
	return c.InvalidateAll(ctx)
}

// ProductUpdated drops the product, its merchant listings, the feeds, the
// paginated listings that may contain it and the optimizer's listings.
func (c *Cache) ProductUpdated(ctx context.Context, p *catalog.Product) error {
	if p == nil {
		return nil
	}
	if err := c.InvalidateProduct(ctx, p.ID); err != nil {
		return err
	}
	if p.MerchantID != "" {
		if err := c.InvalidateMerchant(ctx, p.MerchantID); err != nil {
			return err
		}
	}
	if err := c.InvalidateFeeds(ctx); err != nil {
		return err
	}
	if err := c.invalidateRelatedPages(ctx, p); err != nil {
		return err
	}
	return c.InvalidateListings(ctx)
}

// InvalidateListings drops every optimizer listing. It is a no-op
// without WithListings.
func (c *Cache) InvalidateListings(ctx context.Context) error {
	if c.listings == nil {
		return nil
	}
	if err := c.listings.InvalidateListings(ctx); err != nil {
		c.logger.Error("failed to invalidate listings", zap.Error(err))
		return err
	}
	c.emit(Event{Kind: EventCacheInvalidated, Scope: ScopeListings})
	return nil
}

// ProductDeleted drops the product and its paginated listings, then
// resets the cache.
func (c *Cache) ProductDeleted(ctx context.Context, p *catalog.Product) error {
	if p == nil {
		return nil
	}
	if err := c.InvalidateProduct(ctx, p.ID); err != nil {
		return err
	}
	if err := c.invalidateRelatedPages(ctx, p); err != nil {
		return err
	}
	return c.InvalidateAll(ctx)
}

// Created handles a batch insert with a single reset.
func (c *Cache) Created(ctx context.Context, products []*catalog.Product) error {
	if len(products) == 0 {
		return nil
	}
	return c.InvalidateAll(ctx)
}

// Updated runs ProductUpdated for every product and returns the first
// failure.
func (c *Cache) Updated(ctx context.Context, products []*catalog.Product) error {
	var first error
	for _, p := range products {
		if err := c.ProductUpdated(ctx, p); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Deleted drops every product and its pages, then resets once.
func (c *Cache) Deleted(ctx context.Context, products []*catalog.Product) error {
	if len(products) == 0 {
		return nil
	}
	var first error
	for _, p := range products {
		if p == nil {
			continue
		}
		if err := c.InvalidateProduct(ctx, p.ID); err != nil && first == nil {
			first = err
		}
		if err := c.invalidateRelatedPages(ctx, p); err != nil && first == nil {
			first = err
		}
	}
	if err := c.InvalidateAll(ctx); err != nil && first == nil {
		first = err
	}
	return first
}

// Purged handles deletes whose rows are unknown.
func (c *Cache) Purged(ctx context.Context) error {
	return c.InvalidateAll(ctx)
}

func (c *Cache) invalidateRelatedPages(ctx context.Context, p *catalog.Product) error {
	if c.pages == nil {
		return nil
	}
	if err := c.pages.InvalidateRelatedPages(ctx, p); err != nil {
		c.logger.Error("failed to invalidate related pages", zap.String("product_id", p.ID), zap.Error(err))
		return err
	}
	return nil
}
