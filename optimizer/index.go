package optimizer

import (
	"context"
	"slices"

	"go.uber.org/zap"

	"github.com/shopavnu/avnu-marketplace-sub008/cache"
	"github.com/shopavnu/avnu-marketplace-sub008/pagination"
)

// ListingIndexKey holds every result key and page family written by
// OptimizedQuery. Listing filters are open ended, so a product change
// cannot name the entries it affects and drops all of them instead.
const ListingIndexKey = "products:query:keys"

type listingIndex struct {
	Results []string            `json:"results"`
	Pages   []pagination.Family `json:"pages"`
}

func (o *Optimizer) trackListing(ctx context.Context, resultKey string, family pagination.Family) error {
	o.indexMu.Lock()
	defer o.indexMu.Unlock()

	idx, _, err := o.index.Get(ctx, ListingIndexKey)
	if err != nil {
		return err
	}

	changed := false
	if !slices.Contains(idx.Results, resultKey) {
		idx.Results = append(idx.Results, resultKey)
		changed = true
	}
	if !containsFamily(idx.Pages, family) {
		idx.Pages = append(idx.Pages, family)
		changed = true
	}
	if !changed {
		return nil
	}
	// Outlives every entry it points at.
	return o.index.Set(ctx, ListingIndexKey, idx, o.ttl.Max)
}

// InvalidateListings drops every cached query result and listing page,
// then the index itself.
func (o *Optimizer) InvalidateListings(ctx context.Context) error {
	o.indexMu.Lock()
	defer o.indexMu.Unlock()

	idx, ok, err := o.index.Get(ctx, ListingIndexKey)
	if err != nil || !ok {
		return err
	}

	for _, key := range idx.Results {
		if err := o.results.Del(ctx, key); err != nil {
			return err
		}
	}
	for _, f := range idx.Pages {
		if err := o.pages.InvalidatePages(ctx, f.KeyPrefix, f.Filters); err != nil {
			return err
		}
	}
	if err := o.index.Del(ctx, ListingIndexKey); err != nil {
		return err
	}

	o.logger.Debug("invalidated cached listings",
		zap.Int("results", len(idx.Results)),
		zap.Int("families", len(idx.Pages)),
	)
	return nil
}

func containsFamily(families []pagination.Family, f pagination.Family) bool {
	want := cache.CanonicalJSON(f.Filters)
	return slices.ContainsFunc(families, func(g pagination.Family) bool {
		return g.KeyPrefix == f.KeyPrefix && cache.CanonicalJSON(g.Filters) == want
	})
}
