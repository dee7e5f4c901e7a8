package productcache

import (
	"time"

	"go.uber.org/zap"
)

// EventKind identifies a product cache event.
type EventKind int

const (
	// EventCacheInvalidated follows every invalidation.
	EventCacheInvalidated EventKind = iota + 1
	// EventCacheWarmed follows a WarmAll run.
	EventCacheWarmed
)

func (k EventKind) String() string {
	switch k {
	case EventCacheInvalidated:
		return "cache.invalidate"
	case EventCacheWarmed:
		return "cache.warming.complete"
	default:
		return "unknown"
	}
}

// Scope is what an invalidation removed.
type Scope string

const (
	ScopeProduct  Scope = "product"
	ScopeMerchant Scope = "merchant"
	ScopeFeeds    Scope = "feeds"
	ScopeListings Scope = "listings"
	ScopeAll      Scope = "all"
)

// Event is published on Cache.Events.
type Event struct {
	Kind EventKind
	// Scope and ID are set on invalidations. ID is the product or merchant id.
	Scope Scope
	ID    string
	// Duration is set on EventCacheWarmed.
	Duration time.Duration
}

const eventBuffer = 64

func (c *Cache) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.logger.Debug("product cache event dropped", zap.Stringer("kind", ev.Kind))
	}
}
