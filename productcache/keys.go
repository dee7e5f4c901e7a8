package productcache

import (
	"fmt"
	"time"

	"github.com/shopavnu/avnu-marketplace-sub008/cache"
)

// TTLConfig holds the lifetime of each kind of product entry.
type TTLConfig struct {
	Product  time.Duration
	Popular  time.Duration
	Category time.Duration
	Merchant time.Duration
	// Discovery defaults to the popular lifetime.
	Discovery time.Duration
}

// DefaultTTLConfig returns one hour for everything except popular and
// discovery listings, which expire after thirty minutes.
func DefaultTTLConfig() TTLConfig {
	return TTLConfig{
		Product:   time.Hour,
		Popular:   30 * time.Minute,
		Category:  time.Hour,
		Merchant:  time.Hour,
		Discovery: 30 * time.Minute,
	}
}

const noFilters = "nofilters"

func ProductKey(id string) string {
	return "product:" + id
}

func ListKey(page, limit int) string {
	return fmt.Sprintf("products:list:%d:%d", page, limit)
}

// CursorKey uses "initial" for the first page.
func CursorKey(cursor string, limit int) string {
	if cursor == "" {
		cursor = "initial"
	}
	return fmt.Sprintf("products:cursor:%s:%d", cursor, limit)
}

func MerchantKey(merchantID string, page, limit int) string {
	return fmt.Sprintf("products:merchant:%s:%d:%d", merchantID, page, limit)
}

// merchantIndexKey holds the merchant listing keys written so far, so a
// merchant can be invalidated without scanning the store.
func merchantIndexKey(merchantID string) string {
	return fmt.Sprintf("products:merchant:%s:keys", merchantID)
}

func CategoryKey(category string, page, limit int) string {
	return fmt.Sprintf("products:category:%s:%d:%d", category, page, limit)
}

func PopularKey(limit int) string {
	return fmt.Sprintf("products:popular:%d", limit)
}

func RecommendedKey(userID string, limit int) string {
	return fmt.Sprintf("products:recommended:%s:%d", userID, limit)
}

func DiscoveryKey(limit int) string {
	return fmt.Sprintf("products:discovery:%d", limit)
}

// feedIndexKey holds the cursor, recommended and discovery keys written
// so far. Any of them may list an updated product.
const feedIndexKey = "products:feeds:keys"

// SearchKey embeds the canonical filters, or "nofilters" when there are
// none.
func SearchKey(query string, page, limit int, filters any) string {
	encoded := cache.CanonicalJSON(filters)
	if encoded == "{}" {
		encoded = noFilters
	}
	return fmt.Sprintf("products:search:%s:%d:%d:%s", query, page, limit, encoded)
}
