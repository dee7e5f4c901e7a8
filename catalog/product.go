// Package catalog holds the product entity as the cache layer sees it.
package catalog

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// Product is the subset of the catalog entity the read path filters,
// caches and invalidates on.
type Product struct {
	bun.BaseModel `bun:"table:products,alias:product" json:"-" msgpack:"-"`

	ID           string    `bun:"id,pk" json:"id"`
	MerchantID   string    `bun:"merchant_id" json:"merchantId"`
	Title        string    `bun:"title" json:"title"`
	Description  string    `bun:"description" json:"description,omitempty"`
	BrandName    string    `bun:"brand_name" json:"brandName,omitempty"`
	Price        float64   `bun:"price" json:"price"`
	Categories   []string  `bun:"categories,array" json:"categories,omitempty"`
	Values       []string  `bun:"values,array" json:"values,omitempty"`
	InStock      bool      `bun:"in_stock" json:"inStock"`
	IsActive     bool      `bun:"is_active" json:"isActive"`
	IsSuppressed bool      `bun:"is_suppressed" json:"isSuppressed"`
	Featured     bool      `bun:"featured" json:"featured"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt    time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updatedAt"`
}

var _ bun.BeforeAppendModelHook = (*Product)(nil)

// BeforeAppendModel keeps the timestamps current on writes.
func (p *Product) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		p.UpdatedAt = now
	case *bun.UpdateQuery:
		p.UpdatedAt = now
	}
	return nil
}

// Page is a slice of products together with the total match count.
type Page struct {
	Items []*Product `json:"items"`
	Total int        `json:"total"`
}

// CursorPage is one page of a cursor paginated listing. NextCursor is
// empty on the last page.
type CursorPage struct {
	Items      []*Product `json:"items"`
	NextCursor string     `json:"nextCursor,omitempty"`
	HasMore    bool       `json:"hasMore"`
}
