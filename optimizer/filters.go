package optimizer

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"

	"github.com/shopavnu/avnu-marketplace-sub008/catalog"
)

// QueryFilters narrows a product listing. Unset pointers and empty values
// are omitted from cache keys and query ids.
type QueryFilters struct {
	Categories       []string `json:"categories,omitempty"`
	PriceMin         *float64 `json:"priceMin,omitempty"`
	PriceMax         *float64 `json:"priceMax,omitempty"`
	MerchantID       string   `json:"merchantId,omitempty"`
	InStock          *bool    `json:"inStock,omitempty"`
	Featured         *bool    `json:"featured,omitempty"`
	Values           []string `json:"values,omitempty"`
	IsActive         *bool    `json:"isActive,omitempty"`
	IsSuppressed     *bool    `json:"isSuppressed,omitempty"`
	SearchQuery      string   `json:"searchQuery,omitempty"`
	OrderByRelevance bool     `json:"orderByRelevance,omitempty"`
}

// Validate rejects negative or inverted price bounds.
func (f QueryFilters) Validate() error {
	err := validation.ValidateStruct(&f,
		validation.Field(&f.PriceMin, validation.Min(0.0)),
		validation.Field(&f.PriceMax, validation.Min(0.0)),
		validation.Field(&f.SearchQuery, validation.Length(0, 256)),
	)
	if err == nil && f.PriceMin != nil && f.PriceMax != nil && *f.PriceMin > *f.PriceMax {
		err = validation.Errors{"priceMin": validation.NewError("validation_price_range", "must not exceed priceMax")}
	}
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid query filters").
			WithTextCode("INVALID_QUERY_FILTERS")
	}
	return nil
}

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }

// Float returns a pointer to f.
func Float(f float64) *float64 { return &f }

// Pagination selects one page of a listing.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// Normalize fills in the default page and limit.
func (p Pagination) Normalize() Pagination {
	if p.Page <= 0 {
		p.Page = DefaultPage
	}
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	return p
}

// Validate rejects pages below 1 and limits outside 1..MaxLimit.
func (p Pagination) Validate() error {
	err := validation.ValidateStruct(&p,
		validation.Field(&p.Page, validation.Required, validation.Min(1)),
		validation.Field(&p.Limit, validation.Required, validation.Min(1), validation.Max(MaxLimit)),
	)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid pagination").
			WithTextCode("INVALID_PAGINATION")
	}
	return nil
}

// Offset is the number of rows skipped before the page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Result is one page of matches together with the total match count.
type Result[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

// ProductResult is the listing result type.
type ProductResult = Result[*catalog.Product]
