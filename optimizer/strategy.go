package optimizer

import (
	"regexp"
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/schema"
)

// Strategy turns filters and a page into select criteria.
type Strategy interface {
	Name() string
	Criteria(f QueryFilters, p Pagination) []repository.SelectCriteria
}

// SelectStrategy picks the postgres strategy for pgdialect and the
// portable one for everything else.
func SelectStrategy(d schema.Dialect) Strategy {
	if d != nil && d.Name() == dialect.PG {
		return PostgresStrategy{}
	}
	return StandardStrategy{}
}

// textVector is the document searched by the postgres strategy.
const textVector = "to_tsvector('english', product.title || ' ' || coalesce(product.description, '') || ' ' || coalesce(product.brand_name, ''))"

// valuesColumn is quoted because VALUES is a keyword.
var valuesColumn = bun.Ident("product.values")

// likeEscape makes user text match literally inside a LIKE pattern that
// declares ESCAPE '\'.
var likeEscape = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func containsPattern(s string) string {
	return "%" + likeEscape.Replace(s) + "%"
}

// alternation matches any of terms literally.
func alternation(terms []string) string {
	quoted := make([]string, len(terms))
	for i, term := range terms {
		quoted[i] = regexp.QuoteMeta(term)
	}
	return strings.Join(quoted, "|")
}

// StandardStrategy sticks to predicates every SQL dialect understands.
type StandardStrategy struct{}

func (StandardStrategy) Name() string { return "standard" }

func (StandardStrategy) Criteria(f QueryFilters, p Pagination) []repository.SelectCriteria {
	criteria := equalityCriteria(f)

	if f.PriceMin != nil {
		criteria = append(criteria, where("product.price >= ?", *f.PriceMin))
	}
	if f.PriceMax != nil {
		criteria = append(criteria, where("product.price <= ?", *f.PriceMax))
	}
	for _, category := range f.Categories {
		criteria = append(criteria, where(`product.categories LIKE ? ESCAPE '\'`, containsPattern(category)))
	}
	for _, value := range f.Values {
		criteria = append(criteria, where(`? LIKE ? ESCAPE '\'`, valuesColumn, containsPattern(value)))
	}
	if f.SearchQuery != "" {
		pattern := containsPattern(f.SearchQuery)
		criteria = append(criteria, func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
				return q.Where(`product.title LIKE ? ESCAPE '\'`, pattern).
					WhereOr(`product.description LIKE ? ESCAPE '\'`, pattern).
					WhereOr(`product.brand_name LIKE ? ESCAPE '\'`, pattern)
			})
		})
	}

	return append(criteria, defaultOrder, page(p))
}

// PostgresStrategy uses range predicates, regex matching on the array
// columns and full-text search.
type PostgresStrategy struct{}

func (PostgresStrategy) Name() string { return "postgres" }

func (PostgresStrategy) Criteria(f QueryFilters, p Pagination) []repository.SelectCriteria {
	criteria := equalityCriteria(f)

	switch {
	case f.PriceMin != nil && f.PriceMax != nil:
		criteria = append(criteria, where("product.price BETWEEN ? AND ?", *f.PriceMin, *f.PriceMax))
	case f.PriceMin != nil:
		criteria = append(criteria, where("product.price >= ?", *f.PriceMin))
	case f.PriceMax != nil:
		criteria = append(criteria, where("product.price <= ?", *f.PriceMax))
	}
	if len(f.Categories) > 0 {
		criteria = append(criteria, where("array_to_string(product.categories, ',') ~ ?", alternation(f.Categories)))
	}
	if len(f.Values) > 0 {
		criteria = append(criteria, where("array_to_string(?, ',') ~ ?", valuesColumn, alternation(f.Values)))
	}

	ranked := false
	if f.SearchQuery != "" {
		criteria = append(criteria, where(textVector+" @@ plainto_tsquery('english', ?)", f.SearchQuery))
		if f.OrderByRelevance {
			ranked = true
			search := f.SearchQuery
			criteria = append(criteria, func(q *bun.SelectQuery) *bun.SelectQuery {
				return q.OrderExpr("ts_rank("+textVector+", plainto_tsquery('english', ?)) DESC", search)
			})
		}
	}

	if ranked {
		criteria = append(criteria, idOrder)
	} else {
		criteria = append(criteria, defaultOrder)
	}
	return append(criteria, page(p))
}

func equalityCriteria(f QueryFilters) []repository.SelectCriteria {
	var criteria []repository.SelectCriteria
	if f.MerchantID != "" {
		criteria = append(criteria, where("product.merchant_id = ?", f.MerchantID))
	}
	if f.InStock != nil {
		criteria = append(criteria, where("product.in_stock = ?", *f.InStock))
	}
	if f.IsActive != nil {
		criteria = append(criteria, where("product.is_active = ?", *f.IsActive))
	}
	if f.IsSuppressed != nil {
		criteria = append(criteria, where("product.is_suppressed = ?", *f.IsSuppressed))
	}
	if f.Featured != nil {
		criteria = append(criteria, where("product.featured = ?", *f.Featured))
	}
	return criteria
}

func where(query string, args ...any) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where(query, args...)
	}
}

func defaultOrder(q *bun.SelectQuery) *bun.SelectQuery {
	return q.OrderExpr("product.created_at DESC").OrderExpr("product.id DESC")
}

func idOrder(q *bun.SelectQuery) *bun.SelectQuery {
	return q.OrderExpr("product.id DESC")
}

func page(p Pagination) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Offset(p.Offset()).Limit(p.Limit)
	}
}
