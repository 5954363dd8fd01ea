// Package catalog reads products from the document store and derives the
// visible, paginated product set from shopper criteria.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/jogardn/craft-storefront/pkg/models"
)

const (
	PageSize        = 12
	DefaultMaxPrice = 10000
)

type SortBy string

const (
	SortNewest    SortBy = "newest"
	SortPriceLow  SortBy = "price-low"
	SortPriceHigh SortBy = "price-high"
	SortName      SortBy = "name"
)

var ErrInvalidCriteria = errors.New("invalid filter criteria")

type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (r PriceRange) Contains(price float64) bool {
	return price >= r.Min && price <= r.Max
}

type Criteria struct {
	PriceRange  PriceRange `json:"priceRange"`
	Category    string     `json:"category,omitempty"`
	InStock     bool       `json:"inStock"`
	SortBy      SortBy     `json:"sortBy"`
	SearchQuery string     `json:"searchQuery,omitempty"`
}

// DefaultCriteria matches the cleared filter panel.
func DefaultCriteria() Criteria {
	return Criteria{
		PriceRange: PriceRange{Min: 0, Max: DefaultMaxPrice},
		SortBy:     SortNewest,
	}
}

func (c Criteria) Validate() error {
	if c.PriceRange.Min < 0 || c.PriceRange.Max < 0 {
		return fmt.Errorf("%w: price range must not be negative", ErrInvalidCriteria)
	}
	if c.PriceRange.Min > c.PriceRange.Max {
		return fmt.Errorf("%w: minimum price %.2f exceeds maximum %.2f",
			ErrInvalidCriteria, c.PriceRange.Min, c.PriceRange.Max)
	}
	switch c.SortBy {
	case "", SortNewest, SortPriceLow, SortPriceHigh, SortName:
	default:
		return fmt.Errorf("%w: unknown sort %q", ErrInvalidCriteria, c.SortBy)
	}
	return nil
}

type Page struct {
	Items     []models.Product `json:"items"`
	Total     int              `json:"total"`
	Page      int              `json:"page"`
	PageCount int              `json:"pageCount"`
	PageSize  int              `json:"pageSize"`
}

// Apply filters, sorts and paginates products. The input slice is not modified.
func Apply(products []models.Product, criteria Criteria, page int) Page {
	return Paginate(Filter(products, criteria), page)
}

// Filter runs search, price, category and stock filters in that order and
// then sorts the survivors.
func Filter(products []models.Product, criteria Criteria) []models.Product {
	query := strings.ToLower(criteria.SearchQuery)
	category := strings.ToLower(criteria.Category)

	filtered := make([]models.Product, 0, len(products))
	for _, p := range products {
		if query != "" && !matchesSearch(p, query) {
			continue
		}
		if !criteria.PriceRange.Contains(p.EffectivePrice()) {
			continue
		}
		if category != "" && strings.ToLower(p.Category) != category {
			continue
		}
		if criteria.InStock && !p.InStock() {
			continue
		}
		filtered = append(filtered, p)
	}

	sortProducts(filtered, criteria.SortBy)
	return filtered
}

func matchesSearch(p models.Product, query string) bool {
	return strings.Contains(strings.ToLower(p.Name), query) ||
		strings.Contains(strings.ToLower(p.Description), query) ||
		strings.Contains(strings.ToLower(p.Category), query)
}

func sortProducts(products []models.Product, by SortBy) {
	switch by {
	case SortPriceLow:
		sort.SliceStable(products, func(i, j int) bool {
			return products[i].EffectivePrice() < products[j].EffectivePrice()
		})
	case SortPriceHigh:
		sort.SliceStable(products, func(i, j int) bool {
			return products[i].EffectivePrice() > products[j].EffectivePrice()
		})
	case SortName:
		collator := NameCollator()
		sort.SliceStable(products, func(i, j int) bool {
			return collator.CompareString(products[i].Name, products[j].Name) < 0
		})
	default:
		// A zero CreatedAt is the epoch and lands last.
		sort.SliceStable(products, func(i, j int) bool {
			return products[i].CreatedAt.After(products[j].CreatedAt)
		})
	}
}

// NameCollator orders product names the way shoppers read them rather than
// by byte value. Collators are not safe for concurrent use.
func NameCollator() *collate.Collator {
	return collate.New(language.English)
}

// Paginate slices out 1-based page number page. Pages past the end are empty.
func Paginate(filtered []models.Product, page int) Page {
	if page < 1 {
		page = 1
	}
	total := len(filtered)
	result := Page{
		Items:     []models.Product{},
		Total:     total,
		Page:      page,
		PageCount: PageCount(total),
		PageSize:  PageSize,
	}

	// Checked before multiplying so huge page numbers cannot overflow.
	if page > result.PageCount {
		return result
	}
	start := (page - 1) * PageSize
	end := start + PageSize
	if end > total {
		end = total
	}
	result.Items = filtered[start:end]
	return result
}

func PageCount(total int) int {
	return (total + PageSize - 1) / PageSize
}
