// Package catalog builds proximity-aware product search queries and
// interprets the product API's answers.
package catalog

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/localmarket/storefront/internal/location"
)

// SortKey is a product ordering understood by the product API.
type SortKey string

const (
	SortNewest    SortKey = "newest"
	SortPriceLow  SortKey = "price-low"
	SortPriceHigh SortKey = "price-high"
	SortPopular   SortKey = "popular"
	SortDistance  SortKey = "distance"
)

// DefaultSort is used when no sort is selected or the selected one is not
// allowed.
const DefaultSort = SortNewest

// MaxLimit caps the page size a shopper can ask for.
const MaxLimit = 100

func (s SortKey) known() bool {
	switch s {
	case SortNewest, SortPriceLow, SortPriceHigh, SortPopular, SortDistance:
		return true
	}
	return false
}

// AvailableSorts lists the orderings offered for rec. Distance is only
// offered when there is a location to measure from.
func AvailableSorts(rec location.Record) []SortKey {
	sorts := []SortKey{SortNewest, SortPriceLow, SortPriceHigh, SortPopular}
	if !rec.IsEmpty() {
		sorts = append(sorts, SortDistance)
	}
	return sorts
}

// Filters is the shopper's filter selection as typed into the UI. Prices and
// distance stay raw text; BuildParams decides what is sendable.
type Filters struct {
	Search      string
	Category    string
	Subcategory string
	MinPrice    string
	MaxPrice    string
	Organic     bool
	Local       bool
	Sort        SortKey
	Distance    string
	Page        int
	Limit       int
}

// ParseFilters reads filters from a listing URL's query string.
func ParseFilters(v url.Values) Filters {
	f := Filters{
		Search:      strings.TrimSpace(v.Get("q")),
		Category:    strings.TrimSpace(v.Get("category")),
		Subcategory: strings.TrimSpace(v.Get("subcategory")),
		MinPrice:    strings.TrimSpace(v.Get("minPrice")),
		MaxPrice:    strings.TrimSpace(v.Get("maxPrice")),
		Organic:     parseFlag(v.Get("isOrganic")),
		Local:       parseFlag(v.Get("isLocal")),
		Sort:        SortKey(strings.ToLower(strings.TrimSpace(v.Get("sort")))),
		Distance:    strings.TrimSpace(v.Get("distance")),
	}
	f.Page, _ = strconv.Atoi(v.Get("page"))
	f.Limit, _ = strconv.Atoi(v.Get("limit"))
	return f
}

func parseFlag(s string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && b
}

// Query is the shareable URL form of f. Empty fields are left out.
func (f Filters) Query() url.Values {
	v := url.Values{}
	set := func(key, value string) {
		if value != "" {
			v.Set(key, value)
		}
	}
	set("q", f.Search)
	set("category", f.Category)
	set("subcategory", f.Subcategory)
	set("minPrice", f.MinPrice)
	set("maxPrice", f.MaxPrice)
	if f.Organic {
		v.Set("isOrganic", "true")
	}
	if f.Local {
		v.Set("isLocal", "true")
	}
	set("sort", string(f.Sort))
	set("distance", f.Distance)
	if f.Page > 0 {
		v.Set("page", strconv.Itoa(f.Page))
	}
	if f.Limit > 0 {
		v.Set("limit", strconv.Itoa(f.Limit))
	}
	return v
}
