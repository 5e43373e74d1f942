package catalog

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/localmarket/storefront/internal/location"
)

// Param is one query parameter.
type Param struct {
	Key   string
	Value string
}

// Params is an ordered parameter set. Keys are unique.
type Params []Param

// Get returns the value for key.
func (p Params) Get(key string) (string, bool) {
	for _, kv := range p {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// Has reports whether key is present.
func (p Params) Has(key string) bool {
	_, ok := p.Get(key)
	return ok
}

func (p Params) Values() url.Values {
	v := make(url.Values, len(p))
	for _, kv := range p {
		v.Set(kv.Key, kv.Value)
	}
	return v
}

// Encode renders p as a query string, keeping its order.
func (p Params) Encode() string {
	var b strings.Builder
	for i, kv := range p {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(kv.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(kv.Value))
	}
	return b.String()
}

// BuildParams combines the stored location and the filter selection into
// the product search parameters.
//
// The location contributes zipCode, the latitude/longitude pair and radius.
// A distance filter overrides the radius for this query only. Prices that
// are not finite non-negative numbers are dropped, and sort=distance falls
// back to DefaultSort when there is no location.
func BuildParams(rec location.Record, f Filters) Params {
	var p Params
	add := func(key, value string) {
		if value != "" {
			p = append(p, Param{Key: key, Value: value})
		}
	}

	hasLocation := !rec.IsEmpty()
	if hasLocation {
		add("zipCode", rec.ZipCode)
		if c, ok := rec.Coordinates(); ok {
			add("latitude", formatFloat(c.Latitude))
			add("longitude", formatFloat(c.Longitude))
		}
		radius := rec.EffectiveRadius()
		if d, ok := parseDistance(f.Distance); ok {
			radius = d
		}
		add("radius", strconv.Itoa(radius))
	}

	add("search", f.Search)
	add("category", f.Category)
	add("subcategory", f.Subcategory)

	minPrice, minOK := parsePrice(f.MinPrice)
	maxPrice, maxOK := parsePrice(f.MaxPrice)
	if minOK {
		add("minPrice", formatFloat(minPrice))
	}
	if maxOK {
		add("maxPrice", formatFloat(maxPrice))
	}

	if f.Organic {
		add("isOrganic", "true")
	}
	if f.Local {
		add("isLocal", "true")
	}

	sort := f.Sort
	if !sort.known() || (sort == SortDistance && !hasLocation) {
		sort = DefaultSort
	}
	add("sort", string(sort))

	if f.Page > 0 {
		add("page", strconv.Itoa(f.Page))
	}
	if f.Limit > 0 {
		add("limit", strconv.Itoa(min(f.Limit, MaxLimit)))
	}
	return p
}

func parsePrice(s string) (float64, bool) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "$"))
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, false
	}
	// -0 passes the sign check above; Abs sends it as 0.
	return math.Abs(v), true
}

// parseDistance reads a distance filter in whole miles, clamped to the
// radius bounds.
func parseDistance(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, false
	}
	if v > location.MaxRadius {
		return location.MaxRadius, true
	}
	return location.ClampRadius(int(math.Round(v))), true
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
