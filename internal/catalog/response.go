package catalog

import (
	"fmt"
	"strconv"

	"github.com/golang/geo/s2"

	"github.com/localmarket/storefront/internal/location"
)

const earthRadiusMiles = 3958.8

// Merchant is the seller a product belongs to.
type Merchant struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	City      string   `json:"city,omitempty"`
	State     string   `json:"state,omitempty"`
	ZipCode   string   `json:"zipCode,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

type Product struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Price       float64  `json:"price"`
	Category    string   `json:"category,omitempty"`
	ImageURL    string   `json:"imageUrl,omitempty"`
	IsOrganic   bool     `json:"isOrganic"`
	Merchant    Merchant `json:"merchant"`
	// Distance in miles from the search origin, when known.
	Distance *float64 `json:"distance,omitempty"`
}

type Pagination struct {
	CurrentPage   int  `json:"currentPage"`
	TotalPages    int  `json:"totalPages"`
	TotalProducts int  `json:"totalProducts"`
	HasMore       bool `json:"hasMore"`
}

// LocationInfo is the product API's account of how it applied the location.
// FallbackResults means it searched beyond the requested radius because too
// few products were found inside it.
type LocationInfo struct {
	NearbyMerchants int    `json:"nearbyMerchants"`
	FallbackResults bool   `json:"fallbackResults"`
	Message         string `json:"message,omitempty"`
}

// Response is the product search payload.
type Response struct {
	Products     []Product     `json:"products"`
	Pagination   Pagination    `json:"pagination"`
	LocationInfo *LocationInfo `json:"locationInfo,omitempty"`
}

// Result is a Response interpreted for display.
type Result struct {
	Products     []Product    `json:"products"`
	Pagination   Pagination   `json:"pagination"`
	LocationInfo LocationInfo `json:"locationInfo"`
	// Radius is the radius that was requested, 0 without a location.
	Radius int `json:"radius,omitempty"`
	// Unavailable is set when the search could not be performed; the UI
	// offers a retry.
	Unavailable bool `json:"unavailable,omitempty"`
}

// InterpretResponse pairs a response with the parameters that produced it.
func InterpretResponse(resp Response, params Params) Result {
	r := Result{
		Products:   resp.Products,
		Pagination: resp.Pagination,
	}
	if r.Products == nil {
		r.Products = []Product{}
	}
	if resp.LocationInfo != nil {
		r.LocationInfo = *resp.LocationInfo
	}
	if v, ok := params.Get("radius"); ok {
		r.Radius, _ = strconv.Atoi(v)
	}
	return r
}

// unavailableResult is the empty result shown when the search failed.
func unavailableResult(params Params) Result {
	r := InterpretResponse(Response{}, params)
	r.Unavailable = true
	return r
}

// WithinRadius reports whether every product can be presented as inside the
// requested radius.
func (r Result) WithinRadius() bool {
	return !r.Unavailable && r.Radius > 0 && !r.LocationInfo.FallbackResults
}

// Banner is the explanatory message shown above the results, or "".
func (r Result) Banner() string {
	switch {
	case r.Unavailable:
		return "We couldn't load products right now. Please try again."
	case r.LocationInfo.FallbackResults && r.LocationInfo.Message != "":
		return r.LocationInfo.Message
	case r.LocationInfo.FallbackResults && r.Radius > 0:
		return fmt.Sprintf("Few products were found within %d miles, so we're also showing products from farther away.", r.Radius)
	case r.LocationInfo.FallbackResults:
		return "Few products were found nearby, so we're also showing products from farther away."
	}
	return ""
}

// NearbyMerchantsLabel describes the merchant count for the nearby panel.
func (r Result) NearbyMerchantsLabel() string {
	switch n := r.LocationInfo.NearbyMerchants; {
	case r.Radius == 0:
		return ""
	case n == 0:
		return "No merchants nearby yet"
	case n == 1:
		return "1 merchant near you"
	default:
		return fmt.Sprintf("%d merchants near you", n)
	}
}

// AnnotateDistances fills in missing product distances from the merchant's
// coordinates, measured along the great circle from origin.
func (r *Result) AnnotateDistances(origin location.Coordinates) {
	if !origin.Valid() {
		return
	}
	from := s2.LatLngFromDegrees(origin.Latitude, origin.Longitude)
	for i := range r.Products {
		p := &r.Products[i]
		if p.Distance != nil || p.Merchant.Latitude == nil || p.Merchant.Longitude == nil {
			continue
		}
		to := location.Coordinates{Latitude: *p.Merchant.Latitude, Longitude: *p.Merchant.Longitude}
		if !to.Valid() {
			continue
		}
		miles := from.Distance(s2.LatLngFromDegrees(to.Latitude, to.Longitude)).Radians() * earthRadiusMiles
		p.Distance = &miles
	}
}
