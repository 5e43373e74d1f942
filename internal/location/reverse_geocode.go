package location

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	geohash "github.com/TomiHiltunen/geohash-golang"
	"golang.org/x/time/rate"
)

// Place is a reverse geocoding answer. ZipCode may be empty.
type Place struct {
	ZipCode string `json:"zipCode"`
	City    string `json:"city"`
	State   string `json:"state"`
}

// ReverseGeocoder converts coordinates into a Place.
type ReverseGeocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (Place, error)
}

// Cache is the key/value cache reverse geocoding answers are kept in.
// Any Get error is treated as a miss.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
}

// reverseGeocodeCachePrecision is a geohash precision of roughly 150m, well
// inside a single zip code for all but the densest blocks.
const reverseGeocodeCachePrecision = 7

const reverseGeocodeCacheTTL = 24 * time.Hour

// HTTPReverseGeocoder calls a BigDataCloud-style
// /reverse-geocode-client endpoint.
type HTTPReverseGeocoder struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      Cache
	logger     *slog.Logger
}

// NewHTTPReverseGeocoder builds the client. limiter and cache may be nil.
func NewHTTPReverseGeocoder(baseURL string, httpClient *http.Client, limiter *rate.Limiter, cache Cache, logger *slog.Logger) *HTTPReverseGeocoder {
	return &HTTPReverseGeocoder{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		limiter:    limiter,
		cache:      cache,
		logger:     logger,
	}
}

// reverseGeocodeResponse is the subset of the provider's JSON we read.
type reverseGeocodeResponse struct {
	Postcode                 string `json:"postcode"`
	PostalCode               string `json:"postalCode"`
	City                     string `json:"city"`
	Locality                 string `json:"locality"`
	PrincipalSubdivision     string `json:"principalSubdivision"`
	PrincipalSubdivisionCode string `json:"principalSubdivisionCode"`
}

func (r reverseGeocodeResponse) place() Place {
	p := Place{
		ZipCode: strings.TrimSpace(r.Postcode),
		City:    r.City,
		State:   r.PrincipalSubdivision,
	}
	if p.ZipCode == "" {
		p.ZipCode = strings.TrimSpace(r.PostalCode)
	}
	if p.City == "" {
		p.City = r.Locality
	}
	if code, ok := strings.CutPrefix(r.PrincipalSubdivisionCode, "US-"); ok && len(code) == 2 {
		p.State = code
	}
	return p
}

func (g *HTTPReverseGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (Place, error) {
	if !(Coordinates{Latitude: lat, Longitude: lon}).Valid() {
		return Place{}, fmt.Errorf("%w: invalid coordinates %v,%v", ErrPositionUnavailable, lat, lon)
	}

	cacheKey := "revgeo:" + geohash.EncodeWithPrecision(lat, lon, reverseGeocodeCachePrecision)
	if g.cache != nil {
		if cached, err := g.cache.Get(ctx, cacheKey); err == nil {
			var p Place
			if jsonErr := json.Unmarshal([]byte(cached), &p); jsonErr == nil {
				g.logger.Debug("reverse geocode cache hit", "key", cacheKey)
				return p, nil
			}
			g.logger.Warn("invalid reverse geocode cache entry", "key", cacheKey)
		}
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return Place{}, fmt.Errorf("%w: rate limiter: %v", ErrServiceUnavailable, err)
		}
	}

	u, err := url.Parse(g.baseURL + "/reverse-geocode-client")
	if err != nil {
		return Place{}, fmt.Errorf("failed to parse reverse geocode URL: %w", err)
	}
	q := u.Query()
	q.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("localityLanguage", "en")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Place{}, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return Place{}, fmt.Errorf("%w: reverse geocode request failed: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Place{}, fmt.Errorf("%w: reverse geocode returned %s", ErrServiceUnavailable, resp.Status)
	}

	var body reverseGeocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Place{}, fmt.Errorf("%w: failed to decode reverse geocode response: %v", ErrServiceUnavailable, err)
	}

	place := body.place()
	if !ValidZip(place.ZipCode) {
		g.logger.Debug("reverse geocode returned no usable zip", "lat", lat, "lon", lon, "postcode", place.ZipCode)
		place.ZipCode = ""
	}

	if g.cache != nil {
		if err := g.cache.Set(ctx, cacheKey, place, reverseGeocodeCacheTTL); err != nil {
			g.logger.Warn("error caching reverse geocode result", "key", cacheKey, "error", err)
		}
	}
	return place, nil
}
