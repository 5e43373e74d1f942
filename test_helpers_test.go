package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/localmarket/storefront/internal/catalog"
	"github.com/localmarket/storefront/internal/location"
)

// --- Mocks ---

// mockCache is a mock for the Cache interface.
type mockCache struct {
	getFunc   func(ctx context.Context, key string) (string, error)
	setFunc   func(ctx context.Context, key string, value any, expiration time.Duration) error
	flushFunc func(ctx context.Context) error
}

func (m *mockCache) Get(ctx context.Context, key string) (string, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, key)
	}
	return "", redis.Nil
}

func (m *mockCache) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	if m.setFunc != nil {
		return m.setFunc(ctx, key, value, expiration)
	}
	return nil
}

func (m *mockCache) Flush(ctx context.Context) error {
	if m.flushFunc != nil {
		return m.flushFunc(ctx)
	}
	return nil
}

// mockZipDirectory is a mock for the zipDirectoryQuerier interface.
type mockZipDirectory struct {
	LookupZipFunc func(ctx context.Context, zip string) (location.ZipInfo, error)
	UpsertZipFunc func(ctx context.Context, info location.ZipInfo) error
	upserts       []location.ZipInfo
}

func (m *mockZipDirectory) LookupZip(ctx context.Context, zip string) (location.ZipInfo, error) {
	if m.LookupZipFunc != nil {
		return m.LookupZipFunc(ctx, zip)
	}
	return location.ZipInfo{}, location.ErrNotFound
}

func (m *mockZipDirectory) UpsertZip(ctx context.Context, info location.ZipInfo) error {
	m.upserts = append(m.upserts, info)
	if m.UpsertZipFunc != nil {
		return m.UpsertZipFunc(ctx, info)
	}
	return nil
}

// mockZipResolver is a mock for location.ZipResolver.
type mockZipResolver struct {
	LookupFunc func(ctx context.Context, zip string) (location.ZipInfo, error)
	calls      int
}

func (m *mockZipResolver) Lookup(ctx context.Context, zip string) (location.ZipInfo, error) {
	m.calls++
	if m.LookupFunc != nil {
		return m.LookupFunc(ctx, zip)
	}
	return location.ZipInfo{}, errors.New("LookupFunc not implemented in mock")
}

// mockReverseGeocoder is a mock for location.ReverseGeocoder.
type mockReverseGeocoder struct {
	ReverseGeocodeFunc func(ctx context.Context, lat, lon float64) (location.Place, error)
}

func (m *mockReverseGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (location.Place, error) {
	if m.ReverseGeocodeFunc != nil {
		return m.ReverseGeocodeFunc(ctx, lat, lon)
	}
	return location.Place{}, location.ErrServiceUnavailable
}

// --- Test config ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testAPIConfig bundles an apiConfig wired to in-memory stores, mock
// resolvers and a fake product API.
type testAPIConfig struct {
	apiConfig *apiConfig
	zips      *mockZipResolver
	geocoder  *mockReverseGeocoder
	cache     *mockCache
	products  *httptest.Server
}

// newTestAPIConfig builds an apiConfig for handler tests. productHandler
// serves /api/products; nil answers with an empty result.
func newTestAPIConfig(t *testing.T, productHandler http.HandlerFunc) *testAPIConfig {
	t.Helper()
	if productHandler == nil {
		productHandler = func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"products":[],"pagination":{"currentPage":1,"totalPages":0,"totalProducts":0,"hasMore":false}}`)
		}
	}
	products := httptest.NewServer(productHandler)
	t.Cleanup(products.Close)

	zips := &mockZipResolver{}
	geocoder := &mockReverseGeocoder{}
	cache := &mockCache{}
	logger := discardLogger()

	cfg := &apiConfig{
		cache:           cache,
		zips:            zips,
		reverseGeocoder: geocoder,
		products:        catalog.NewClient(products.URL, products.Client(), logger),
		httpClient:      products.Client(),
		storeBackend:    "memory",
		promptDelay:     location.DefaultPromptDelay,
		gpsTimeout:      time.Second,
		gpsMaxAge:       location.DefaultMaximumAge,
		sessionIdle:     time.Hour,
		sweepInterval:   time.Minute,
		allowedOrigin:   "*",
		port:            "8080",
		devMode:         true,
		logger:          logger,
	}
	stores, err := newStoreFactory(context.Background(), "memory", nil, logger)
	if err != nil {
		t.Fatalf("could not build store factory: %v", err)
	}
	cfg.sessions = newSessionManager(cfg, stores)

	return &testAPIConfig{
		apiConfig: cfg,
		zips:      zips,
		geocoder:  geocoder,
		cache:     cache,
		products:  products,
	}
}

func zipInfo(zip, city, state string, lat, lon float64) location.ZipInfo {
	return location.ZipInfo{ZipCode: zip, City: city, State: state, Latitude: lat, Longitude: lon}
}
