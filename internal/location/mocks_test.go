package location

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockZipResolver is a mock for the ZipResolver interface.
type mockZipResolver struct {
	LookupFunc func(ctx context.Context, zip string) (ZipInfo, error)
}

func (m *mockZipResolver) Lookup(ctx context.Context, zip string) (ZipInfo, error) {
	if m.LookupFunc != nil {
		return m.LookupFunc(ctx, zip)
	}
	return ZipInfo{}, errors.New("LookupFunc not implemented in mock")
}

// mockLocator is a mock for the Locator interface.
type mockLocator struct {
	AcquireFunc      func(ctx context.Context) (Coordinates, error)
	ReversePlaceFunc func(ctx context.Context, lat, lon float64) (Place, error)
}

func (m *mockLocator) Acquire(ctx context.Context) (Coordinates, error) {
	if m.AcquireFunc != nil {
		return m.AcquireFunc(ctx)
	}
	return Coordinates{}, errors.New("AcquireFunc not implemented in mock")
}

func (m *mockLocator) ReversePlace(ctx context.Context, lat, lon float64) (Place, error) {
	if m.ReversePlaceFunc != nil {
		return m.ReversePlaceFunc(ctx, lat, lon)
	}
	return Place{}, errors.New("ReversePlaceFunc not implemented in mock")
}

// mockReverseGeocoder is a mock for the ReverseGeocoder interface.
type mockReverseGeocoder struct {
	ReverseGeocodeFunc func(ctx context.Context, lat, lon float64) (Place, error)
}

func (m *mockReverseGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (Place, error) {
	if m.ReverseGeocodeFunc != nil {
		return m.ReverseGeocodeFunc(ctx, lat, lon)
	}
	return Place{}, errors.New("ReverseGeocodeFunc not implemented in mock")
}

// mockCache is an in-memory Cache that records writes.
type mockCache struct {
	mu   sync.Mutex
	data map[string]string
	sets int
}

func newMockCache() *mockCache {
	return &mockCache{data: make(map[string]string)}
}

func (m *mockCache) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", errors.New("cache miss")
	}
	return v, nil
}

func (m *mockCache) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = string(b)
	m.sets++
	return nil
}

// failingStore wraps a MemoryStore and fails Save with err.
type failingStore struct {
	*MemoryStore
	err error
}

func (s *failingStore) Save(ctx context.Context, rec Record) error {
	return s.err
}
