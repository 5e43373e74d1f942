package location

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Browser geolocation defaults.
const (
	DefaultGPSTimeout = 10 * time.Second
	DefaultMaximumAge = 5 * time.Minute
)

// Position is one fix reported by the browser's geolocation API.
type Position struct {
	Coordinates
	Accuracy  float64   `json:"accuracy,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// PositionSource produces the device position. CurrentPosition blocks until
// a fix or an acquisition error is available, or ctx is done.
type PositionSource interface {
	CurrentPosition(ctx context.Context) (Position, error)
}

// PositionOptions mirrors the options the browser passes to
// getCurrentPosition.
type PositionOptions struct {
	EnableHighAccuracy bool  `json:"enableHighAccuracy"`
	TimeoutMs          int64 `json:"timeout"`
	MaximumAgeMs       int64 `json:"maximumAge"`
}

// ReportedSource is a PositionSource fed by the browser: the HTTP layer
// reports each fix (or geolocation error) and the acquirer waits for it.
// Only the most recent unread report is kept.
type ReportedSource struct {
	mu sync.Mutex
	ch chan report
}

type report struct {
	pos Position
	err error
}

func NewReportedSource() *ReportedSource {
	return &ReportedSource{ch: make(chan report, 1)}
}

// Report hands a fix to the next CurrentPosition call.
func (s *ReportedSource) Report(pos Position) {
	s.push(report{pos: pos})
}

// ReportError hands a geolocation failure to the next CurrentPosition call.
func (s *ReportedSource) ReportError(err error) {
	s.push(report{err: err})
}

func (s *ReportedSource) push(r report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.ch:
	default:
	}
	s.ch <- r
}

func (s *ReportedSource) CurrentPosition(ctx context.Context) (Position, error) {
	select {
	case r := <-s.ch:
		return r.pos, r.err
	case <-ctx.Done():
		return Position{}, ctx.Err()
	}
}

// Acquirer obtains coordinates from a PositionSource and turns them into a
// zip code through a ReverseGeocoder.
type Acquirer struct {
	source   PositionSource
	geocoder ReverseGeocoder
	timeout  time.Duration
	maxAge   time.Duration
	now      func() time.Time
}

// AcquirerOption configures an Acquirer.
type AcquirerOption func(*Acquirer)

// WithTimeout sets the hard acquisition timeout.
func WithTimeout(d time.Duration) AcquirerOption {
	return func(a *Acquirer) { a.timeout = d }
}

// WithMaximumAge sets how old a fix may be and still be accepted.
func WithMaximumAge(d time.Duration) AcquirerOption {
	return func(a *Acquirer) { a.maxAge = d }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) AcquirerOption {
	return func(a *Acquirer) { a.now = now }
}

func NewAcquirer(source PositionSource, geocoder ReverseGeocoder, opts ...AcquirerOption) *Acquirer {
	a := &Acquirer{
		source:   source,
		geocoder: geocoder,
		timeout:  DefaultGPSTimeout,
		maxAge:   DefaultMaximumAge,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Options returns the getCurrentPosition options the browser should use.
func (a *Acquirer) Options() PositionOptions {
	return PositionOptions{
		EnableHighAccuracy: true,
		TimeoutMs:          a.timeout.Milliseconds(),
		MaximumAgeMs:       a.maxAge.Milliseconds(),
	}
}

// Acquire waits for one position fix. It fails with ErrPermissionDenied,
// ErrPositionUnavailable or ErrTimeout. Fixes older than the maximum age are
// rejected as unavailable.
func (a *Acquirer) Acquire(ctx context.Context) (Coordinates, error) {
	tctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	pos, err := a.source.CurrentPosition(tctx)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return Coordinates{}, ctx.Err()
		case errors.Is(err, context.DeadlineExceeded):
			return Coordinates{}, ErrTimeout
		case errors.Is(err, ErrPermissionDenied), errors.Is(err, ErrPositionUnavailable), errors.Is(err, ErrTimeout):
			return Coordinates{}, err
		}
		return Coordinates{}, fmt.Errorf("%w: %v", ErrPositionUnavailable, err)
	}

	if !pos.Coordinates.Valid() {
		return Coordinates{}, fmt.Errorf("%w: invalid coordinates %v,%v", ErrPositionUnavailable, pos.Latitude, pos.Longitude)
	}
	if !pos.Timestamp.IsZero() && a.now().Sub(pos.Timestamp) > a.maxAge {
		return Coordinates{}, fmt.Errorf("%w: stale fix from %s", ErrPositionUnavailable, pos.Timestamp.Format(time.RFC3339))
	}
	return pos.Coordinates, nil
}

// ReverseGeocode returns the zip code for the coordinates, or "" when the
// service answered without a usable zip. That outcome is not an error.
func (a *Acquirer) ReverseGeocode(ctx context.Context, lat, lon float64) (string, error) {
	place, err := a.ReversePlace(ctx, lat, lon)
	if err != nil {
		return "", err
	}
	return place.ZipCode, nil
}

// ReversePlace is ReverseGeocode keeping city and state. ZipCode is only set
// when it passes ValidZip.
func (a *Acquirer) ReversePlace(ctx context.Context, lat, lon float64) (Place, error) {
	if a.geocoder == nil {
		return Place{}, fmt.Errorf("%w: no reverse geocoder configured", ErrServiceUnavailable)
	}
	place, err := a.geocoder.ReverseGeocode(ctx, lat, lon)
	if err != nil {
		return Place{}, err
	}
	if !ValidZip(place.ZipCode) {
		place.ZipCode = ""
	}
	return place, nil
}
