package location

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// State is the engine's resolution state. A new request is accepted in
// every state.
type State int

const (
	StateIdle State = iota
	StateResolving
	StateResolved
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateResolving:
		return "resolving"
	case StateResolved:
		return "resolved"
	case StateFailed:
		return "failed"
	}
	return "idle"
}

// Locator is the GPS side of resolution: acquire a fix, then find its zip.
type Locator interface {
	Acquire(ctx context.Context) (Coordinates, error)
	ReversePlace(ctx context.Context, lat, lon float64) (Place, error)
}

// Engine turns location signals into a stored Record. It is the only writer
// of its Store.
//
// Resolutions are last-writer-wins: starting one cancels the one in flight,
// and a superseded resolution returns ErrSuperseded without touching the
// store.
type Engine struct {
	store           Store
	zips            ZipResolver
	gps             Locator
	logger          *slog.Logger
	coordinatesOnly bool
	now             func() time.Time

	mu     sync.Mutex
	state  State
	gen    uint64
	cancel context.CancelFunc
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithCoordinatesOnly lets a GPS fix without a resolvable zip be stored as a
// coordinates-only record instead of failing with ErrNoZipFromCoordinates.
func WithCoordinatesOnly(enabled bool) EngineOption {
	return func(e *Engine) { e.coordinatesOnly = enabled }
}

// WithEngineClock replaces time.Now for ResolvedAt stamps.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

func NewEngine(store Store, zips ZipResolver, gps Locator, logger *slog.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		store:  store,
		zips:   zips,
		gps:    gps,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State reports the state of the most recent resolution.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Reader exposes the read side of the engine's store.
func (e *Engine) Reader() Reader {
	return e.store
}

// Current returns the stored record.
func (e *Engine) Current(ctx context.Context) (Record, error) {
	return e.store.Load(ctx)
}

// Summary returns the display summary of the stored record.
func (e *Engine) Summary(ctx context.Context) (string, error) {
	rec, err := e.store.Load(ctx)
	if err != nil {
		return "", err
	}
	return rec.Summary(), nil
}

// begin starts a resolution, cancelling whichever one is in flight.
func (e *Engine) begin(ctx context.Context) (context.Context, uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
	e.gen++
	rctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.state = StateResolving
	return rctx, e.gen
}

// settle ends resolution gen. It must be called with e.mu held.
func (e *Engine) settle(gen uint64, state State) {
	if gen != e.gen {
		return
	}
	e.state = state
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}

// commit stores rec if gen is still the latest resolution. A zero radius
// inherits the previously stored one.
func (e *Engine) commit(ctx context.Context, gen uint64, rec Record) (Record, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen {
		return Record{}, ErrSuperseded
	}
	if rec.Radius == 0 && rec.Source != SourceSkipped {
		if prev, err := e.store.Load(ctx); err == nil && !prev.IsEmpty() {
			rec.Radius = prev.Radius
		}
	}
	rec.ResolvedAt = e.now().UTC()
	rec, err := prepareRecord(rec)
	if err == nil {
		err = e.store.Save(ctx, rec)
	}
	if err != nil {
		e.settle(gen, StateFailed)
		return Record{}, fmt.Errorf("could not persist location: %w", err)
	}
	e.settle(gen, StateResolved)
	return rec, nil
}

// fail ends resolution gen with err, or reports ErrSuperseded if a newer
// resolution has started.
func (e *Engine) fail(gen uint64, source Source, err error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen {
		resolutionsTotal.WithLabelValues(string(source), "superseded").Inc()
		return ErrSuperseded
	}
	e.settle(gen, StateFailed)
	resolutionsTotal.WithLabelValues(string(source), "failed").Inc()
	return err
}

// setPermission records p for resolution gen. A resolution that has been
// superseded or cleared leaves the permission alone.
func (e *Engine) setPermission(ctx context.Context, gen uint64, p Permission) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen {
		return
	}
	if err := e.store.SetPermission(ctx, p); err != nil {
		e.logger.Warn("could not persist location permission", "permission", p, "error", err)
	}
}

// ResolveViaGPS acquires a fix and reverse geocodes it. Without a zip the
// resolution fails with ErrNoZipFromCoordinates unless coordinates-only mode
// is enabled.
func (e *Engine) ResolveViaGPS(ctx context.Context) (Record, error) {
	rctx, gen := e.begin(ctx)

	coords, err := e.gps.Acquire(rctx)
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			e.setPermission(ctx, gen, PermissionDenied)
		}
		e.logger.Debug("gps acquisition failed", "error", err)
		return Record{}, e.fail(gen, SourceGPS, err)
	}
	e.setPermission(ctx, gen, PermissionGranted)

	place, err := e.gps.ReversePlace(rctx, coords.Latitude, coords.Longitude)
	if err != nil {
		e.logger.Warn("reverse geocoding failed", "lat", coords.Latitude, "lon", coords.Longitude, "error", err)
		place = Place{}
		if rctx.Err() != nil {
			return Record{}, e.fail(gen, SourceGPS, err)
		}
	}

	if place.ZipCode == "" && !e.coordinatesOnly {
		if err == nil {
			err = ErrNoZipFromCoordinates
		} else {
			err = fmt.Errorf("%w: %v", ErrNoZipFromCoordinates, err)
		}
		return Record{}, e.fail(gen, SourceGPS, err)
	}

	rec := Record{
		ZipCode: place.ZipCode,
		City:    place.City,
		State:   place.State,
		Source:  SourceGPS,
	}.WithCoordinates(coords)

	rec, err = e.commit(ctx, gen, rec)
	if err != nil {
		return Record{}, e.failCommit(SourceGPS, err)
	}
	outcome := "resolved"
	if rec.ZipCode == "" {
		outcome = "degraded"
	}
	resolutionsTotal.WithLabelValues(string(SourceGPS), outcome).Inc()
	e.logger.Info("location resolved", "source", SourceGPS, "zip", rec.ZipCode)
	return rec, nil
}

// ResolveViaZip stores a manually entered zip code. Lookup failures still
// store the bare zip so the shopper is never blocked.
func (e *Engine) ResolveViaZip(ctx context.Context, zip string) (Record, error) {
	if !ValidZip(zip) {
		resolutionsTotal.WithLabelValues(string(SourceManualZip), "invalid").Inc()
		return Record{}, fmt.Errorf("%w: %q", ErrInvalidZipFormat, zip)
	}
	return e.resolveZip(ctx, zip, SourceManualZip)
}

// ResolveViaURLParam seeds the location from a shared link's zip parameter.
// It does nothing when a location is already set, and returns the stored
// record in that case.
func (e *Engine) ResolveViaURLParam(ctx context.Context, zip string) (Record, error) {
	current, err := e.store.Load(ctx)
	if err != nil {
		return Record{}, err
	}
	if !current.IsEmpty() {
		return current, nil
	}
	if !ValidZip(zip) {
		resolutionsTotal.WithLabelValues(string(SourceURLParam), "invalid").Inc()
		return current, fmt.Errorf("%w: %q", ErrInvalidZipFormat, zip)
	}
	return e.resolveZip(ctx, zip, SourceURLParam)
}

func (e *Engine) resolveZip(ctx context.Context, zip string, source Source) (Record, error) {
	rctx, gen := e.begin(ctx)

	rec := Record{ZipCode: zip, Source: source}
	info, lookupErr := e.zips.Lookup(rctx, zip)
	zipLookupsTotal.WithLabelValues(lookupOutcome(lookupErr)).Inc()
	if lookupErr != nil {
		if rctx.Err() != nil && ctx.Err() == nil {
			return Record{}, e.fail(gen, source, ErrSuperseded)
		}
		e.logger.Warn("zip lookup failed, storing bare zip", "zip", zip, "outcome", lookupOutcome(lookupErr), "error", lookupErr)
	} else {
		rec.City = info.City
		rec.State = info.State
		if c := (Coordinates{Latitude: info.Latitude, Longitude: info.Longitude}); c.Valid() && (c.Latitude != 0 || c.Longitude != 0) {
			rec = rec.WithCoordinates(c)
		}
	}

	rec, err := e.commit(ctx, gen, rec)
	if err != nil {
		return Record{}, e.failCommit(source, err)
	}
	outcome := "resolved"
	if lookupErr != nil {
		outcome = "degraded"
	}
	resolutionsTotal.WithLabelValues(string(source), outcome).Inc()
	e.logger.Info("location resolved", "source", source, "zip", rec.ZipCode, "city", rec.City)
	return rec, nil
}

func (e *Engine) failCommit(source Source, err error) error {
	if errors.Is(err, ErrSuperseded) {
		resolutionsTotal.WithLabelValues(string(source), "superseded").Inc()
	} else {
		resolutionsTotal.WithLabelValues(string(source), "failed").Inc()
	}
	return err
}

// Skip records an explicit opt-out. The prompt flag is persisted so the
// auto-prompt does not fire again.
func (e *Engine) Skip(ctx context.Context) (Record, error) {
	_, gen := e.begin(ctx)
	rec, err := e.commit(ctx, gen, Record{Source: SourceSkipped})
	if err != nil {
		return Record{}, e.failCommit(SourceSkipped, err)
	}
	if err := e.store.SetPrompted(ctx); err != nil {
		e.logger.Warn("could not persist prompt flag", "error", err)
	}
	resolutionsTotal.WithLabelValues(string(SourceSkipped), "resolved").Inc()
	return rec, nil
}

// Clear empties the stored record and resets the permission. Any resolution
// in flight is cancelled. Calling Clear repeatedly is harmless.
func (e *Engine) Clear(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.gen++
	e.state = StateIdle
	if err := e.store.Clear(ctx); err != nil {
		return fmt.Errorf("could not clear location: %w", err)
	}
	if err := e.store.SetPermission(ctx, PermissionUnset); err != nil {
		return fmt.Errorf("could not reset location permission: %w", err)
	}
	return nil
}

// SetRadius changes the stored default search radius.
func (e *Engine) SetRadius(ctx context.Context, miles int) (Record, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, err := e.store.Load(ctx)
	if err != nil {
		return Record{}, err
	}
	if rec.IsEmpty() {
		return Record{}, ErrNoLocation
	}
	rec.Radius = ClampRadius(miles)
	if err := e.store.Save(ctx, rec); err != nil {
		return Record{}, fmt.Errorf("could not save radius: %w", err)
	}
	return rec, nil
}
