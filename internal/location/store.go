package location

import (
	"context"
	"fmt"
	"sync"
)

// Persisted state keys. Backends namespace them per session.
const (
	KeyZipCode     = "userZipCode"
	KeyLocation    = "userLocation"
	KeyPermission  = "locationPermission"
	KeyHasPrompted = "hasPromptedLocation"
)

// Reader is the read side of a Store. Display code and the query builder
// only ever get a Reader.
type Reader interface {
	Load(ctx context.Context) (Record, error)
	Permission(ctx context.Context) (Permission, error)
}

// Store persists the canonical location of one shopper session. Save must
// replace the whole record atomically: a concurrent Load observes either the
// old or the new record, never a mix.
type Store interface {
	Reader
	Save(ctx context.Context, rec Record) error
	Clear(ctx context.Context) error
	SetPermission(ctx context.Context, p Permission) error
	Prompted(ctx context.Context) (bool, error)
	SetPrompted(ctx context.Context) error
}

// prepareRecord validates rec and clamps its radius. Every backend calls it
// before writing.
func prepareRecord(rec Record) (Record, error) {
	if rec.ZipCode != "" && !ValidZip(rec.ZipCode) {
		return Record{}, fmt.Errorf("%w: %q", ErrInvalidZipFormat, rec.ZipCode)
	}
	if rec.Source != SourceSkipped && !rec.IsEmpty() {
		rec.Radius = rec.EffectiveRadius()
	} else if rec.Radius != 0 {
		rec.Radius = ClampRadius(rec.Radius)
	}
	if err := rec.Validate(); err != nil {
		return Record{}, fmt.Errorf("invalid location record: %w", err)
	}
	return rec, nil
}

// MemoryStore is a process-local Store. It is used in tests, in dev mode and
// as the fallback when no durable backend is configured.
type MemoryStore struct {
	mu         sync.RWMutex
	rec        Record
	permission Permission
	prompted   bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{permission: PermissionUnset}
}

func (s *MemoryStore) Save(ctx context.Context, rec Record) error {
	rec, err := prepareRecord(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.rec = rec
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Load(ctx context.Context) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec, nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.rec = Record{}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Permission(ctx context.Context) (Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.permission == "" {
		return PermissionUnset, nil
	}
	return s.permission, nil
}

func (s *MemoryStore) SetPermission(ctx context.Context, p Permission) error {
	s.mu.Lock()
	s.permission = p
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Prompted(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prompted, nil
}

func (s *MemoryStore) SetPrompted(ctx context.Context) error {
	s.mu.Lock()
	s.prompted = true
	s.mu.Unlock()
	return nil
}
