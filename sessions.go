package main

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/localmarket/storefront/internal/location"
)

const sessionCookieName = "storefront_sid"

const sessionCookieMaxAge = 30 * 24 * time.Hour

// session is one shopper's location state: the engine that owns the store,
// the prompt controller and the mailbox browser fixes are reported to.
type session struct {
	id       string
	engine   *location.Engine
	prompt   *location.PromptController
	position *location.ReportedSource

	mu       sync.Mutex
	lastSeen time.Time
}

func (s *session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// sessionManager keeps live sessions in memory. The location itself lives in
// the configured store, so a swept session picks up where it left off.
type sessionManager struct {
	cfg    *apiConfig
	stores storeFactory
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

func newSessionManager(cfg *apiConfig, stores storeFactory) *sessionManager {
	return &sessionManager{
		cfg:      cfg,
		stores:   stores,
		now:      time.Now,
		sessions: make(map[string]*session),
	}
}

// sessionFor returns the request's session, issuing a new session cookie
// when the request has none or an unusable one. A reused cookie is sent
// again with a fresh MaxAge so an active shopper never loses it.
func (m *sessionManager) sessionFor(w http.ResponseWriter, r *http.Request) *session {
	if c, err := r.Cookie(sessionCookieName); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			m.setCookie(w, c.Value)
			return m.get(c.Value)
		}
	}

	id := uuid.NewString()
	m.setCookie(w, id)
	m.cfg.logger.Debug("new session", "session", id)
	return m.get(id)
}

func (m *sessionManager) setCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(sessionCookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   !m.cfg.devMode,
		SameSite: http.SameSiteLaxMode,
	})
}

func (m *sessionManager) get(id string) *session {
	now := m.now()
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		s = m.newSession(id)
		m.sessions[id] = s
		activeSessions.Inc()
	}
	m.mu.Unlock()
	s.touch(now)
	return s
}

func (m *sessionManager) newSession(id string) *session {
	cfg := m.cfg
	logger := cfg.logger.With("session", id)
	store := m.stores(id)
	position := location.NewReportedSource()
	acquirer := location.NewAcquirer(position, cfg.reverseGeocoder,
		location.WithTimeout(cfg.gpsTimeout),
		location.WithMaximumAge(cfg.gpsMaxAge),
	)
	return &session{
		id:       id,
		engine:   location.NewEngine(store, cfg.zips, acquirer, logger, location.WithCoordinatesOnly(cfg.coordinatesOnly)),
		prompt:   location.NewPromptController(store, cfg.promptDelay, logger),
		position: position,
	}
}

// sweep drops sessions idle for longer than idle and returns how many went.
func (m *sessionManager) sweep(idle time.Duration) int {
	cutoff := m.now().Add(-idle)
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	activeSessions.Set(float64(len(m.sessions)))
	return removed
}

// reset drops every live session.
func (m *sessionManager) reset() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.sessions)
	m.sessions = make(map[string]*session)
	activeSessions.Set(0)
	return n
}

func (m *sessionManager) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
