package main

import (
	"errors"
	"net/http"
	"strings"

	"github.com/localmarket/storefront/internal/catalog"
	"github.com/localmarket/storefront/internal/location"
)

// userIDHeader carries the signed-in user's id from the auth layer in front
// of the storefront. Its presence is all the location flow needs to know.
const userIDHeader = "X-User-Id"

// fallbackManualZip tells the UI to offer zip entry after a GPS failure.
const fallbackManualZip = "manual-zip"

const degradedZipNotice = "We couldn't confirm the area for that zip code, but we'll use it for your search."

func isAuthenticated(r *http.Request) bool {
	return strings.TrimSpace(r.Header.Get(userIDHeader)) != ""
}

// buildLocationResponse reads the session's location through the engine and
// describes it for the UI.
func (cfg *apiConfig) buildLocationResponse(r *http.Request, s *session, msg string) (LocationResponse, error) {
	ctx := r.Context()
	reader := s.engine.Reader()
	rec, err := reader.Load(ctx)
	if err != nil {
		return LocationResponse{}, err
	}
	perm, err := reader.Permission(ctx)
	if err != nil {
		return LocationResponse{}, err
	}
	summary, err := s.engine.Summary(ctx)
	if err != nil {
		return LocationResponse{}, err
	}

	resp := LocationResponse{
		Location:       rec,
		HasLocation:    !rec.IsEmpty(),
		Summary:        summary,
		Permission:     perm,
		State:          s.engine.State().String(),
		AvailableSorts: catalog.AvailableSorts(rec),
		Message:        msg,
	}
	if resp.HasLocation {
		resp.Radius = rec.EffectiveRadius()
	}
	return resp, nil
}

func (cfg *apiConfig) respondWithLocation(w http.ResponseWriter, r *http.Request, s *session, msg string) {
	resp, err := cfg.buildLocationResponse(r, s, msg)
	if err != nil {
		cfg.respondWithError(w, http.StatusInternalServerError, "Could not load location", err)
		return
	}
	cfg.respondWithJSON(w, http.StatusOK, resp)
}

// respondWithResolutionError maps a failed resolution to a status code and
// the shopper-facing message. GPS failures carry the manual zip fallback.
func (cfg *apiConfig) respondWithResolutionError(w http.ResponseWriter, err error) {
	msg := location.UserMessage(err)
	switch {
	case errors.Is(err, location.ErrInvalidZipFormat):
		cfg.respondWithError(w, http.StatusBadRequest, msg, nil)
	case errors.Is(err, location.ErrSuperseded):
		cfg.respondWithError(w, http.StatusConflict, msg, nil)
	case location.IsGPSError(err):
		cfg.logger.Debug("gps resolution failed", "error", err)
		cfg.respondWithJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:    msg,
			Fallback: fallbackManualZip,
		})
	default:
		cfg.respondWithError(w, http.StatusInternalServerError, msg, err)
	}
}

// degradedZipMessage explains a zip that was stored without its area because
// the lookup failed.
func degradedZipMessage(rec location.Record) string {
	if rec.HasZip() && rec.City == "" && !rec.HasCoordinates() {
		return degradedZipNotice
	}
	return ""
}

// seedFromURL applies a shared link's zip when the session has no location
// yet and returns the location to search with. A bad zip in the link is
// ignored.
func (cfg *apiConfig) seedFromURL(r *http.Request, s *session, zip string) (location.Record, error) {
	ctx := r.Context()
	if strings.TrimSpace(zip) == "" {
		return s.engine.Current(ctx)
	}

	rec, err := s.engine.ResolveViaURLParam(ctx, zip)
	switch {
	case err == nil:
		return rec, nil
	case errors.Is(err, location.ErrInvalidZipFormat):
		cfg.logger.Debug("ignoring invalid zip in url", "session", s.id, "zip", zip)
		return rec, nil
	case errors.Is(err, location.ErrSuperseded):
		return s.engine.Current(ctx)
	}
	return location.Record{}, err
}

func (cfg *apiConfig) setPromptVisibility(w http.ResponseWriter, r *http.Request, open bool) {
	if r.Method != http.MethodPost {
		cfg.respondWithError(w, http.StatusMethodNotAllowed, "Method Not Allowed", nil)
		return
	}
	s := cfg.sessions.sessionFor(w, r)
	if open {
		s.prompt.Open()
	} else {
		s.prompt.Close()
	}
	cfg.respondWithJSON(w, http.StatusOK, PromptResponse{
		DelayMs: s.prompt.Delay().Milliseconds(),
		Open:    s.prompt.IsOpen(),
	})
}
