package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/localmarket/storefront/internal/catalog"
	"github.com/localmarket/storefront/internal/location"
)

// This file contains the HTTP handlers for the storefront API. Each handler
// checks the method, picks up the shopper's session, hands the work to the
// session's location engine or the product client and writes the JSON
// response.

// @Summary      Get or clear the shopper's location
// @Description  GET returns the stored location, the geolocation permission and the sorts on offer.
// @Description  DELETE clears the location and resets the permission.
// @Tags         location
// @Produce      json
// @Success      200  {object}  LocationResponse
// @Failure      500  {object}  errorResponse
// @Router       /api/location [get]
// @Router       /api/location [delete]
func (cfg *apiConfig) handlerLocation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s := cfg.sessions.sessionFor(w, r)

	switch r.Method {
	case http.MethodGet:
	case http.MethodDelete:
		if err := s.engine.Clear(ctx); err != nil {
			cfg.respondWithError(w, http.StatusInternalServerError, "Could not clear location", err)
			return
		}
		cfg.logger.Debug("location cleared", "session", s.id)
	default:
		cfg.respondWithError(w, http.StatusMethodNotAllowed, "Method Not Allowed", nil)
		return
	}

	cfg.respondWithLocation(w, r, s, "")
}

// @Summary      Set location from a zip code
// @Tags         location
// @Accept       json
// @Produce      json
// @Param        body body      ZipRequest true "Zip code as typed"
// @Success      200  {object}  LocationResponse
// @Failure      400  {object}  errorResponse "Invalid zip code, with a suggestion when one is likely"
// @Failure      409  {object}  errorResponse "Replaced by a newer request"
// @Router       /api/location/zip [post]
func (cfg *apiConfig) handlerLocationZip(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		cfg.respondWithError(w, http.StatusMethodNotAllowed, "Method Not Allowed", nil)
		return
	}
	s := cfg.sessions.sessionFor(w, r)

	var req ZipRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		cfg.respondWithError(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}

	rec, err := s.engine.ResolveViaZip(r.Context(), req.ZipCode)
	if err != nil {
		if suggestion, ok := location.SuggestZip(req.ZipCode); ok && errors.Is(err, location.ErrInvalidZipFormat) {
			cfg.respondWithJSON(w, http.StatusBadRequest, errorResponse{
				Error:      location.UserMessage(err),
				Suggestion: suggestion,
			})
			return
		}
		cfg.respondWithResolutionError(w, err)
		return
	}
	cfg.respondWithLocation(w, r, s, degradedZipMessage(rec))
}

// @Summary      Set location from the browser's position
// @Description  Accepts either a position fix or the browser's geolocation error code.
// @Description  GPS failures return 422 with fallback "manual-zip".
// @Tags         location
// @Accept       json
// @Produce      json
// @Param        body body      GPSRequest true "Position fix or error code"
// @Success      200  {object}  LocationResponse
// @Failure      400  {object}  errorResponse
// @Failure      422  {object}  errorResponse
// @Router       /api/location/gps [post]
func (cfg *apiConfig) handlerLocationGPS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		cfg.respondWithError(w, http.StatusMethodNotAllowed, "Method Not Allowed", nil)
		return
	}
	s := cfg.sessions.sessionFor(w, r)

	var req GPSRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		cfg.respondWithError(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}

	switch {
	case req.ErrorCode != 0:
		s.position.ReportError(location.PositionErrorFromCode(req.ErrorCode))
	case req.Latitude == nil || req.Longitude == nil:
		cfg.respondWithError(w, http.StatusBadRequest, "latitude and longitude are required", nil)
		return
	default:
		s.position.Report(positionFromRequest(req, cfg.sessions.now()))
	}

	_, err := s.engine.ResolveViaGPS(r.Context())
	if err != nil {
		cfg.respondWithResolutionError(w, err)
		return
	}
	cfg.respondWithLocation(w, r, s, "")
}

// @Summary      Skip setting a location
// @Tags         location
// @Produce      json
// @Success      200  {object}  LocationResponse
// @Router       /api/location/skip [post]
func (cfg *apiConfig) handlerLocationSkip(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		cfg.respondWithError(w, http.StatusMethodNotAllowed, "Method Not Allowed", nil)
		return
	}
	s := cfg.sessions.sessionFor(w, r)

	if _, err := s.engine.Skip(r.Context()); err != nil {
		cfg.respondWithResolutionError(w, err)
		return
	}
	s.prompt.Close()
	cfg.respondWithLocation(w, r, s, "")
}

// @Summary      Change the default search radius
// @Tags         location
// @Accept       json
// @Produce      json
// @Param        body body      RadiusRequest true "Radius in miles, clamped to 1-50"
// @Success      200  {object}  LocationResponse
// @Failure      409  {object}  errorResponse "No location set"
// @Router       /api/location/radius [put]
func (cfg *apiConfig) handlerLocationRadius(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		cfg.respondWithError(w, http.StatusMethodNotAllowed, "Method Not Allowed", nil)
		return
	}
	s := cfg.sessions.sessionFor(w, r)

	var req RadiusRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		cfg.respondWithError(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}

	_, err := s.engine.SetRadius(r.Context(), req.Radius)
	if errors.Is(err, location.ErrNoLocation) {
		cfg.respondWithError(w, http.StatusConflict, location.UserMessage(err), nil)
		return
	}
	if err != nil {
		cfg.respondWithError(w, http.StatusInternalServerError, "Could not save radius", err)
		return
	}
	cfg.respondWithLocation(w, r, s, "")
}

// @Summary      Ask whether the location modal should open on its own
// @Description  Returns shouldPrompt at most once per session, and never for signed-in shoppers
// @Description  or shoppers with a location. The UI opens the modal after delayMs. With wait=true
// @Description  the server holds the request for the delay itself and answers with delayMs 0.
// @Tags         location
// @Produce      json
// @Param        wait query     bool false "Wait out the prompt delay before answering"
// @Success      200  {object}  PromptResponse
// @Router       /api/location/prompt [get]
func (cfg *apiConfig) handlerLocationPrompt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		cfg.respondWithError(w, http.StatusMethodNotAllowed, "Method Not Allowed", nil)
		return
	}
	s := cfg.sessions.sessionFor(w, r)

	if r.URL.Query().Get("wait") == "true" {
		done := make(chan bool, 1)
		cancel := s.prompt.ScheduleAutoPrompt(r.Context(), isAuthenticated(r), func(fired bool) {
			done <- fired
		})
		defer cancel()

		select {
		case fired := <-done:
			cfg.respondWithJSON(w, http.StatusOK, PromptResponse{
				ShouldPrompt: fired,
				Open:         s.prompt.IsOpen(),
			})
		case <-r.Context().Done():
			cfg.logger.Debug("prompt wait abandoned", "session", s.id)
		}
		return
	}

	fired, err := s.prompt.Fire(r.Context(), isAuthenticated(r))
	if err != nil {
		cfg.respondWithError(w, http.StatusInternalServerError, "Could not check location prompt", err)
		return
	}

	cfg.respondWithJSON(w, http.StatusOK, PromptResponse{
		ShouldPrompt: fired,
		DelayMs:      s.prompt.Delay().Milliseconds(),
		Open:         s.prompt.IsOpen(),
	})
}

func (cfg *apiConfig) handlerLocationPromptOpen(w http.ResponseWriter, r *http.Request) {
	cfg.setPromptVisibility(w, r, true)
}

func (cfg *apiConfig) handlerLocationPromptClose(w http.ResponseWriter, r *http.Request) {
	cfg.setPromptVisibility(w, r, false)
}

// @Summary      Search products near the shopper
// @Description  Seeds the location from the zip parameter when none is set, then queries the
// @Description  product API with the location and the filters in the query string.
// @Tags         products
// @Produce      json
// @Param        zip      query     string  false  "Zip code from a shared link"
// @Param        q        query     string  false  "Search text"
// @Param        distance query     integer false  "Radius override in miles"
// @Success      200  {object}  ProductsResponse
// @Router       /api/products [get]
func (cfg *apiConfig) handlerProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method != http.MethodGet {
		cfg.respondWithError(w, http.StatusMethodNotAllowed, "Method Not Allowed", nil)
		return
	}
	s := cfg.sessions.sessionFor(w, r)

	query := r.URL.Query()
	rec, err := cfg.seedFromURL(r, s, query.Get("zip"))
	if err != nil {
		cfg.respondWithError(w, http.StatusInternalServerError, "Could not load location", err)
		return
	}

	filters := catalog.ParseFilters(query)
	params := catalog.BuildParams(rec, filters)
	cfg.logger.Debug("product search", "session", s.id, "params", params.Encode())

	result := cfg.products.Search(ctx, params)
	if origin, ok := rec.Coordinates(); ok {
		result.AnnotateDistances(origin)
	}

	cfg.respondWithJSON(w, http.StatusOK, ProductsResponse{
		Result:          result,
		Banner:          result.Banner(),
		WithinRadius:    result.WithinRadius(),
		NearbyMerchants: result.NearbyMerchantsLabel(),
		LocationSummary: rec.Summary(),
		Query:           filters.Query().Encode(),
	})
}

// handlerReset is a development-only endpoint that flushes the cache and
// drops every live session.

// @Summary      Reset cache and sessions (development only)
// @Description  Flushes cached zip and reverse-geocode answers and drops all in-memory sessions.
// @Description  Stored locations on durable backends are left alone.
// @Tags         development
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      500  {object}  errorResponse
// @Router       /dev/reset [post]
func (cfg *apiConfig) handlerReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		cfg.respondWithError(w, http.StatusMethodNotAllowed, "Method Not Allowed", nil)
		return
	}
	cfg.logger.Debug("reset request received")

	if cfg.cache != nil {
		if err := cfg.cache.Flush(r.Context()); err != nil {
			cfg.respondWithError(w, http.StatusInternalServerError, "Failed to flush cache", err)
			return
		}
	}
	dropped := cfg.sessions.reset()
	cfg.logger.Info("sessions reset", "dropped", dropped)

	cfg.respondWithJSON(w, http.StatusOK, map[string]string{"status": "cache and sessions reset"})
}

// @Summary      Get application configuration
// @Tags         configuration
// @Produce      json
// @Success      200  {object}  ConfigResponse
// @Router       /api/config [get]
func (cfg *apiConfig) handlerConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		cfg.respondWithError(w, http.StatusMethodNotAllowed, "Method Not Allowed", nil)
		return
	}

	geolocation := location.NewAcquirer(nil, nil,
		location.WithTimeout(cfg.gpsTimeout),
		location.WithMaximumAge(cfg.gpsMaxAge),
	)
	response := ConfigResponse{
		DevMode:         cfg.devMode,
		StoreBackend:    cfg.storeBackend,
		CoordinatesOnly: cfg.coordinatesOnly,
		PromptDelayMs:   cfg.promptDelay.Milliseconds(),
		Geolocation:     geolocation.Options(),
		SweepInterval:   cfg.sweepInterval.String(),
	}

	cfg.respondWithJSON(w, http.StatusOK, response)
}

func (cfg *apiConfig) handlerHealthz(w http.ResponseWriter, r *http.Request) {
	cfg.respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// positionFromRequest turns a reported fix into a Position. The fix's age is
// measured on the browser's clock, from timestamp to sentAt, and applied to
// now, so a skewed browser clock does not age the fix. Without both values
// the fix is taken as fresh.
func positionFromRequest(req GPSRequest, now time.Time) location.Position {
	ts := now
	if req.Timestamp > 0 && req.SentAt > 0 {
		if age := time.Duration(req.SentAt-req.Timestamp) * time.Millisecond; age > 0 {
			ts = now.Add(-age)
		}
	}
	return location.Position{
		Coordinates: location.Coordinates{Latitude: *req.Latitude, Longitude: *req.Longitude},
		Accuracy:    req.Accuracy,
		Timestamp:   ts,
	}
}
