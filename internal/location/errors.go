package location

import (
	"errors"
	"fmt"
)

// Resolution errors. None of them is fatal: every one degrades to "no
// location" or "partial location" with a message for the shopper.
var (
	ErrInvalidZipFormat     = errors.New("invalid zip code format")
	ErrPermissionDenied     = errors.New("location permission denied")
	ErrPositionUnavailable  = errors.New("position unavailable")
	ErrTimeout              = errors.New("location request timed out")
	ErrNotFound             = errors.New("zip code not found")
	ErrServiceUnavailable   = errors.New("location service unavailable")
	ErrNoZipFromCoordinates = errors.New("no zip code for coordinates")
	ErrSuperseded           = errors.New("resolution superseded by a newer request")
	ErrNoLocation           = errors.New("no location set")
)

// PositionErrorFromCode maps a browser GeolocationPositionError code to the
// acquirer error taxonomy.
func PositionErrorFromCode(code int) error {
	switch code {
	case 1:
		return ErrPermissionDenied
	case 2:
		return ErrPositionUnavailable
	case 3:
		return ErrTimeout
	}
	return fmt.Errorf("%w: unknown geolocation error code %d", ErrPositionUnavailable, code)
}

// IsGPSError reports whether err came from position acquisition, in which
// case the UI offers manual zip entry.
func IsGPSError(err error) bool {
	return errors.Is(err, ErrPermissionDenied) ||
		errors.Is(err, ErrPositionUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrNoZipFromCoordinates)
}

// UserMessage returns the inline message shown for err.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidZipFormat):
		return "Please enter a valid 5-digit zip code."
	case errors.Is(err, ErrPermissionDenied):
		return "Location access was denied. Enter your zip code instead."
	case errors.Is(err, ErrPositionUnavailable):
		return "We couldn't determine your location. Enter your zip code instead."
	case errors.Is(err, ErrTimeout):
		return "Finding your location took too long. Enter your zip code instead."
	case errors.Is(err, ErrNoZipFromCoordinates):
		return "We found your position but not a zip code for it. Please enter your zip code."
	case errors.Is(err, ErrNotFound):
		return "We don't recognise that zip code, but we'll use it anyway."
	case errors.Is(err, ErrServiceUnavailable):
		return "Location lookup is unavailable right now. Results may be less precise."
	case errors.Is(err, ErrSuperseded):
		return "A newer location request replaced this one."
	case errors.Is(err, ErrNoLocation):
		return "Set your location before choosing a search radius."
	}
	return "Something went wrong while setting your location."
}
