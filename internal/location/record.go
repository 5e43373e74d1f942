// Package location resolves, persists and describes the shopper's location:
// the zip code or coordinates every proximity query is keyed on.
package location

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Radius bounds in miles.
const (
	MinRadius     = 1
	MaxRadius     = 50
	DefaultRadius = 25
)

var zipPattern = regexp.MustCompile(`^\d{5}(-\d{4})?$`)

// Source records how a location was obtained.
type Source string

const (
	SourceGPS       Source = "gps"
	SourceManualZip Source = "manual-zip"
	SourceURLParam  Source = "url-param"
	SourceSkipped   Source = "skipped"
)

func (s Source) valid() bool {
	switch s {
	case SourceGPS, SourceManualZip, SourceURLParam, SourceSkipped:
		return true
	}
	return false
}

// Permission tracks browser geolocation consent. It is independent of
// whether a zip code is known.
type Permission string

const (
	PermissionUnset   Permission = "unset"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// ParsePermission maps a stored value back to a Permission. Unknown values
// read as unset.
func ParsePermission(s string) Permission {
	switch Permission(s) {
	case PermissionGranted:
		return PermissionGranted
	case PermissionDenied:
		return PermissionDenied
	}
	return PermissionUnset
}

// Coordinates is a WGS84 point in degrees.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether c is a finite point inside the lat/lon ranges.
func (c Coordinates) Valid() bool {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) ||
		math.IsInf(c.Latitude, 0) || math.IsInf(c.Longitude, 0) {
		return false
	}
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

// Record is the canonical location of a shopper. The zero value is the
// empty record.
type Record struct {
	ZipCode    string    `json:"zipCode,omitempty"`
	Latitude   *float64  `json:"latitude,omitempty"`
	Longitude  *float64  `json:"longitude,omitempty"`
	City       string    `json:"city,omitempty"`
	State      string    `json:"state,omitempty"`
	Source     Source    `json:"source,omitempty"`
	Radius     int       `json:"radius,omitempty"`
	ResolvedAt time.Time `json:"resolvedAt,omitzero"`
}

// IsEmpty reports whether r carries no usable location. Skipped records are
// empty.
func (r Record) IsEmpty() bool {
	return r.ZipCode == "" && !r.HasCoordinates()
}

// HasZip reports whether r carries a zip code.
func (r Record) HasZip() bool {
	return r.ZipCode != ""
}

// HasCoordinates reports whether r carries a full coordinate pair.
func (r Record) HasCoordinates() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// Coordinates returns the coordinate pair if both halves are present.
func (r Record) Coordinates() (Coordinates, bool) {
	if !r.HasCoordinates() {
		return Coordinates{}, false
	}
	return Coordinates{Latitude: *r.Latitude, Longitude: *r.Longitude}, true
}

// WithCoordinates returns a copy of r carrying c.
func (r Record) WithCoordinates(c Coordinates) Record {
	lat, lon := c.Latitude, c.Longitude
	r.Latitude = &lat
	r.Longitude = &lon
	return r
}

// EffectiveRadius is the stored radius, or the default when none is set.
func (r Record) EffectiveRadius() int {
	if r.Radius == 0 {
		return DefaultRadius
	}
	return ClampRadius(r.Radius)
}

// Validate checks the record invariants.
func (r Record) Validate() error {
	if r.Source != "" && !r.Source.valid() {
		return fmt.Errorf("unknown location source %q", r.Source)
	}
	if (r.Latitude == nil) != (r.Longitude == nil) {
		return fmt.Errorf("latitude and longitude must be set together")
	}
	if c, ok := r.Coordinates(); ok && !c.Valid() {
		return fmt.Errorf("coordinates out of range: %v,%v", c.Latitude, c.Longitude)
	}
	if r.ZipCode != "" && !ValidZip(r.ZipCode) {
		return fmt.Errorf("%w: %q", ErrInvalidZipFormat, r.ZipCode)
	}
	if r.Source == SourceSkipped && !r.IsEmpty() {
		return fmt.Errorf("skipped location must not carry a zip code or coordinates")
	}
	if r.IsEmpty() && (r.City != "" || r.State != "") {
		return fmt.Errorf("city/state without a zip code or coordinates")
	}
	return nil
}

// ValidZip reports whether zip is a 5-digit or ZIP+4 code.
func ValidZip(zip string) bool {
	return zipPattern.MatchString(zip)
}

// SuggestZip folds full-width digits and strips surrounding whitespace from
// a rejected zip code. It returns the result when that is a valid zip the
// shopper probably meant. The original input stays invalid.
func SuggestZip(s string) (string, bool) {
	zip := strings.TrimSpace(norm.NFKC.String(s))
	if zip == s || !ValidZip(zip) {
		return "", false
	}
	return zip, true
}

// ClampRadius bounds miles to [MinRadius, MaxRadius].
func ClampRadius(miles int) int {
	if miles < MinRadius {
		return MinRadius
	}
	if miles > MaxRadius {
		return MaxRadius
	}
	return miles
}

// Summary is the short human-readable form of r shown in the hero search,
// filter bar and nearby-merchant panels.
func (r Record) Summary() string {
	place := ""
	if r.City != "" {
		place = cases.Title(language.AmericanEnglish).String(strings.ToLower(r.City))
		if r.State != "" {
			place += ", " + strings.ToUpper(r.State)
		}
	}
	switch {
	case place != "" && r.ZipCode != "":
		return place + " " + r.ZipCode
	case r.ZipCode != "":
		return r.ZipCode
	case place != "":
		return place
	}
	if c, ok := r.Coordinates(); ok {
		return fmt.Sprintf("Near %.4f, %.4f", c.Latitude, c.Longitude)
	}
	return ""
}
