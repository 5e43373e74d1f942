package main

import (
	"github.com/localmarket/storefront/internal/catalog"
	"github.com/localmarket/storefront/internal/location"
)

// LocationResponse is the shopper's location as the UI renders it in the hero
// search, the filter bar and the nearby-merchants panel.
type LocationResponse struct {
	Location       location.Record     `json:"location"`
	HasLocation    bool                `json:"hasLocation"`
	Summary        string              `json:"summary"`
	Radius         int                 `json:"radius,omitempty"`
	Permission     location.Permission `json:"permission"`
	State          string              `json:"state"`
	AvailableSorts []catalog.SortKey   `json:"availableSorts"`
	Message        string              `json:"message,omitempty"`
}

type ZipRequest struct {
	ZipCode string `json:"zipCode"`
}

// GPSRequest carries either a browser position fix or the code of the
// browser's GeolocationPositionError. Timestamp is the fix's timestamp and
// SentAt the browser's Date.now() when posting, both in epoch milliseconds
// on the browser's clock.
type GPSRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Accuracy  float64  `json:"accuracy"`
	Timestamp int64    `json:"timestamp"`
	SentAt    int64    `json:"sentAt"`
	ErrorCode int      `json:"errorCode"`
}

type RadiusRequest struct {
	Radius int `json:"radius"`
}

type PromptResponse struct {
	ShouldPrompt bool  `json:"shouldPrompt"`
	DelayMs      int64 `json:"delayMs"`
	Open         bool  `json:"open"`
}

type ProductsResponse struct {
	catalog.Result
	Banner          string `json:"banner,omitempty"`
	WithinRadius    bool   `json:"withinRadius"`
	NearbyMerchants string `json:"nearbyMerchants,omitempty"`
	LocationSummary string `json:"locationSummary"`
	Query           string `json:"query"`
}

type ConfigResponse struct {
	DevMode         bool                     `json:"devMode"`
	StoreBackend    string                   `json:"storeBackend"`
	CoordinatesOnly bool                     `json:"coordinatesOnly"`
	PromptDelayMs   int64                    `json:"promptDelayMs"`
	Geolocation     location.PositionOptions `json:"geolocation"`
	SweepInterval   string                   `json:"sweepInterval"`
}
