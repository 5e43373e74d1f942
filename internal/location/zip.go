package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// ZipInfo is what a zip lookup knows about a zip code.
type ZipInfo struct {
	ZipCode   string  `json:"zipCode"`
	City      string  `json:"city"`
	State     string  `json:"state"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ZipResolver maps a zip code to coordinates and city/state. Lookup fails
// with ErrNotFound when the zip is unknown and ErrServiceUnavailable when the
// service cannot answer. It never retries.
type ZipResolver interface {
	Lookup(ctx context.Context, zip string) (ZipInfo, error)
}

// HTTPZipResolver asks the zip lookup API: GET {baseURL}/{zip}.
type HTTPZipResolver struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPZipResolver(baseURL string, httpClient *http.Client, logger *slog.Logger) *HTTPZipResolver {
	return &HTTPZipResolver{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

func (z *HTTPZipResolver) Lookup(ctx context.Context, zip string) (ZipInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, z.baseURL+"/"+url.PathEscape(zip), nil)
	if err != nil {
		return ZipInfo{}, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := z.httpClient.Do(req)
	if err != nil {
		return ZipInfo{}, fmt.Errorf("%w: zip lookup request failed: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ZipInfo{}, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return ZipInfo{}, fmt.Errorf("%w: zip lookup returned %s", ErrServiceUnavailable, resp.Status)
	}

	var info ZipInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return ZipInfo{}, fmt.Errorf("%w: failed to decode zip lookup response: %v", ErrServiceUnavailable, err)
	}
	if info.ZipCode == "" && info.City == "" {
		return ZipInfo{}, ErrNotFound
	}
	if info.ZipCode == "" {
		info.ZipCode = zip
	}
	z.logger.Debug("zip lookup", "zip", zip, "city", info.City, "state", info.State)
	return info, nil
}

// lookupOutcome labels a lookup error for logs and metrics.
func lookupOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "unavailable"
	}
}
