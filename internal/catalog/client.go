package catalog

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var searchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "storefront_product_searches_total",
	Help: "Total number of product searches by outcome.",
}, []string{"outcome"})

// Client queries the product API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Search runs GET /api/products. It never fails: when the product API cannot
// be reached or answers badly the result is empty and marked Unavailable.
func (c *Client) Search(ctx context.Context, params Params) Result {
	u := c.baseURL + "/api/products"
	if q := params.Encode(); q != "" {
		u += "?" + q
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return c.unavailable(params, "error creating product search request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.unavailable(params, "product search request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.unavailable(params, "product search returned non-2xx status", nil, "status", resp.StatusCode)
	}

	var body Response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return c.unavailable(params, "error decoding product search response", err)
	}

	result := InterpretResponse(body, params)
	outcome := "ok"
	if result.LocationInfo.FallbackResults {
		outcome = "fallback"
	}
	searchesTotal.WithLabelValues(outcome).Inc()
	c.logger.Debug("product search", "params", params.Encode(), "products", len(result.Products), "fallback", result.LocationInfo.FallbackResults)
	return result
}

func (c *Client) unavailable(params Params, msg string, err error, attrs ...any) Result {
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	c.logger.Error(msg, attrs...)
	searchesTotal.WithLabelValues("unavailable").Inc()
	return unavailableResult(params)
}
