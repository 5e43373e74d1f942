// This file implements a standalone metrics scraper for the storefront service.
// It is designed to be deployed as a separate, serverless container (e.g., on Cloud Run)
// and triggered periodically by a scheduler (e.g., Cloud Scheduler).
//
// The scraper performs the following steps:
//  1. Receives an HTTP request from the scheduler.
//  2. Fetches Prometheus metrics from the storefront's /metrics endpoint.
//  3. Keeps the storefront_* families: location resolutions, zip lookups,
//     product searches, sessions, HTTP requests and upstream latency.
//  4. Converts them into the format required by Google Cloud's
//     Managed Service for Prometheus.
//  5. Ingests the converted metrics into Google Cloud Monitoring.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"
	"strings"
	"time"

	monitoring "cloud.google.com/go/monitoring/apiv3/v2"
	"cloud.google.com/go/monitoring/apiv3/v2/monitoringpb"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/genproto/googleapis/api/distribution"
	"google.golang.org/genproto/googleapis/api/metric"
	"google.golang.org/genproto/googleapis/api/monitoredres"
	"google.golang.org/protobuf/types/known/timestamppb"
)

const defaultMetricPrefix = "storefront_"

// scraper holds everything one scrape needs. ingest is swapped out in tests.
type scraper struct {
	httpClient *http.Client
	metricsURL string
	projectID  string
	region     string
	prefix     string
	logger     *slog.Logger
	now        func() time.Time
	ingest     func(ctx context.Context, projectID string, timeSeries []*monitoringpb.TimeSeries) error
}

// newScraperFromEnv reads METRICS_URL and PROJECT_ID (required) and
// GCP_REGION and METRIC_PREFIX (optional).
func newScraperFromEnv(logger *slog.Logger) (*scraper, error) {
	metricsURL := os.Getenv("METRICS_URL")
	if metricsURL == "" {
		return nil, fmt.Errorf("environment variable METRICS_URL must be set")
	}
	projectID := os.Getenv("PROJECT_ID")
	if projectID == "" {
		return nil, fmt.Errorf("environment variable PROJECT_ID must be set")
	}
	region := os.Getenv("GCP_REGION")
	if region == "" {
		region = "us-central1"
	}
	prefix, ok := os.LookupEnv("METRIC_PREFIX")
	if !ok {
		prefix = defaultMetricPrefix
	}
	return &scraper{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		metricsURL: metricsURL,
		projectID:  projectID,
		region:     region,
		prefix:     prefix,
		logger:     logger,
		now:        time.Now,
		ingest:     ingestMetrics,
	}, nil
}

// main is the entry point for the scraper service.
// It sets up a JSON-based structured logger, configures an HTTP server as required
// by the Cloud Run environment, and registers the scrapeHandler to process
// incoming requests.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	s, err := newScraperFromEnv(logger)
	if err != nil {
		logger.Error("invalid scraper configuration", "error", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	logger.Info("starting server", "port", port, "metrics_url", s.metricsURL)

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.scrapeHandler)

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       20 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	if err := server.ListenAndServe(); err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}
}

// scrapeHandler handles incoming HTTP requests from Cloud Scheduler.
// It orchestrates the scraping and ingestion process and logs the outcome.
func (s *scraper) scrapeHandler(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("scrape request received")
	n, err := s.scrapeAndIngest(r.Context())
	if err != nil {
		s.logger.Error("error during scrape and ingest", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.logger.Info("successfully scraped and ingested metrics", "series", n)
	fmt.Fprintln(w, "Success")
}

// scrapeAndIngest fetches, converts and writes one round of metrics and
// returns how many time series were written.
func (s *scraper) scrapeAndIngest(ctx context.Context) (int, error) {
	timeSeries, err := s.fetchAndConvertToTimeSeries(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch and convert metrics: %w", err)
	}

	if len(timeSeries) == 0 {
		s.logger.Info("no metric samples found to ingest")
		return 0, nil
	}

	if err := s.ingest(ctx, s.projectID, timeSeries); err != nil {
		return 0, fmt.Errorf("failed to ingest metrics: %w", err)
	}
	return len(timeSeries), nil
}

// fetchAndConvertToTimeSeries scrapes the Prometheus endpoint, parses the response,
// and converts the metrics into Google Cloud Monitoring's TimeSeries format.
// It handles Counter, Gauge, Untyped, and Histogram metric types.
func (s *scraper) fetchAndConvertToTimeSeries(ctx context.Context) ([]*monitoringpb.TimeSeries, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.metricsURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http request failed with status code %d", resp.StatusCode)
	}

	var parser expfmt.TextParser
	metricFamilies, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prometheus metrics: %w", err)
	}

	resource := &monitoredres.MonitoredResource{
		Type: "prometheus_target",
		Labels: map[string]string{
			"project_id": s.projectID,
			"location":   s.region,
			"cluster":    "__gce__",
			"namespace":  "storefront",
			"job":        "storefront",
			"instance":   s.metricsURL,
		},
	}

	var timeSeriesList []*monitoringpb.TimeSeries
	now := timestamppb.New(s.now())

	for name, mf := range metricFamilies {
		if !strings.HasPrefix(name, s.prefix) {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := make(map[string]string)
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}

			ts := &monitoringpb.TimeSeries{
				Metric: &metric.Metric{
					Type:   "prometheus.googleapis.com/" + name,
					Labels: labels,
				},
				Resource: resource,
			}

			var point *monitoringpb.Point
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				point = createPoint(now, m.GetCounter().GetValue())
			case dto.MetricType_GAUGE:
				point = createPoint(now, m.GetGauge().GetValue())
			case dto.MetricType_UNTYPED:
				point = createPoint(now, m.GetUntyped().GetValue())
			case dto.MetricType_HISTOGRAM:
				point = createDistributionPoint(now, m.GetHistogram(), s.logger)
			case dto.MetricType_SUMMARY:
				s.logger.Debug("skipping metric with unhandled summary type", "metric", name)
				continue
			default:
				s.logger.Warn("skipping metric with unhandled type", "metric", name, "type", mf.GetType())
				continue
			}

			ts.Points = []*monitoringpb.Point{point}
			timeSeriesList = append(timeSeriesList, ts)
		}
	}
	return timeSeriesList, nil
}

// createPoint creates a monitoring TimeSeries point with a double value.
// This is used for simple metrics like counters and gauges.
func createPoint(timestamp *timestamppb.Timestamp, value float64) *monitoringpb.Point {
	return &monitoringpb.Point{
		Interval: &monitoringpb.TimeInterval{
			EndTime: timestamp,
		},
		Value: &monitoringpb.TypedValue{
			Value: &monitoringpb.TypedValue_DoubleValue{
				DoubleValue: value,
			},
		},
	}
}

// createDistributionPoint converts a Prometheus histogram into a Cloud
// Monitoring Distribution. Prometheus buckets are cumulative and end with
// +Inf; Cloud Monitoring wants per-bucket counts and finite bounds.
func createDistributionPoint(timestamp *timestamppb.Timestamp, h *dto.Histogram, logger *slog.Logger) *monitoringpb.Point {
	promBuckets := h.GetBucket()
	bounds := make([]float64, 0, len(promBuckets))
	bucketCounts := make([]int64, 0, len(promBuckets)+1)
	var lastCumulativeCount uint64

	for i, b := range promBuckets {
		cumulativeCount := b.GetCumulativeCount()
		if !math.IsInf(b.GetUpperBound(), 1) {
			bounds = append(bounds, b.GetUpperBound())
		}
		bucketCounts = append(bucketCounts, capInt64(cumulativeCount-lastCumulativeCount, "bucket", i, logger))
		lastCumulativeCount = cumulativeCount
	}
	// The client library omits the +Inf bucket; the overflow bucket holds
	// whatever the finite buckets did not count.
	if len(bucketCounts) == len(bounds) {
		bucketCounts = append(bucketCounts, capInt64(h.GetSampleCount()-lastCumulativeCount, "bucket", len(bounds), logger))
	}

	sampleCount := capInt64(h.GetSampleCount(), "sample_count", 0, logger)
	var mean float64
	if sampleCount > 0 {
		mean = h.GetSampleSum() / float64(sampleCount)
	}

	dist := &distribution.Distribution{
		Count: sampleCount,
		Mean:  mean,
		BucketOptions: &distribution.Distribution_BucketOptions{
			Options: &distribution.Distribution_BucketOptions_ExplicitBuckets{
				ExplicitBuckets: &distribution.Distribution_BucketOptions_Explicit{
					Bounds: bounds,
				},
			},
		},
		BucketCounts: bucketCounts,
	}

	return &monitoringpb.Point{
		Interval: &monitoringpb.TimeInterval{
			EndTime: timestamp,
		},
		Value: &monitoringpb.TypedValue{
			Value: &monitoringpb.TypedValue_DistributionValue{
				DistributionValue: dist,
			},
		},
	}
}

func capInt64(v uint64, what string, index int, logger *slog.Logger) int64 {
	if v > math.MaxInt64 {
		logger.Warn("histogram count exceeds MaxInt64, capping value", "field", what, "index", index, "value", v)
		return math.MaxInt64
	}
	return int64(v)
}

// ingestMetrics writes the TimeSeries data to the Google Cloud Monitoring API.
// It creates a new client for each call to ensure freshness but relies on
// underlying connection pooling.
func ingestMetrics(ctx context.Context, projectID string, timeSeries []*monitoringpb.TimeSeries) error {
	client, err := monitoring.NewMetricClient(ctx)
	if err != nil {
		return fmt.Errorf("failed to create monitoring client: %w", err)
	}
	defer client.Close()

	req := &monitoringpb.CreateTimeSeriesRequest{
		Name:       "projects/" + projectID,
		TimeSeries: timeSeries,
	}

	if err := client.CreateTimeSeries(ctx, req); err != nil {
		return fmt.Errorf("failed to write time series data: %w", err)
	}
	return nil
}
