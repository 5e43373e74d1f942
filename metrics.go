package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// This file defines the Prometheus metrics owned by the HTTP layer. Location
// and product search metrics live with their packages.

// httpRequestsTotal is a Prometheus counter vector that tracks the total number of HTTP requests.
// It is partitioned by the request's URL path, HTTP method, and the resulting status code.
var httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "storefront_http_requests_total",
	Help: "Total number of HTTP requests by path, method and code.",
}, []string{"path", "method", "code"})

// activeSessions is the number of sessions held in memory after the last sweep.
var activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "storefront_active_sessions",
	Help: "Number of shopper sessions held in memory.",
})

// sessionsSweptTotal counts sessions dropped by the idle sweeper.
var sessionsSweptTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "storefront_sessions_swept_total",
	Help: "Total number of idle sessions dropped from memory.",
})

// externalRequestDuration observes upstream call latency by host.
var externalRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "storefront_external_request_duration_seconds",
	Help:    "Duration of calls to upstream services by host.",
	Buckets: prometheus.DefBuckets,
}, []string{"host"})
