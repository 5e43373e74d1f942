package location

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// resolutionsTotal counts location resolutions by source and outcome
// (resolved, degraded, failed, invalid, superseded).
var resolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "storefront_location_resolutions_total",
	Help: "Total number of location resolutions by source and outcome.",
}, []string{"source", "outcome"})

// zipLookupsTotal counts zip lookups by outcome (ok, not_found, unavailable).
var zipLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "storefront_zip_lookups_total",
	Help: "Total number of zip code lookups by outcome.",
}, []string{"outcome"})
