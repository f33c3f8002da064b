// Run Atlas - Running Activity Sync and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/runatlas

// Package metrics provides Prometheus instrumentation for Run Atlas:
// sync operation timing, Strava page fetch volume, geocode cache
// efficiency, and API endpoint latency.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sync Metrics
	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "runatlas_sync_duration_seconds",
			Help:    "Duration of run sync operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"}, // "exhaustive" or "incremental"
	)

	SyncErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runatlas_sync_errors_total",
			Help: "Total number of failed sync operations",
		},
		[]string{"kind"}, // "auth", "fetch", "store"
	)

	SyncNewRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "runatlas_sync_new_runs_total",
			Help: "Total number of new runs merged into the cache",
		},
	)

	// Strava API Metrics
	StravaPageFetches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "runatlas_strava_page_fetches_total",
			Help: "Total number of Strava activity page requests",
		},
	)

	// Geocode Metrics
	GeocodeCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "runatlas_geocode_cache_hits_total",
			Help: "Total number of geocode cache hits",
		},
	)

	GeocodeCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "runatlas_geocode_cache_misses_total",
			Help: "Total number of geocode cache misses",
		},
	)

	GeocodeLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runatlas_geocode_lookups_total",
			Help: "Total number of upstream reverse-geocode lookups",
		},
		[]string{"outcome"}, // "resolved", "degraded"
	)

	// API Metrics
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "runatlas_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "runatlas_api_active_requests",
			Help: "Current number of in-flight API requests",
		},
	)
)

// RecordSync records a completed sync operation.
func RecordSync(mode string, newRuns int, duration time.Duration) {
	SyncDuration.WithLabelValues(mode).Observe(duration.Seconds())
	SyncNewRuns.Add(float64(newRuns))
}

// RecordSyncError records a failed sync operation by failure kind.
func RecordSyncError(kind string) {
	SyncErrors.WithLabelValues(kind).Inc()
}

// RecordPageFetch records one Strava activity page request.
func RecordPageFetch() {
	StravaPageFetches.Inc()
}

// RecordGeocodeLookup records one upstream reverse-geocode lookup.
func RecordGeocodeLookup(outcome string) {
	GeocodeLookups.WithLabelValues(outcome).Inc()
}

// RecordAPIRequest records one completed API request.
func RecordAPIRequest(method, path string, status int, duration time.Duration) {
	APIRequestDuration.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the in-flight request gauge.
func TrackActiveRequest(active bool) {
	if active {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}
