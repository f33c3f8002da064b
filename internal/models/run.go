// Run Atlas - Running Activity Sync and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/runatlas

// Package models defines data structures used throughout the Run Atlas application.
// These models represent Strava credentials, raw upstream activities, canonical run
// records, sync state, geocode entries, and API responses.
package models

// RawActivity is the upstream Strava activity record as returned by
// GET /api/v3/athlete/activities. It is read-only once fetched; only the
// fields relevant to run extraction are mapped, everything else upstream
// sends is ignored during decoding.
//
// Optional fields keep their upstream absent-markers: StartLatLng is nil
// when Strava reports no start coordinate, and Map.SummaryPolyline is the
// empty string when no route polyline exists. Downstream mapping never
// treats those as zero values.
type RawActivity struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Type           string    `json:"type"`
	SportType      string    `json:"sport_type"`
	StartDate      string    `json:"start_date"`       // UTC instant, RFC3339
	StartDateLocal string    `json:"start_date_local"` // athlete wall clock, RFC3339 shape
	Distance       float64   `json:"distance"`         // meters
	MovingTime     int       `json:"moving_time"`      // seconds
	StartLatLng    []float64 `json:"start_latlng"`
	Map            struct {
		SummaryPolyline string `json:"summary_polyline"`
	} `json:"map"`
}

// RunRecord is the canonical run shape consumed by the dashboard.
//
// Invariants for any cached list of RunRecords:
//   - ID is unique across the list
//   - the list is sorted ascending by Date, with ties keeping their
//     original relative order (stable sort, never a re-sort of ties)
//
// Timestamp is the UTC start instant in epoch seconds and is used only as
// the sync watermark; Date is the athlete-local calendar day and is what
// the dashboard groups by. The two need not agree at sub-day granularity.
type RunRecord struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Date          string    `json:"date"` // "YYYY-MM-DD", local wall clock
	Timestamp     int64     `json:"timestamp"`
	DistanceMiles float64   `json:"distance_miles"`
	MovingTime    int       `json:"moving_time"` // seconds
	StartLatLng   []float64 `json:"latlng,omitempty"`
	Polyline      *string   `json:"polyline,omitempty"`
}

// SyncState is the persisted run cache: the full ordered run list plus the
// high watermark (maximum Timestamp ever merged in). Created empty on first
// sync, replaced wholesale by an exhaustive fetch, extended in place by
// incremental merges afterwards.
type SyncState struct {
	Runs      []RunRecord `json:"runs"`
	Watermark int64       `json:"watermark"`
}

// IsEmpty reports whether the state carries no cached runs.
func (s *SyncState) IsEmpty() bool {
	return s == nil || len(s.Runs) == 0
}

// GeoEntry is a reverse-geocoded location for one coordinate key.
// Entries are immutable once written: place names for a fixed coordinate
// are treated as never-expiring facts, and a failed lookup is persisted as
// a null entry so the same coordinate is not retried on every request.
type GeoEntry struct {
	City    *string `json:"city"`
	Country *string `json:"country"`
}
