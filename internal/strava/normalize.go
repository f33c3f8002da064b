// Run Atlas - Running Activity Sync and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/runatlas

package strava

import (
	"math"
	"time"

	"github.com/tomtom215/runatlas/internal/models"
)

const metersPerMile = 1609.34

// Normalize maps one raw upstream activity to a canonical run record.
// Anything that is not a run (by type or sport type) is filtered out, as
// is any record whose start strings are too malformed to derive a calendar
// day and watermark timestamp from. The mapping is total: optional inputs
// become explicit absent markers, never zero values in disguise.
//
// The calendar day is the athlete's local wall-clock day exactly as Strava
// reports it, with no timezone conversion; the watermark timestamp comes
// from the UTC start instant.
func Normalize(raw models.RawActivity) (models.RunRecord, bool) {
	if raw.Type != "Run" && raw.SportType != "Run" {
		return models.RunRecord{}, false
	}
	if len(raw.StartDateLocal) < 10 {
		return models.RunRecord{}, false
	}

	start, err := time.Parse(time.RFC3339, raw.StartDate)
	if err != nil {
		return models.RunRecord{}, false
	}

	run := models.RunRecord{
		ID:            raw.ID,
		Name:          raw.Name,
		Date:          raw.StartDateLocal[:10],
		Timestamp:     start.Unix(),
		DistanceMiles: roundMiles(raw.Distance),
		MovingTime:    raw.MovingTime,
	}

	if len(raw.StartLatLng) == 2 {
		run.StartLatLng = raw.StartLatLng
	}
	if raw.Map.SummaryPolyline != "" {
		polyline := raw.Map.SummaryPolyline
		run.Polyline = &polyline
	}

	return run, true
}

// NormalizeAll filters and maps a fetched activity list, preserving fetch order.
func NormalizeAll(raw []models.RawActivity) []models.RunRecord {
	runs := make([]models.RunRecord, 0, len(raw))
	for _, activity := range raw {
		if run, ok := Normalize(activity); ok {
			runs = append(runs, run)
		}
	}
	return runs
}

// roundMiles converts meters to miles rounded half-up to two decimals.
func roundMiles(meters float64) float64 {
	return math.Round(meters/metersPerMile*100) / 100
}
