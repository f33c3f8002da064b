// Run Atlas - Running Activity Sync and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/runatlas

// Package store provides the persistent key-value cache backing the run
// cache and the geocode cache. The contract is deliberately minimal:
// get, set, and an aligned batch-get. BadgerDB is the only implementation;
// deployments without a configured store run the engines cache-less.
package store

import "context"

// Key namespaces. Run-cache keys and geocode keys never collide.
const (
	// KeyRuns holds the full ordered run list as a JSON array.
	KeyRuns = "runs:list"

	// KeyWatermark holds the high-watermark timestamp as decimal epoch seconds.
	KeyWatermark = "runs:watermark"

	// KeyCredential holds the persisted Strava credential set.
	KeyCredential = "strava:credential"

	// GeoKeyPrefix namespaces one entry per rounded coordinate key.
	GeoKeyPrefix = "geo:"
)

// Store is the abstract key-value capability consumed by the sync and
// geocode engines. Absent keys are not errors: Get reports presence via
// its second return, and BatchGet returns nil at the position of every
// absent key, aligned with the input slice.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	BatchGet(ctx context.Context, keys []string) ([][]byte, error)
	Close() error
}
