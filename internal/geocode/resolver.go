// Run Atlas - Running Activity Sync and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/runatlas

/*
resolver.go - Geocode Cache Engine

Resolves coordinate pairs to city/country locations, reading the Badger
cache first and looking up only the misses against Nominatim. Lookups run
in small concurrent batches with a politeness delay between batches so we
stay inside Nominatim's usage policy.

Failure handling is deliberately lossy: a lookup that fails (network,
non-200, open breaker) degrades to an empty location which is cached like
any other result. Locations never change for a fixed coordinate, so cache
entries have no expiry; a degraded entry can only be replaced by wiping
the store.

Coordinates are truncated to a 0.01 degree grid (about 1km) before
keying. Runs starting from the same neighborhood share one cache entry
and one upstream lookup.
*/

//nolint:staticcheck // File documentation, not package doc
package geocode

import (
	"context"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/runatlas/internal/config"
	"github.com/tomtom215/runatlas/internal/logging"
	"github.com/tomtom215/runatlas/internal/metrics"
	"github.com/tomtom215/runatlas/internal/models"
	"github.com/tomtom215/runatlas/internal/store"
)

// reverseGeocoder abstracts the Nominatim client for testing.
type reverseGeocoder interface {
	Reverse(ctx context.Context, lat, lon float64) (models.GeoEntry, error)
}

// Resolver is the geocode cache engine. Safe for concurrent use; the
// store and the geocoder handle their own synchronization.
type Resolver struct {
	store      store.Store
	geocoder   reverseGeocoder
	limiter    *rate.Limiter
	batchSize  int
	maxLookups int
}

// NewResolver creates a resolver over the given store and geocoder. A
// nil store disables caching: every request hits Nominatim, still paced
// and capped.
func NewResolver(st store.Store, geocoder reverseGeocoder, cfg config.GeocodeConfig) *Resolver {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 5
	}

	return &Resolver{
		store:      st,
		geocoder:   geocoder,
		limiter:    rate.NewLimiter(rate.Every(cfg.BatchDelay), 1),
		batchSize:  batchSize,
		maxLookups: cfg.MaxLookups,
	}
}

// Coord is a latitude/longitude pair as it appears on a run record.
type Coord struct {
	Lat float64
	Lon float64
}

// Key returns the cache key for this coordinate on the 0.01 degree grid.
func (c Coord) Key() string {
	return fmt.Sprintf("%.2f,%.2f", c.Lat, c.Lon)
}

// Resolve maps each requested coordinate key to its location. Cached
// entries are served from the store; misses are looked up in batches and
// the results persisted before returning. Every requested key appears in
// the result map, degraded lookups as empty entries.
//
// Lookups beyond the per-call cap are skipped entirely: not resolved,
// not cached, not present in the result. They stay misses for the next
// call, which matters when a large backfill would otherwise monopolize
// Nominatim.
func (r *Resolver) Resolve(ctx context.Context, coords []Coord) (map[string]models.GeoEntry, error) {
	results := make(map[string]models.GeoEntry, len(coords))
	if len(coords) == 0 {
		return results, nil
	}

	// Dedupe on the grid key so one neighborhood costs one lookup.
	unique := make([]Coord, 0, len(coords))
	seen := make(map[string]struct{}, len(coords))
	for _, c := range coords {
		key := c.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, c)
	}

	misses, err := r.readCache(ctx, unique, results)
	if err != nil {
		return nil, err
	}

	metrics.GeocodeCacheHits.Add(float64(len(unique) - len(misses)))
	metrics.GeocodeCacheMisses.Add(float64(len(misses)))

	if r.maxLookups > 0 && len(misses) > r.maxLookups {
		logging.Warn().
			Int("misses", len(misses)).
			Int("cap", r.maxLookups).
			Msg("[GEOCODE] Lookup cap reached, deferring remainder to next request")
		misses = misses[:r.maxLookups]
	}

	for start := 0; start < len(misses); start += r.batchSize {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("geocode: politeness wait: %w", err)
		}

		end := min(start+r.batchSize, len(misses))
		batch := r.lookupBatch(ctx, misses[start:end])

		for key, entry := range batch {
			results[key] = entry
			if err := r.writeCache(ctx, key, entry); err != nil {
				return nil, err
			}
		}
	}

	return results, nil
}

// readCache loads cached entries into results and returns the coords
// with no cache entry. With no store everything is a miss.
func (r *Resolver) readCache(ctx context.Context, coords []Coord, results map[string]models.GeoEntry) ([]Coord, error) {
	if r.store == nil {
		return coords, nil
	}

	keys := make([]string, len(coords))
	for i, c := range coords {
		keys[i] = store.GeoKeyPrefix + c.Key()
	}

	values, err := r.store.BatchGet(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("geocode: read cache: %w", err)
	}

	misses := make([]Coord, 0, len(coords))
	for i, value := range values {
		if value == nil {
			misses = append(misses, coords[i])
			continue
		}
		var entry models.GeoEntry
		if err := json.Unmarshal(value, &entry); err != nil {
			// Unreadable entry, treat as a miss and overwrite it.
			logging.Warn().Err(err).Str("key", keys[i]).Msg("[GEOCODE] Dropping corrupt cache entry")
			misses = append(misses, coords[i])
			continue
		}
		results[coords[i].Key()] = entry
	}
	return misses, nil
}

func (r *Resolver) writeCache(ctx context.Context, key string, entry models.GeoEntry) error {
	if r.store == nil {
		return nil
	}
	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("geocode: encode entry: %w", err)
	}
	if err := r.store.Set(ctx, store.GeoKeyPrefix+key, value); err != nil {
		return fmt.Errorf("geocode: write cache: %w", err)
	}
	return nil
}

// lookupBatch resolves one batch concurrently. Individual failures
// degrade to empty entries; the batch itself never fails.
func (r *Resolver) lookupBatch(ctx context.Context, batch []Coord) map[string]models.GeoEntry {
	type lookupResult struct {
		key   string
		entry models.GeoEntry
	}

	out := make([]lookupResult, len(batch))
	var wg sync.WaitGroup
	for i, coord := range batch {
		wg.Add(1)
		go func(i int, coord Coord) {
			defer wg.Done()

			entry, err := r.geocoder.Reverse(ctx, coord.Lat, coord.Lon)
			if err != nil {
				logging.Warn().
					Err(err).
					Str("coord", coord.Key()).
					Msg("[GEOCODE] Lookup failed, caching empty location")
				metrics.RecordGeocodeLookup("degraded")
				out[i] = lookupResult{key: coord.Key()}
				return
			}
			metrics.RecordGeocodeLookup("resolved")
			out[i] = lookupResult{key: coord.Key(), entry: entry}
		}(i, coord)
	}
	wg.Wait()

	resolved := make(map[string]models.GeoEntry, len(batch))
	for _, res := range out {
		resolved[res.key] = res.entry
	}
	return resolved
}
