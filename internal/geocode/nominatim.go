// Run Atlas - Running Activity Sync and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/runatlas

/*
nominatim.go - Nominatim Reverse Geocoding Client

Wraps the OSM Nominatim /reverse endpoint with circuit breaker protection.
Nominatim's usage policy requires a descriptive User-Agent and tolerates
roughly one request per second per client, so the caller (the Resolver)
paces batches; this client only handles the single lookup and the breaker.

The breaker exists because Nominatim throttles aggressively under load.
Once lookups start failing the circuit opens and subsequent lookups fail
fast instead of hammering a service that is already rejecting us; the
Resolver degrades those failures to empty locations.
*/

//nolint:staticcheck // File documentation, not package doc
package geocode

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/runatlas/internal/config"
	"github.com/tomtom215/runatlas/internal/logging"
	"github.com/tomtom215/runatlas/internal/models"
)

// NominatimClient performs reverse geocoding lookups against a Nominatim
// instance. Safe for concurrent use.
type NominatimClient struct {
	baseURL   string
	userAgent string
	client    *http.Client
	cb        *gobreaker.CircuitBreaker[models.GeoEntry]
}

// reverseResponse is the subset of the Nominatim jsonv2 payload we read.
type reverseResponse struct {
	Address struct {
		City    string `json:"city"`
		Town    string `json:"town"`
		Village string `json:"village"`
		Hamlet  string `json:"hamlet"`
		Suburb  string `json:"suburb"`
		Country string `json:"country"`
	} `json:"address"`
}

// NewNominatimClient creates a reverse geocoding client from config.
func NewNominatimClient(cfg config.GeocodeConfig) *NominatimClient {
	failures := cfg.BreakerFailures
	if failures <= 0 {
		failures = 5
	}

	cb := gobreaker.NewCircuitBreaker[models.GeoEntry](gobreaker.Settings{
		Name:        "nominatim",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failures)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", breakerStateString(from)).
				Str("to", breakerStateString(to)).
				Msg("[GEOCODE] Circuit breaker state transition")
		},
	})

	return &NominatimClient{
		baseURL:   cfg.BaseURL,
		userAgent: cfg.UserAgent,
		client:    &http.Client{Timeout: cfg.Timeout},
		cb:        cb,
	}
}

// Reverse resolves a coordinate pair to a city and country. City falls
// back through the settlement hierarchy (city, town, village, hamlet,
// suburb) since rural coordinates rarely carry a city field. Fields the
// response omits come back nil.
func (c *NominatimClient) Reverse(ctx context.Context, lat, lon float64) (models.GeoEntry, error) {
	return c.cb.Execute(func() (models.GeoEntry, error) {
		return c.reverse(ctx, lat, lon)
	})
}

func (c *NominatimClient) reverse(ctx context.Context, lat, lon float64) (models.GeoEntry, error) {
	query := url.Values{}
	query.Set("format", "jsonv2")
	query.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	query.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	query.Set("zoom", "10")
	query.Set("addressdetails", "1")

	reqURL := c.baseURL + "/reverse?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return models.GeoEntry{}, fmt.Errorf("geocode: build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return models.GeoEntry{}, fmt.Errorf("geocode: lookup %.2f,%.2f: %w", lat, lon, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return models.GeoEntry{}, fmt.Errorf("geocode: lookup %.2f,%.2f: status %d", lat, lon, resp.StatusCode)
	}

	var payload reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return models.GeoEntry{}, fmt.Errorf("geocode: decode response: %w", err)
	}

	return models.GeoEntry{
		City:    firstNonEmpty(payload.Address.City, payload.Address.Town, payload.Address.Village, payload.Address.Hamlet, payload.Address.Suburb),
		Country: firstNonEmpty(payload.Address.Country),
	}, nil
}

// firstNonEmpty returns a pointer to the first non-empty candidate, or
// nil when every candidate is empty.
func firstNonEmpty(candidates ...string) *string {
	for _, c := range candidates {
		if c != "" {
			return &c
		}
	}
	return nil
}

func breakerStateString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
