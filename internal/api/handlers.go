// Run Atlas - Running Activity Sync and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/runatlas

/*
handlers.go - HTTP Handlers

The dashboard endpoints. GET /runs drives a full sync cycle before
responding, so the dashboard always renders current data; the merge
engine serializes concurrent cycles, so a burst of page loads costs one
Strava round trip.

Error mapping: credential failures surface as 401 (the frontend then
offers re-authorization), upstream fetch failures as 502, everything
else as 500.
*/

//nolint:staticcheck // File documentation, not package doc
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/runatlas/internal/geocode"
	"github.com/tomtom215/runatlas/internal/models"
	"github.com/tomtom215/runatlas/internal/runsync"
	"github.com/tomtom215/runatlas/internal/validation"
)

// runSyncer is the slice of the merge engine the handlers use.
type runSyncer interface {
	Sync(ctx context.Context) (runsync.Result, error)
	Runs(ctx context.Context) (models.SyncState, error)
	SetCredential(ctx context.Context, cred models.Credential) error
	HasCredential(ctx context.Context) bool
}

// locationResolver is the slice of the geocode engine the handlers use.
type locationResolver interface {
	Resolve(ctx context.Context, coords []geocode.Coord) (map[string]models.GeoEntry, error)
}

// codeExchanger turns an OAuth authorization code into a credential.
type codeExchanger interface {
	ExchangeCode(ctx context.Context, code string) (models.Credential, error)
}

// Handler holds the wired engines behind the HTTP surface.
type Handler struct {
	syncer    runSyncer
	resolver  locationResolver
	exchanger codeExchanger
	cached    bool
	startTime time.Time
}

// NewHandler creates the API handler. cached reports whether a
// persistent store backs the engines, surfaced on /health.
func NewHandler(syncer runSyncer, resolver locationResolver, exchanger codeExchanger, cached bool) *Handler {
	return &Handler{
		syncer:    syncer,
		resolver:  resolver,
		exchanger: exchanger,
		cached:    cached,
		startTime: time.Now(),
	}
}

// Health reports liveness, uptime and whether the cache store is
// enabled.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	respondData(w, map[string]interface{}{
		"status":         "healthy",
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
		"cache_enabled":  h.cached,
	}, started)
}

// AuthStatus reports whether a Strava credential is available. Tokens
// themselves never leave the server.
func (h *Handler) AuthStatus(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	respondData(w, map[string]interface{}{
		"authenticated": h.syncer.HasCredential(r.Context()),
	}, started)
}

// AuthCallback completes the OAuth flow: exchanges the authorization
// code and installs the resulting credential.
func (h *Handler) AuthCallback(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	code := r.URL.Query().Get("code")
	if code == "" {
		respondError(w, http.StatusBadRequest, "MISSING_CODE", "authorization code is required", nil)
		return
	}

	cred, err := h.exchanger.ExchangeCode(r.Context(), code)
	if err != nil {
		respondError(w, http.StatusBadGateway, "EXCHANGE_FAILED", "authorization code exchange failed", err)
		return
	}
	if err := h.syncer.SetCredential(r.Context(), cred); err != nil {
		respondError(w, http.StatusInternalServerError, "CREDENTIAL_STORE_FAILED", "failed to store credential", err)
		return
	}

	respondData(w, map[string]interface{}{"authenticated": true}, started)
}

// runsResponse is the payload for GET /runs.
type runsResponse struct {
	Runs      []models.RunRecord `json:"runs"`
	Watermark int64              `json:"watermark"`
	Sync      runsync.Result     `json:"sync"`
}

// Runs syncs with Strava and returns the merged run list, oldest date
// first.
func (h *Handler) Runs(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	result, err := h.syncer.Sync(r.Context())
	if err != nil {
		h.respondSyncError(w, err)
		return
	}

	state, err := h.syncer.Runs(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STATE_READ_FAILED", "failed to read run cache", err)
		return
	}

	runs := state.Runs
	if runs == nil {
		runs = []models.RunRecord{}
	}
	respondData(w, runsResponse{Runs: runs, Watermark: state.Watermark, Sync: result}, started)
}

// Locations resolves the start coordinates of every cached run to
// city/country entries, keyed by coordinate grid cell.
func (h *Handler) Locations(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	state, err := h.syncer.Runs(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STATE_READ_FAILED", "failed to read run cache", err)
		return
	}

	coords := make([]geocode.Coord, 0, len(state.Runs))
	for _, run := range state.Runs {
		if len(run.StartLatLng) == 2 {
			coords = append(coords, geocode.Coord{Lat: run.StartLatLng[0], Lon: run.StartLatLng[1]})
		}
	}

	locations, err := h.resolver.Resolve(r.Context(), coords)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "GEOCODE_FAILED", "failed to resolve locations", err)
		return
	}

	respondData(w, map[string]interface{}{"locations": locations}, started)
}

// geocodeRequest is the POST /geocode body: explicit coordinates to
// resolve, for map views not tied to cached runs.
type geocodeRequest struct {
	Coords []geocodeCoord `json:"coords" validate:"required,min=1,max=100,dive"`
}

type geocodeCoord struct {
	Lat float64 `json:"lat" validate:"latitude"`
	Lon float64 `json:"lon" validate:"longitude"`
}

// Geocode resolves an explicit batch of coordinates.
func (h *Handler) Geocode(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	var req geocodeRequest
	if err := decodeJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON", err)
		return
	}
	if verr := validation.Struct(&req); verr != nil {
		respondValidationError(w, verr)
		return
	}

	coords := make([]geocode.Coord, len(req.Coords))
	for i, c := range req.Coords {
		coords[i] = geocode.Coord{Lat: c.Lat, Lon: c.Lon}
	}

	locations, err := h.resolver.Resolve(r.Context(), coords)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "GEOCODE_FAILED", "failed to resolve locations", err)
		return
	}

	respondData(w, map[string]interface{}{"locations": locations}, started)
}

func (h *Handler) respondSyncError(w http.ResponseWriter, err error) {
	switch {
	case runsync.IsAuthError(err):
		respondError(w, http.StatusUnauthorized, "AUTH_FAILED", "Strava authorization is invalid or expired", err)
	default:
		respondError(w, http.StatusBadGateway, "SYNC_FAILED", "failed to sync with Strava", err)
	}
}
