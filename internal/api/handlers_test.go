// Run Atlas - Running Activity Sync and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/runatlas

package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/runatlas/internal/config"
	"github.com/tomtom215/runatlas/internal/geocode"
	"github.com/tomtom215/runatlas/internal/models"
	"github.com/tomtom215/runatlas/internal/runsync"
	"github.com/tomtom215/runatlas/internal/strava"
)

type fakeSyncer struct {
	state      models.SyncState
	result     runsync.Result
	syncErr    error
	syncCalls  int
	cred       models.Credential
	hasCred    bool
	setCredErr error
}

func (f *fakeSyncer) Sync(_ context.Context) (runsync.Result, error) {
	f.syncCalls++
	return f.result, f.syncErr
}

func (f *fakeSyncer) Runs(_ context.Context) (models.SyncState, error) {
	return f.state, nil
}

func (f *fakeSyncer) SetCredential(_ context.Context, cred models.Credential) error {
	f.cred = cred
	return f.setCredErr
}

func (f *fakeSyncer) HasCredential(_ context.Context) bool { return f.hasCred }

type fakeResolver struct {
	seen []geocode.Coord
	err  error
}

func (f *fakeResolver) Resolve(_ context.Context, coords []geocode.Coord) (map[string]models.GeoEntry, error) {
	f.seen = coords
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]models.GeoEntry, len(coords))
	city := "Testville"
	for _, c := range coords {
		out[c.Key()] = models.GeoEntry{City: &city}
	}
	return out, nil
}

type fakeExchanger struct {
	cred models.Credential
	err  error
	code string
}

func (f *fakeExchanger) ExchangeCode(_ context.Context, code string) (models.Credential, error) {
	f.code = code
	return f.cred, f.err
}

func testSecurity() config.SecurityConfig {
	return config.SecurityConfig{
		CORSOrigins:       []string{"*"},
		RateLimitDisabled: true,
	}
}

func newTestRouter(syncer *fakeSyncer, resolver *fakeResolver, exchanger *fakeExchanger) http.Handler {
	return NewRouter(NewHandler(syncer, resolver, exchanger, true), testSecurity())
}

func doRequest(t *testing.T, router http.Handler, method, path, body string) (*httptest.ResponseRecorder, models.APIResponse) {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var envelope models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope for %s %s: %v (body %q)", method, path, err, rec.Body.String())
	}
	return rec, envelope
}

func TestHealth(t *testing.T) {
	router := newTestRouter(&fakeSyncer{}, &fakeResolver{}, &fakeExchanger{})

	rec, envelope := doRequest(t, router, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if envelope.Status != "success" {
		t.Errorf("envelope status = %q", envelope.Status)
	}
	if rec.Header().Get("ETag") == "" {
		t.Error("missing ETag header")
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestRunsSyncsAndReturnsList(t *testing.T) {
	syncer := &fakeSyncer{
		state: models.SyncState{
			Runs: []models.RunRecord{
				{ID: 1, Name: "Morning Run", Date: "2024-03-10", Timestamp: 1710054000, DistanceMiles: 6.21},
			},
			Watermark: 1710054000,
		},
		result: runsync.Result{Mode: runsync.ModeIncremental, NewRuns: 1, TotalRuns: 1, Watermark: 1710054000},
	}
	router := newTestRouter(syncer, &fakeResolver{}, &fakeExchanger{})

	rec, envelope := doRequest(t, router, http.MethodGet, "/api/v1/runs", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if syncer.syncCalls != 1 {
		t.Errorf("sync called %d times, want 1", syncer.syncCalls)
	}

	payload, err := json.Marshal(envelope.Data)
	if err != nil {
		t.Fatalf("remarshal data: %v", err)
	}
	var resp runsResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		t.Fatalf("decode runs payload: %v", err)
	}
	if len(resp.Runs) != 1 || resp.Runs[0].Name != "Morning Run" {
		t.Errorf("runs = %+v", resp.Runs)
	}
	if resp.Watermark != 1710054000 {
		t.Errorf("watermark = %d", resp.Watermark)
	}
	if resp.Sync.NewRuns != 1 {
		t.Errorf("sync result = %+v", resp.Sync)
	}
}

func TestRunsEmptyListNotNull(t *testing.T) {
	router := newTestRouter(&fakeSyncer{}, &fakeResolver{}, &fakeExchanger{})

	rec, _ := doRequest(t, router, http.MethodGet, "/api/v1/runs", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"runs":[]`) {
		t.Errorf("empty run list should serialize as [], body = %s", rec.Body.String())
	}
}

func TestRunsAuthFailureMapsTo401(t *testing.T) {
	syncer := &fakeSyncer{syncErr: fmt.Errorf("%w: invalid_grant", strava.ErrAuthRefreshFailed)}
	router := newTestRouter(syncer, &fakeResolver{}, &fakeExchanger{})

	rec, envelope := doRequest(t, router, http.MethodGet, "/api/v1/runs", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if envelope.Error == nil || envelope.Error.Code != "AUTH_FAILED" {
		t.Errorf("error = %+v", envelope.Error)
	}
}

func TestRunsFetchFailureMapsTo502(t *testing.T) {
	syncer := &fakeSyncer{syncErr: fmt.Errorf("%w: page 3: boom", strava.ErrFetchFailed)}
	router := newTestRouter(syncer, &fakeResolver{}, &fakeExchanger{})

	rec, envelope := doRequest(t, router, http.MethodGet, "/api/v1/runs", "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if envelope.Error == nil || envelope.Error.Code != "SYNC_FAILED" {
		t.Errorf("error = %+v", envelope.Error)
	}
}

func TestLocationsResolvesRunCoords(t *testing.T) {
	syncer := &fakeSyncer{
		state: models.SyncState{Runs: []models.RunRecord{
			{ID: 1, StartLatLng: []float64{51.5074, -0.1278}},
			{ID: 2}, // treadmill run, no coordinates
			{ID: 3, StartLatLng: []float64{48.8566, 2.3522}},
		}},
	}
	resolver := &fakeResolver{}
	router := newTestRouter(syncer, resolver, &fakeExchanger{})

	rec, _ := doRequest(t, router, http.MethodGet, "/api/v1/locations", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(resolver.seen) != 2 {
		t.Errorf("resolved %d coords, want 2 (no-coordinate runs skipped)", len(resolver.seen))
	}
}

func TestGeocodeBatch(t *testing.T) {
	resolver := &fakeResolver{}
	router := newTestRouter(&fakeSyncer{}, resolver, &fakeExchanger{})

	body := `{"coords":[{"lat":51.5074,"lon":-0.1278}]}`
	rec, envelope := doRequest(t, router, http.MethodPost, "/api/v1/geocode", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if envelope.Status != "success" {
		t.Errorf("status = %q", envelope.Status)
	}
	if len(resolver.seen) != 1 {
		t.Errorf("resolved %d coords, want 1", len(resolver.seen))
	}
}

func TestGeocodeValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		code string
	}{
		{"malformed json", `{"coords":`, "INVALID_BODY"},
		{"unknown field", `{"coordinates":[]}`, "INVALID_BODY"},
		{"empty coords", `{"coords":[]}`, "VALIDATION_ERROR"},
		{"latitude out of range", `{"coords":[{"lat":91,"lon":0}]}`, "VALIDATION_ERROR"},
		{"longitude out of range", `{"coords":[{"lat":0,"lon":181}]}`, "VALIDATION_ERROR"},
	}

	router := newTestRouter(&fakeSyncer{}, &fakeResolver{}, &fakeExchanger{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, envelope := doRequest(t, router, http.MethodPost, "/api/v1/geocode", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if envelope.Error == nil || envelope.Error.Code != tt.code {
				t.Errorf("error = %+v, want code %s", envelope.Error, tt.code)
			}
		})
	}
}

func TestAuthStatus(t *testing.T) {
	router := newTestRouter(&fakeSyncer{hasCred: true}, &fakeResolver{}, &fakeExchanger{})

	rec, _ := doRequest(t, router, http.MethodGet, "/api/v1/auth/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"authenticated":true`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestAuthCallback(t *testing.T) {
	t.Run("installs credential", func(t *testing.T) {
		syncer := &fakeSyncer{}
		exchanger := &fakeExchanger{cred: models.Credential{
			AccessToken:  "access",
			RefreshToken: "refresh",
			ExpiresAt:    time.Now().Add(6 * time.Hour).Unix(),
		}}
		router := newTestRouter(syncer, &fakeResolver{}, exchanger)

		rec, _ := doRequest(t, router, http.MethodGet, "/api/v1/auth/callback?code=abc123", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}
		if exchanger.code != "abc123" {
			t.Errorf("exchanged code = %q", exchanger.code)
		}
		if syncer.cred.AccessToken != "access" {
			t.Errorf("stored credential = %+v", syncer.cred)
		}
	})

	t.Run("missing code", func(t *testing.T) {
		router := newTestRouter(&fakeSyncer{}, &fakeResolver{}, &fakeExchanger{})
		rec, envelope := doRequest(t, router, http.MethodGet, "/api/v1/auth/callback", "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
		if envelope.Error == nil || envelope.Error.Code != "MISSING_CODE" {
			t.Errorf("error = %+v", envelope.Error)
		}
	})

	t.Run("rejected code", func(t *testing.T) {
		exchanger := &fakeExchanger{err: fmt.Errorf("%w: bad code", strava.ErrAuthRefreshFailed)}
		router := newTestRouter(&fakeSyncer{}, &fakeResolver{}, exchanger)
		rec, _ := doRequest(t, router, http.MethodGet, "/api/v1/auth/callback?code=bad", "")
		if rec.Code != http.StatusBadGateway {
			t.Fatalf("status = %d, want 502", rec.Code)
		}
	})
}

func TestUnknownRoute(t *testing.T) {
	router := newTestRouter(&fakeSyncer{}, &fakeResolver{}, &fakeExchanger{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
