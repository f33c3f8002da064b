// Run Atlas - Running Activity Sync and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/runatlas

package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tomtom215/runatlas/internal/config"
)

func newTestNominatim(baseURL string) *NominatimClient {
	return NewNominatimClient(config.GeocodeConfig{
		BaseURL:         baseURL,
		UserAgent:       "runatlas-test/1.0",
		Timeout:         5 * time.Second,
		BreakerFailures: 3,
	})
}

func TestReverseResolvesCityAndCountry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "runatlas-test/1.0" {
			t.Errorf("User-Agent = %q", got)
		}
		q := r.URL.Query()
		if q.Get("format") != "jsonv2" || q.Get("addressdetails") != "1" {
			t.Errorf("unexpected query: %v", q)
		}
		if q.Get("lat") != "51.5074" || q.Get("lon") != "-0.1278" {
			t.Errorf("coords = %s,%s", q.Get("lat"), q.Get("lon"))
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(`{"address":{"city":"London","country":"United Kingdom"}}`)); err != nil {
			t.Errorf("write: %v", err)
		}
	}))
	defer server.Close()

	entry, err := newTestNominatim(server.URL).Reverse(context.Background(), 51.5074, -0.1278)
	if err != nil {
		t.Fatalf("Reverse: %v", err)
	}
	if entry.City == nil || *entry.City != "London" {
		t.Errorf("City = %v", entry.City)
	}
	if entry.Country == nil || *entry.Country != "United Kingdom" {
		t.Errorf("Country = %v", entry.Country)
	}
}

func TestReverseCityFallbackChain(t *testing.T) {
	tests := []struct {
		name    string
		address string
		want    string
	}{
		{"city wins", `{"city":"Leeds","town":"Morley","country":"UK"}`, "Leeds"},
		{"town", `{"town":"Morley","village":"X","country":"UK"}`, "Morley"},
		{"village", `{"village":"Grasmere","country":"UK"}`, "Grasmere"},
		{"hamlet", `{"hamlet":"Troutbeck","country":"UK"}`, "Troutbeck"},
		{"suburb", `{"suburb":"Headingley","country":"UK"}`, "Headingley"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				if _, err := w.Write([]byte(`{"address":` + tt.address + `}`)); err != nil {
					t.Errorf("write: %v", err)
				}
			}))
			defer server.Close()

			entry, err := newTestNominatim(server.URL).Reverse(context.Background(), 54, -3)
			if err != nil {
				t.Fatalf("Reverse: %v", err)
			}
			if entry.City == nil || *entry.City != tt.want {
				t.Errorf("City = %v, want %q", entry.City, tt.want)
			}
		})
	}
}

func TestReverseEmptyAddress(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(`{"address":{}}`)); err != nil {
			t.Errorf("write: %v", err)
		}
	}))
	defer server.Close()

	entry, err := newTestNominatim(server.URL).Reverse(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("Reverse: %v", err)
	}
	if entry.City != nil || entry.Country != nil {
		t.Errorf("entry = %+v, want both nil", entry)
	}
}

func TestReverseFailureOpensBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestNominatim(server.URL)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := client.Reverse(ctx, 1, 1); err == nil {
			t.Fatalf("lookup %d should fail", i)
		}
	}

	// Fourth call must trip on the open breaker without hitting upstream.
	server.Close()
	if _, err := client.Reverse(ctx, 1, 1); err == nil {
		t.Error("expected open breaker to reject lookup")
	}
}
