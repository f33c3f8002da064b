// Run Atlas - Running Activity Sync and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/runatlas

package validation

import (
	"strings"
	"testing"
)

type coordRequest struct {
	Lat float64 `validate:"latitude"`
	Lon float64 `validate:"longitude"`
}

type batchRequest struct {
	Coords []coordRequest `validate:"required,min=1,max=100,dive"`
}

func TestStructValid(t *testing.T) {
	req := batchRequest{Coords: []coordRequest{{Lat: 51.5, Lon: -0.12}}}
	if err := Struct(&req); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
}

func TestStructLatitudeOutOfRange(t *testing.T) {
	req := batchRequest{Coords: []coordRequest{{Lat: 91, Lon: 0}}}
	err := Struct(&req)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "latitude") {
		t.Errorf("message = %q, want latitude mention", err.Error())
	}
	fields := err.Fields()
	if len(fields) != 1 || fields[0].Tag != "latitude" {
		t.Errorf("fields = %+v", fields)
	}
}

func TestStructEmptyBatch(t *testing.T) {
	req := batchRequest{}
	err := Struct(&req)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "required") && !strings.Contains(err.Error(), "Coords") {
		t.Errorf("message = %q", err.Error())
	}
}

func TestStructMultipleFailures(t *testing.T) {
	req := batchRequest{Coords: []coordRequest{{Lat: 91, Lon: 181}}}
	err := Struct(&req)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if len(err.Fields()) != 2 {
		t.Errorf("got %d field errors, want 2", len(err.Fields()))
	}

	details := err.Details()
	fields, ok := details["fields"].([]map[string]interface{})
	if !ok || len(fields) != 2 {
		t.Errorf("details = %+v", details)
	}
}

func TestValidatorSingleton(t *testing.T) {
	if Validator() != Validator() {
		t.Error("Validator() should return the same instance")
	}
}
