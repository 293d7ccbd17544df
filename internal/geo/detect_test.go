package geo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDetectLocation_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := ipAPIResponse{
			Status:   "success",
			Lat:      30.0444,
			Lon:      31.2357,
			City:     "Cairo",
			Country:  "Egypt",
			Timezone: "Africa/Cairo",
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	// Override the package-level URL for testing.
	origURL := geoAPIURL
	geoAPIURL = server.URL
	defer func() { geoAPIURL = origURL }()

	loc, err := DetectLocation(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loc.Latitude != 30.0444 {
		t.Errorf("Latitude = %v, want %v", loc.Latitude, 30.0444)
	}
	if loc.Longitude != 31.2357 {
		t.Errorf("Longitude = %v, want %v", loc.Longitude, 31.2357)
	}
	if loc.City != "Cairo" {
		t.Errorf("City = %q, want %q", loc.City, "Cairo")
	}
	if loc.Country != "Egypt" {
		t.Errorf("Country = %q, want %q", loc.Country, "Egypt")
	}
	if loc.Timezone != "Africa/Cairo" {
		t.Errorf("Timezone = %q, want %q", loc.Timezone, "Africa/Cairo")
	}
}

func TestDetectLocation_APIFailureStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := ipAPIResponse{
			Status:  "fail",
			Message: "reserved range",
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	origURL := geoAPIURL
	geoAPIURL = server.URL
	defer func() { geoAPIURL = origURL }()

	_, err := DetectLocation(context.Background())
	if err == nil {
		t.Fatal("expected error for failed status, got nil")
	}
	if !strings.Contains(err.Error(), "reserved range") {
		t.Errorf("error should contain message, got: %v", err)
	}
}

func TestDetectLocation_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer server.Close()

	origURL := geoAPIURL
	geoAPIURL = server.URL
	defer func() { geoAPIURL = origURL }()

	_, err := DetectLocation(context.Background())
	if err == nil {
		t.Fatal("expected error for HTTP 500, got nil")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error should mention 500, got: %v", err)
	}
}

func TestDetectLocation_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("not json at all"))
	}))
	defer server.Close()

	origURL := geoAPIURL
	geoAPIURL = server.URL
	defer func() { geoAPIURL = origURL }()

	_, err := DetectLocation(context.Background())
	if err == nil {
		t.Fatal("expected error for invalid JSON, got nil")
	}
	if !strings.Contains(err.Error(), "decode") {
		t.Errorf("error should mention decode, got: %v", err)
	}
}

func TestDetectLocation_ConnectionRefused(t *testing.T) {
	origURL := geoAPIURL
	geoAPIURL = "http://127.0.0.1:1" // nothing listening
	defer func() { geoAPIURL = origURL }()

	_, err := DetectLocation(context.Background())
	if err == nil {
		t.Fatal("expected error for connection refused, got nil")
	}
}

func TestDetectLocation_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ipAPIResponse{Status: "success"})
	}))
	defer server.Close()

	origURL := geoAPIURL
	geoAPIURL = server.URL
	defer func() { geoAPIURL = origURL }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := DetectLocation(ctx); err == nil {
		t.Fatal("expected error for cancelled context, got nil")
	}
}
