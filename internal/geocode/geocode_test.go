package geocode

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGeocode_PicksHighestScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "12 rue des Lilas 33000 Bordeaux" {
			t.Errorf("unexpected query %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"features": [
				{"geometry": {"coordinates": [-0.58, 44.84]}, "properties": {"score": 0.52, "label": "Rue des Lilas"}},
				{"geometry": {"coordinates": [-0.5792, 44.8412]}, "properties": {"score": 0.97, "label": "12 Rue des Lilas 33000 Bordeaux"}},
				{"geometry": {"coordinates": [2.35, 48.85]}, "properties": {"score": 0.31, "label": "Rue des Lilas Paris"}}
			]
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	coords, err := c.Geocode(context.Background(), "12 rue des Lilas 33000 Bordeaux")
	if err != nil {
		t.Fatalf("Geocode failed: %v", err)
	}

	// GeoJSON order is [lon, lat]; make sure we did not swap them.
	if coords.Lat != 44.8412 || coords.Lng != -0.5792 {
		t.Errorf("got (%f, %f), want (44.8412, -0.5792)", coords.Lat, coords.Lng)
	}
}

func TestGeocode_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"features": []}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.Geocode(context.Background(), "nowhere at all")
	if !errors.Is(err, ErrNoMatch) {
		t.Errorf("expected ErrNoMatch, got %v", err)
	}
}

func TestGeocode_SkipsMalformedFeatures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"features": [
				{"geometry": {"coordinates": []}, "properties": {"score": 0.99}},
				{"geometry": {"coordinates": [5.72, 45.18]}, "properties": {"score": 0.4}}
			]
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	coords, err := c.Geocode(context.Background(), "Grenoble")
	if err != nil {
		t.Fatalf("Geocode failed: %v", err)
	}
	if coords.Lat != 45.18 || coords.Lng != 5.72 {
		t.Errorf("got (%f, %f), want valid fallback feature", coords.Lat, coords.Lng)
	}
}

func TestGeocode_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if _, err := c.Geocode(context.Background(), "Lyon"); err == nil {
		t.Fatal("expected error on 502 response")
	}
}
