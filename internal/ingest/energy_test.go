package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/greg-easycraft/linkinvests-sourcing/internal/models"
)

type fakeEnergyRepo struct {
	known       []string
	inserted    []models.EnergyOpportunity
	insertCalls int
}

func (f *fakeEnergyRepo) InsertOpportunities(ctx context.Context, recs []models.EnergyOpportunity, batchSize int) (int, error) {
	f.insertCalls++
	f.inserted = append(f.inserted, recs...)
	return len(recs), nil
}

func (f *fakeEnergyRepo) GetAllExternalIDs(ctx context.Context) ([]string, error) {
	return f.known, nil
}

func dpeJSON(num, label, geopoint string) string {
	return fmt.Sprintf(`{
		"numero_dpe":%q,
		"adresse_ban":"8 rue Sainte-Catherine",
		"code_postal_ban":"33000",
		"nom_commune_ban":"Bordeaux",
		"etiquette_dpe":%q,
		"etiquette_ges":"F",
		"surface_habitable_logement":48.2,
		"annee_construction":1962,
		"date_etablissement_dpe":"2026-06-12",
		"_geopoint":%q
	}`, num, label, geopoint)
}

func TestEnergyScrape_FollowsCursorAndFilters(t *testing.T) {
	var mux http.ServeMux
	srv := httptest.NewServer(&mux)
	defer srv.Close()

	mux.HandleFunc("/data-fair/api/v1/datasets/dpe-v2-logements-existants/lines", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"total":4,"next":%q,"results":[%s,%s,%s]}`,
			srv.URL+"/page2",
			dpeJSON("dpe-g-1", "G", "44.8378,-0.5792"),
			dpeJSON("dpe-c-1", "C", ""),
			dpeJSON("dpe-f-known", "F", ""))
	})
	mux.HandleFunc("/page2", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"total":4,"next":"","results":[%s]}`, dpeJSON("dpe-f-2", "F", ""))
	})

	repo := &fakeEnergyRepo{known: []string{"dpe-dpe-f-known"}}
	geo := &stubGeocoder{coords: models.Coordinates{Lat: 44.83, Lng: -0.57}}
	refresh := &stubRefresh{}

	svc := NewEnergyService(SourceConfig{BaseURL: srv.URL, PageSize: 3, MaxPages: 10}, repo, geo, refresh)

	stats, err := svc.Scrape(context.Background(), EnergyJobParams{DepartmentID: 33, SinceDate: "2026-01-01"})
	if err != nil {
		t.Fatalf("Scrape failed: %v", err)
	}

	// C-rated diagnostics are not opportunities; the known F is skipped.
	if stats.Found != 3 || stats.New != 2 {
		t.Errorf("stats = %s, want found=3 new=2", stats)
	}
	if len(repo.inserted) != 2 {
		t.Fatalf("inserted = %d, want 2", len(repo.inserted))
	}

	g1 := repo.inserted[0]
	if g1.ExternalID != "dpe-dpe-g-1" {
		t.Errorf("ExternalID = %q", g1.ExternalID)
	}
	if g1.Lat == nil || *g1.Lat != 44.8378 || g1.Lng == nil || *g1.Lng != -0.5792 {
		t.Errorf("_geopoint not parsed: lat=%v lng=%v", g1.Lat, g1.Lng)
	}
	if g1.EnergyClass != "G" || g1.GESClass != "F" {
		t.Errorf("labels not mapped: %+v", g1)
	}
	if g1.Department != 33 {
		t.Errorf("Department = %d, want 33", g1.Department)
	}
	if g1.DiagnosedAt.IsZero() {
		t.Error("diagnosis date not parsed")
	}

	f2 := repo.inserted[1]
	if f2.Lat == nil || *f2.Lat != 44.83 {
		t.Errorf("record without _geopoint should be geocoded, got %v", f2.Lat)
	}
	if len(geo.calls) != 1 {
		t.Errorf("geocoder called %d times, want 1", len(geo.calls))
	}
	if refresh.scheduled != 1 {
		t.Errorf("refresh scheduled %d times, want 1", refresh.scheduled)
	}
}

func TestEnergyScrape_NoTargetRatingsSkipsInsert(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"total":2,"next":"","results":[%s,%s]}`,
			dpeJSON("dpe-c-2", "C", ""),
			dpeJSON("dpe-d-1", "D", ""))
	}))
	defer srv.Close()

	repo := &fakeEnergyRepo{}
	geo := &stubGeocoder{}
	refresh := &stubRefresh{}

	svc := NewEnergyService(SourceConfig{BaseURL: srv.URL, PageSize: 10, MaxPages: 3}, repo, geo, refresh)

	stats, err := svc.Scrape(context.Background(), EnergyJobParams{DepartmentID: 33})
	if err != nil {
		t.Fatalf("Scrape failed: %v", err)
	}
	if stats.Found != 0 || stats.New != 0 {
		t.Errorf("stats = %s, want found=0 new=0", stats)
	}
	if repo.insertCalls != 0 {
		t.Errorf("insert called %d times for zero new diagnostics, want 0", repo.insertCalls)
	}
	if len(geo.calls) != 0 {
		t.Errorf("geocoder called %d times for zero new diagnostics, want 0", len(geo.calls))
	}
	if refresh.scheduled != 0 {
		t.Errorf("refresh scheduled %d times for zero new diagnostics, want 0", refresh.scheduled)
	}
}

func TestEnergyScrape_RequiresDepartment(t *testing.T) {
	svc := NewEnergyService(SourceConfig{BaseURL: "http://unused"}, &fakeEnergyRepo{}, &stubGeocoder{}, &stubRefresh{})
	if _, err := svc.Scrape(context.Background(), EnergyJobParams{}); err == nil {
		t.Fatal("expected error for missing departmentId")
	}
}

func TestParseGeoPoint(t *testing.T) {
	tests := []struct {
		in       string
		lat, lng float64
		ok       bool
	}{
		{"44.8378,-0.5792", 44.8378, -0.5792, true},
		{"44.8378, -0.5792", 44.8378, -0.5792, true},
		{"", 0, 0, false},
		{"44.8378", 0, 0, false},
		{"abc,def", 0, 0, false},
	}
	for _, tt := range tests {
		lat, lng, ok := parseGeoPoint(tt.in)
		if ok != tt.ok || lat != tt.lat || lng != tt.lng {
			t.Errorf("parseGeoPoint(%q) = (%v, %v, %v), want (%v, %v, %v)", tt.in, lat, lng, ok, tt.lat, tt.lng, tt.ok)
		}
	}
}

func TestEnergyFromRecord_MissingNumber(t *testing.T) {
	opp := energyFromRecord(energyRecord{EtiquetteDPE: "G"})
	if opp.ExternalID != "" {
		t.Errorf("record without numero_dpe must have empty id, got %q", opp.ExternalID)
	}
}
