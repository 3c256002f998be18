package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/greg-easycraft/linkinvests-sourcing/internal/models"
)

type fakeListingRepo struct {
	known       []string
	inserted    []models.ListingOpportunity
	insertCalls int
}

func (f *fakeListingRepo) InsertOpportunities(ctx context.Context, recs []models.ListingOpportunity, batchSize int) (int, error) {
	f.insertCalls++
	f.inserted = append(f.inserted, recs...)
	return len(recs), nil
}

func (f *fakeListingRepo) GetAllExternalIDs(ctx context.Context) ([]string, error) {
	return f.known, nil
}

func listingJSON(id string, withCoords bool) string {
	coords := `"latitude":null,"longitude":null`
	if withCoords {
		coords = `"latitude":44.84,"longitude":-0.58`
	}
	return fmt.Sprintf(`{
		"id":%q,
		"titre":"Maison  de ville",
		"description":"Belle maison",
		"adresse":"3 place Pey Berland",
		"codePostal":"33000",
		"ville":"Bordeaux",
		"prix":320000,
		"typeBien":"Maison",
		"surface":120.5,
		"nbPieces":5,
		%s,
		"datePublication":"2026-08-20T09:30:00Z",
		"photos":["https://cdn.notaires.fr/%s.jpg"],
		"office":{"nom":"Office Dupont","telephone":"0556000000","email":"contact@dupont.notaires.fr","adresse":"1 cours de l'Intendance, 33000 Bordeaux"}
	}`, id, coords, id)
}

func TestListingScrape_PaginatesUntilShortPage(t *testing.T) {
	var pagesServed []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		pagesServed = append(pagesServed, page)
		if r.URL.Query().Get("departement") != "33" {
			t.Errorf("unexpected departement %q", r.URL.Query().Get("departement"))
		}
		w.Header().Set("Content-Type", "application/json")
		switch page {
		case "1":
			fmt.Fprintf(w, `{"total":3,"annonces":[%s,%s]}`, listingJSON("a1", true), listingJSON("a2", false))
		default:
			fmt.Fprintf(w, `{"total":3,"annonces":[%s]}`, listingJSON("a3", false))
		}
	}))
	defer srv.Close()

	repo := &fakeListingRepo{known: []string{"notaires-a2"}}
	geo := &stubGeocoder{coords: models.Coordinates{Lat: 44.8, Lng: -0.6}}
	refresh := &stubRefresh{}

	svc := NewListingService(SourceConfig{BaseURL: srv.URL, PageSize: 2, MaxPages: 10}, repo, geo, refresh)

	stats, err := svc.Scrape(context.Background(), ListingJobParams{DepartmentID: 33})
	if err != nil {
		t.Fatalf("Scrape failed: %v", err)
	}

	// Page 2 is short, so page 3 is never requested.
	if len(pagesServed) != 2 {
		t.Errorf("pages requested = %v, want 2 pages", pagesServed)
	}
	if stats.Found != 3 || stats.New != 2 || stats.Inserted != 2 {
		t.Errorf("stats = %s, want found=3 new=2 inserted=2", stats)
	}

	byID := map[string]models.ListingOpportunity{}
	for _, rec := range repo.inserted {
		byID[rec.ExternalID] = rec
	}

	a1, ok := byID["notaires-a1"]
	if !ok {
		t.Fatalf("a1 missing from inserts: %v", repo.inserted)
	}
	if a1.Lat == nil || *a1.Lat != 44.84 {
		t.Errorf("a1 should keep API coordinates, got %v", a1.Lat)
	}
	if a1.Label != "Maison de ville" {
		t.Errorf("label not normalized: %q", a1.Label)
	}
	if a1.Contact == nil || a1.Contact.Name != "Office Dupont" {
		t.Errorf("contact not mapped: %+v", a1.Contact)
	}
	if a1.PublishedAt.IsZero() {
		t.Error("publication date not parsed")
	}

	a3 := byID["notaires-a3"]
	if a3.Lat == nil || *a3.Lat != 44.8 {
		t.Errorf("a3 should be geocoded, got %v", a3.Lat)
	}
	if len(geo.calls) != 1 {
		t.Errorf("geocoder called %d times, want 1 (a1 has coords, a2 already known)", len(geo.calls))
	}
	if refresh.scheduled != 1 {
		t.Errorf("refresh scheduled %d times, want 1", refresh.scheduled)
	}
}

func TestListingScrape_AllListingsKnownSkipsInsert(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"total":1,"annonces":[%s]}`, listingJSON("c1", false))
	}))
	defer srv.Close()

	repo := &fakeListingRepo{known: []string{"notaires-c1"}}
	geo := &stubGeocoder{}
	refresh := &stubRefresh{}

	svc := NewListingService(SourceConfig{BaseURL: srv.URL, PageSize: 2, MaxPages: 5}, repo, geo, refresh)

	stats, err := svc.Scrape(context.Background(), ListingJobParams{DepartmentID: 33})
	if err != nil {
		t.Fatalf("Scrape failed: %v", err)
	}
	if stats.Found != 1 || stats.New != 0 {
		t.Errorf("stats = %s, want found=1 new=0", stats)
	}
	if repo.insertCalls != 0 {
		t.Errorf("insert called %d times for zero new listings, want 0", repo.insertCalls)
	}
	if len(geo.calls) != 0 {
		t.Errorf("geocoder called %d times for zero new listings, want 0", len(geo.calls))
	}
	if refresh.scheduled != 0 {
		t.Errorf("refresh scheduled %d times for zero new listings, want 0", refresh.scheduled)
	}
}

func TestListingScrape_FirstPageFailureIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	svc := NewListingService(SourceConfig{BaseURL: srv.URL}, &fakeListingRepo{}, &stubGeocoder{}, &stubRefresh{})

	if _, err := svc.Scrape(context.Background(), ListingJobParams{DepartmentID: 33}); err == nil {
		t.Fatal("expected error when page 1 fails")
	}
}

func TestListingScrape_LaterPageFailureKeepsEarlierRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page > 1 {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"total":4,"annonces":[%s,%s]}`, listingJSON("b1", true), listingJSON("b2", true))
	}))
	defer srv.Close()

	repo := &fakeListingRepo{}
	svc := NewListingService(SourceConfig{BaseURL: srv.URL, PageSize: 2, MaxPages: 5}, repo, &stubGeocoder{}, &stubRefresh{})

	stats, err := svc.Scrape(context.Background(), ListingJobParams{DepartmentID: 33})
	if err != nil {
		t.Fatalf("later page failure should not abort the scrape: %v", err)
	}
	if stats.Inserted != 2 || len(repo.inserted) != 2 {
		t.Errorf("expected page-1 records to be inserted, got %d", len(repo.inserted))
	}
}

func TestListingScrape_RequiresDepartment(t *testing.T) {
	svc := NewListingService(SourceConfig{BaseURL: "http://unused"}, &fakeListingRepo{}, &stubGeocoder{}, &stubRefresh{})
	if _, err := svc.Scrape(context.Background(), ListingJobParams{}); err == nil {
		t.Fatal("expected error for missing departmentId")
	}
}

func TestListingFromRecord_FallbackDepartment(t *testing.T) {
	rec := listingRecord{ID: "x1", Titre: "Studio", CodePostal: "75011"}
	opp := listingFromRecord(rec, 0)
	if opp.Department != 75 {
		t.Errorf("Department = %d, want 75 from zip", opp.Department)
	}
	if opp.Contact != nil {
		t.Error("empty office must not produce a contact")
	}
}
