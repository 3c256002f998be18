package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/greg-easycraft/linkinvests-sourcing/internal/models"
)

// ListingService pulls published notary listings from the notaires search API
// and stores them as listing opportunities.
type ListingService struct {
	cfg     SourceConfig
	client  *http.Client
	repo    ListingRepository
	geo     Geocoder
	refresh RefreshScheduler
}

func NewListingService(cfg SourceConfig, repo ListingRepository, geo Geocoder, refresh RefreshScheduler) *ListingService {
	timeout := 30 * time.Second
	if cfg.Fetch.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second
	}
	return &ListingService{
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
		repo:    repo,
		geo:     geo,
		refresh: refresh,
	}
}

// listingPage mirrors the notaires search API response.
type listingPage struct {
	Total    int             `json:"total"`
	Annonces []listingRecord `json:"annonces"`
}

type listingRecord struct {
	ID          string   `json:"id"`
	Titre       string   `json:"titre"`
	Description string   `json:"description"`
	Adresse     string   `json:"adresse"`
	CodePostal  string   `json:"codePostal"`
	Ville       string   `json:"ville"`
	Prix        *float64 `json:"prix"`
	TypeBien    string   `json:"typeBien"`
	Surface     *float64 `json:"surface"`
	NbPieces    *int     `json:"nbPieces"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	Publication string   `json:"datePublication"`
	Photos      []string `json:"photos"`
	Office      struct {
		Nom       string `json:"nom"`
		Telephone string `json:"telephone"`
		Email     string `json:"email"`
		Adresse   string `json:"adresse"`
	} `json:"office"`
}

// Scrape pages through the department's listings until a short page signals
// the end, then geocodes and inserts the new ones.
func (s *ListingService) Scrape(ctx context.Context, params ListingJobParams) (ScrapeStats, error) {
	var stats ScrapeStats

	if params.DepartmentID <= 0 {
		return stats, fmt.Errorf("listing job requires a departmentId, got %d", params.DepartmentID)
	}

	ids, err := s.repo.GetAllExternalIDs(ctx)
	if err != nil {
		return stats, fmt.Errorf("loading known listing ids: %w", err)
	}
	existing := newExistingIDSet(ids)

	pageSize := s.cfg.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	maxPages := s.cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 40
	}

	var recs []models.ListingOpportunity
	for page := 1; page <= maxPages; page++ {
		batch, err := s.fetchPage(ctx, params.DepartmentID, page, pageSize)
		if err != nil {
			if page == 1 {
				return stats, fmt.Errorf("fetching listings page 1: %w", err)
			}
			log.Printf("[listings] page %d failed, keeping %d records collected so far: %v", page, len(recs), err)
			break
		}

		stats.Found += len(batch)
		for _, rec := range batch {
			opp := listingFromRecord(rec, params.DepartmentID)
			if existing.has(opp.ExternalID) {
				continue
			}
			existing[opp.ExternalID] = struct{}{}
			recs = append(recs, opp)
		}

		if len(batch) < pageSize {
			break
		}
	}

	stats.New = len(recs)
	if len(recs) == 0 {
		log.Printf("[listings] department %d: no new listings: %s", params.DepartmentID, stats)
		return stats, nil
	}

	for i := range recs {
		rec := &recs[i]
		if len(rec.PhotoURLs) > 0 {
			stats.WithMedia++
		}
		if models.HasCoordinates(rec.Lat, rec.Lng) {
			continue
		}
		coords, err := s.geo.Geocode(ctx, strings.TrimSpace(fmt.Sprintf("%s %s %s", rec.Address, rec.ZipCode, rec.City)))
		if err != nil {
			stats.GeocodeFailed++
			continue
		}
		rec.Lat, rec.Lng = coords.PointTo()
		stats.Geocoded++
	}

	inserted, err := s.repo.InsertOpportunities(ctx, recs, 0)
	stats.Inserted = inserted
	if err != nil {
		return stats, fmt.Errorf("inserting listing opportunities: %w", err)
	}

	if inserted > 0 {
		if err := s.refresh.Schedule(ctx); err != nil {
			log.Printf("[listings] scheduling map refresh: %v", err)
		}
	}

	log.Printf("[listings] department %d scrape complete: %s", params.DepartmentID, stats)
	return stats, nil
}

func (s *ListingService) fetchPage(ctx context.Context, department, page, pageSize int) ([]listingRecord, error) {
	q := url.Values{}
	q.Set("departement", fmt.Sprintf("%02d", department))
	q.Set("page", fmt.Sprint(page))
	q.Set("parPage", fmt.Sprint(pageSize))

	reqURL := fmt.Sprintf("%s/annonces?%s", strings.TrimRight(s.cfg.BaseURL, "/"), q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("listings API returned %d: %s", resp.StatusCode, snippet)
	}

	var pageResp listingPage
	if err := json.NewDecoder(resp.Body).Decode(&pageResp); err != nil {
		return nil, fmt.Errorf("decoding listings page: %w", err)
	}
	return pageResp.Annonces, nil
}

// listingFromRecord maps an API record to the stored opportunity shape.
func listingFromRecord(rec listingRecord, department int) models.ListingOpportunity {
	opp := models.ListingOpportunity{
		ExternalID:   "notaires-" + rec.ID,
		Label:        normalizeSpace(rec.Titre),
		Description:  cleanText(rec.Description),
		Address:      normalizeSpace(rec.Adresse),
		City:         normalizeSpace(rec.Ville),
		ZipCode:      strings.TrimSpace(rec.CodePostal),
		Department:   department,
		Price:        rec.Prix,
		PropertyType: normalizeSpace(rec.TypeBien),
		SurfaceArea:  rec.Surface,
		Rooms:        rec.NbPieces,
		Lat:          rec.Latitude,
		Lng:          rec.Longitude,
		PhotoURLs:    rec.Photos,
	}

	if opp.Department == 0 {
		opp.Department = departmentFromZip(opp.ZipCode)
	}
	if t, err := time.Parse(time.RFC3339, rec.Publication); err == nil {
		opp.PublishedAt = t
	}
	if rec.Office.Nom != "" {
		opp.Contact = &models.Contact{
			Name:    normalizeSpace(rec.Office.Nom),
			Phone:   strings.TrimSpace(rec.Office.Telephone),
			Email:   strings.TrimSpace(rec.Office.Email),
			Address: normalizeSpace(rec.Office.Adresse),
		}
	}
	return opp
}
