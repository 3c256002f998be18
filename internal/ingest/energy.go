package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/greg-easycraft/linkinvests-sourcing/internal/models"
)

// EnergyService pulls poorly rated energy diagnostics (DPE) from the ADEME
// open-data API and stores them as energy opportunities.
type EnergyService struct {
	cfg     SourceConfig
	client  *http.Client
	repo    EnergyRepository
	geo     Geocoder
	refresh RefreshScheduler
}

func NewEnergyService(cfg SourceConfig, repo EnergyRepository, geo Geocoder, refresh RefreshScheduler) *EnergyService {
	timeout := 45 * time.Second
	if cfg.Fetch.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second
	}
	return &EnergyService{
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
		repo:    repo,
		geo:     geo,
		refresh: refresh,
	}
}

// Only the worst labels are sourcing signals (properties likely to sell at a
// discount under the rental ban on energy sieves).
var targetEnergyClasses = map[string]bool{"F": true, "G": true}

// energyPage mirrors the data-fair lines endpoint response.
type energyPage struct {
	Total   int            `json:"total"`
	Next    string         `json:"next"`
	Results []energyRecord `json:"results"`
}

type energyRecord struct {
	NumeroDPE         string   `json:"numero_dpe"`
	AdresseBAN        string   `json:"adresse_ban"`
	CodePostalBAN     string   `json:"code_postal_ban"`
	CommuneBAN        string   `json:"nom_commune_ban"`
	EtiquetteDPE      string   `json:"etiquette_dpe"`
	EtiquetteGES      string   `json:"etiquette_ges"`
	Surface           *float64 `json:"surface_habitable_logement"`
	AnneeConstr       *int     `json:"annee_construction"`
	DateEtablissement string   `json:"date_etablissement_dpe"`
	GeoPoint          string   `json:"_geopoint"` // "lat,lon"
}

// Scrape follows the cursor pagination for the department, keeps F/G rated
// diagnostics and inserts the new ones.
func (s *EnergyService) Scrape(ctx context.Context, params EnergyJobParams) (ScrapeStats, error) {
	var stats ScrapeStats

	if params.DepartmentID <= 0 {
		return stats, fmt.Errorf("energy job requires a departmentId, got %d", params.DepartmentID)
	}

	ids, err := s.repo.GetAllExternalIDs(ctx)
	if err != nil {
		return stats, fmt.Errorf("loading known energy ids: %w", err)
	}
	existing := newExistingIDSet(ids)

	maxPages := s.cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 30
	}

	var recs []models.EnergyOpportunity
	next := s.firstPageURL(params)
	for page := 1; page <= maxPages && next != ""; page++ {
		pageResp, err := s.fetchPage(ctx, next)
		if err != nil {
			if page == 1 {
				return stats, fmt.Errorf("fetching diagnostics page 1: %w", err)
			}
			log.Printf("[energy] page %d failed, keeping %d records collected so far: %v", page, len(recs), err)
			break
		}

		for _, rec := range pageResp.Results {
			if !targetEnergyClasses[strings.ToUpper(rec.EtiquetteDPE)] {
				continue
			}
			stats.Found++
			opp := energyFromRecord(rec)
			if opp.ExternalID == "" || existing.has(opp.ExternalID) {
				continue
			}
			existing[opp.ExternalID] = struct{}{}
			recs = append(recs, opp)
		}
		next = pageResp.Next
	}

	stats.New = len(recs)
	if len(recs) == 0 {
		log.Printf("[energy] department %d: no new diagnostics: %s", params.DepartmentID, stats)
		return stats, nil
	}

	for i := range recs {
		rec := &recs[i]
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
		return stats, fmt.Errorf("inserting energy opportunities: %w", err)
	}

	if inserted > 0 {
		if err := s.refresh.Schedule(ctx); err != nil {
			log.Printf("[energy] scheduling map refresh: %v", err)
		}
	}

	log.Printf("[energy] department %d scrape complete: %s", params.DepartmentID, stats)
	return stats, nil
}

func (s *EnergyService) firstPageURL(params EnergyJobParams) string {
	pageSize := s.cfg.PageSize
	if pageSize <= 0 {
		pageSize = 300
	}

	qs := fmt.Sprintf("code_postal_ban:%02d*", params.DepartmentID)
	if params.SinceDate != "" {
		qs += fmt.Sprintf(" AND date_etablissement_dpe:[%s TO *]", params.SinceDate)
	}

	q := url.Values{}
	q.Set("size", strconv.Itoa(pageSize))
	q.Set("qs", qs)

	return fmt.Sprintf("%s/data-fair/api/v1/datasets/dpe-v2-logements-existants/lines?%s",
		strings.TrimRight(s.cfg.BaseURL, "/"), q.Encode())
}

func (s *EnergyService) fetchPage(ctx context.Context, pageURL string) (*energyPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
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
		return nil, fmt.Errorf("diagnostics API returned %d: %s", resp.StatusCode, snippet)
	}

	var page energyPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decoding diagnostics page: %w", err)
	}
	return &page, nil
}

// energyFromRecord maps an API record to the stored opportunity shape.
func energyFromRecord(rec energyRecord) models.EnergyOpportunity {
	opp := models.EnergyOpportunity{
		ExternalID:       "dpe-" + strings.TrimSpace(rec.NumeroDPE),
		Address:          normalizeSpace(rec.AdresseBAN),
		City:             normalizeSpace(rec.CommuneBAN),
		ZipCode:          strings.TrimSpace(rec.CodePostalBAN),
		EnergyClass:      strings.ToUpper(strings.TrimSpace(rec.EtiquetteDPE)),
		GESClass:         strings.ToUpper(strings.TrimSpace(rec.EtiquetteGES)),
		SurfaceArea:      rec.Surface,
		ConstructionYear: rec.AnneeConstr,
	}
	if rec.NumeroDPE == "" {
		opp.ExternalID = ""
	}
	opp.Department = departmentFromZip(opp.ZipCode)
	opp.Label = fmt.Sprintf("DPE %s - %s", opp.EnergyClass, opp.City)

	if t, err := time.Parse("2006-01-02", rec.DateEtablissement); err == nil {
		opp.DiagnosedAt = t
	}
	if lat, lng, ok := parseGeoPoint(rec.GeoPoint); ok {
		opp.Lat, opp.Lng = &lat, &lng
	}
	return opp
}

// parseGeoPoint splits the data-fair "_geopoint" field, "lat,lon".
func parseGeoPoint(s string) (lat, lng float64, ok bool) {
	before, after, found := strings.Cut(s, ",")
	if !found {
		return 0, 0, false
	}
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(before), 64)
	lng, err2 := strconv.ParseFloat(strings.TrimSpace(after), 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return lat, lng, true
}
