package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/greg-easycraft/linkinvests-sourcing/internal/models"
)

// DeceaseService turns INSEE death-record files into succession
// opportunities. Files come from the monthly "fichier des personnes
// décédées" export, re-encoded as semicolon-separated CSV with a header row.
type DeceaseService struct {
	repo    SuccessionRepository
	geo     Geocoder
	refresh RefreshScheduler
}

func NewDeceaseService(repo SuccessionRepository, geo Geocoder, refresh RefreshScheduler) *DeceaseService {
	return &DeceaseService{repo: repo, geo: geo, refresh: refresh}
}

const inseeDateLayout = "20060102"

// deathRecord is one parsed CSV row.
type deathRecord struct {
	LastName    string
	FirstNames  string
	BirthDate   time.Time
	DeathDate   time.Time
	DeathINSEE  string // commune code
	DeathPlace  string
	ActeNumber  string
}

// Scrape reads the source file, filters by death date and department, and
// inserts the remaining records geocoded to their commune.
func (s *DeceaseService) Scrape(ctx context.Context, params DeceaseJobParams) (ScrapeStats, error) {
	var stats ScrapeStats

	if params.SourceFile == "" {
		return stats, errors.New("decease job requires a sourceFile")
	}

	var since time.Time
	if params.SinceDate != "" {
		t, err := time.Parse("2006-01-02", params.SinceDate)
		if err != nil {
			return stats, fmt.Errorf("invalid sinceDate %q: %w", params.SinceDate, err)
		}
		since = t
	}

	f, err := os.Open(params.SourceFile)
	if err != nil {
		return stats, fmt.Errorf("opening deaths file: %w", err)
	}
	defer f.Close()

	ids, err := s.repo.GetAllExternalIDs(ctx)
	if err != nil {
		return stats, fmt.Errorf("loading known succession ids: %w", err)
	}
	existing := newExistingIDSet(ids)

	records, parseErrs, err := readDeathRecords(f)
	if err != nil {
		return stats, fmt.Errorf("reading deaths file %s: %w", params.SourceFile, err)
	}
	if parseErrs > 0 {
		log.Printf("[deceases] %d rows skipped due to parse errors in %s", parseErrs, params.SourceFile)
	}
	stats.Found = len(records)

	// Commune centroid cache: death files repeat the same communes heavily.
	coordsByCommune := make(map[string]*models.Coordinates)

	var recs []models.SuccessionOpportunity
	for _, rec := range records {
		if !since.IsZero() && rec.DeathDate.Before(since) {
			continue
		}
		dept := departmentFromZip(rec.DeathINSEE)
		if params.DepartmentID > 0 && dept != params.DepartmentID {
			continue
		}

		opp := models.SuccessionOpportunity{
			ExternalID: successionExternalID(rec),
			FullName:   normalizeSpace(rec.LastName + " " + rec.FirstNames),
			BirthDate:  rec.BirthDate,
			DeathDate:  rec.DeathDate,
			City:       rec.DeathPlace,
			ZipCode:    rec.DeathINSEE,
			Department: dept,
			SourceFile: params.SourceFile,
		}
		if !rec.BirthDate.IsZero() {
			opp.AgeAtDeath = ageAt(rec.BirthDate, rec.DeathDate)
		}
		if existing.has(opp.ExternalID) {
			continue
		}
		existing[opp.ExternalID] = struct{}{}

		coords, cached := coordsByCommune[rec.DeathINSEE]
		if !cached {
			c, err := s.geo.Geocode(ctx, fmt.Sprintf("%s %s", rec.DeathPlace, rec.DeathINSEE))
			if err == nil {
				coords = &c
			}
			coordsByCommune[rec.DeathINSEE] = coords
		}
		if coords != nil {
			opp.Lat, opp.Lng = coords.PointTo()
			stats.Geocoded++
		} else {
			stats.GeocodeFailed++
		}

		recs = append(recs, opp)
	}
	stats.New = len(recs)
	if len(recs) == 0 {
		log.Printf("[deceases] %s: no new records: %s", params.SourceFile, stats)
		return stats, nil
	}

	inserted, err := s.repo.InsertOpportunities(ctx, recs, 0)
	stats.Inserted = inserted
	if err != nil {
		return stats, fmt.Errorf("inserting succession opportunities: %w", err)
	}

	if inserted > 0 {
		if err := s.refresh.Schedule(ctx); err != nil {
			log.Printf("[deceases] scheduling map refresh: %v", err)
		}
	}

	log.Printf("[deceases] %s processed: %s", params.SourceFile, stats)
	return stats, nil
}

// readDeathRecords parses the semicolon-separated file. Malformed rows are
// counted and skipped, not fatal.
func readDeathRecords(r io.Reader) ([]deathRecord, int, error) {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("reading header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"nom", "prenoms", "datedeces", "lieudeces", "commdeces"} {
		if _, ok := col[required]; !ok {
			return nil, 0, fmt.Errorf("missing column %q", required)
		}
	}

	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var (
		records   []deathRecord
		parseErrs int
	)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			parseErrs++
			continue
		}

		deathDate, err := time.Parse(inseeDateLayout, field(row, "datedeces"))
		if err != nil {
			parseErrs++
			continue
		}
		rec := deathRecord{
			LastName:   field(row, "nom"),
			FirstNames: field(row, "prenoms"),
			DeathDate:  deathDate,
			DeathINSEE: field(row, "commdeces"),
			DeathPlace: field(row, "lieudeces"),
			ActeNumber: field(row, "acte"),
		}
		if rec.LastName == "" || rec.DeathINSEE == "" {
			parseErrs++
			continue
		}
		if birth, err := time.Parse(inseeDateLayout, field(row, "datenaiss")); err == nil {
			rec.BirthDate = birth
		}
		records = append(records, rec)
	}
	return records, parseErrs, nil
}

// successionExternalID builds a stable id from the identity fields. Death
// files are republished monthly with overlapping content, so the id must not
// depend on row position.
func successionExternalID(rec deathRecord) string {
	parts := []string{
		"insee",
		slugify(rec.LastName),
		slugify(rec.FirstNames),
		rec.DeathDate.Format(inseeDateLayout),
		rec.DeathINSEE,
	}
	if rec.ActeNumber != "" {
		parts = append(parts, rec.ActeNumber)
	}
	return strings.Join(parts, "-")
}

func slugify(s string) string {
	s = strings.ToLower(normalizeSpace(s))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == ' ', r == '-', r == '\'':
			return '-'
		default:
			return -1
		}
	}, s)
}

func ageAt(birth, death time.Time) int {
	years := death.Year() - birth.Year()
	if death.Month() < birth.Month() || (death.Month() == birth.Month() && death.Day() < birth.Day()) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}
