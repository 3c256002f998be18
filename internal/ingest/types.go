// Package ingest contains the sourcing job processor and the per-domain
// scraping services that feed the opportunity tables.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/greg-easycraft/linkinvests-sourcing/internal/models"
)

// Job name discriminators carried by queue payloads.
const (
	JobAuctions          = "auctions"
	JobNotaryListings    = "notary-listings"
	JobDeceases          = "deceases"
	JobEnergyDiagnostics = "energy-diagnostics"
)

// AuctionJobParams selects the calendar page range to crawl.
type AuctionJobParams struct {
	StartPage int `json:"startPage,omitempty"`
	EndPage   int `json:"endPage,omitempty"`
}

// ListingJobParams selects the department to query.
type ListingJobParams struct {
	DepartmentID int `json:"departmentId"`
}

// DeceaseJobParams points at a downloaded INSEE deaths file.
type DeceaseJobParams struct {
	SourceFile   string `json:"sourceFile"`
	SinceDate    string `json:"sinceDate,omitempty"` // ISO date, inclusive lower bound on death date
	DepartmentID int    `json:"departmentId,omitempty"`
}

// EnergyJobParams selects the department and window to query.
type EnergyJobParams struct {
	DepartmentID int    `json:"departmentId"`
	SinceDate    string `json:"sinceDate,omitempty"`
}

// Per-domain repository contracts, satisfied by the db package stores and by
// in-memory fakes in tests.

type AuctionRepository interface {
	InsertOpportunities(ctx context.Context, recs []models.AuctionOpportunity, batchSize int) (int, error)
	GetAllExternalIDs(ctx context.Context) ([]string, error)
}

type ListingRepository interface {
	InsertOpportunities(ctx context.Context, recs []models.ListingOpportunity, batchSize int) (int, error)
	GetAllExternalIDs(ctx context.Context) ([]string, error)
}

type SuccessionRepository interface {
	InsertOpportunities(ctx context.Context, recs []models.SuccessionOpportunity, batchSize int) (int, error)
	GetAllExternalIDs(ctx context.Context) ([]string, error)
}

type EnergyRepository interface {
	InsertOpportunities(ctx context.Context, recs []models.EnergyOpportunity, batchSize int) (int, error)
	GetAllExternalIDs(ctx context.Context) ([]string, error)
}

// Geocoder resolves an address to coordinates. Any error means "no
// coordinates"; services keep the record either way.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (models.Coordinates, error)
}

// RefreshScheduler debounces the materialized-view rebuild after writes.
type RefreshScheduler interface {
	Schedule(ctx context.Context) error
}

// RunRecorder persists per-job run records. May be nil in tests.
type RunRecorder interface {
	StartRun(ctx context.Context, jobID, jobName string) (string, error)
	FinishRun(ctx context.Context, runID, status string, found, inserted, geocodeFailures int, duration time.Duration) error
}

// ScrapeStats summarizes one scraping run. Logged, not persisted (beyond the
// sourcing_runs counters).
type ScrapeStats struct {
	Found         int
	New           int
	Geocoded      int
	GeocodeFailed int
	WithMedia     int
	Inserted      int
}

func (s ScrapeStats) String() string {
	return fmt.Sprintf("found=%d new=%d geocoded=%d geocode_failed=%d with_media=%d inserted=%d",
		s.Found, s.New, s.Geocoded, s.GeocodeFailed, s.WithMedia, s.Inserted)
}

// existingIDSet is the in-memory snapshot of already-ingested external ids,
// used to skip redundant scraping and geocoding work.
type existingIDSet map[string]struct{}

func newExistingIDSet(ids []string) existingIDSet {
	set := make(existingIDSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func (s existingIDSet) has(id string) bool {
	_, ok := s[id]
	return ok
}
