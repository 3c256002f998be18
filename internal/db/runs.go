package db

import (
	"context"
	"fmt"
	"time"

	"github.com/greg-easycraft/linkinvests-sourcing/internal/models"
)

// RunStore records one row per processed sourcing job, for the ops dashboard.
type RunStore struct {
	db DBTX
}

func NewRunStore(db DBTX) *RunStore {
	return &RunStore{db: db}
}

// StartRun creates a running record and returns its id.
func (s *RunStore) StartRun(ctx context.Context, jobID, jobName string) (string, error) {
	var runID string
	err := s.db.QueryRow(ctx,
		"INSERT INTO sourcing_runs (job_id, job_name, status) VALUES ($1, $2, 'running') RETURNING run_id",
		jobID, jobName).Scan(&runID)
	if err != nil {
		return "", fmt.Errorf("creating sourcing run: %w", err)
	}
	return runID, nil
}

// FinishRun closes a run record with its outcome and counters.
func (s *RunStore) FinishRun(ctx context.Context, runID, status string, found, inserted, geocodeFailures int, duration time.Duration) error {
	_, err := s.db.Exec(ctx, `
		UPDATE sourcing_runs SET
			status = $1,
			items_found = $2,
			items_inserted = $3,
			geocode_failures = $4,
			completed_at = NOW(),
			details = $5
		WHERE run_id = $6`,
		status, found, inserted, geocodeFailures,
		fmt.Sprintf(`{"duration_ms": %d}`, duration.Milliseconds()),
		runID,
	)
	if err != nil {
		return fmt.Errorf("updating sourcing run %s: %w", runID, err)
	}
	return nil
}

// SourcingRun is one row of the runs journal.
type SourcingRun struct {
	RunID           string     `json:"runId"`
	JobID           string     `json:"jobId"`
	JobName         string     `json:"jobName"`
	Status          string     `json:"status"`
	ItemsFound      int        `json:"itemsFound"`
	ItemsInserted   int        `json:"itemsInserted"`
	GeocodeFailures int        `json:"geocodeFailures"`
	StartedAt       time.Time  `json:"startedAt"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
}

// RecentRuns returns the latest runs, newest first.
func (s *RunStore) RecentRuns(ctx context.Context, limit int) ([]SourcingRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT run_id, job_id, job_name, status,
		       items_found, items_inserted, geocode_failures,
		       started_at, completed_at
		FROM sourcing_runs
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sourcing runs: %w", err)
	}
	defer rows.Close()

	var runs []SourcingRun
	for rows.Next() {
		var r SourcingRun
		if err := rows.Scan(&r.RunID, &r.JobID, &r.JobName, &r.Status,
			&r.ItemsFound, &r.ItemsInserted, &r.GeocodeFailures,
			&r.StartedAt, &r.CompletedAt); err != nil {
			return nil, fmt.Errorf("scanning sourcing run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RefreshOpportunityMap rebuilds the aggregate materialized view. CONCURRENTLY
// keeps readers unblocked; it requires the view's unique index.
func RefreshOpportunityMap(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, "REFRESH MATERIALIZED VIEW CONCURRENTLY opportunity_map"); err != nil {
		return fmt.Errorf("refreshing opportunity_map: %w", err)
	}
	return nil
}

// domainTables maps each source to its opportunity table, in the order the
// opportunity_map view unions them.
var domainTables = []struct {
	Source models.Source
	Table  string
}{
	{models.SourceAuction, "auction_opportunities"},
	{models.SourceListing, "listing_opportunities"},
	{models.SourceSuccession, "succession_opportunities"},
	{models.SourceEnergy, "energy_opportunities"},
}

// DomainCount is one per-source row count, for the verification CLI.
type DomainCount struct {
	Source models.Source
	Table  string
	Count  int
}

// CountByDomain returns row counts for every opportunity table.
func CountByDomain(ctx context.Context, db DBTX) ([]DomainCount, error) {
	out := make([]DomainCount, 0, len(domainTables))
	for _, d := range domainTables {
		var count int
		if err := db.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", d.Table)).Scan(&count); err != nil {
			return nil, fmt.Errorf("counting %s: %w", d.Table, err)
		}
		out = append(out, DomainCount{Source: d.Source, Table: d.Table, Count: count})
	}
	return out, nil
}
