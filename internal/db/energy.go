package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/greg-easycraft/linkinvests-sourcing/internal/models"
)

// EnergyStore persists energy-diagnostic opportunities.
type EnergyStore struct {
	db DBTX
}

func NewEnergyStore(db DBTX) *EnergyStore {
	return &EnergyStore{db: db}
}

var energyColumns = []string{
	"external_id", "label", "address", "city", "zip_code", "department",
	"lat", "lng", "diagnosed_at", "energy_class", "ges_class",
	"surface_area", "construction_year",
}

// InsertOpportunities inserts records in chunks of batchSize with
// ON CONFLICT (external_id) DO NOTHING semantics.
func (s *EnergyStore) InsertOpportunities(ctx context.Context, recs []models.EnergyOpportunity, batchSize int) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	return insertChunked(ctx, "energy_opportunities", len(recs), batchSize, func(ctx context.Context, start, end int) error {
		chunk := recs[start:end]
		sql := fmt.Sprintf(
			"INSERT INTO energy_opportunities (%s) VALUES %s ON CONFLICT (external_id) DO NOTHING",
			strings.Join(energyColumns, ", "),
			rowValues(len(chunk), len(energyColumns)),
		)

		args := make([]any, 0, len(chunk)*len(energyColumns))
		for _, r := range chunk {
			args = append(args,
				r.ExternalID,
				r.Label,
				nilIfEmpty(r.Address),
				nilIfEmpty(r.City),
				nilIfEmpty(r.ZipCode),
				nilIfZero(r.Department),
				r.Lat,
				r.Lng,
				nilIfZeroTime(r.DiagnosedAt),
				nilIfEmpty(r.EnergyClass),
				nilIfEmpty(r.GESClass),
				r.SurfaceArea,
				r.ConstructionYear,
			)
		}

		_, err := s.db.Exec(ctx, sql, args...)
		return err
	})
}

// GetAllExternalIDs returns every energy external id already ingested.
func (s *EnergyStore) GetAllExternalIDs(ctx context.Context) ([]string, error) {
	return allExternalIDs(ctx, s.db, "energy_opportunities")
}
