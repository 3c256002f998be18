package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/greg-easycraft/linkinvests-sourcing/internal/models"
)

// SuccessionStore persists succession (decease) opportunities.
type SuccessionStore struct {
	db DBTX
}

func NewSuccessionStore(db DBTX) *SuccessionStore {
	return &SuccessionStore{db: db}
}

var successionColumns = []string{
	"external_id", "full_name", "birth_date", "death_date", "city",
	"zip_code", "department", "lat", "lng", "age_at_death", "source_file",
}

// InsertOpportunities inserts records in chunks of batchSize with
// ON CONFLICT (external_id) DO NOTHING semantics.
func (s *SuccessionStore) InsertOpportunities(ctx context.Context, recs []models.SuccessionOpportunity, batchSize int) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	return insertChunked(ctx, "succession_opportunities", len(recs), batchSize, func(ctx context.Context, start, end int) error {
		chunk := recs[start:end]
		sql := fmt.Sprintf(
			"INSERT INTO succession_opportunities (%s) VALUES %s ON CONFLICT (external_id) DO NOTHING",
			strings.Join(successionColumns, ", "),
			rowValues(len(chunk), len(successionColumns)),
		)

		args := make([]any, 0, len(chunk)*len(successionColumns))
		for _, r := range chunk {
			args = append(args,
				r.ExternalID,
				r.FullName,
				nilIfZeroTime(r.BirthDate),
				nilIfZeroTime(r.DeathDate),
				nilIfEmpty(r.City),
				nilIfEmpty(r.ZipCode),
				nilIfZero(r.Department),
				r.Lat,
				r.Lng,
				nilIfZero(r.AgeAtDeath),
				nilIfEmpty(r.SourceFile),
			)
		}

		_, err := s.db.Exec(ctx, sql, args...)
		return err
	})
}

// GetAllExternalIDs returns every succession external id already ingested.
func (s *SuccessionStore) GetAllExternalIDs(ctx context.Context) ([]string, error) {
	return allExternalIDs(ctx, s.db, "succession_opportunities")
}
