package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/greg-easycraft/linkinvests-sourcing/internal/models"
)

// ListingStore persists notary listing opportunities.
type ListingStore struct {
	db DBTX
}

func NewListingStore(db DBTX) *ListingStore {
	return &ListingStore{db: db}
}

var listingColumns = []string{
	"external_id", "label", "description", "address", "city", "zip_code",
	"department", "lat", "lng", "published_at", "price", "property_type",
	"surface_area", "rooms", "contact", "photo_urls",
}

// InsertOpportunities inserts records in chunks of batchSize with
// ON CONFLICT (external_id) DO NOTHING semantics.
func (s *ListingStore) InsertOpportunities(ctx context.Context, recs []models.ListingOpportunity, batchSize int) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	return insertChunked(ctx, "listing_opportunities", len(recs), batchSize, func(ctx context.Context, start, end int) error {
		chunk := recs[start:end]
		sql := fmt.Sprintf(
			"INSERT INTO listing_opportunities (%s) VALUES %s ON CONFLICT (external_id) DO NOTHING",
			strings.Join(listingColumns, ", "),
			rowValues(len(chunk), len(listingColumns)),
		)

		args := make([]any, 0, len(chunk)*len(listingColumns))
		for _, r := range chunk {
			args = append(args,
				r.ExternalID,
				r.Label,
				nilIfEmpty(r.Description),
				nilIfEmpty(r.Address),
				nilIfEmpty(r.City),
				nilIfEmpty(r.ZipCode),
				nilIfZero(r.Department),
				r.Lat,
				r.Lng,
				nilIfZeroTime(r.PublishedAt),
				r.Price,
				nilIfEmpty(r.PropertyType),
				r.SurfaceArea,
				r.Rooms,
				contactJSON(r.Contact),
				r.PhotoURLs,
			)
		}

		_, err := s.db.Exec(ctx, sql, args...)
		return err
	})
}

// GetAllExternalIDs returns every listing external id already ingested.
func (s *ListingStore) GetAllExternalIDs(ctx context.Context) ([]string, error) {
	return allExternalIDs(ctx, s.db, "listing_opportunities")
}
