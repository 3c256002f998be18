package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/greg-easycraft/linkinvests-sourcing/internal/models"
)

// AuctionStore persists auction opportunities.
type AuctionStore struct {
	db DBTX
}

func NewAuctionStore(db DBTX) *AuctionStore {
	return &AuctionStore{db: db}
}

var auctionColumns = []string{
	"external_id", "label", "description", "address", "city", "zip_code",
	"department", "lat", "lng", "auction_at", "reserve_price", "estimate_low",
	"estimate_high", "property_type", "surface_area", "rooms", "venue",
	"contact", "photo_urls",
}

// InsertOpportunities inserts records in chunks of batchSize with
// ON CONFLICT (external_id) DO NOTHING. Re-running the same scrape is a
// no-op for already-ingested rows. Returns the number of rows attempted
// across succeeded chunks.
func (s *AuctionStore) InsertOpportunities(ctx context.Context, recs []models.AuctionOpportunity, batchSize int) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	return insertChunked(ctx, "auction_opportunities", len(recs), batchSize, func(ctx context.Context, start, end int) error {
		chunk := recs[start:end]
		sql := fmt.Sprintf(
			"INSERT INTO auction_opportunities (%s) VALUES %s ON CONFLICT (external_id) DO NOTHING",
			strings.Join(auctionColumns, ", "),
			rowValues(len(chunk), len(auctionColumns)),
		)

		args := make([]any, 0, len(chunk)*len(auctionColumns))
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
				nilIfZeroTime(r.AuctionAt),
				r.ReservePrice,
				r.EstimateLow,
				r.EstimateHigh,
				nilIfEmpty(r.PropertyType),
				r.SurfaceArea,
				r.Rooms,
				nilIfEmpty(r.Venue),
				contactJSON(r.Contact),
				r.PhotoURLs,
			)
		}

		_, err := s.db.Exec(ctx, sql, args...)
		return err
	})
}

// GetAllExternalIDs returns every auction external id already ingested.
func (s *AuctionStore) GetAllExternalIDs(ctx context.Context) ([]string, error) {
	return allExternalIDs(ctx, s.db, "auction_opportunities")
}
