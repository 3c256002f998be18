package db

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/greg-easycraft/linkinvests-sourcing/internal/models"
)

// DefaultBatchSize bounds the number of rows in a single INSERT statement.
const DefaultBatchSize = 500

// insertChunked walks the input in batchSize chunks and calls insert for
// each [start, end) range. Each chunk is its own statement (and transaction):
// a chunk failure stops the walk and is returned, but rows from earlier
// chunks stay committed. The returned count is the number of rows attempted
// across succeeded chunks, conflict-skipped rows included.
func insertChunked(ctx context.Context, table string, total, batchSize int, insert func(ctx context.Context, start, end int) error) (int, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	attempted := 0
	for start := 0; start < total; start += batchSize {
		end := start + batchSize
		if end > total {
			end = total
		}
		if err := insert(ctx, start, end); err != nil {
			log.Printf("[db] %s: batch insert failed at offset %d (size %d): %v", table, start, end-start, err)
			return attempted, fmt.Errorf("inserting %s chunk at offset %d: %w", table, start, err)
		}
		attempted += end - start
	}
	return attempted, nil
}

// rowValues builds the VALUES clause placeholders for rows of the given
// width, numbering arguments from 1: ($1,$2),($3,$4),...
func rowValues(rows, width int) string {
	var b strings.Builder
	arg := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := 0; c < width; c++ {
			if c > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, "$%d", arg)
			arg++
		}
		b.WriteByte(')')
	}
	return b.String()
}

// nilIfEmpty returns nil for empty strings so NULL is stored in the DB.
func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nilIfZero returns nil for zero ints so NULL is stored in the DB.
func nilIfZero(n int) any {
	if n == 0 {
		return nil
	}
	return n
}

// nilIfZeroTime returns nil for zero times so NULL is stored in the DB.
func nilIfZeroTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// contactJSON serializes a contact block for a JSONB column.
func contactJSON(c *models.Contact) any {
	if c == nil {
		return nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil
	}
	return string(data)
}

// allExternalIDs fetches the external-id snapshot for one domain table.
func allExternalIDs(ctx context.Context, db DBTX, table string) ([]string, error) {
	rows, err := db.Query(ctx, fmt.Sprintf("SELECT external_id FROM %s", table))
	if err != nil {
		return nil, fmt.Errorf("fetching external ids from %s: %w", table, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning external id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
