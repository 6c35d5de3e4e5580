package postgres

import (
	"context"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"

	"ecolisting_ingest/internal/domain"
)

var listingColumns = []string{
	"id", "source", "external_id", "price", "address_line", "city",
	"latitude", "longitude", "geohash", "image_url", "status",
	"beds", "baths", "sqft",
}

type ListingStore struct {
	db *sqlx.DB
}

func NewListingStore(db *sqlx.DB) *ListingStore {
	return &ListingStore{db: db}
}

// UpsertBatch writes rows in one statement keyed by external_id. Existing rows
// are overwritten column for column. It returns the affected row count.
func (s *ListingStore) UpsertBatch(ctx context.Context, rows []domain.Listing) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	query, args := buildListingUpsert(rows)
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, classify("upsert listings", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify("rows affected", err)
	}
	return int(n), nil
}

func buildListingUpsert(rows []domain.Listing) (string, []interface{}) {
	var sb strings.Builder
	sb.WriteString("INSERT INTO listings (")
	sb.WriteString(strings.Join(listingColumns, ", "))
	sb.WriteString(") VALUES ")

	width := len(listingColumns)
	args := make([]interface{}, 0, len(rows)*width)

	for i, l := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for c := 0; c < width; c++ {
			if c > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("$")
			sb.WriteString(strconv.Itoa(i*width + c + 1))
		}
		sb.WriteString(")")

		args = append(args,
			l.ID,
			l.SourceID,
			l.ExternalID,
			l.Price,
			l.AddressLine,
			l.City,
			l.Latitude,
			l.Longitude,
			l.Geohash,
			l.ImageURL,
			l.Status,
			l.Beds,
			l.Baths,
			l.Sqft,
		)
	}

	sb.WriteString(" ON CONFLICT (external_id) DO UPDATE SET ")
	first := true
	for _, col := range listingColumns {
		if col == "id" || col == "external_id" {
			continue
		}
		if !first {
			sb.WriteString(", ")
		}
		first = false
		sb.WriteString(col)
		sb.WriteString(" = EXCLUDED.")
		sb.WriteString(col)
	}
	sb.WriteString(", updated_at = now()")

	return sb.String(), args
}
