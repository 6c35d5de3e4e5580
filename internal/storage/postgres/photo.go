package postgres

import (
	"context"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"

	"ecolisting_ingest/internal/domain"
)

// PhotoStore keeps the ordered photo list of a listing in listing_photos,
// keyed by (external_id, url).
type PhotoStore struct {
	db        *sqlx.DB
	txManager *TransactionManager
}

func NewPhotoStore(db *sqlx.DB, txManager *TransactionManager) *PhotoStore {
	return &PhotoStore{db: db, txManager: txManager}
}

// ReplacePhotos swaps the stored photo set for urls inside one transaction,
// so a failure never leaves the listing without photos.
func (s *PhotoStore) ReplacePhotos(ctx context.Context, externalID string, urls []string) error {
	return s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		exec := GetExecutor(txCtx, s.db)
		if _, err := exec.ExecContext(txCtx,
			"DELETE FROM listing_photos WHERE external_id = $1",
			externalID,
		); err != nil {
			return classify("delete photos", err)
		}
		return s.insert(txCtx, domain.PhotoRows(externalID, urls), "DO NOTHING")
	})
}

// MergePhotos adds urls to the stored set; known urls only get their sort
// index refreshed.
func (s *PhotoStore) MergePhotos(ctx context.Context, externalID string, urls []string) error {
	return s.insert(ctx, domain.PhotoRows(externalID, urls), "DO UPDATE SET sort = EXCLUDED.sort")
}

func (s *PhotoStore) insert(ctx context.Context, photos []domain.Photo, onConflict string) error {
	if len(photos) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO listing_photos (external_id, url, sort) VALUES ")
	args := make([]interface{}, 0, len(photos)*3)

	for i, p := range photos {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("($")
		sb.WriteString(strconv.Itoa(i*3 + 1))
		sb.WriteString(", $")
		sb.WriteString(strconv.Itoa(i*3 + 2))
		sb.WriteString(", $")
		sb.WriteString(strconv.Itoa(i*3 + 3))
		sb.WriteString(")")
		args = append(args, p.ExternalID, p.URL, p.Sort)
	}
	sb.WriteString(" ON CONFLICT (external_id, url) ")
	sb.WriteString(onConflict)

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, sb.String(), args...)
	return classify("insert photos", err)
}

func (s *PhotoStore) GetByExternalID(ctx context.Context, externalID string) ([]domain.Photo, error) {
	var photos []domain.Photo
	err := s.db.SelectContext(ctx, &photos,
		"SELECT external_id, url, sort FROM listing_photos WHERE external_id = $1 ORDER BY sort",
		externalID,
	)
	return photos, err
}
