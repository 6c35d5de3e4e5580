// Package sqlite is a single-file sink for local runs and tests, built on
// gorm with the sqlite driver.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"ecolisting_ingest/internal/domain"
)

// listingUpdateColumns are overwritten on conflict; id and external_id keep
// the values of the first insert.
var listingUpdateColumns = []string{
	"source", "price", "address_line", "city", "latitude", "longitude",
	"geohash", "image_url", "status", "beds", "baths", "sqft", "updated_at",
}

type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the database at path and migrates the schema.
// Use ":memory:" for a throwaway database.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	// sqlite allows one writer; a single connection also keeps :memory:
	// databases shared across calls.
	sqlDB.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.Migrate(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&listingRecord{}, &photoRecord{}, &runStateRecord{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// UpsertBatch inserts rows or overwrites the existing row with the same
// external_id. It returns the number of rows written.
func (s *Store) UpsertBatch(ctx context.Context, rows []domain.Listing) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	records := make([]listingRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, toRecord(r))
	}

	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}},
			DoUpdates: clause.AssignmentColumns(listingUpdateColumns),
		}).
		Create(&records)
	if result.Error != nil {
		return 0, classify("upsert listings", result.Error)
	}
	return int(result.RowsAffected), nil
}

func (s *Store) GetByExternalID(ctx context.Context, externalID string) (*domain.Listing, error) {
	var rec listingRecord
	err := s.db.WithContext(ctx).Where("external_id = ?", externalID).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("get listing", err)
	}
	l := rec.toDomain()
	return &l, nil
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&listingRecord{}).Count(&n).Error
	return n, err
}

// ReplacePhotos swaps the stored photo set for urls in one transaction.
func (s *Store) ReplacePhotos(ctx context.Context, externalID string, urls []string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("external_id = ?", externalID).Delete(&photoRecord{}).Error; err != nil {
			return classify("delete photos", err)
		}
		return insertPhotos(tx, externalID, urls, clause.OnConflict{DoNothing: true})
	})
}

// MergePhotos adds urls to the stored set, refreshing the sort index of
// known urls.
func (s *Store) MergePhotos(ctx context.Context, externalID string, urls []string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return insertPhotos(tx, externalID, urls, clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}, {Name: "url"}},
			DoUpdates: clause.AssignmentColumns([]string{"sort"}),
		})
	})
}

func insertPhotos(tx *gorm.DB, externalID string, urls []string, onConflict clause.OnConflict) error {
	rows := domain.PhotoRows(externalID, urls)
	if len(rows) == 0 {
		return nil
	}
	records := make([]photoRecord, 0, len(rows))
	for _, p := range rows {
		records = append(records, photoRecord{ExternalID: p.ExternalID, URL: p.URL, Sort: p.Sort})
	}
	if err := tx.Clauses(onConflict).Create(&records).Error; err != nil {
		return classify("insert photos", err)
	}
	return nil
}

func (s *Store) Photos(ctx context.Context, externalID string) ([]domain.Photo, error) {
	var records []photoRecord
	err := s.db.WithContext(ctx).
		Where("external_id = ?", externalID).
		Order("sort").
		Find(&records).Error
	if err != nil {
		return nil, classify("list photos", err)
	}

	photos := make([]domain.Photo, 0, len(records))
	for _, r := range records {
		photos = append(photos, domain.Photo{ExternalID: r.ExternalID, URL: r.URL, Sort: r.Sort})
	}
	return photos, nil
}

// Get returns the run state of a source, or a zero state on its first run.
func (s *Store) Get(ctx context.Context, sourceID string) (*domain.RunState, error) {
	var rec runStateRecord
	err := s.db.WithContext(ctx).Where("source_id = ?", sourceID).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &domain.RunState{SourceID: sourceID}, nil
	}
	if err != nil {
		return nil, classify("get run state", err)
	}
	return &domain.RunState{
		ID:            rec.ID,
		SourceID:      rec.SourceID,
		LastRunAt:     rec.LastRunAt,
		LastRunID:     rec.LastRunID,
		TotalUpserted: rec.TotalUpserted,
	}, nil
}

func (s *Store) Update(ctx context.Context, state *domain.RunState) error {
	rec := runStateRecord{
		SourceID:      state.SourceID,
		LastRunAt:     state.LastRunAt,
		LastRunID:     state.LastRunID,
		TotalUpserted: state.TotalUpserted,
	}
	if rec.LastRunAt.IsZero() {
		rec.LastRunAt = time.Now().UTC()
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_run_at", "last_run_id", "total_upserted"}),
		}).
		Create(&rec).Error
	if err != nil {
		return classify("update run state", err)
	}
	return nil
}
