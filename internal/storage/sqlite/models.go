package sqlite

import (
	"time"

	"github.com/google/uuid"

	"ecolisting_ingest/internal/domain"
)

type listingRecord struct {
	ID          uuid.UUID `gorm:"column:id;type:text;primaryKey"`
	Source      string    `gorm:"column:source;not null"`
	ExternalID  string    `gorm:"column:external_id;not null;uniqueIndex"`
	Price       *float64  `gorm:"column:price"`
	AddressLine *string   `gorm:"column:address_line"`
	City        *string   `gorm:"column:city;index"`
	Latitude    *float64  `gorm:"column:latitude"`
	Longitude   *float64  `gorm:"column:longitude"`
	Geohash     *string   `gorm:"column:geohash;index"`
	ImageURL    *string   `gorm:"column:image_url"`
	Status      *string   `gorm:"column:status"`
	Beds        *int      `gorm:"column:beds"`
	Baths       *float64  `gorm:"column:baths"`
	Sqft        *int      `gorm:"column:sqft"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (listingRecord) TableName() string {
	return "listings"
}

func toRecord(l domain.Listing) listingRecord {
	return listingRecord{
		ID:          l.ID,
		Source:      l.SourceID,
		ExternalID:  l.ExternalID,
		Price:       l.Price,
		AddressLine: l.AddressLine,
		City:        l.City,
		Latitude:    l.Latitude,
		Longitude:   l.Longitude,
		Geohash:     l.Geohash,
		ImageURL:    l.ImageURL,
		Status:      l.Status,
		Beds:        l.Beds,
		Baths:       l.Baths,
		Sqft:        l.Sqft,
	}
}

func (r listingRecord) toDomain() domain.Listing {
	return domain.Listing{
		ID:          r.ID,
		SourceID:    r.Source,
		ExternalID:  r.ExternalID,
		Price:       r.Price,
		AddressLine: r.AddressLine,
		City:        r.City,
		Latitude:    r.Latitude,
		Longitude:   r.Longitude,
		Geohash:     r.Geohash,
		ImageURL:    r.ImageURL,
		Status:      r.Status,
		Beds:        r.Beds,
		Baths:       r.Baths,
		Sqft:        r.Sqft,
	}
}

type photoRecord struct {
	ExternalID string `gorm:"column:external_id;primaryKey"`
	URL        string `gorm:"column:url;primaryKey"`
	Sort       int    `gorm:"column:sort;not null;default:0"`
}

func (photoRecord) TableName() string {
	return "listing_photos"
}

type runStateRecord struct {
	ID            int64     `gorm:"column:id;primaryKey;autoIncrement"`
	SourceID      string    `gorm:"column:source_id;not null;uniqueIndex"`
	LastRunAt     time.Time `gorm:"column:last_run_at;not null"`
	LastRunID     string    `gorm:"column:last_run_id;not null;default:''"`
	TotalUpserted int64     `gorm:"column:total_upserted;not null;default:0"`
}

func (runStateRecord) TableName() string {
	return "ingest_runs"
}
