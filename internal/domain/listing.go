package domain

import (
	"time"

	"github.com/google/uuid"
)

// RawRecord is one provider-shaped listing as decoded from JSON.
type RawRecord map[string]any

// Listing is the canonical row persisted by the sinks. ExternalID is the
// conflict key.
type Listing struct {
	ID          uuid.UUID `json:"id" db:"id"`
	SourceID    string    `json:"source" db:"source"` // provider that produced the row (e.g., "simplyrets")
	ExternalID  string    `json:"external_id" db:"external_id"`
	Price       *float64  `json:"price" db:"price"`
	AddressLine *string   `json:"address_line" db:"address_line"`
	City        *string   `json:"city" db:"city"`
	Latitude    *float64  `json:"latitude" db:"latitude"`
	Longitude   *float64  `json:"longitude" db:"longitude"`
	Geohash     *string   `json:"geohash" db:"geohash"`
	ImageURL    *string   `json:"image_url" db:"image_url"`
	Status      *string   `json:"status" db:"status"`
	Beds        *int      `json:"beds" db:"beds"`
	Baths       *float64  `json:"baths" db:"baths"`
	Sqft        *int      `json:"sqft" db:"sqft"`
	Photos      []string  `json:"-" db:"-"`
}

// HasCoordinates reports whether both latitude and longitude are set.
func (l *Listing) HasCoordinates() bool {
	return l.Latitude != nil && l.Longitude != nil
}

type Photo struct {
	ExternalID string `json:"external_id" db:"external_id"`
	URL        string `json:"url" db:"url"`
	Sort       int    `json:"sort" db:"sort"`
}

// PhotoRows expands the ordered URL list into photo rows with 0-based sort
// indexes.
func PhotoRows(externalID string, urls []string) []Photo {
	photos := make([]Photo, 0, len(urls))
	for i, u := range urls {
		photos = append(photos, Photo{ExternalID: externalID, URL: u, Sort: i})
	}
	return photos
}

type RunState struct {
	ID            int64     `db:"id"`
	SourceID      string    `db:"source_id"`
	LastRunAt     time.Time `db:"last_run_at"`
	LastRunID     string    `db:"last_run_id"`
	TotalUpserted int64     `db:"total_upserted"`
}
