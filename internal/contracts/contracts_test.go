package contracts

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"ecolisting_ingest/internal/domain"
)

func ptr[T any](v T) *T { return &v }

func TestValidateListings_Valid(t *testing.T) {
	rows := []domain.Listing{{
		ID:         uuid.New(),
		SourceID:   "feed",
		ExternalID: "A",
		Price:      ptr(100.0),
		Latitude:   ptr(29.7),
		Longitude:  ptr(-95.5),
		Beds:       ptr(3),
	}}

	assert.NoError(t, ValidateListings(rows))
}

func TestValidateListings_EmptyExternalID(t *testing.T) {
	rows := []domain.Listing{{ID: uuid.New(), SourceID: "feed", ExternalID: ""}}

	err := ValidateListings(rows)
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
	assert.False(t, verr.Transient())
}

func TestValidateListings_EmptyBatch(t *testing.T) {
	assert.Error(t, ValidateListings([]domain.Listing{}))
}

func TestValidateListings_LatitudeOutOfRange(t *testing.T) {
	rows := []domain.Listing{{ID: uuid.New(), SourceID: "feed", ExternalID: "A", Latitude: ptr(123.0)}}

	assert.Error(t, ValidateListings(rows))
}

func TestValidateListings_BathsOutsideColumnRange(t *testing.T) {
	for _, v := range []float64{-1, 1000} {
		rows := []domain.Listing{{ID: uuid.New(), SourceID: "feed", ExternalID: "A", Baths: ptr(v)}}
		assert.Error(t, ValidateListings(rows), "baths %v", v)
	}
}
