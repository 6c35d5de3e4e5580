// Package normalize maps provider records onto the canonical listing row.
package normalize

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/mmcloughlin/geohash"
	"github.com/paulmach/orb"

	"ecolisting_ingest/internal/domain"
)

// Rejection reasons.
const (
	ReasonMissingExternalID  = "missing_external_id"
	ReasonMissingCoordinates = "missing_coordinates"
	ReasonNonPositivePrice   = "non_positive_price"
	ReasonOutOfBounds        = "out_of_bounds"
)

const (
	geohashPrecision = 9
	maxBaths         = 999.9

	DefaultMaxPhotos = 32
)

// listingNamespace seeds the name-based listing UUIDs so the same external id
// always maps to the same row id.
var listingNamespace = uuid.MustParse("6a1b2a31-8d6a-4f3a-8cbf-b9a0033992e0")

// RejectError is returned for records that must not reach the sink.
type RejectError struct {
	Reason     string
	ExternalID string
}

func (e *RejectError) Error() string {
	if e.ExternalID == "" {
		return fmt.Sprintf("record rejected: %s", e.Reason)
	}
	return fmt.Sprintf("record %s rejected: %s", e.ExternalID, e.Reason)
}

// Policy is the set of checks beyond the always-required external id.
type Policy struct {
	RequireCoordinates   bool
	RequirePositivePrice bool
	// Bounds, when set, rejects rows whose coordinates fall outside it.
	Bounds        *orb.Bound
	DefaultStatus string
	MaxPhotos     int
}

type Normalizer struct {
	sourceID string
	profile  Profile
	policy   Policy
}

func New(sourceID string, profile Profile, policy Policy) *Normalizer {
	if policy.MaxPhotos <= 0 {
		policy.MaxPhotos = DefaultMaxPhotos
	}
	if policy.DefaultStatus == "" {
		policy.DefaultStatus = profile.DefaultStatus
	}
	return &Normalizer{
		sourceID: sourceID,
		profile:  profile,
		policy:   policy,
	}
}

// Normalize maps one raw record. It has no side effects; a rejected record
// comes back as a *RejectError.
func (n *Normalizer) Normalize(raw domain.RawRecord) (domain.Listing, error) {
	p := n.profile

	externalID := toString(first(raw, p.ExternalID))
	if externalID == nil {
		return domain.Listing{}, &RejectError{Reason: ReasonMissingExternalID}
	}

	listing := domain.Listing{
		ID:          uuid.NewSHA1(listingNamespace, []byte("mls:"+*externalID)),
		SourceID:    n.sourceID,
		ExternalID:  *externalID,
		Price:       toNumber(first(raw, p.Price)),
		AddressLine: toString(first(raw, p.Address)),
		City:        toString(first(raw, p.City)),
		Latitude:    latitude(first(raw, p.Latitude)),
		Longitude:   longitude(first(raw, p.Longitude)),
		ImageURL:    toString(first(raw, p.ImageURL)),
		Status:      toString(first(raw, p.Status)),
		Beds:        count(first(raw, p.Beds)),
		Baths:       baths(first(raw, p.Baths)),
		Sqft:        count(first(raw, p.Sqft)),
		Photos:      n.photos(raw),
	}

	if listing.Status == nil && n.policy.DefaultStatus != "" {
		status := n.policy.DefaultStatus
		listing.Status = &status
	}
	if listing.ImageURL == nil && len(listing.Photos) > 0 {
		img := listing.Photos[0]
		listing.ImageURL = &img
	}
	if listing.HasCoordinates() {
		gh := geohash.EncodeWithPrecision(*listing.Latitude, *listing.Longitude, geohashPrecision)
		listing.Geohash = &gh
	}

	if err := n.check(&listing); err != nil {
		return domain.Listing{}, err
	}

	return listing, nil
}

func (n *Normalizer) check(l *domain.Listing) error {
	if n.policy.RequireCoordinates && !l.HasCoordinates() {
		return &RejectError{Reason: ReasonMissingCoordinates, ExternalID: l.ExternalID}
	}
	if n.policy.RequirePositivePrice && (l.Price == nil || *l.Price <= 0) {
		return &RejectError{Reason: ReasonNonPositivePrice, ExternalID: l.ExternalID}
	}
	if n.policy.Bounds != nil && l.HasCoordinates() {
		if !n.policy.Bounds.Contains(orb.Point{*l.Longitude, *l.Latitude}) {
			return &RejectError{Reason: ReasonOutOfBounds, ExternalID: l.ExternalID}
		}
	}
	return nil
}

func (n *Normalizer) photos(raw domain.RawRecord) []string {
	urls := toStrings(first(raw, n.profile.Photos))
	if len(urls) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
		if len(out) == n.policy.MaxPhotos {
			break
		}
	}
	return out
}

func latitude(v any) *float64 {
	f := toNumber(v)
	if f == nil || *f < -90 || *f > 90 {
		return nil
	}
	return f
}

// baths must fit the NUMERIC(4, 1) column.
func baths(v any) *float64 {
	f := toNumber(v)
	if f == nil || *f < 0 || *f > maxBaths {
		return nil
	}
	return f
}

func count(v any) *int {
	i := toInt(v)
	if i == nil || *i < 0 {
		return nil
	}
	return i
}

func longitude(v any) *float64 {
	f := toNumber(v)
	if f == nil || *f < -180 || *f > 180 {
		return nil
	}
	return f
}
