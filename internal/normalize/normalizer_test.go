package normalize

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecolisting_ingest/internal/domain"
)

func decode(t *testing.T, s string) domain.RawRecord {
	t.Helper()
	var raw domain.RawRecord
	require.NoError(t, json.Unmarshal([]byte(s), &raw))
	return raw
}

func reason(err error) string {
	var rej *RejectError
	if errors.As(err, &rej) {
		return rej.Reason
	}
	return ""
}

func TestNormalize_SimplyRETSRecord(t *testing.T) {
	n := New("simplyrets", SimplyRETS(), Policy{})
	raw := decode(t, `{
		"mlsId": 1005227,
		"listPrice": 419294,
		"address": {"streetNumber": 65991, "streetName": "North THE PASEO Fwy", "city": " Oak Ridge "},
		"geo": {"lat": 29.746832, "lng": -95.57128},
		"property": {"bedrooms": 3, "bathsFull": 2, "bathsHalf": 1, "area": 1820.6},
		"photos": ["https://img/1.jpg", "", "https://img/2.jpg", "https://img/1.jpg"]
	}`)

	l, err := n.Normalize(raw)
	require.NoError(t, err)

	assert.Equal(t, "1005227", l.ExternalID)
	assert.Equal(t, "simplyrets", l.SourceID)
	assert.Equal(t, 419294.0, *l.Price)
	assert.Equal(t, "65991 North THE PASEO Fwy", *l.AddressLine)
	assert.Equal(t, "Oak Ridge", *l.City)
	assert.Equal(t, 2.5, *l.Baths)
	assert.Equal(t, 3, *l.Beds)
	assert.Equal(t, 1821, *l.Sqft)
	assert.Equal(t, "for-sale", *l.Status)
	assert.Equal(t, "https://img/1.jpg", *l.ImageURL)
	assert.Equal(t, []string{"https://img/1.jpg", "https://img/2.jpg"}, l.Photos)
	require.NotNil(t, l.Geohash)
	assert.Len(t, *l.Geohash, geohashPrecision)
}

func TestNormalize_ListingIDIsDeterministic(t *testing.T) {
	n := New("feed", Feed(), Policy{})

	a, err := n.Normalize(domain.RawRecord{"mls_id": "A"})
	require.NoError(t, err)
	b, err := n.Normalize(domain.RawRecord{"id": "A", "price": 5})
	require.NoError(t, err)
	c, err := n.Normalize(domain.RawRecord{"mls_id": "B"})
	require.NoError(t, err)

	assert.Equal(t, a.ID, b.ID)
	assert.NotEqual(t, a.ID, c.ID)
}

func TestNormalize_AliasOrder(t *testing.T) {
	n := New("feed", Feed(), Policy{})

	l, err := n.Normalize(domain.RawRecord{
		"mls_id":     "  ",
		"id":         "fallback",
		"list_price": nil,
		"price":      "1,250,000",
		"lat":        "29.7",
		"lng":        -95.5,
		"status_raw": "for lease",
	})
	require.NoError(t, err)

	assert.Equal(t, "fallback", l.ExternalID)
	assert.Equal(t, 1250000.0, *l.Price)
	assert.Equal(t, 29.7, *l.Latitude)
	assert.Equal(t, -95.5, *l.Longitude)
	assert.Equal(t, "for lease", *l.Status)
}

func TestNormalize_RepliersSizeText(t *testing.T) {
	n := New("repliers", Repliers(), Policy{})

	l, err := n.Normalize(decode(t, `{
		"MlsNumber": "W123",
		"Building": {"SizeInterior": "1200-1399 sqft"},
		"Photos": ["https://cdn/a.jpg"]
	}`))
	require.NoError(t, err)

	assert.Equal(t, "W123", l.ExternalID)
	assert.Equal(t, 1200, *l.Sqft)
	assert.Nil(t, l.Status)
	assert.Equal(t, "https://cdn/a.jpg", *l.ImageURL)
}

func TestNormalize_RejectsMissingExternalID(t *testing.T) {
	n := New("feed", Feed(), Policy{})

	for _, raw := range []domain.RawRecord{
		{},
		{"mls_id": ""},
		{"mls_id": "   "},
		{"mls_id": nil, "price": 100},
		{"mls_id": map[string]any{"nested": "x"}},
	} {
		_, err := n.Normalize(raw)
		assert.Equal(t, ReasonMissingExternalID, reason(err), "raw=%v", raw)
	}
}

func TestNormalize_RequiredFieldPolicy(t *testing.T) {
	n := New("feed", Feed(), Policy{RequireCoordinates: true, RequirePositivePrice: true})

	_, err := n.Normalize(domain.RawRecord{"mls_id": "1", "price": 100, "lat": 1})
	assert.Equal(t, ReasonMissingCoordinates, reason(err))

	_, err = n.Normalize(domain.RawRecord{"mls_id": "1", "price": 0, "lat": 1, "lon": 2})
	assert.Equal(t, ReasonNonPositivePrice, reason(err))

	_, err = n.Normalize(domain.RawRecord{"mls_id": "1", "lat": 1, "lon": 2})
	assert.Equal(t, ReasonNonPositivePrice, reason(err))

	l, err := n.Normalize(domain.RawRecord{"mls_id": "1", "price": 100, "lat": 1, "lon": 2})
	require.NoError(t, err)
	assert.True(t, l.HasCoordinates())
}

func TestNormalize_WithoutPolicyCoordinatesAreIndependent(t *testing.T) {
	n := New("feed", Feed(), Policy{})

	l, err := n.Normalize(domain.RawRecord{"mls_id": "1", "lat": 45})
	require.NoError(t, err)
	assert.Equal(t, 45.0, *l.Latitude)
	assert.Nil(t, l.Longitude)
	assert.Nil(t, l.Geohash)
}

func TestNormalize_BoundsPolicy(t *testing.T) {
	bounds := orb.Bound{Min: orb.Point{-96, 29}, Max: orb.Point{-95, 30}}
	n := New("feed", Feed(), Policy{Bounds: &bounds})

	_, err := n.Normalize(domain.RawRecord{"mls_id": "in", "lat": 29.5, "lon": -95.5})
	assert.NoError(t, err)

	_, err = n.Normalize(domain.RawRecord{"mls_id": "out", "lat": 40.7, "lon": -74})
	assert.Equal(t, ReasonOutOfBounds, reason(err))
}

func TestNormalize_OutOfRangeCoordinatesDropped(t *testing.T) {
	n := New("feed", Feed(), Policy{})

	l, err := n.Normalize(domain.RawRecord{"mls_id": "1", "lat": 95.0, "lon": -200})
	require.NoError(t, err)
	assert.Nil(t, l.Latitude)
	assert.Nil(t, l.Longitude)
}

func TestNormalize_OutOfRangeSizesDropped(t *testing.T) {
	n := New("feed", Feed(), Policy{})

	tests := []struct {
		name string
		raw  domain.RawRecord
	}{
		{name: "negative", raw: domain.RawRecord{"mls_id": "1", "baths": -1, "beds": -2, "sqft": -300}},
		{name: "overflow", raw: domain.RawRecord{"mls_id": "2", "baths": 1000, "beds": 3, "sqft": 900}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := n.Normalize(tt.raw)
			require.NoError(t, err)
			assert.Nil(t, l.Baths)
			if tt.name == "negative" {
				assert.Nil(t, l.Beds)
				assert.Nil(t, l.Sqft)
			} else {
				require.NotNil(t, l.Beds)
				assert.Equal(t, 3, *l.Beds)
			}
		})
	}

	l, err := n.Normalize(domain.RawRecord{"mls_id": "3", "baths": 999.9})
	require.NoError(t, err)
	require.NotNil(t, l.Baths)
	assert.Equal(t, 999.9, *l.Baths)
}

func TestNormalize_PhotosCapped(t *testing.T) {
	n := New("feed", Feed(), Policy{MaxPhotos: 2})

	l, err := n.Normalize(domain.RawRecord{"mls_id": "1", "photos": []any{"a", "b", "c"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, l.Photos)
}

func TestToNumber_NonNumericAndNonFinite(t *testing.T) {
	for _, v := range []any{
		nil, "", "abc", "NaN", "Infinity", "-Inf", "1e400", true,
		math.NaN(), math.Inf(1), math.Inf(-1),
		map[string]any{}, []any{1}, json.Number("x"),
	} {
		assert.Nil(t, toNumber(v), "v=%v", v)
	}
}

func TestToNumber_Accepted(t *testing.T) {
	cases := map[any]float64{
		"42":             42,
		" 3.5 ":          3.5,
		"$1,234.50":      1234.5,
		"-95.57":         -95.57,
		7:                7,
		json.Number("8"): 8,
		2.25:             2.25,
	}
	for in, want := range cases {
		got := toNumber(in)
		require.NotNil(t, got, "in=%v", in)
		assert.Equal(t, want, *got)
	}
}

func TestToString(t *testing.T) {
	assert.Nil(t, toString(nil))
	assert.Nil(t, toString("   "))
	assert.Nil(t, toString([]any{"a"}))
	assert.Equal(t, "abc", *toString("  abc "))
	assert.Equal(t, "1005227", *toString(1005227.0))
	assert.Equal(t, "12", *toString(json.Number("12")))
	// decomposed e + combining acute becomes the composed form
	assert.Equal(t, "Caf\u00e9", *toString("Cafe\u0301"))
}

func TestProfileFor(t *testing.T) {
	for _, id := range []string{"simplyrets", "repliers", "feed"} {
		p, ok := ProfileFor(id)
		assert.True(t, ok)
		assert.Equal(t, id, p.Name)
	}
	_, ok := ProfileFor("zillow")
	assert.False(t, ok)
}
