package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"ecolisting_ingest/internal/normalize"
	"ecolisting_ingest/internal/retry"
)

// Flag is a boolean that accepts the usual truthy spellings: 1, true, yes,
// on (any case). Empty means false.
type Flag bool

func (f *Flag) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "1", "true", "yes", "on", "y", "t":
		*f = true
	case "", "0", "false", "no", "off", "n", "f":
		*f = false
	default:
		return fmt.Errorf("invalid boolean %q", string(text))
	}
	return nil
}

// PhotoStrategy selects how a listing's photo set is written.
type PhotoStrategy string

const (
	// PhotoReplace makes the stored set equal to the incoming one.
	PhotoReplace PhotoStrategy = "replace"
	// PhotoMerge adds incoming photos and keeps unknown stored ones.
	PhotoMerge PhotoStrategy = "merge"
	PhotoOff   PhotoStrategy = "off"
)

func (s PhotoStrategy) Valid() bool {
	switch s {
	case PhotoReplace, PhotoMerge, PhotoOff:
		return true
	}
	return false
}

func (r RetryConfig) Policy() retry.Policy {
	return retry.Policy{
		MaxAttempts: r.MaxAttempts,
		BaseDelay:   r.BaseDelay,
		MaxDelay:    r.MaxDelay,
	}
}

// Policy builds the normalizer policy from the required-field list and the
// market bounding box.
func (n NormalizeConfig) Policy() (normalize.Policy, error) {
	p := normalize.Policy{
		DefaultStatus: n.DefaultStatus,
		MaxPhotos:     n.MaxPhotos,
	}

	for _, f := range n.RequiredFields {
		switch f {
		case "coordinates", "coords", "latlon":
			p.RequireCoordinates = true
		case "price":
			p.RequirePositivePrice = true
		default:
			return normalize.Policy{}, fmt.Errorf("unknown required field %q", f)
		}
	}

	if n.MarketBBox != "" {
		bound, err := ParseBBox(n.MarketBBox)
		if err != nil {
			return normalize.Policy{}, err
		}
		p.Bounds = &bound
	}

	return p, nil
}

// ParseBBox parses "minLon,minLat,maxLon,maxLat".
func ParseBBox(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("MARKET_BBOX %q: want minLon,minLat,maxLon,maxLat", s)
	}

	var v [4]float64
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("MARKET_BBOX %q: %w", s, err)
		}
		v[i] = f
	}

	if v[0] > v[2] || v[1] > v[3] {
		return orb.Bound{}, fmt.Errorf("MARKET_BBOX %q: min corner exceeds max corner", s)
	}
	if v[1] < -90 || v[3] > 90 || v[0] < -180 || v[2] > 180 {
		return orb.Bound{}, fmt.Errorf("MARKET_BBOX %q: out of range", s)
	}

	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}
