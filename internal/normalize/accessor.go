package normalize

import (
	"strconv"
	"strings"

	"ecolisting_ingest/internal/domain"
)

// Accessor reads one candidate value out of a raw record. It returns nil when
// the value is absent.
type Accessor func(raw domain.RawRecord) any

// Field reads a dotted path. Numeric segments index into arrays, so
// "photos.0" is the first photo and "geo.lat" a nested key.
func Field(path string) Accessor {
	segments := strings.Split(path, ".")
	return func(raw domain.RawRecord) any {
		var cur any = map[string]any(raw)
		for _, seg := range segments {
			switch node := cur.(type) {
			case map[string]any:
				v, ok := node[seg]
				if !ok {
					return nil
				}
				cur = v
			case domain.RawRecord:
				v, ok := node[seg]
				if !ok {
					return nil
				}
				cur = v
			case []any:
				i, err := strconv.Atoi(seg)
				if err != nil || i < 0 || i >= len(node) {
					return nil
				}
				cur = node[i]
			default:
				return nil
			}
		}
		return cur
	}
}

// Join concatenates the string forms of the present fields with sep, for
// addresses split into street number and street name.
func Join(sep string, paths ...string) Accessor {
	fields := make([]Accessor, len(paths))
	for i, p := range paths {
		fields[i] = Field(p)
	}
	return func(raw domain.RawRecord) any {
		var parts []string
		for _, f := range fields {
			if s := toString(f(raw)); s != nil {
				parts = append(parts, *s)
			}
		}
		if len(parts) == 0 {
			return nil
		}
		return strings.Join(parts, sep)
	}
}

// HalfBaths combines full and half bathroom counts as full + 0.5*half.
func HalfBaths(fullPath, halfPath string) Accessor {
	full, half := Field(fullPath), Field(halfPath)
	return func(raw domain.RawRecord) any {
		f, h := toNumber(full(raw)), toNumber(half(raw))
		if f == nil && h == nil {
			return nil
		}
		var total float64
		if f != nil {
			total += *f
		}
		if h != nil {
			total += 0.5 * *h
		}
		return total
	}
}

// first returns the first value that is present and not blank.
func first(raw domain.RawRecord, accessors []Accessor) any {
	for _, a := range accessors {
		v := a(raw)
		if present(v) {
			return v
		}
	}
	return nil
}

func present(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	case []any:
		return len(t) > 0
	}
	return true
}

func fields(paths ...string) []Accessor {
	out := make([]Accessor, len(paths))
	for i, p := range paths {
		out[i] = Field(p)
	}
	return out
}
