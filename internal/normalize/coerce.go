package normalize

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	numberNoise   = regexp.MustCompile(`[\s,$€£]`)
	leadingNumber = regexp.MustCompile(`\d+(?:\.\d+)?`)
)

// toNumber coerces v to a finite float. Anything that is not a number, or
// parses to NaN or an infinity, yields nil.
func toNumber(v any) *float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		s := numberNoise.ReplaceAllString(strings.TrimSpace(n), "")
		if s == "" {
			return nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// toInt rounds a numeric value. Text such as "1200-1399 sqft" falls back to
// its first number.
func toInt(v any) *int {
	f := toNumber(v)
	if f == nil {
		s, ok := v.(string)
		if !ok {
			return nil
		}
		m := leadingNumber.FindString(s)
		if m == "" {
			return nil
		}
		f = toNumber(m)
		if f == nil {
			return nil
		}
	}
	if math.Abs(*f) > math.MaxInt32 {
		return nil
	}
	i := int(math.Round(*f))
	return &i
}

// toString trims and NFC-normalizes scalars. Blank strings and non-scalar
// values yield nil.
func toString(v any) *string {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case json.Number:
		s = t.String()
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil
		}
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		s = strconv.Itoa(t)
	case int64:
		s = strconv.FormatInt(t, 10)
	case bool:
		s = strconv.FormatBool(t)
	default:
		return nil
	}
	s = strings.TrimSpace(norm.NFC.String(s))
	if s == "" {
		return nil
	}
	return &s
}

func toStrings(v any) []string {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s := toString(item); s != nil {
				out = append(out, *s)
			}
		}
		return out
	case []string:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s := toString(item); s != nil {
				out = append(out, *s)
			}
		}
		return out
	case string:
		if s := toString(t); s != nil {
			return []string{*s}
		}
	}
	return nil
}
