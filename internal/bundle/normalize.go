package bundle

import (
	"math"
	"strconv"
	"strings"
)

// Default caps applied to widget payloads before they reach a prompt.
const (
	DefaultRowCap    = 80
	DefaultBucketCap = 60
)

// rowKeys are the wrapping keys widget endpoints put their rows under, in lookup order.
var rowKeys = []string{"rows", "data", "items", "buckets"}

// Normalize turns any widget payload into a uniform row sequence. A bare list is
// used as is; an object is searched for a rows/data/items/buckets list. Scalars
// inside a list become {"value": x}.
func Normalize(payload any) []Row {
	switch t := payload.(type) {
	case []any:
		return toRows(t)
	case []Row:
		return t
	case map[string]any:
		for _, k := range rowKeys {
			if list, ok := t[k].([]any); ok {
				return toRows(list)
			}
			if list, ok := t[k].([]Row); ok {
				return list
			}
		}
	}
	return nil
}

func toRows(list []any) []Row {
	out := make([]Row, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
			continue
		}
		out = append(out, Row{"value": item})
	}
	return out
}

// Trim caps oversized `rows` and `buckets` lists. Bare lists are capped at rowCap.
// The input is never modified.
func Trim(payload any, rowCap, bucketCap int) any {
	switch t := payload.(type) {
	case []any:
		if rowCap > 0 && len(t) > rowCap {
			return append([]any(nil), t[:rowCap]...)
		}
		return t
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, v := range t {
			out[k] = v
		}
		if rows, ok := out["rows"].([]any); ok && rowCap > 0 && len(rows) > rowCap {
			out["rows"] = append([]any(nil), rows[:rowCap]...)
		}
		if buckets, ok := out["buckets"].([]any); ok && bucketCap > 0 && len(buckets) > bucketCap {
			out["buckets"] = append([]any(nil), buckets[:bucketCap]...)
		}
		return out
	}
	return payload
}

// Number reads a numeric field from a row. Numeric strings ("12.5", "40%") are
// accepted; ok is false for anything else, including NaN.
func Number(r Row, keys ...string) (float64, bool) {
	for _, k := range keys {
		v, present := r[k]
		if !present || v == nil {
			continue
		}
		var f float64
		switch t := v.(type) {
		case float64:
			f = t
		case float32:
			f = float64(t)
		case int:
			f = float64(t)
		case int64:
			f = float64(t)
		case string:
			p, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(t), "%"), 64)
			if err != nil {
				continue
			}
			f = p
		default:
			continue
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		return f, true
	}
	return 0, false
}

// Text reads the first non-empty string field from a row.
func Text(r Row, keys ...string) string {
	for _, k := range keys {
		switch t := r[k].(type) {
		case string:
			if s := strings.TrimSpace(t); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64)
		}
	}
	return ""
}
