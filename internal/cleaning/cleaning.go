// Package cleaning derives the normalized copy of a raw submission payload.
package cleaning

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Separator joins group names in flattened keys.
const Separator = "/"

var nullEquivalents = map[string]bool{
	"":     true,
	"null": true,
	"NULL": true,
	"Null": true,
	"None": true,
	"none": true,
	"NaN":  true,
	"nan":  true,
	"n/a":  true,
	"N/A":  true,
}

// Clean flattens nested groups into "/"-joined keys, trims strings and turns
// null-equivalent strings into nil. Repeat groups stay as lists and gain a
// "<key>_count" sibling. It fails, returning nil, when two source keys
// flatten onto one key with different values.
func Clean(raw map[string]any) (map[string]any, error) {
	if raw == nil {
		return nil, fmt.Errorf("clean: nil payload")
	}
	out := make(map[string]any, len(raw))
	if err := flatten(out, "", raw); err != nil {
		return nil, err
	}
	return out, nil
}

func flatten(out map[string]any, prefix string, m map[string]any) error {
	for k, v := range m {
		key := joinKey(prefix, k)
		switch t := v.(type) {
		case map[string]any:
			if err := flatten(out, key, t); err != nil {
				return err
			}
		case []any:
			if isRepeat(t) {
				if err := put(out, key+"_count", float64(len(t))); err != nil {
					return err
				}
				if err := put(out, key, cleanList(t)); err != nil {
					return err
				}
				continue
			}
			if err := put(out, key, cleanList(t)); err != nil {
				return err
			}
		default:
			if err := put(out, key, normalize(v)); err != nil {
				return err
			}
		}
	}
	return nil
}

// joinKey avoids double prefixes: upstream nested objects often already carry
// the full group path in their keys ("group": {"group/q": 1}).
func joinKey(prefix, key string) string {
	if prefix == "" || strings.HasPrefix(key, prefix+Separator) {
		return key
	}
	return prefix + Separator + key
}

func put(out map[string]any, key string, v any) error {
	if prev, ok := out[key]; ok && !reflect.DeepEqual(prev, v) {
		return fmt.Errorf("clean: conflicting values for key %q", key)
	}
	out[key] = v
	return nil
}

func isRepeat(list []any) bool {
	for _, item := range list {
		if _, ok := item.(map[string]any); ok {
			return true
		}
	}
	return false
}

func cleanList(list []any) []any {
	out := make([]any, 0, len(list))
	for _, item := range list {
		switch t := item.(type) {
		case map[string]any:
			inner := make(map[string]any, len(t))
			for k, v := range t {
				inner[k] = normalize(v)
			}
			out = append(out, inner)
		default:
			out = append(out, normalize(item))
		}
	}
	return out
}

func normalize(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	s = strings.TrimSpace(s)
	if nullEquivalents[s] {
		return nil
	}
	return s
}

// ContentHash is a stable digest of a payload. encoding/json sorts map keys,
// so equal payloads hash equally regardless of key order.
func ContentHash(raw map[string]any) (string, error) {
	b, err := json.Marshal(raw)
	if err != nil {
		return "", fmt.Errorf("hash payload: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// RecordID returns the upstream record identifier ("_id", then "id").
func RecordID(raw map[string]any) string {
	for _, k := range []string{"_id", "id", "_uuid"} {
		switch v := raw[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case json.Number:
			return v.String()
		}
	}
	return ""
}

// SubmittedAt parses "_submission_time" when present.
func SubmittedAt(raw map[string]any) *time.Time {
	s, _ := raw["_submission_time"].(string)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// ExtractLocation finds a latitude/longitude pair in the common upstream
// location fields.
func ExtractLocation(raw map[string]any) (lat, lng *float64) {
	for _, k := range []string{"_geolocation", "geolocation", "location", "coordinates"} {
		switch loc := raw[k].(type) {
		case []any:
			if len(loc) >= 2 {
				a, okA := toFloat(loc[0])
				b, okB := toFloat(loc[1])
				if okA && okB {
					return &a, &b
				}
			}
		case map[string]any:
			a, okA := firstFloat(loc, "latitude", "lat")
			b, okB := firstFloat(loc, "longitude", "lng", "lon")
			if okA && okB {
				return &a, &b
			}
		case string:
			// geopoint answers: "lat lng alt accuracy"
			parts := strings.Fields(loc)
			if len(parts) >= 2 {
				a, errA := strconv.ParseFloat(parts[0], 64)
				b, errB := strconv.ParseFloat(parts[1], 64)
				if errA == nil && errB == nil {
					return &a, &b
				}
			}
		}
	}
	return nil, nil
}

func firstFloat(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if f, ok := toFloat(m[k]); ok {
			return f, true
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

// FlattenKeys returns m with nested objects flattened into "/"-joined keys and
// values left untouched. On colliding keys the later one wins. A payload
// without nested objects is returned as is.
func FlattenKeys(m map[string]any) map[string]any {
	nested := false
	for _, v := range m {
		if _, ok := v.(map[string]any); ok {
			nested = true
			break
		}
	}
	if !nested {
		return m
	}
	out := make(map[string]any, len(m))
	flattenLoose(out, "", m)
	return out
}

func flattenLoose(out map[string]any, prefix string, m map[string]any) {
	for k, v := range m {
		key := joinKey(prefix, k)
		if inner, ok := v.(map[string]any); ok {
			flattenLoose(out, key, inner)
			continue
		}
		out[key] = v
	}
}
