package fields

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/parisxmas/kobodash/internal/cleaning"
	"github.com/parisxmas/kobodash/internal/models"
	"github.com/parisxmas/kobodash/internal/schemaindex"
)

// Stored returns the value stored at p, reading the cleaned payload when it
// holds the key and the raw payload otherwise. Nil and blank values are
// reported as absent.
func Stored(p Path, sub *models.Submission) (any, bool) {
	for _, payload := range sub.Views() {
		if payload == nil {
			continue
		}
		v, ok := cleaning.FlattenKeys(payload)[p.Key]
		if !ok {
			continue
		}
		if isBlank(v) {
			return nil, false
		}
		return v, true
	}
	return nil, false
}

// Extract returns the normalized value at p. Choice answers are converted
// through the schema: select_one yields a label string, select_multiple a
// []string of labels in answer order.
func Extract(p Path, sub *models.Submission, idx *schemaindex.Index) (any, bool) {
	v, ok := Stored(p, sub)
	if !ok {
		return nil, false
	}
	if p.Field == nil {
		return v, true
	}
	switch p.Field.Type {
	case schemaindex.TypeSelectOne:
		return idx.ResolveLabel(p.Field.FullPath(), String(v)), true
	case schemaindex.TypeSelectMultiple:
		codes := Codes(v)
		if len(codes) == 0 {
			return nil, false
		}
		labels := make([]string, len(codes))
		for i, c := range codes {
			labels[i] = idx.ResolveLabel(p.Field.FullPath(), c)
		}
		return labels, true
	}
	return v, true
}

// Value resolves and extracts in one step.
func Value(requested string, sub *models.Submission, idx *schemaindex.Index) (any, bool) {
	p, ok := Resolve(requested, sub, idx)
	if !ok {
		return nil, false
	}
	return Extract(p, sub, idx)
}

// NumericValue resolves requested and parses it as a number. Missing and
// non-numeric values are reported as absent, never as zero.
func NumericValue(requested string, sub *models.Submission, idx *schemaindex.Index) (float64, bool) {
	v, ok := Value(requested, sub, idx)
	if !ok {
		return 0, false
	}
	return Numeric(v)
}

// Codes splits a multiple-choice answer into its codes. Answers arrive as a
// space-separated string or as a list.
func Codes(v any) []string {
	switch t := v.(type) {
	case string:
		return strings.Fields(t)
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if isBlank(item) {
				continue
			}
			out = append(out, String(item))
		}
		return out
	case nil:
		return nil
	}
	return []string{String(v)}
}

// Numeric parses v as a finite number.
func Numeric(v any) (float64, bool) {
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
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// String is the canonical text form used for comparisons and grouping.
// Whole floats print without a fractional part, so 6.0 and "6" compare equal.
func String(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	case []string:
		return strings.Join(t, " ")
	}
	return fmt.Sprint(v)
}

func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	}
	return false
}
