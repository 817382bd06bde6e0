// Package aggregate computes the chart payloads served to dashboards.
package aggregate

import (
	"strings"
	"unicode"

	"github.com/parisxmas/kobodash/internal/fields"
	"github.com/parisxmas/kobodash/internal/models"
	"github.com/parisxmas/kobodash/internal/schemaindex"
)

type Category struct {
	Label string `json:"category"`
	Count int    `json:"count"`
}

type GroupResult struct {
	Field              string     `json:"field"`
	FieldLabel         string     `json:"fieldLabel"`
	Items              []Category `json:"items"`
	TotalSubmissions   int        `json:"totalSubmissions"`
	Counted            int        `json:"counted"`
	DistinctCategories int        `json:"distinctCategories"`
}

// GroupBy counts submissions per normalized value of field. Categories keep
// the order in which they were first seen; submissions without a value are
// left out rather than bucketed. Each label of a multiple-choice answer is
// counted once.
func GroupBy(field string, subs []*models.Submission, idx *schemaindex.Index) *GroupResult {
	res := &GroupResult{
		Field:            field,
		FieldLabel:       FieldLabel(field, idx),
		Items:            []Category{},
		TotalSubmissions: len(subs),
	}
	pos := make(map[string]int)
	for _, sub := range subs {
		v, ok := fields.Value(field, sub, idx)
		if !ok {
			continue
		}
		labels := categoryLabels(v)
		if len(labels) == 0 {
			continue
		}
		res.Counted++
		for _, label := range labels {
			if i, seen := pos[label]; seen {
				res.Items[i].Count++
				continue
			}
			pos[label] = len(res.Items)
			res.Items = append(res.Items, Category{Label: label, Count: 1})
		}
	}
	res.DistinctCategories = len(res.Items)
	return res
}

func categoryLabels(v any) []string {
	var raw []string
	if labels, ok := v.([]string); ok {
		raw = labels
	} else {
		raw = []string{fields.String(v)}
	}
	out := raw[:0:0]
	for _, l := range raw {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// FieldLabel returns the schema label for field, or a readable form of its
// last path segment ("info/hh_size" -> "Hh Size").
func FieldLabel(field string, idx *schemaindex.Index) string {
	if f, ok := idx.Lookup(field); ok && f.Label != "" {
		return f.Label
	}
	name := strings.Trim(field, "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	words := strings.Fields(strings.ReplaceAll(name, "_", " "))
	for i, w := range words {
		r := []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
