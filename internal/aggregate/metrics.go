package aggregate

import (
	"fmt"
	"strings"

	"github.com/parisxmas/kobodash/internal/fields"
	"github.com/parisxmas/kobodash/internal/models"
	"github.com/parisxmas/kobodash/internal/schemaindex"
)

type MetricType string

const (
	MetricCount      MetricType = "count"
	MetricSum        MetricType = "sum"
	MetricAvg        MetricType = "avg"
	MetricPercentage MetricType = "percentage"
)

// Metric describes one aggregate column. Value is the comparison target for
// percentage metrics. Field "*" (or empty) counts every submission.
type Metric struct {
	Type  MetricType `json:"type"`
	Field string     `json:"field"`
	Alias string     `json:"alias,omitempty"`
	Value any        `json:"value,omitempty"`
}

func (m Metric) name() string {
	if m.Alias != "" {
		return m.Alias
	}
	f := m.Field
	if f == "" || f == "*" {
		f = "all"
	}
	return string(m.Type) + "_" + strings.ReplaceAll(f, "/", "_")
}

func (m Metric) validate() error {
	switch m.Type {
	case MetricCount:
		return nil
	case MetricSum, MetricAvg:
		if m.Field == "" || m.Field == "*" {
			return fmt.Errorf("metric %s requires a field", m.Type)
		}
	case MetricPercentage:
		if m.Field == "" || m.Field == "*" || m.Value == nil {
			return fmt.Errorf("metric percentage requires a field and a value")
		}
	default:
		return fmt.Errorf("unknown metric type %q", m.Type)
	}
	return nil
}

// Row is one output row: group-by values keyed by field name and metric
// values keyed by metric alias.
type Row map[string]any

type bucket struct {
	keys []any
	subs []*models.Submission
}

// Metrics groups subs by the tuple of normalized groupBy values (first-seen
// order) and computes each metric per group. Submissions missing a group-by
// value form their own group with a nil key. Averages over groups with no
// numeric value are nil, never zero.
func Metrics(groupBy []string, metrics []Metric, subs []*models.Submission, idx *schemaindex.Index) ([]Row, error) {
	if len(metrics) == 0 {
		return nil, fmt.Errorf("at least one metric is required")
	}
	for _, m := range metrics {
		if err := m.validate(); err != nil {
			return nil, err
		}
	}

	var order []string
	buckets := make(map[string]*bucket)
	for _, sub := range subs {
		keys := make([]any, len(groupBy))
		parts := make([]string, len(groupBy))
		for i, g := range groupBy {
			if v, ok := fields.Value(g, sub, idx); ok {
				s := groupKey(v)
				keys[i], parts[i] = s, "v:"+s
			} else {
				parts[i] = "nil"
			}
		}
		k := strings.Join(parts, "\x00")
		b, ok := buckets[k]
		if !ok {
			b = &bucket{keys: keys}
			buckets[k] = b
			order = append(order, k)
		}
		b.subs = append(b.subs, sub)
	}

	rows := make([]Row, 0, len(order))
	for _, k := range order {
		b := buckets[k]
		row := make(Row, len(groupBy)+len(metrics))
		for i, g := range groupBy {
			row[g] = b.keys[i]
		}
		for _, m := range metrics {
			row[m.name()] = compute(m, b.subs, idx)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func groupKey(v any) string {
	if labels, ok := v.([]string); ok {
		return strings.Join(labels, ", ")
	}
	return fields.String(v)
}

func compute(m Metric, subs []*models.Submission, idx *schemaindex.Index) any {
	switch m.Type {
	case MetricCount:
		if m.Field == "" || m.Field == "*" {
			return len(subs)
		}
		n := 0
		for _, sub := range subs {
			if _, ok := fields.Value(m.Field, sub, idx); ok {
				n++
			}
		}
		return n
	case MetricSum, MetricAvg:
		var sum float64
		n := 0
		for _, sub := range subs {
			if v, ok := fields.NumericValue(m.Field, sub, idx); ok {
				sum += v
				n++
			}
		}
		if m.Type == MetricSum {
			return sum
		}
		if n == 0 {
			return nil
		}
		return sum / float64(n)
	case MetricPercentage:
		if len(subs) == 0 {
			return 0.0
		}
		target := fields.String(m.Value)
		hits := 0
		for _, sub := range subs {
			if matchesValue(m.Field, target, sub, idx) {
				hits++
			}
		}
		return float64(hits) / float64(len(subs)) * 100
	}
	return nil
}

// matchesValue accepts either the label or the stored code.
func matchesValue(field, target string, sub *models.Submission, idx *schemaindex.Index) bool {
	p, ok := fields.Resolve(field, sub, idx)
	if !ok {
		return false
	}
	if v, ok := fields.Extract(p, sub, idx); ok {
		for _, l := range categoryLabels(v) {
			if l == target {
				return true
			}
		}
	}
	if v, ok := fields.Stored(p, sub); ok {
		for _, c := range fields.Codes(v) {
			if c == target {
				return true
			}
		}
	}
	return false
}
