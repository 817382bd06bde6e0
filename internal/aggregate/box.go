package aggregate

import (
	"math"
	"sort"

	"github.com/parisxmas/kobodash/internal/fields"
	"github.com/parisxmas/kobodash/internal/models"
	"github.com/parisxmas/kobodash/internal/schemaindex"
)

// WhiskerFactor scales the interquartile range to place the outlier fences.
const WhiskerFactor = 1.5

// Box is a five-number summary with outliers.
type Box struct {
	Field      string    `json:"field,omitempty"`
	Count      int       `json:"count"`
	Min        float64   `json:"min"`
	Max        float64   `json:"max"`
	Mean       float64   `json:"mean"`
	Q1         float64   `json:"q1"`
	Median     float64   `json:"median"`
	Q3         float64   `json:"q3"`
	WhiskerMin float64   `json:"whiskerMin"`
	WhiskerMax float64   `json:"whiskerMax"`
	Outliers   []float64 `json:"outliers"`
}

// NumericValues collects the numeric values of field across subs. Missing and
// non-numeric values are skipped.
func NumericValues(field string, subs []*models.Submission, idx *schemaindex.Index) []float64 {
	var out []float64
	for _, sub := range subs {
		if v, ok := fields.NumericValue(field, sub, idx); ok {
			out = append(out, v)
		}
	}
	return out
}

// BoxStats summarizes the numeric values of field.
func BoxStats(field string, subs []*models.Submission, idx *schemaindex.Index) (*Box, error) {
	b, err := Summarize(NumericValues(field, subs, idx))
	if err != nil {
		return nil, &InsufficientDataError{Field: field}
	}
	b.Field = field
	return b, nil
}

// Summarize computes quartiles by linear interpolation between closest ranks
// (rank = p*(n-1)). Whiskers are the most extreme values inside
// [Q1 - 1.5*IQR, Q3 + 1.5*IQR]; values beyond them are returned as outliers
// in ascending order.
func Summarize(values []float64) (*Box, error) {
	if len(values) == 0 {
		return nil, &InsufficientDataError{}
	}
	s := append([]float64(nil), values...)
	sort.Float64s(s)

	b := &Box{
		Count:    len(s),
		Min:      s[0],
		Max:      s[len(s)-1],
		Q1:       percentile(s, 0.25),
		Median:   percentile(s, 0.5),
		Q3:       percentile(s, 0.75),
		Outliers: []float64{},
	}
	var sum float64
	for _, v := range s {
		sum += v
	}
	b.Mean = sum / float64(len(s))

	iqr := b.Q3 - b.Q1
	lower := b.Q1 - WhiskerFactor*iqr
	upper := b.Q3 + WhiskerFactor*iqr
	b.WhiskerMin, b.WhiskerMax = math.Inf(1), math.Inf(-1)
	for _, v := range s {
		if v < lower || v > upper {
			b.Outliers = append(b.Outliers, v)
			continue
		}
		b.WhiskerMin = math.Min(b.WhiskerMin, v)
		b.WhiskerMax = math.Max(b.WhiskerMax, v)
	}
	return b, nil
}

// percentile expects sorted, non-empty input.
func percentile(sorted []float64, p float64) float64 {
	rank := p * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
