package aggregate

import (
	"fmt"
	"math"

	"github.com/parisxmas/kobodash/internal/models"
	"github.com/parisxmas/kobodash/internal/schemaindex"
)

const (
	DefaultBins = 10
	MaxBins     = 100
)

var ErrTooManyBins = fmt.Errorf("histogram accepts at most %d bins", MaxBins)

// Bin covers [Start, End); the last bin also includes End.
type Bin struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Count int     `json:"count"`
	Label string  `json:"label"`
}

// Histogram buckets the numeric values of field into equal-width bins
// spanning min..max. When every value is equal a single unit-width bin is
// returned.
func Histogram(field string, bins int, subs []*models.Submission, idx *schemaindex.Index) ([]Bin, error) {
	values := NumericValues(field, subs, idx)
	if len(values) == 0 {
		return nil, &InsufficientDataError{Field: field}
	}
	if bins <= 0 {
		bins = DefaultBins
	}
	if bins > MaxBins {
		return nil, ErrTooManyBins
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo == hi {
		bins = 1
		hi = lo + 1
	}
	// Dividing before subtracting keeps the width finite when hi-lo overflows.
	width := hi/float64(bins) - lo/float64(bins)

	out := make([]Bin, bins)
	for i := range out {
		start := lo + float64(i)*width
		end := start + width
		if i == bins-1 {
			end = hi
		}
		out[i] = Bin{Start: start, End: end, Label: fmt.Sprintf("%.2f-%.2f", start, end)}
	}
	for _, v := range values {
		out[binOf(v, lo, width, bins)].Count++
	}
	return out, nil
}

func binOf(v, lo, width float64, bins int) int {
	pos := math.Floor(v/width - lo/width)
	switch {
	case math.IsNaN(pos) || pos >= float64(bins):
		return bins - 1
	case pos < 0:
		return 0
	}
	return int(pos)
}
