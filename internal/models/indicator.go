package models

import "time"

type IndicatorType string

const (
	IndicatorCount      IndicatorType = "count"
	IndicatorPercentage IndicatorType = "percentage"
	IndicatorAverage    IndicatorType = "average"
)

// Indicator is a headline figure derived from a form's stored submissions.
// Name is unique per form. Answer is the label a count or percentage
// indicator is about.
type Indicator struct {
	ID         int64         `json:"id"`
	FormUID    string        `json:"formUid"`
	Name       string        `json:"name"`
	Type       IndicatorType `json:"type"`
	Field      string        `json:"field"`
	Answer     string        `json:"answer,omitempty"`
	Value      float64       `json:"value"`
	ComputedAt time.Time     `json:"computedAt"`
}
