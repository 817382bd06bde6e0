package models

import "time"

// Submission holds two representations of one upstream record: the payload as
// received and a cleaned copy derived from it. Cleaned is nil when cleaning
// failed; it is never partially populated.
type Submission struct {
	ID          int64          `json:"id"`
	FormUID     string         `json:"formUid"`
	KoboID      string         `json:"koboId"`
	Raw         map[string]any `json:"raw"`
	Cleaned     map[string]any `json:"cleaned,omitempty"`
	ContentHash string         `json:"-"`
	SubmittedAt *time.Time     `json:"submittedAt,omitempty"`
	Latitude    *float64       `json:"latitude,omitempty"`
	Longitude   *float64       `json:"longitude,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// Views returns the payloads in read precedence: cleaned first, then raw.
func (s *Submission) Views() []map[string]any {
	if s.Cleaned != nil {
		return []map[string]any{s.Cleaned, s.Raw}
	}
	return []map[string]any{s.Raw}
}

// UpsertOutcome reports what storing a submission changed.
type UpsertOutcome int

const (
	Unchanged UpsertOutcome = iota
	Inserted
	Updated
)
