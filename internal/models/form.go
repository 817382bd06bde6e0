package models

import (
	"encoding/json"
	"time"
)

// Form is a registered upstream form. Only registered forms are synced.
type Form struct {
	UID           string          `json:"uid"`
	Title         string          `json:"title"`
	Slug          string          `json:"slug"`
	Description   string          `json:"description,omitempty"`
	SchemaVersion string          `json:"schemaVersion,omitempty"`
	Schema        json.RawMessage `json:"-"`
	Cursor        string          `json:"cursor,omitempty"`
	LastSyncedAt  *time.Time      `json:"lastSyncedAt,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// HasSchema reports whether a schema document has been stored for the form.
func (f *Form) HasSchema() bool {
	return len(f.Schema) > 0
}
