package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/parisxmas/kobodash/internal/cleaning"
	"github.com/parisxmas/kobodash/internal/models"
)

const EventSubmissionCreated = "submission.created"

// Notification is an upstream change event for one form.
type Notification struct {
	EventKind string `json:"eventKind"`
	FormUID   string `json:"formUid"`
	RecordID  string `json:"recordId,omitempty"`
}

// ParseWebhook reads a REST-service payload posted by the upstream platform.
// The form is identified by "_xform_id_string", falling back to "form_id".
// "formhub/uuid" names the XForm build, not the asset, and is never used.
func ParseWebhook(body []byte) (Notification, error) {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return Notification{}, fmt.Errorf("decode webhook: %w", err)
	}
	if payload == nil {
		return Notification{}, errors.New("decode webhook: empty payload")
	}

	n := Notification{EventKind: EventSubmissionCreated, RecordID: cleaning.RecordID(payload)}
	if ev, ok := payload["event"].(string); ok && ev != "" {
		n.EventKind = ev
	}
	flat := cleaning.FlattenKeys(payload)
	for _, k := range []string{"_xform_id_string", "form_id"} {
		if s, ok := flat[k].(string); ok && s != "" {
			n.FormUID = s
			break
		}
	}
	if n.FormUID == "" {
		return n, errors.New("webhook payload does not identify a form")
	}
	return n, nil
}

// HandleNotification runs an incremental sync for the notified form,
// whatever the event kind.
func (o *Orchestrator) HandleNotification(ctx context.Context, n Notification) (*models.SyncLog, error) {
	if n.FormUID == "" {
		return nil, errors.New("notification has no form")
	}
	return o.Run(ctx, n.FormUID, models.SyncIncremental)
}
