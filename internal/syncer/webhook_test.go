package syncer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parisxmas/kobodash/internal/models"
)

func TestParseWebhook(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Notification
	}{
		{"xform id", `{"_id": 42, "_xform_id_string": "aBc", "formhub": {"uuid": "zzz"}}`,
			Notification{EventKind: EventSubmissionCreated, FormUID: "aBc", RecordID: "42"}},
		{"form id wins over formhub uuid", `{"_id": 7, "formhub": {"uuid": "fh1"}, "form_id": "aBc"}`,
			Notification{EventKind: EventSubmissionCreated, FormUID: "aBc", RecordID: "7"}},
		{"form id", `{"form_id": "f9", "event": "submission.updated"}`,
			Notification{EventKind: "submission.updated", FormUID: "f9"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := ParseWebhook([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestParseWebhook_Invalid(t *testing.T) {
	for _, body := range []string{`not json`, `null`, `{"_id": 1}`, `{"_id": 1, "formhub": {"uuid": "fh1"}}`} {
		_, err := ParseWebhook([]byte(body))
		assert.Error(t, err, body)
	}
}

func TestHandleNotification_RunsIncremental(t *testing.T) {
	h := newHarness()

	l, err := h.o.HandleNotification(context.Background(), Notification{EventKind: "anything", FormUID: "f1"})
	require.NoError(t, err)
	assert.Equal(t, models.SyncIncremental, l.Kind)
	assert.Equal(t, models.SyncSuccess, l.Status)
}

func TestHandleNotification_UnregisteredForm(t *testing.T) {
	h := newHarness()

	_, err := h.o.HandleNotification(context.Background(), Notification{FormUID: "ghost"})
	assert.ErrorIs(t, err, ErrFormNotRegistered)
	assert.Zero(t, h.logs.len())
}
