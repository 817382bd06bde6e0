package live

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/parisxmas/kobodash/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestHub_DeliversPerForm(t *testing.T) {
	h := NewHub(nil)
	a := h.Subscribe("f1")
	b := h.Subscribe("f2")
	defer a.Close()
	defer b.Close()

	h.SyncFinished(context.Background(), &models.SyncLog{ID: "s1", FormUID: "f1", Status: models.SyncSuccess, RecordsAdded: 3})

	ev := <-a.C
	assert.Equal(t, EventFormUpdated, ev.Type)
	assert.Equal(t, "f1", ev.FormUID)
	assert.Equal(t, "s1", ev.SyncID)
	assert.Equal(t, 3, ev.RecordsAdded)
	assert.False(t, ev.Timestamp.IsZero())
	assert.Empty(t, b.C)
}

func TestHub_CloseUnsubscribes(t *testing.T) {
	h := NewHub(nil)
	s := h.Subscribe("f1")
	require.Equal(t, 1, h.Subscribers("f1"))

	s.Close()
	s.Close()
	assert.Zero(t, h.Subscribers("f1"))
	_, open := <-s.C
	assert.False(t, open)

	h.Publish(Event{Type: EventFormUpdated, FormUID: "f1"})
}

func TestHub_DropsSlowSubscriber(t *testing.T) {
	h := NewHub(nil)
	slow := h.Subscribe("f1")
	fast := h.Subscribe("f1")
	defer fast.Close()

	for i := 0; i <= sendBuffer; i++ {
		h.Publish(Event{Type: EventFormUpdated, FormUID: "f1", RecordsAdded: i})
		<-fast.C
	}

	assert.Equal(t, 1, h.Subscribers("f1"))
	n := 0
	for range slow.C {
		n++
	}
	assert.Equal(t, sendBuffer, n)
	slow.Close()
}
