// Package live fans form update events out to connected dashboard clients.
package live

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/parisxmas/kobodash/internal/models"
)

const (
	EventFormUpdated = "form_updated"
	EventPong        = "pong"
)

// sendBuffer is how many events a subscriber may fall behind before it is
// dropped.
const sendBuffer = 16

type Event struct {
	Type           string            `json:"type"`
	FormUID        string            `json:"formId"`
	SyncID         string            `json:"syncId,omitempty"`
	Status         models.SyncStatus `json:"status,omitempty"`
	RecordsAdded   int               `json:"recordsAdded"`
	RecordsUpdated int               `json:"recordsUpdated"`
	Timestamp      time.Time         `json:"timestamp"`
}

// Subscription receives the events of one form. C is closed when the
// subscription is cancelled or the subscriber fell too far behind.
type Subscription struct {
	C <-chan Event

	hub     *Hub
	formUID string
	ch      chan Event
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s)
}

// Hub tracks subscribers per form. Publishing never blocks on a subscriber.
type Hub struct {
	log *zap.Logger
	now func() time.Time

	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		log:  log,
		now:  func() time.Time { return time.Now().UTC() },
		subs: make(map[string]map[*Subscription]struct{}),
	}
}

func (h *Hub) Subscribe(formUID string) *Subscription {
	ch := make(chan Event, sendBuffer)
	s := &Subscription{C: ch, hub: h, formUID: formUID, ch: ch}

	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[formUID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[formUID] = set
	}
	set[s] = struct{}{}
	h.log.Debug("subscriber joined", zap.String("form", formUID), zap.Int("subscribers", len(set)))
	return s
}

// Publish delivers ev to every subscriber of its form. A subscriber whose
// buffer is full is dropped.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs[ev.FormUID] {
		select {
		case s.ch <- ev:
		default:
			h.log.Warn("dropping slow subscriber", zap.String("form", ev.FormUID))
			h.removeLocked(s)
		}
	}
}

// Subscribers returns the number of live subscriptions for a form.
func (h *Hub) Subscribers(formUID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[formUID])
}

// SyncFinished announces a stored sync batch to the form's subscribers.
func (h *Hub) SyncFinished(_ context.Context, l *models.SyncLog) {
	h.Publish(Event{
		Type:           EventFormUpdated,
		FormUID:        l.FormUID,
		SyncID:         l.ID,
		Status:         l.Status,
		RecordsAdded:   l.RecordsAdded,
		RecordsUpdated: l.RecordsUpdated,
		Timestamp:      h.now(),
	})
}

// Pong is the reply to a client message on a form's channel.
func (h *Hub) Pong(formUID string) Event {
	return Event{Type: EventPong, FormUID: formUID, Timestamp: h.now()}
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(s)
}

func (h *Hub) removeLocked(s *Subscription) {
	set := h.subs[s.formUID]
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	close(s.ch)
	if len(set) == 0 {
		delete(h.subs, s.formUID)
	}
}
