package handler

import (
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/parisxmas/kobodash/internal/live"
	"github.com/parisxmas/kobodash/internal/service"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	maxClientMessage = 4 << 10
)

// LiveHandler streams form update events over a websocket.
type LiveHandler struct {
	hub      *live.Hub
	forms    *service.FormService
	upgrader websocket.Upgrader
}

// NewLiveHandler accepts upgrades from the given origins; "*" allows any.
func NewLiveHandler(hub *live.Hub, forms *service.FormService, origins []string) *LiveHandler {
	return &LiveHandler{
		hub:   hub,
		forms: forms,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(origins, "*") || slices.Contains(origins, origin)
			},
		},
	}
}

// Form subscribes the connection to one form. Every client message is
// answered with a pong event.
func (h *LiveHandler) Form(w http.ResponseWriter, r *http.Request) {
	form, err := h.forms.Get(r.Context(), chi.URLParam(r, "formId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		return
	}
	defer conn.Close()

	sub := h.hub.Subscribe(form.UID)
	defer sub.Close()
	log := zap.L().With(zap.String("form", form.UID), zap.String("remote", r.RemoteAddr))
	log.Debug("live client connected")

	pings := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(maxClientMessage)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			select {
			case pings <- struct{}{}:
			default:
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		var ev any
		select {
		case <-done:
			log.Debug("live client disconnected")
			return
		case e, ok := <-sub.C:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too slow"), time.Now().Add(writeWait))
				return
			}
			ev = e
		case <-pings:
			ev = h.hub.Pong(form.UID)
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(ev); err != nil {
			log.Debug("live client write failed", zap.Error(err))
			return
		}
	}
}
