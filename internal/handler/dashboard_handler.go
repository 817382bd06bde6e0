package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/parisxmas/kobodash/internal/service"
)

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type DashboardHandler struct {
	svc     *service.DashboardService
	db      Pinger
	version string
}

func NewDashboardHandler(svc *service.DashboardService, db Pinger, version string) *DashboardHandler {
	return &DashboardHandler{svc: svc, db: db, version: version}
}

func (h *DashboardHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ov, err := h.svc.Overview(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

func (h *DashboardHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.db.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": h.version})
}
