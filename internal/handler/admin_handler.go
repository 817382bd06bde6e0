package handler

import (
	"context"
	"net/http"
	"time"
)

// Compactor reclaims storage space.
type Compactor interface {
	Compact(ctx context.Context) error
}

type AdminHandler struct {
	db Compactor
}

func NewAdminHandler(db Compactor) *AdminHandler {
	return &AdminHandler{db: db}
}

func (h *AdminHandler) Compact(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if err := h.db.Compact(r.Context()); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"compacted": true, "took": time.Since(start).String()})
}
