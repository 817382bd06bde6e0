package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/parisxmas/kobodash/internal/service"
)

type SyncHandler struct {
	svc *service.SyncService
}

func NewSyncHandler(svc *service.SyncService) *SyncHandler {
	return &SyncHandler{svc: svc}
}

// Trigger runs a sync and answers once it has finished. A failed sync
// still returns its logs together with the error.
func (h *SyncHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	var req service.SyncRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	logs, err := h.svc.Trigger(r.Context(), req)
	if err != nil && len(logs) == 0 {
		writeServiceError(w, r, err)
		return
	}
	body := map[string]any{"logs": logs}
	status := http.StatusOK
	if err != nil {
		body["error"] = err.Error()
		status = statusOf(err)
	}
	writeJSON(w, status, body)
}

func (h *SyncHandler) Logs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	logs, err := h.svc.Logs(r.Context(), r.URL.Query().Get("formId"), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Status(r.Context(), chi.URLParam(r, "formId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Webhook receives REST-service notifications and syncs the form they name.
func (h *SyncHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	l, err := h.svc.Notify(r.Context(), body)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, l)
}
