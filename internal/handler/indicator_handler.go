package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/parisxmas/kobodash/internal/service"
)

type IndicatorHandler struct {
	svc *service.IndicatorService
}

func NewIndicatorHandler(svc *service.IndicatorService) *IndicatorHandler {
	return &IndicatorHandler{svc: svc}
}

// List returns every indicator, or one form's when formId is given.
func (h *IndicatorHandler) List(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, r.URL.Query().Get("formId"))
}

func (h *IndicatorHandler) ForForm(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, chi.URLParam(r, "formId"))
}

func (h *IndicatorHandler) list(w http.ResponseWriter, r *http.Request, ref string) {
	inds, err := h.svc.List(r.Context(), ref)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inds)
}

func (h *IndicatorHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Dashboard(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Recompute rebuilds a form's indicators from its stored submissions.
func (h *IndicatorHandler) Recompute(w http.ResponseWriter, r *http.Request) {
	inds, err := h.svc.Recompute(r.Context(), chi.URLParam(r, "formId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inds)
}
