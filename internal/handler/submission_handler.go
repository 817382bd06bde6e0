package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/parisxmas/kobodash/internal/service"
)

type SubmissionHandler struct {
	svc *service.SubmissionService
}

func NewSubmissionHandler(svc *service.SubmissionService) *SubmissionHandler {
	return &SubmissionHandler{svc: svc}
}

func (h *SubmissionHandler) List(w http.ResponseWriter, r *http.Request) {
	skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	page, err := h.svc.List(r.Context(), chi.URLParam(r, "formId"), skip, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *SubmissionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := service.ParseID(chi.URLParam(r, "subId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	sub, err := h.svc.Get(r.Context(), chi.URLParam(r, "formId"), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if sub == nil {
		writeError(w, http.StatusNotFound, "submission not found")
		return
	}
	writeJSON(w, http.StatusOK, sub)
}
