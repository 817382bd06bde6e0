package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/parisxmas/kobodash/internal/filter"
	"github.com/parisxmas/kobodash/internal/service"
)

type AnalyticsHandler struct {
	svc *service.AnalyticsService
}

func NewAnalyticsHandler(svc *service.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{svc: svc}
}

// Analytics runs any analytics kind for the form in the path.
func (h *AnalyticsHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	var req service.Request
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.FormUID = chi.URLParam(r, "formId")
	h.run(w, r, req)
}

type chartRequest struct {
	FormUID string      `json:"formId"`
	Field   string      `json:"field"`
	Filters filter.Spec `json:"filters"`
}

// Bar returns category counts for a bar or pie chart.
func (h *AnalyticsHandler) Bar(w http.ResponseWriter, r *http.Request) {
	h.chart(w, r, service.KindGroup)
}

// Box returns the box-plot summary of a numeric field.
func (h *AnalyticsHandler) Box(w http.ResponseWriter, r *http.Request) {
	h.chart(w, r, service.KindBox)
}

func (h *AnalyticsHandler) chart(w http.ResponseWriter, r *http.Request, kind service.Kind) {
	var req chartRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.run(w, r, service.Request{FormUID: req.FormUID, Kind: kind, Field: req.Field, Filters: req.Filters})
}

func (h *AnalyticsHandler) run(w http.ResponseWriter, r *http.Request, req service.Request) {
	res, err := h.svc.Run(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// MapData returns grouped submission locations. The optional filters query
// parameter carries the same JSON object the analytics endpoints accept.
func (h *AnalyticsHandler) MapData(w http.ResponseWriter, r *http.Request) {
	var spec filter.Spec
	if raw := r.URL.Query().Get("filters"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &spec); err != nil {
			writeError(w, http.StatusBadRequest, "invalid filters: "+err.Error())
			return
		}
	}
	data, err := h.svc.MapData(r.Context(), chi.URLParam(r, "formId"), spec)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}
