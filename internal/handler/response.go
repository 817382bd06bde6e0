package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/parisxmas/kobodash/internal/aggregate"
	"github.com/parisxmas/kobodash/internal/kobo"
	"github.com/parisxmas/kobodash/internal/middleware"
	"github.com/parisxmas/kobodash/internal/repository"
	"github.com/parisxmas/kobodash/internal/schemaindex"
	"github.com/parisxmas/kobodash/internal/service"
	"github.com/parisxmas/kobodash/internal/syncer"
)

const maxBodyBytes = 4 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusOf maps domain errors to HTTP status codes.
func statusOf(err error) int {
	var (
		parseErr *schemaindex.ParseError
		fieldErr *service.FieldNotResolvableError
		dataErr  *aggregate.InsufficientDataError
		valErr   *service.ValidationError
		apiErr   *kobo.Error
	)
	switch {
	case errors.As(err, &fieldErr), errors.As(err, &dataErr), errors.As(err, &valErr):
		return http.StatusBadRequest
	// Schemas only ever come from the upstream platform, so an unparseable
	// one is its fault, not the caller's.
	case errors.As(err, &parseErr):
		return http.StatusBadGateway
	case errors.Is(err, syncer.ErrFormNotRegistered), errors.Is(err, kobo.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, syncer.ErrSyncInProgress), errors.Is(err, repository.ErrDuplicate):
		return http.StatusConflict
	case kobo.IsTransient(err):
		return http.StatusServiceUnavailable
	case errors.As(err, &apiErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		zap.L().Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.RequestID(r.Context())),
			zap.Error(err))
	}
	if status == http.StatusInternalServerError {
		writeError(w, status, "internal server error")
		return
	}
	body := map[string]any{"error": err.Error()}
	var fieldErr *service.FieldNotResolvableError
	if errors.As(err, &fieldErr) {
		body["suggestions"] = fieldErr.Suggestions
	}
	writeJSON(w, status, body)
}
