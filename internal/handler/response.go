package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"prode/internal/middleware"
	"prode/pkg/errors"
	"prode/pkg/logger"
	"prode/pkg/validator"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 1 << 16

// SuccessResponse wraps successful payloads
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}, log *logger.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(SuccessResponse{Success: true, Data: data}); err != nil {
		log.WithError(err).Error("Failed to encode response")
	}
}

func respondError(w http.ResponseWriter, r *http.Request, err error, log *logger.Logger) {
	middleware.WriteError(w, r, err, log)
}

// decodeJSON decodes and validates a request body. An empty body leaves dst
// at its zero value before validation.
func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && err != io.EOF {
		return errors.NewValidationError("Invalid request body", map[string]interface{}{"body": err.Error()})
	}
	if err := validator.Struct(dst); err != nil {
		return errors.NewValidationError(validator.FormatValidationError(err), validator.Details(err))
	}
	return nil
}

// intParam reads a non-negative integer URL parameter
func intParam(r *http.Request, name string) (int, error) {
	raw := chi.URLParam(r, name)
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.NewValidationError(name+" must be a non-negative integer", map[string]interface{}{name: raw})
	}
	return v, nil
}

// intQuery reads an optional integer query parameter
func intQuery(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.NewValidationError(name+" must be an integer", map[string]interface{}{name: raw})
	}
	return v, nil
}

// boolQuery reads an optional boolean query parameter
func boolQuery(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errors.NewValidationError(name+" must be a boolean", map[string]interface{}{name: raw})
	}
	return v, nil
}
