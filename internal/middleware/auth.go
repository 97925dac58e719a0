package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"prode/pkg/auth"
	"prode/pkg/errors"
	"prode/pkg/logger"
)

// ContextKey represents keys used in request context
type ContextKey string

const (
	// RequestIDContextKey is the key for request ID in context
	RequestIDContextKey ContextKey = "request_id"
)

// Auth requires a bearer token and stores it for upstream calls. The token is
// not verified here; the prediction API stays the authority. JWTs whose exp is
// already past are turned away without a round trip.
func Auth(logger *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				WriteError(w, r, errors.NewAuthenticationError("Authorization header is required"), logger)
				return
			}

			token, ok := auth.BearerToken(authHeader)
			if !ok {
				WriteError(w, r, errors.NewAuthenticationError("Invalid authorization header format"), logger)
				return
			}

			if auth.Expired(token, time.Now()) {
				WriteError(w, r, errors.NewAuthenticationError("Token has expired"), logger)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithToken(r.Context(), token)))
		})
	}
}

// RequestID creates a middleware that adds a unique request ID to each request.
// An incoming X-Request-ID is kept.
func RequestID(logger *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.NewString()
			}

			ctx := context.WithValue(r.Context(), RequestIDContextKey, requestID)
			w.Header().Set("X-Request-ID", requestID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetRequestID returns the request ID stored by RequestID
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDContextKey).(string)
	return id
}

// WriteError writes the standard JSON error body for err
func WriteError(w http.ResponseWriter, r *http.Request, err error, logger *logger.Logger) {
	appErr := errors.As(err)
	requestID := GetRequestID(r.Context())

	entry := logger.WithError(err).WithFields(map[string]interface{}{
		"type":       appErr.Type,
		"status":     appErr.StatusCode,
		"path":       r.URL.Path,
		"request_id": requestID,
	})
	if appErr.StatusCode >= http.StatusInternalServerError {
		entry.Error("Request error")
	} else {
		entry.Debug("Request error")
	}

	response := &errors.ErrorResponse{Success: false}
	response.Error.Type = appErr.Type
	response.Error.Message = appErr.Message
	response.Error.Details = appErr.Details
	response.Error.RequestID = requestID
	response.Error.Timestamp = time.Now().UTC().Format(time.RFC3339)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.StatusCode)
	if encErr := json.NewEncoder(w).Encode(response); encErr != nil {
		logger.WithError(encErr).Error("Failed to encode error response")
	}
}
