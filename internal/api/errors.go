// Package api provides HTTP API utilities including standardized error handling.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/tiptune/tiptune/internal/middleware"
)

// Common error codes used throughout the API.
const (
	// ErrCodeValidation indicates input validation failure.
	ErrCodeValidation = "validation_error"

	// ErrCodeBadRequest indicates a malformed request.
	ErrCodeBadRequest = "bad_request"

	// ErrCodeInvalidPeriod indicates a period string outside the accepted grammar.
	ErrCodeInvalidPeriod = "invalid_period"

	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound = "not_found"

	// ErrCodeRateLimited indicates rate limit exceeded.
	ErrCodeRateLimited = "rate_limited"

	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal = "internal_error"
)

// ErrorResponse represents the standard error response format.
// All API errors return JSON in this structure: {"error": {"code": "...", "message": "..."}}
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error code and human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes a standardized JSON error response.
// It writes the appropriate HTTP status code and returns a JSON error body.
//
// Format: {"error": {"code": "error_code", "message": "Error description"}}
//
// The error_code will be logged by the logging middleware for 4xx and 5xx
// responses if you call SetErrorCode on the context and pass the updated
// context to WriteError.
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	// Update the context in the response writer if supported (for logging middleware)
	middleware.UpdateResponseContext(w, ctx)

	errResp := ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	}

	data, err := json.Marshal(errResp)
	if err != nil {
		// Fallback to plain text if JSON marshaling fails
		slog.ErrorContext(ctx, "failed to marshal error response", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}

// StatusCodeMapping returns the recommended HTTP status code for common error codes.
func StatusCodeMapping(code string) int {
	switch code {
	case ErrCodeValidation, ErrCodeBadRequest, ErrCodeInvalidPeriod:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
