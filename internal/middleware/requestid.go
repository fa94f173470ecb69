// Package middleware provides HTTP middleware components for the API server.
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// requestIDKey is the context key for request ID.
type requestIDKey struct{}

// RequestIDHeader is the HTTP header carrying the request correlation ID.
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLength bounds inherited IDs so a hostile client cannot inflate
// every log line for its requests.
const maxRequestIDLength = 128

// RequestID tags every request with a correlation ID and echoes it in the
// response. An ID supplied by an upstream proxy is kept, so a play submission
// can be traced from the edge through to its audit row; absent or oversized
// IDs are replaced with a fresh UUID.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = uuid.New().String()
		}

		w.Header().Set(RequestIDHeader, requestID)

		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the request ID from context. Returns empty string if not present.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}
