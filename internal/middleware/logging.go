// Package middleware provides HTTP middleware components for the API server.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// userIDKey is the context key for the authenticated user ID.
type userIDKey struct{}

// errorCodeKey is the context key for error code.
type errorCodeKey struct{}

// SetUserID stores the authenticated user ID in the context.
// This is called by the auth middleware after validating a bearer token.
func SetUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// GetUserID retrieves the user ID from context. Returns empty string if not present.
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey{}).(string); ok {
		return id
	}
	return ""
}

// SetErrorCode stores an error code in the context.
// This should be called by handlers when returning error responses.
func SetErrorCode(ctx context.Context, code string) context.Context {
	return context.WithValue(ctx, errorCodeKey{}, code)
}

// GetErrorCode retrieves the error code from context. Returns empty string if not present.
func GetErrorCode(ctx context.Context) string {
	if code, ok := ctx.Value(errorCodeKey{}).(string); ok {
		return code
	}
	return ""
}

// responseWriter wraps http.ResponseWriter to capture status code, response
// size, and context updates made after the handler started.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int
	wroteHeader bool
	ctx         context.Context
}

// WriteHeader captures the status code before writing it.
// Only the first call sets the status code; subsequent calls are ignored
// to match http.ResponseWriter behavior where only the first status is sent.
func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.statusCode = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

// Write captures the response size and writes the data.
func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// UpdateContext adopts a request context set by a handler, so values written
// after the middleware chain was entered (like error codes) are visible when
// the log entry is built.
func (rw *responseWriter) UpdateContext(ctx context.Context) {
	rw.ctx = ctx
}

// contextUpdater is implemented by response writers that can adopt a new
// request context after the handler started.
type contextUpdater interface {
	UpdateContext(ctx context.Context)
}

// UpdateResponseContext propagates an updated request context to the logging
// middleware's response writer, if the writer supports it.
func UpdateResponseContext(w http.ResponseWriter, ctx context.Context) {
	if u, ok := w.(contextUpdater); ok {
		u.UpdateContext(ctx)
	}
}

// newResponseWriter creates a new responseWriter with default 200 status.
func newResponseWriter(w http.ResponseWriter, ctx context.Context) *responseWriter {
	return &responseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
		ctx:            ctx,
	}
}

// NewLogger creates an slog.Logger based on the environment.
// In production (env == "production"), it returns a JSON handler.
// Otherwise, it returns a text handler for development.
func NewLogger(env string) *slog.Logger {
	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}
	return slog.New(handler)
}

// Logging is a middleware that logs HTTP requests with structured fields.
// It captures: method, path, status, latency (ms), request ID, user ID (if
// present), response size, and error_code (for error responses).
//
// Note: If a handler panics, the log entry will not be written. To ensure logging
// even on panics, place a recovery middleware outside of the logging middleware.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap response writer to capture status, size, and context updates
			rw := newResponseWriter(w, r.Context())

			next.ServeHTTP(rw, r)

			latency := time.Since(start).Milliseconds()

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rw.statusCode),
				slog.Int64("latency_ms", latency),
				slog.Int("size", rw.size),
			}

			if requestID := GetRequestID(r.Context()); requestID != "" {
				attrs = append(attrs, slog.String("request_id", requestID))
			}

			if userID := GetUserID(rw.ctx); userID != "" {
				attrs = append(attrs, slog.String("user_id", userID))
			}

			// Add error code for error responses (4xx and 5xx)
			if rw.statusCode >= 400 {
				if errorCode := GetErrorCode(rw.ctx); errorCode != "" {
					attrs = append(attrs, slog.String("error_code", errorCode))
				}
			}

			// Log at appropriate level based on status code using LogAttrs
			if rw.statusCode >= 500 {
				logger.LogAttrs(r.Context(), slog.LevelError, "request completed", attrs...)
			} else if rw.statusCode >= 400 {
				logger.LogAttrs(r.Context(), slog.LevelWarn, "request completed", attrs...)
			} else {
				logger.LogAttrs(r.Context(), slog.LevelInfo, "request completed", attrs...)
			}
		})
	}
}
