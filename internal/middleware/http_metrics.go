// Package middleware provides HTTP middleware components for the API server.
package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// normalizePath converts paths with dynamic segments to route patterns to
// prevent cardinality explosion in metrics. This maps paths like
// /api/plays/track/0b1f.../stats to /api/plays/track/{track_id}/stats.
func normalizePath(path string) string {
	// Exact matches for static routes (no normalization needed)
	staticRoutes := map[string]bool{
		"/":                     true,
		"/api/plays/record":     true,
		"/api/plays/top-tracks": true,
		"/health":               true,
		"/ready":                true,
		"/metrics":              true,
	}

	if staticRoutes[path] {
		return path
	}

	// /api/plays/track/{track_id}/stats and /api/plays/track/{track_id}/sources
	if strings.HasPrefix(path, "/api/plays/track/") {
		parts := strings.Split(path, "/")
		if len(parts) == 6 && (parts[5] == "stats" || parts[5] == "sources") {
			return "/api/plays/track/{track_id}/" + parts[5]
		}
	}

	// /api/plays/artist/{artist_id}/overview
	if strings.HasPrefix(path, "/api/plays/artist/") {
		parts := strings.Split(path, "/")
		if len(parts) == 6 && parts[5] == "overview" {
			return "/api/plays/artist/{artist_id}/overview"
		}
	}

	// Fallback: return as-is for unknown patterns
	// This ensures we don't accidentally break metrics for new routes
	return path
}

// metricsResponseWriter wraps http.ResponseWriter to capture status code and response size.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int64
	wroteHeader bool
}

// WriteHeader captures the status code before writing it.
func (mrw *metricsResponseWriter) WriteHeader(code int) {
	if mrw.wroteHeader {
		return
	}
	mrw.statusCode = code
	mrw.wroteHeader = true
	mrw.ResponseWriter.WriteHeader(code)
}

// Write captures the response size and writes the data.
func (mrw *metricsResponseWriter) Write(b []byte) (int, error) {
	n, err := mrw.ResponseWriter.Write(b)
	mrw.size += int64(n)
	return n, err
}

// UpdateContext forwards adopted contexts to the wrapped writer. The logging
// middleware sits outside this one, so context updates from handlers (error
// codes, user IDs) must pass through or they never reach the request log.
func (mrw *metricsResponseWriter) UpdateContext(ctx context.Context) {
	UpdateResponseContext(mrw.ResponseWriter, ctx)
}

// newMetricsResponseWriter creates a new metricsResponseWriter with default 200 status.
func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

// HTTPMetrics is a middleware that records HTTP request metrics.
// It captures duration, response sizes, and request counts.
// Health check endpoints (/health, /ready) are excluded from metrics to avoid
// cardinality issues.
func HTTPMetrics(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Exclude health check endpoints from metrics
			if r.URL.Path == "/health" || r.URL.Path == "/ready" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()

			// Wrap response writer to capture status and size
			mrw := newMetricsResponseWriter(w)

			next.ServeHTTP(mrw, r)

			duration := time.Since(start).Seconds()

			// Normalize path to prevent cardinality explosion
			normalizedPath := normalizePath(r.URL.Path)

			metrics.ObserveHTTPRequest(
				r.Method,
				normalizedPath,
				strconv.Itoa(mrw.statusCode),
				duration,
				mrw.size,
			)
		})
	}
}
