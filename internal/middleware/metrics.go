package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"media-relay/internal/metrics"
)

// metricsResponseWriter captures the status code for the request counter
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{w, http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// MetricsConfig holds configuration for the metrics middleware
type MetricsConfig struct {
	// SkipPaths are paths that should not be recorded
	SkipPaths []string
}

// DefaultMetricsConfig returns the default metrics configuration
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		SkipPaths: []string{"/metrics", "/health", "/healthz", "/livez", "/readyz"},
	}
}

// Metrics returns a middleware that records Prometheus metrics
func Metrics(config MetricsConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, path := range config.SkipPaths {
				if strings.HasPrefix(r.URL.Path, path) {
					next.ServeHTTP(w, r)
					return
				}
			}

			metrics.HTTPRequestsInFlight.Inc()
			defer metrics.HTTPRequestsInFlight.Dec()

			wrapped := newMetricsResponseWriter(w)

			start := time.Now()

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			path := normalizePath(r.URL.Path)
			status := strconv.Itoa(wrapped.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
		})
	}
}

// knownPaths are recorded verbatim; anything else collapses into "other" so
// scanners probing random URLs cannot grow the label set.
var knownPaths = map[string]bool{
	"/api/audio/process": true,
	"/api/audio/convert": true,
	"/api/dispatch":      true,
	"/api/dispatches":    true,
	"/api/scratch/clear": true,
	"/version":           true,
}

// normalizePath maps a request path to a bounded metrics label.
func normalizePath(path string) string {
	if knownPaths[path] {
		return path
	}
	if path != "/" && strings.HasSuffix(path, "/") && knownPaths[strings.TrimSuffix(path, "/")] {
		return strings.TrimSuffix(path, "/")
	}
	return "other"
}
