package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/pitimon/claude-mem-plugin/internal/telemetry"
)

// LoggingMiddleware logs each request at debug level and, when metrics is
// non-nil, records its latency. The same shape the teacher's dashboard
// logging middleware uses.
func LoggingMiddleware(logger *slog.Logger, metrics *telemetry.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(wrapped, r)
			elapsed := time.Since(start)

			if logger != nil {
				logger.Debug("http request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", wrapped.status,
					"duration", elapsed,
				)
			}
			if metrics != nil {
				metrics.RecordHTTPRequest(r.Method, r.URL.Path, wrapped.status, elapsed.Seconds())
			}
		})
	}
}

// Mount returns h wrapped with logging middleware, the entry point callers
// should hand to http.Server.
func (h *Handler) Mount() http.Handler {
	return LoggingMiddleware(h.cfg.Logger, h.cfg.Metrics)(h)
}

// responseWriter wraps http.ResponseWriter to capture the status code written.
type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}
