// Package httpapi exposes the intake HTTP surface hooks call into: session
// init, raw event/summary submission, and operational stats. Routing follows
// the teacher's plain net/http.ServeMux dispatch rather than a router
// framework, since the route set here is small and fixed.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/pitimon/claude-mem-plugin/internal/queue"
	"github.com/pitimon/claude-mem-plugin/internal/sessionstore"
	"github.com/pitimon/claude-mem-plugin/internal/telemetry"
)

var maxRequestBodyBytes int64 = 1 * 1024 * 1024

// Config holds the collaborators the intake handlers read and write.
type Config struct {
	Store           *queue.Store
	SessionStore    *sessionstore.Store
	Logger          *slog.Logger
	ServerStartTime time.Time

	// Metrics is optional; a nil value disables HTTP metrics recording.
	Metrics *telemetry.Metrics
}

// Handler is the intake HTTP handler.
type Handler struct {
	cfg Config
	mux *http.ServeMux
}

// NewHandler builds a Handler and wires its routes.
func NewHandler(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ServerStartTime.IsZero() {
		cfg.ServerStartTime = time.Now()
	}

	h := &Handler{cfg: cfg, mux: http.NewServeMux()}
	h.setupRoutes()
	return h
}

func (h *Handler) setupRoutes() {
	h.mux.HandleFunc("/api/sessions/init", h.handleSessionInit)
	h.mux.HandleFunc("/api/sessions/observations", h.handleObservation)
	h.mux.HandleFunc("/api/sessions/summary", h.handleSummaryRequest)
	h.mux.HandleFunc("/api/stats", h.handleStats)
	h.mux.HandleFunc("/healthz", h.handleHealthz)
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func decodeJSONRequest(w http.ResponseWriter, r *http.Request, dst any) (int, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return http.StatusRequestEntityTooLarge, err
		}
		return http.StatusBadRequest, err
	}
	return 0, nil
}

func (h *Handler) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.cfg.Logger.Error("json encode error", "error", err)
	}
}

func (h *Handler) jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		h.cfg.Logger.Error("json encode error", "error", err)
	}
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.jsonResponse(w, http.StatusOK, map[string]string{
		"status": "ok",
		"uptime": time.Since(h.cfg.ServerStartTime).String(),
	})
}
