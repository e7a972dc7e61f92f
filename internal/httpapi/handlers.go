package httpapi

import (
	"errors"
	"net/http"

	"github.com/pitimon/claude-mem-plugin/internal/queue"
)

type sessionInitRequest struct {
	ContentSessionID string `json:"contentSessionId"`
	Project          string `json:"project"`
	Prompt           string `json:"prompt"`
}

type sessionInitResponse struct {
	SessionDBID      int64  `json:"session_db_id"`
	ContentSessionID string `json:"content_session_id"`
	Project          string `json:"project"`
}

// handleSessionInit handles POST /api/sessions/init, the hook's first call
// for a given content session: it registers the session with the external
// SessionStore, keyed by contentSessionId, and returns the internal
// session_db_id raw submissions reference. The prompt field primes any
// privacy hook; this service has none, so it is accepted and otherwise unused.
func (h *Handler) handleSessionInit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req sessionInitRequest
	if status, err := decodeJSONRequest(w, r, &req); err != nil {
		h.jsonError(w, "invalid request body", status)
		return
	}
	if req.ContentSessionID == "" {
		h.jsonError(w, "contentSessionId is required", http.StatusBadRequest)
		return
	}

	sess, err := h.cfg.SessionStore.EnsureSession(r.Context(), req.ContentSessionID, req.Project)
	if err != nil {
		h.cfg.Logger.Error("ensure session failed", "error", err)
		h.jsonError(w, "failed to initialize session", http.StatusInternalServerError)
		return
	}

	h.jsonResponse(w, http.StatusOK, sessionInitResponse{
		SessionDBID:      sess.ID,
		ContentSessionID: sess.MemorySessionID,
		Project:          sess.Project,
	})
}

type observationRequest struct {
	SessionDBID      int64  `json:"session_db_id"`
	ContentSessionID string `json:"content_session_id"`
	ToolName         string `json:"tool_name"`
	ToolInput        string `json:"tool_input"`
	ToolResponse     string `json:"tool_response"`
	CWD              string `json:"cwd"`
	PromptNumber     int    `json:"prompt_number"`
	Project          string `json:"project"`
}

// handleObservation handles POST /api/sessions/observations: the PostToolUse
// hook's call appending one raw tool event to the durable queue. This is the
// hot path (spec §4.1, target p99 under 5ms) — it does no LLM work itself.
func (h *Handler) handleObservation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req observationRequest
	if status, err := decodeJSONRequest(w, r, &req); err != nil {
		h.jsonError(w, "invalid request body", status)
		return
	}
	if req.SessionDBID == 0 || req.ToolName == "" {
		h.jsonError(w, "session_db_id and tool_name are required", http.StatusBadRequest)
		return
	}

	id, err := h.cfg.Store.InsertRawEvent(r.Context(), queue.InsertRawEventParams{
		SessionDBID:      req.SessionDBID,
		ContentSessionID: req.ContentSessionID,
		ToolName:         req.ToolName,
		ToolInput:        req.ToolInput,
		ToolResponse:     req.ToolResponse,
		CWD:              req.CWD,
		PromptNumber:     req.PromptNumber,
		Project:          req.Project,
	})
	if err != nil {
		h.cfg.Logger.Error("insert raw event failed", "error", err)
		h.jsonError(w, "failed to queue event", http.StatusInternalServerError)
		return
	}

	h.jsonResponse(w, http.StatusAccepted, map[string]int64{"id": id})
}

type summaryRequestBody struct {
	SessionDBID      int64  `json:"session_db_id"`
	ContentSessionID string `json:"content_session_id"`
	MemorySessionID  string `json:"memory_session_id"`
	Project          string `json:"project"`
	UserPrompt       string `json:"user_prompt"`
	LastAssistantMsg string `json:"last_assistant_message"`
}

// handleSummaryRequest handles POST /api/sessions/summary: the Stop hook's
// end-of-turn call. A session with a pending or in-flight summary request is
// rejected rather than queued twice (spec §3 duplicate guard).
func (h *Handler) handleSummaryRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req summaryRequestBody
	if status, err := decodeJSONRequest(w, r, &req); err != nil {
		h.jsonError(w, "invalid request body", status)
		return
	}
	if req.SessionDBID == 0 {
		h.jsonError(w, "session_db_id is required", http.StatusBadRequest)
		return
	}

	id, err := h.cfg.Store.InsertRawSummaryRequest(r.Context(), queue.InsertRawSummaryRequestParams{
		SessionDBID:      req.SessionDBID,
		ContentSessionID: req.ContentSessionID,
		MemorySessionID:  req.MemorySessionID,
		Project:          req.Project,
		UserPrompt:       req.UserPrompt,
		LastAssistantMsg: req.LastAssistantMsg,
	})
	if errors.Is(err, queue.ErrDuplicateSummaryPending) {
		h.jsonError(w, "a summary request is already pending for this session", http.StatusConflict)
		return
	}
	if err != nil {
		h.cfg.Logger.Error("insert raw summary request failed", "error", err)
		h.jsonError(w, "failed to queue summary request", http.StatusInternalServerError)
		return
	}

	h.jsonResponse(w, http.StatusAccepted, map[string]int64{"id": id})
}

// handleStats handles GET /api/stats, a status breakdown of the raw
// tool-event queue for operators.
func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats, err := h.cfg.Store.GetStats(r.Context())
	if err != nil {
		h.cfg.Logger.Error("get stats failed", "error", err)
		h.jsonError(w, "failed to read stats", http.StatusInternalServerError)
		return
	}

	h.jsonResponse(w, http.StatusOK, stats)
}
