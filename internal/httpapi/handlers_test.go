package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitimon/claude-mem-plugin/internal/queue"
	"github.com/pitimon/claude-mem-plugin/internal/sessionstore"
	"github.com/pitimon/claude-mem-plugin/pkg/models"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	q, err := queue.Open(queue.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })

	ss, err := sessionstore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	return NewHandler(Config{Store: q, SessionStore: ss})
}

func postJSON(h *Handler, path string, body any) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleSessionInit_CreatesSession(t *testing.T) {
	h := newTestHandler(t)

	rec := postJSON(h, "/api/sessions/init", sessionInitRequest{ContentSessionID: "mem-1", Project: "proj"})
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp sessionInitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotZero(t, resp.SessionDBID)
	assert.Equal(t, "mem-1", resp.ContentSessionID)
}

func TestHandleSessionInit_MissingContentSessionID(t *testing.T) {
	h := newTestHandler(t)

	rec := postJSON(h, "/api/sessions/init", sessionInitRequest{Project: "proj"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleObservation_QueuesEvent(t *testing.T) {
	h := newTestHandler(t)

	initRec := postJSON(h, "/api/sessions/init", sessionInitRequest{ContentSessionID: "mem-1", Project: "proj"})
	var initResp sessionInitResponse
	require.NoError(t, json.Unmarshal(initRec.Body.Bytes(), &initResp))

	rec := postJSON(h, "/api/sessions/observations", observationRequest{
		SessionDBID: initResp.SessionDBID,
		ToolName:    "Read",
		ToolInput:   `{"path":"/x"}`,
	})
	assert.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotZero(t, resp["id"])
}

func TestHandleObservation_RejectsMissingToolName(t *testing.T) {
	h := newTestHandler(t)
	rec := postJSON(h, "/api/sessions/observations", observationRequest{SessionDBID: 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSummaryRequest_RejectsDuplicate(t *testing.T) {
	h := newTestHandler(t)

	initRec := postJSON(h, "/api/sessions/init", sessionInitRequest{ContentSessionID: "mem-1", Project: "proj"})
	var initResp sessionInitResponse
	require.NoError(t, json.Unmarshal(initRec.Body.Bytes(), &initResp))

	body := summaryRequestBody{SessionDBID: initResp.SessionDBID, UserPrompt: "do x"}
	first := postJSON(h, "/api/sessions/summary", body)
	assert.Equal(t, http.StatusAccepted, first.Code)

	second := postJSON(h, "/api/sessions/summary", body)
	assert.Equal(t, http.StatusConflict, second.Code)
}

func TestHandleStats_ReportsQueueBreakdown(t *testing.T) {
	h := newTestHandler(t)

	initRec := postJSON(h, "/api/sessions/init", sessionInitRequest{ContentSessionID: "mem-1", Project: "proj"})
	var initResp sessionInitResponse
	require.NoError(t, json.Unmarshal(initRec.Body.Bytes(), &initResp))
	postJSON(h, "/api/sessions/observations", observationRequest{SessionDBID: initResp.SessionDBID, ToolName: "Read"})

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var stats models.QueueStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Pending)
}

func TestHandleHealthz_ReturnsOK(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
