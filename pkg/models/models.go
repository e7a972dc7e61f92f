// Package models provides the domain types shared across the claude-mem-core
// pipeline: raw events, observations, and session summaries.
package models

import "time"

// RawStatus is the lifecycle state of a queued raw row.
type RawStatus string

const (
	StatusPending     RawStatus = "pending"
	StatusSummarizing RawStatus = "summarizing"
	StatusCompleted   RawStatus = "completed"
	StatusFailed      RawStatus = "failed"
)

// RawToolEvent is an unprocessed tool invocation captured verbatim from a hook.
type RawToolEvent struct {
	ID                int64     `json:"id"`
	SessionDBID       int64     `json:"session_db_id"`
	ContentSessionID  string    `json:"content_session_id"`
	ToolName          string    `json:"tool_name"`
	ToolInput         string    `json:"tool_input"`
	ToolResponse      string    `json:"tool_response"`
	CWD               string    `json:"cwd"`
	PromptNumber      int       `json:"prompt_number"`
	Project           string    `json:"project"`
	Status            RawStatus `json:"status"`
	RetryCount        int       `json:"retry_count"`
	CreatedAtEpoch    int64     `json:"created_at_epoch"`
	SummarizedAtEpoch int64     `json:"summarized_at_epoch,omitempty"`
	ObservationID     int64     `json:"observation_id,omitempty"`
	ErrorMessage      string    `json:"error_message,omitempty"`
}

// RawSummaryRequest is an unprocessed end-of-turn summarization request.
type RawSummaryRequest struct {
	ID                int64     `json:"id"`
	SessionDBID       int64     `json:"session_db_id"`
	ContentSessionID  string    `json:"content_session_id"`
	MemorySessionID   string    `json:"memory_session_id,omitempty"`
	Project           string    `json:"project"`
	UserPrompt        string    `json:"user_prompt"`
	LastAssistantMsg  string    `json:"last_assistant_message"`
	Status            RawStatus `json:"status"`
	RetryCount        int       `json:"retry_count"`
	CreatedAtEpoch    int64     `json:"created_at_epoch"`
	SummarizedAtEpoch int64     `json:"summarized_at_epoch,omitempty"`
	SummaryID         int64     `json:"summary_id,omitempty"`
	ErrorMessage      string    `json:"error_message,omitempty"`
}

// Observation is a structured record derived from one or more raw tool events.
type Observation struct {
	Type          string   `json:"type"`
	Title         string   `json:"title"`
	Subtitle      string   `json:"subtitle,omitempty"`
	Facts         []string `json:"facts,omitempty"`
	Narrative     string   `json:"narrative,omitempty"`
	Concepts      []string `json:"concepts,omitempty"`
	FilesRead     []string `json:"files_read,omitempty"`
	FilesModified []string `json:"files_modified,omitempty"`
}

// SessionSummary is a structured end-of-turn record for one user turn.
type SessionSummary struct {
	Request      string   `json:"request"`
	Investigated string   `json:"investigated,omitempty"`
	Learned      string   `json:"learned,omitempty"`
	Completed    []string `json:"completed,omitempty"`
	NextSteps    []string `json:"next_steps,omitempty"`
	Notes        string   `json:"notes,omitempty"`
}

// RecentObservation is the trimmed shape returned by SessionStore.GetRecentObservations.
type RecentObservation struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// QueueStats is the status breakdown returned by Queue.GetStats.
type QueueStats struct {
	Pending     int `json:"pending"`
	Summarizing int `json:"summarizing"`
	Completed   int `json:"completed"`
	Failed      int `json:"failed"`
}

// Session is the minimal external session record the core reads from the
// SessionStore collaborator.
type Session struct {
	ID              int64
	MemorySessionID string
	Project         string
}

// NowEpochMillis returns the current time truncated to millisecond epoch, the unit raw
// rows store their timestamps in.
func NowEpochMillis() int64 {
	return time.Now().UnixMilli()
}
