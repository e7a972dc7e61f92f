// Package queue implements the durable event queue: two SQLite-backed
// tables (raw tool events and raw summary requests) used as an
// at-least-once work queue for the background summarization workers.
//
// The store is single-writer by design, matching spec §5: all writes are
// serialized onto one connection so that claim, mark-completed, and
// mark-failed transactions never race each other, while reads (stats,
// dashboards) can still happen concurrently from other connections opened
// against the same file.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, no cgo

	"github.com/pitimon/claude-mem-plugin/pkg/models"
)

// Sentinel errors surfaced by the queue, checked with errors.Is.
var (
	// ErrStorageUnavailable is returned when the underlying store rejects a write.
	ErrStorageUnavailable = errors.New("queue: storage unavailable")
	// ErrDuplicateSummaryPending is returned when a session already has a
	// pending or summarizing RawSummaryRequest (spec §3 invariant).
	ErrDuplicateSummaryPending = errors.New("queue: a summary request is already pending for this session")
)

// DefaultMaxRetries is the retry budget before a row terminates in `failed`.
const DefaultMaxRetries = 3

// DefaultToolResponseCap is the byte cap tool_response is truncated to before storage.
const DefaultToolResponseCap = 50_000

// TruncationSuffix is appended to tool_response payloads that were truncated.
const TruncationSuffix = "\n...[truncated]"

// Config configures a Store.
type Config struct {
	// Path is the SQLite file path. Use ":memory:" for tests.
	Path string
	// MaxRetries is the retry budget. Defaults to DefaultMaxRetries.
	MaxRetries int
	// ToolResponseCap is the byte cap for tool_response. Defaults to DefaultToolResponseCap.
	ToolResponseCap int
}

// Store is the durable event queue described in spec §4.1.
type Store struct {
	db              *sql.DB
	maxRetries      int
	toolResponseCap int
}

// Open creates or opens a Store at cfg.Path, creating schema if needed.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("queue: path is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.ToolResponseCap <= 0 {
		cfg.ToolResponseCap = DefaultToolResponseCap
	}

	dsn := cfg.Path
	if dsn != ":memory:" {
		dsn = fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dsn)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("queue: open database: %w", err)
	}
	// The queue is single-writer by design (spec §5): serialize all access
	// onto one connection so claim/mark transactions cannot interleave.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, maxRetries: cfg.MaxRetries, toolResponseCap: cfg.ToolResponseCap}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS raw_tool_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_db_id INTEGER NOT NULL,
			content_session_id TEXT NOT NULL,
			tool_name TEXT NOT NULL,
			tool_input TEXT,
			tool_response TEXT,
			cwd TEXT,
			prompt_number INTEGER,
			project TEXT,
			status TEXT NOT NULL,
			retry_count INTEGER NOT NULL DEFAULT 0,
			created_at_epoch INTEGER NOT NULL,
			summarized_at_epoch INTEGER,
			observation_id INTEGER,
			error_message TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_raw_tool_events_status_created ON raw_tool_events(status, created_at_epoch)`,
		`CREATE INDEX IF NOT EXISTS idx_raw_tool_events_session ON raw_tool_events(session_db_id)`,
		`CREATE TABLE IF NOT EXISTS raw_summary_requests (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_db_id INTEGER NOT NULL,
			content_session_id TEXT NOT NULL,
			memory_session_id TEXT,
			project TEXT,
			user_prompt TEXT,
			last_assistant_message TEXT,
			status TEXT NOT NULL,
			retry_count INTEGER NOT NULL DEFAULT 0,
			created_at_epoch INTEGER NOT NULL,
			summarized_at_epoch INTEGER,
			summary_id INTEGER,
			error_message TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_raw_summary_requests_status_created ON raw_summary_requests(status, created_at_epoch)`,
		`CREATE INDEX IF NOT EXISTS idx_raw_summary_requests_session ON raw_summary_requests(session_db_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("queue: migrate: %w", err)
		}
	}
	return nil
}

// truncateToolResponse truncates payload to the store's cap, tagging it with
// TruncationSuffix so the raw row still fits the page-cache-friendly invariant.
func (s *Store) truncateToolResponse(payload string) string {
	if len(payload) <= s.toolResponseCap {
		return payload
	}
	return payload[:s.toolResponseCap] + TruncationSuffix
}

func wrapStorageErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}
