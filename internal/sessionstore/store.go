// Package sessionstore is the reference implementation of the external
// SessionStore collaborator the core depends on: getSessionById,
// storeObservations, and getRecentObservations. The spec treats this
// component as outside the core's scope; this package gives the service a
// concrete, runnable backing store rather than leaving those calls unwired.
package sessionstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure-Go SQLite driver, no cgo

	"github.com/pitimon/claude-mem-plugin/pkg/models"
)

// Store persists memory sessions, observations, and summaries in SQLite,
// sharing the queue package's single-writer discipline.
type Store struct {
	db *sql.DB
}

// Open opens or creates the session store database at path and runs migrations.
func Open(path string) (*Store, error) {
	if path == "" {
		path = ":memory:"
	}

	dsn := path
	if dsn != ":memory:" {
		dsn = fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dsn)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memory_sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			memory_session_id TEXT NOT NULL UNIQUE,
			project TEXT NOT NULL,
			created_at_epoch INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS observations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			memory_session_id TEXT NOT NULL,
			project TEXT NOT NULL,
			prompt_number INTEGER NOT NULL,
			type TEXT NOT NULL,
			title TEXT NOT NULL,
			subtitle TEXT,
			narrative TEXT,
			facts_json TEXT,
			concepts_json TEXT,
			files_read_json TEXT,
			files_modified_json TEXT,
			created_at_epoch INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_observations_project_created ON observations(project, created_at_epoch DESC)`,
		`CREATE TABLE IF NOT EXISTS summaries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			memory_session_id TEXT NOT NULL,
			prompt_number INTEGER NOT NULL,
			request TEXT,
			investigated TEXT,
			learned TEXT,
			completed_json TEXT,
			next_steps_json TEXT,
			notes TEXT,
			discovery_tokens INTEGER,
			created_at_epoch INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sessionstore: migrate: %w", err)
		}
	}
	return nil
}

// EnsureSession looks up a memory session by its external id, creating one
// under project if none exists yet. This is how session_db_id values
// referenced by the queue come into being.
func (s *Store) EnsureSession(ctx context.Context, memorySessionID, project string) (models.Session, error) {
	if existing, err := s.GetSessionByMemoryID(ctx, memorySessionID); err == nil && existing != nil {
		return *existing, nil
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO memory_sessions (memory_session_id, project, created_at_epoch)
		VALUES (?, ?, ?)`,
		memorySessionID, project, models.NowEpochMillis(),
	)
	if err != nil {
		return models.Session{}, fmt.Errorf("sessionstore: ensure session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Session{}, fmt.Errorf("sessionstore: ensure session: %w", err)
	}
	return models.Session{ID: id, MemorySessionID: memorySessionID, Project: project}, nil
}

// GetSessionByID implements SessionStore.getSessionById.
func (s *Store) GetSessionByID(ctx context.Context, sessionDBID int64) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, memory_session_id, project FROM memory_sessions WHERE id = ?`, sessionDBID)
	var sess models.Session
	if err := row.Scan(&sess.ID, &sess.MemorySessionID, &sess.Project); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("sessionstore: get session: %w", err)
	}
	return &sess, nil
}

// GetSessionByMemoryID looks up a session by its external memory_session_id.
func (s *Store) GetSessionByMemoryID(ctx context.Context, memorySessionID string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, memory_session_id, project FROM memory_sessions WHERE memory_session_id = ?`, memorySessionID)
	var sess models.Session
	if err := row.Scan(&sess.ID, &sess.MemorySessionID, &sess.Project); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("sessionstore: get session by memory id: %w", err)
	}
	return &sess, nil
}

// StoreResult carries back the ids storeObservations assigns, so the
// Event Summarizer Worker can mark raw rows completed with the right link.
type StoreResult struct {
	ObservationIDs []int64
	SummaryID      int64 // 0 if summary was nil
}

// StoreObservations implements SessionStore.storeObservations: persists
// zero-or-more observations and an optional summary in one transaction,
// returning the assigned ids in insertion order.
func (s *Store) StoreObservations(
	ctx context.Context,
	memorySessionID, project string,
	promptNumber int,
	observations []models.Observation,
	summary *models.SessionSummary,
	discoveryTokens int,
) (StoreResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return StoreResult{}, fmt.Errorf("sessionstore: store observations: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var result StoreResult
	now := models.NowEpochMillis()

	for _, obs := range observations {
		facts, _ := json.Marshal(obs.Facts)
		concepts, _ := json.Marshal(obs.Concepts)
		filesRead, _ := json.Marshal(obs.FilesRead)
		filesModified, _ := json.Marshal(obs.FilesModified)

		res, err := tx.ExecContext(ctx, `
			INSERT INTO observations
				(memory_session_id, project, prompt_number, type, title, subtitle, narrative, facts_json, concepts_json, files_read_json, files_modified_json, created_at_epoch)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			memorySessionID, project, promptNumber, obs.Type, obs.Title, obs.Subtitle, obs.Narrative,
			string(facts), string(concepts), string(filesRead), string(filesModified), now,
		)
		if err != nil {
			return StoreResult{}, fmt.Errorf("sessionstore: insert observation: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return StoreResult{}, fmt.Errorf("sessionstore: insert observation: %w", err)
		}
		result.ObservationIDs = append(result.ObservationIDs, id)
	}

	if summary != nil {
		completed, _ := json.Marshal(summary.Completed)
		nextSteps, _ := json.Marshal(summary.NextSteps)

		res, err := tx.ExecContext(ctx, `
			INSERT INTO summaries
				(memory_session_id, prompt_number, request, investigated, learned, completed_json, next_steps_json, notes, discovery_tokens, created_at_epoch)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			memorySessionID, promptNumber, summary.Request, summary.Investigated, summary.Learned,
			string(completed), string(nextSteps), summary.Notes, discoveryTokens, now,
		)
		if err != nil {
			return StoreResult{}, fmt.Errorf("sessionstore: insert summary: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return StoreResult{}, fmt.Errorf("sessionstore: insert summary: %w", err)
		}
		result.SummaryID = id
	}

	return result, tx.Commit()
}

// GetRecentObservations implements SessionStore.getRecentObservations: the
// most recent observations for project, newest first, used as advisory
// "recent activity" prompt context. Callers treat errors as non-fatal.
func (s *Store) GetRecentObservations(ctx context.Context, project string, limit int) ([]models.RecentObservation, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT type, title, narrative FROM observations
		WHERE project = ?
		ORDER BY created_at_epoch DESC, id DESC
		LIMIT ?`, project, limit)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: recent observations: %w", err)
	}
	defer rows.Close()

	var out []models.RecentObservation
	for rows.Next() {
		var typ, title, narrative string
		if err := rows.Scan(&typ, &title, &narrative); err != nil {
			return nil, fmt.Errorf("sessionstore: recent observations: %w", err)
		}
		text := title
		if narrative != "" {
			text = title + ": " + narrative
		}
		out = append(out, models.RecentObservation{Type: typ, Text: text})
	}
	return out, rows.Err()
}

// NewSessionToken generates an opaque external session token for a freshly
// initialized session, in the same shape content_session_id values take.
func NewSessionToken() string {
	return uuid.New().String()
}
