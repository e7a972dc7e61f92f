package queue

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pitimon/claude-mem-plugin/pkg/models"
)

// InsertRawEventParams carries the fields needed to append a new RawToolEvent.
type InsertRawEventParams struct {
	SessionDBID      int64
	ContentSessionID string
	ToolName         string
	ToolInput        string
	ToolResponse     string
	CWD              string
	PromptNumber     int
	Project          string
}

// InsertRawEvent appends a new pending RawToolEvent row and returns its id.
// Contract: synchronous, no network I/O, target p99 under 5ms (spec §4.1).
func (s *Store) InsertRawEvent(ctx context.Context, p InsertRawEventParams) (int64, error) {
	response := s.truncateToolResponse(p.ToolResponse)
	now := models.NowEpochMillis()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO raw_tool_events
			(session_db_id, content_session_id, tool_name, tool_input, tool_response, cwd, prompt_number, project, status, retry_count, created_at_epoch)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		p.SessionDBID, p.ContentSessionID, p.ToolName, p.ToolInput, response, p.CWD, p.PromptNumber, p.Project,
		string(models.StatusPending), now,
	)
	if err != nil {
		return 0, wrapStorageErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, wrapStorageErr(err)
	}
	return id, nil
}

const rawToolEventColumns = `id, session_db_id, content_session_id, tool_name, tool_input, tool_response, cwd, prompt_number, project, status, retry_count, created_at_epoch, summarized_at_epoch, observation_id, error_message`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRawToolEvent(row rowScanner) (*models.RawToolEvent, error) {
	var (
		e                 models.RawToolEvent
		status             string
		summarizedAtEpoch  sql.NullInt64
		observationID      sql.NullInt64
		errorMessage       sql.NullString
	)
	if err := row.Scan(
		&e.ID, &e.SessionDBID, &e.ContentSessionID, &e.ToolName, &e.ToolInput, &e.ToolResponse,
		&e.CWD, &e.PromptNumber, &e.Project, &status, &e.RetryCount, &e.CreatedAtEpoch,
		&summarizedAtEpoch, &observationID, &errorMessage,
	); err != nil {
		return nil, err
	}
	e.Status = models.RawStatus(status)
	if summarizedAtEpoch.Valid {
		e.SummarizedAtEpoch = summarizedAtEpoch.Int64
	}
	if observationID.Valid {
		e.ObservationID = observationID.Int64
	}
	if errorMessage.Valid {
		e.ErrorMessage = errorMessage.String
	}
	return &e, nil
}

// ClaimBatchForSummarization atomically selects up to limit pending rows
// ordered oldest-first, flips them to summarizing, and returns them.
// Two concurrent callers never receive overlapping id sets (spec §8 #4):
// the store forces all writes onto a single connection, so the select+update
// below is effectively exclusive even without manual table-level locking.
func (s *Store) ClaimBatchForSummarization(ctx context.Context, limit int) ([]*models.RawToolEvent, error) {
	if limit <= 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapStorageErr(err)
	}
	defer tx.Rollback() //nolint:errcheck

	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM raw_tool_events
		WHERE status = ?
		ORDER BY created_at_epoch ASC
		LIMIT ?`, string(models.StatusPending), limit)
	if err != nil {
		return nil, wrapStorageErr(err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, wrapStorageErr(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, wrapStorageErr(err)
	}
	rows.Close()

	if len(ids) == 0 {
		return nil, tx.Commit()
	}

	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, string(models.StatusSummarizing))
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}
	query := fmt.Sprintf(`UPDATE raw_tool_events SET status = ? WHERE id IN (%s)`, strings.Join(placeholders, ","))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return nil, wrapStorageErr(err)
	}

	selectQuery := fmt.Sprintf(`SELECT %s FROM raw_tool_events WHERE id IN (%s) ORDER BY created_at_epoch ASC`,
		rawToolEventColumns, strings.Join(placeholders, ","))
	claimRows, err := tx.QueryContext(ctx, selectQuery, args[1:]...)
	if err != nil {
		return nil, wrapStorageErr(err)
	}
	defer claimRows.Close()

	events := make([]*models.RawToolEvent, 0, len(ids))
	for claimRows.Next() {
		e, err := scanRawToolEvent(claimRows)
		if err != nil {
			return nil, wrapStorageErr(err)
		}
		events = append(events, e)
	}
	if err := claimRows.Err(); err != nil {
		return nil, wrapStorageErr(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapStorageErr(err)
	}
	return events, nil
}

// MarkCompleted sets status=completed, summarized_at_epoch=now, observation_id=materializedID.
// materializedID may be 0 meaning "LLM produced no observation, intentionally dropped".
func (s *Store) MarkCompleted(ctx context.Context, id int64, materializedID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE raw_tool_events
		SET status = ?, summarized_at_epoch = ?, observation_id = ?
		WHERE id = ?`,
		string(models.StatusCompleted), models.NowEpochMillis(), materializedID, id,
	)
	return wrapStorageErr(err)
}

// MarkFailed increments retry_count. If the budget is exhausted the row
// terminates in `failed`; otherwise it reverts to `pending` to be reclaimed.
// Idempotent under retry: retry_count is monotonically non-decreasing.
func (s *Store) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapStorageErr(err)
	}
	defer tx.Rollback() //nolint:errcheck

	var retryCount int
	if err := tx.QueryRowContext(ctx, `SELECT retry_count FROM raw_tool_events WHERE id = ?`, id).Scan(&retryCount); err != nil {
		if err == sql.ErrNoRows {
			return nil
		}
		return wrapStorageErr(err)
	}

	retryCount++
	newStatus := models.StatusPending
	if retryCount >= s.maxRetries {
		newStatus = models.StatusFailed
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE raw_tool_events
		SET status = ?, retry_count = ?, error_message = ?
		WHERE id = ?`,
		string(newStatus), retryCount, errMsg, id,
	); err != nil {
		return wrapStorageErr(err)
	}

	return wrapStorageErr(tx.Commit())
}

// ReleaseStuckEvents reverts rows stuck in summarizing whose created_at_epoch
// is older than threshold back to pending, without touching retry_count.
func (s *Store) ReleaseStuckEvents(ctx context.Context, olderThanMs int64) (int64, error) {
	cutoff := models.NowEpochMillis() - olderThanMs
	res, err := s.db.ExecContext(ctx, `
		UPDATE raw_tool_events
		SET status = ?
		WHERE status = ? AND created_at_epoch < ?`,
		string(models.StatusPending), string(models.StatusSummarizing), cutoff,
	)
	if err != nil {
		return 0, wrapStorageErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapStorageErr(err)
	}
	return n, nil
}

// DeleteCompleted garbage-collects completed rows older than the retention window.
func (s *Store) DeleteCompleted(ctx context.Context, olderThanEpoch int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM raw_tool_events
		WHERE status = ? AND summarized_at_epoch < ?`,
		string(models.StatusCompleted), olderThanEpoch,
	)
	if err != nil {
		return 0, wrapStorageErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapStorageErr(err)
	}
	return n, nil
}

// GetStats returns per-status counts for monitoring.
func (s *Store) GetStats(ctx context.Context) (models.QueueStats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM raw_tool_events GROUP BY status`)
	if err != nil {
		return models.QueueStats{}, wrapStorageErr(err)
	}
	defer rows.Close()

	var stats models.QueueStats
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return models.QueueStats{}, wrapStorageErr(err)
		}
		switch models.RawStatus(status) {
		case models.StatusPending:
			stats.Pending = count
		case models.StatusSummarizing:
			stats.Summarizing = count
		case models.StatusCompleted:
			stats.Completed = count
		case models.StatusFailed:
			stats.Failed = count
		}
	}
	return stats, wrapStorageErr(rows.Err())
}

// GetRawEvent fetches a single row by id. Exposed for tests and debugging.
func (s *Store) GetRawEvent(ctx context.Context, id int64) (*models.RawToolEvent, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM raw_tool_events WHERE id = ?`, rawToolEventColumns), id)
	e, err := scanRawToolEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapStorageErr(err)
	}
	return e, nil
}

// InsertRawEventForTest inserts a row with an explicit status/retry/created_at,
// used by tests to set up crash-recovery and stall scenarios (spec §8 S3).
func (s *Store) InsertRawEventForTest(ctx context.Context, e *models.RawToolEvent) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO raw_tool_events
			(session_db_id, content_session_id, tool_name, tool_input, tool_response, cwd, prompt_number, project, status, retry_count, created_at_epoch)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SessionDBID, e.ContentSessionID, e.ToolName, e.ToolInput, e.ToolResponse, e.CWD, e.PromptNumber, e.Project,
		string(e.Status), e.RetryCount, e.CreatedAtEpoch,
	)
	if err != nil {
		return 0, wrapStorageErr(err)
	}
	return res.LastInsertId()
}
