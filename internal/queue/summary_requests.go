package queue

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pitimon/claude-mem-plugin/pkg/models"
)

// InsertRawSummaryRequestParams carries the fields needed to append a new
// RawSummaryRequest.
type InsertRawSummaryRequestParams struct {
	SessionDBID      int64
	ContentSessionID string
	MemorySessionID  string // optional; looked up at materialization time if empty
	Project          string
	UserPrompt       string
	LastAssistantMsg string
}

const rawSummaryRequestColumns = `id, session_db_id, content_session_id, memory_session_id, project, user_prompt, last_assistant_message, status, retry_count, created_at_epoch, summarized_at_epoch, summary_id, error_message`

func scanRawSummaryRequest(row rowScanner) (*models.RawSummaryRequest, error) {
	var (
		r                 models.RawSummaryRequest
		status            string
		memorySessionID   sql.NullString
		summarizedAtEpoch sql.NullInt64
		summaryID         sql.NullInt64
		errorMessage      sql.NullString
	)
	if err := row.Scan(
		&r.ID, &r.SessionDBID, &r.ContentSessionID, &memorySessionID, &r.Project, &r.UserPrompt, &r.LastAssistantMsg,
		&status, &r.RetryCount, &r.CreatedAtEpoch, &summarizedAtEpoch, &summaryID, &errorMessage,
	); err != nil {
		return nil, err
	}
	r.Status = models.RawStatus(status)
	if memorySessionID.Valid {
		r.MemorySessionID = memorySessionID.String
	}
	if summarizedAtEpoch.Valid {
		r.SummarizedAtEpoch = summarizedAtEpoch.Int64
	}
	if summaryID.Valid {
		r.SummaryID = summaryID.Int64
	}
	if errorMessage.Valid {
		r.ErrorMessage = errorMessage.String
	}
	return &r, nil
}

// InsertRawSummaryRequest appends a new pending RawSummaryRequest, rejecting
// the insert with ErrDuplicateSummaryPending if the session already has a
// row in {pending, summarizing} (spec §3 invariant, checked at insert time).
func (s *Store) InsertRawSummaryRequest(ctx context.Context, p InsertRawSummaryRequestParams) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, wrapStorageErr(err)
	}
	defer tx.Rollback() //nolint:errcheck

	var existing int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM raw_summary_requests
		WHERE session_db_id = ? AND status IN (?, ?)`,
		p.SessionDBID, string(models.StatusPending), string(models.StatusSummarizing),
	).Scan(&existing); err != nil {
		return 0, wrapStorageErr(err)
	}
	if existing > 0 {
		return 0, ErrDuplicateSummaryPending
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO raw_summary_requests
			(session_db_id, content_session_id, memory_session_id, project, user_prompt, last_assistant_message, status, retry_count, created_at_epoch)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		p.SessionDBID, p.ContentSessionID, nullableString(p.MemorySessionID), p.Project, p.UserPrompt, p.LastAssistantMsg,
		string(models.StatusPending), models.NowEpochMillis(),
	)
	if err != nil {
		return 0, wrapStorageErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, wrapStorageErr(err)
	}
	return id, wrapStorageErr(tx.Commit())
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// ClaimSummaryBatch atomically claims up to limit pending requests, oldest first.
func (s *Store) ClaimSummaryBatch(ctx context.Context, limit int) ([]*models.RawSummaryRequest, error) {
	if limit <= 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapStorageErr(err)
	}
	defer tx.Rollback() //nolint:errcheck

	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM raw_summary_requests
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

	requests := make([]*models.RawSummaryRequest, 0, len(ids))
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `UPDATE raw_summary_requests SET status = ? WHERE id = ?`, string(models.StatusSummarizing), id); err != nil {
			return nil, wrapStorageErr(err)
		}
		row := tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM raw_summary_requests WHERE id = ?`, rawSummaryRequestColumns), id)
		r, err := scanRawSummaryRequest(row)
		if err != nil {
			return nil, wrapStorageErr(err)
		}
		requests = append(requests, r)
	}

	return requests, wrapStorageErr(tx.Commit())
}

// MarkSummaryCompleted sets status=completed, summarized_at_epoch=now, summary_id=summaryID.
func (s *Store) MarkSummaryCompleted(ctx context.Context, id int64, summaryID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE raw_summary_requests
		SET status = ?, summarized_at_epoch = ?, summary_id = ?
		WHERE id = ?`,
		string(models.StatusCompleted), models.NowEpochMillis(), summaryID, id,
	)
	return wrapStorageErr(err)
}

// MarkSummaryFailed mirrors MarkFailed for summary requests.
func (s *Store) MarkSummaryFailed(ctx context.Context, id int64, errMsg string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapStorageErr(err)
	}
	defer tx.Rollback() //nolint:errcheck

	var retryCount int
	if err := tx.QueryRowContext(ctx, `SELECT retry_count FROM raw_summary_requests WHERE id = ?`, id).Scan(&retryCount); err != nil {
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
		UPDATE raw_summary_requests
		SET status = ?, retry_count = ?, error_message = ?
		WHERE id = ?`,
		string(newStatus), retryCount, errMsg, id,
	); err != nil {
		return wrapStorageErr(err)
	}

	return wrapStorageErr(tx.Commit())
}

// ReleaseStuckSummaryRequests mirrors ReleaseStuckEvents for summary requests.
func (s *Store) ReleaseStuckSummaryRequests(ctx context.Context, olderThanMs int64) (int64, error) {
	cutoff := models.NowEpochMillis() - olderThanMs
	res, err := s.db.ExecContext(ctx, `
		UPDATE raw_summary_requests
		SET status = ?
		WHERE status = ? AND created_at_epoch < ?`,
		string(models.StatusPending), string(models.StatusSummarizing), cutoff,
	)
	if err != nil {
		return 0, wrapStorageErr(err)
	}
	n, err := res.RowsAffected()
	return n, wrapStorageErr(err)
}

// DeleteCompletedSummaryRequests garbage-collects completed summary requests.
func (s *Store) DeleteCompletedSummaryRequests(ctx context.Context, olderThanEpoch int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM raw_summary_requests
		WHERE status = ? AND summarized_at_epoch < ?`,
		string(models.StatusCompleted), olderThanEpoch,
	)
	if err != nil {
		return 0, wrapStorageErr(err)
	}
	n, err := res.RowsAffected()
	return n, wrapStorageErr(err)
}

// GetSummaryRequest fetches a single row by id.
func (s *Store) GetSummaryRequest(ctx context.Context, id int64) (*models.RawSummaryRequest, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM raw_summary_requests WHERE id = ?`, rawSummaryRequestColumns), id)
	r, err := scanRawSummaryRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapStorageErr(err)
	}
	return r, nil
}
