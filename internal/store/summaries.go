package store

import (
	"context"
	"database/sql"
)

// InsertSummary writes a session's end-of-session digest.
func (s *Store) InsertSummary(ctx context.Context, sm *Summary) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO summaries (session_id, project, request, investigated, learned, completed, next_steps, notes, created_at_epoch)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sm.SessionID, sm.Project, sm.Request, sm.Investigated, sm.Learned, sm.Completed, sm.NextSteps, sm.Notes, sm.CreatedAtEpoch)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// RecentSummaries fetches up to limit recent summaries for a project.
func (s *Store) RecentSummaries(ctx context.Context, project string, limit int) ([]*Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, project, request, investigated, learned, completed, next_steps, notes, created_at_epoch
		FROM summaries WHERE project = ? ORDER BY created_at_epoch DESC LIMIT ?`, project, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Summary
	for rows.Next() {
		var sm Summary
		if err := rows.Scan(&sm.ID, &sm.SessionID, &sm.Project, &sm.Request, &sm.Investigated,
			&sm.Learned, &sm.Completed, &sm.NextSteps, &sm.Notes, &sm.CreatedAtEpoch); err != nil {
			return nil, err
		}
		out = append(out, &sm)
	}
	return out, rows.Err()
}

// SummariesBySession fetches all summaries for one session, oldest first.
func (s *Store) SummariesBySession(ctx context.Context, sessionID int64) ([]*Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, project, request, investigated, learned, completed, next_steps, notes, created_at_epoch
		FROM summaries WHERE session_id = ? ORDER BY created_at_epoch ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Summary
	for rows.Next() {
		var sm Summary
		if err := rows.Scan(&sm.ID, &sm.SessionID, &sm.Project, &sm.Request, &sm.Investigated,
			&sm.Learned, &sm.Completed, &sm.NextSteps, &sm.Notes, &sm.CreatedAtEpoch); err != nil {
			return nil, err
		}
		out = append(out, &sm)
	}
	return out, rows.Err()
}

// CountSummariesOlderThan counts summaries eligible for retention deletion.
func (s *Store) CountSummariesOlderThan(ctx context.Context, cutoffEpoch int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM summaries WHERE created_at_epoch < ?", cutoffEpoch).Scan(&n)
	return n, err
}

// DeleteSummariesOlderThan deletes summaries created before cutoffEpoch and
// returns the number of rows removed. Used by the retention scheduler.
func (s *Store) DeleteSummariesOlderThan(ctx context.Context, cutoffEpoch int64) (int64, error) {
	var affected int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec("DELETE FROM summaries WHERE created_at_epoch < ?", cutoffEpoch)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected, err
}
