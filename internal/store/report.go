package store

import "context"

// SearchSummaries performs a substring match over the text fields of a
// project's summaries, newest first. Backs the summaries half of the
// /api/search response.
func (s *Store) SearchSummaries(ctx context.Context, text, project string, limit int) ([]*Summary, error) {
	like := "%" + text + "%"
	query := `
		SELECT id, session_id, project, request, investigated, learned, completed, next_steps, notes, created_at_epoch
		FROM summaries
		WHERE (request LIKE ? OR investigated LIKE ? OR learned LIKE ? OR completed LIKE ? OR next_steps LIKE ?)`
	args := []any{like, like, like, like, like}
	if project != "" {
		query += " AND project = ?"
		args = append(args, project)
	}
	query += " ORDER BY created_at_epoch DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
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

// ObservationsSince fetches up to limit observations for a project created
// at or after sinceEpoch, newest first. Feeds the activity report.
func (s *Store) ObservationsSince(ctx context.Context, project string, sinceEpoch int64, limit int) ([]*Observation, error) {
	query := "SELECT " + observationColumns + " FROM observations WHERE created_at_epoch >= ?"
	args := []any{sinceEpoch}
	if project != "" {
		query += " AND project = ?"
		args = append(args, project)
	}
	query += " ORDER BY created_at_epoch DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanObservationRows(rows)
}

// SummariesSince fetches summaries for a project created at or after
// sinceEpoch, newest first.
func (s *Store) SummariesSince(ctx context.Context, project string, sinceEpoch int64, limit int) ([]*Summary, error) {
	query := `
		SELECT id, session_id, project, request, investigated, learned, completed, next_steps, notes, created_at_epoch
		FROM summaries WHERE created_at_epoch >= ?`
	args := []any{sinceEpoch}
	if project != "" {
		query += " AND project = ?"
		args = append(args, project)
	}
	query += " ORDER BY created_at_epoch DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
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

// CountSessionsSince counts sessions started at or after sinceEpoch for a
// project (empty matches any).
func (s *Store) CountSessionsSince(ctx context.Context, project string, sinceEpoch int64) (int, error) {
	query := "SELECT COUNT(*) FROM sessions WHERE started_at_epoch >= ?"
	args := []any{sinceEpoch}
	if project != "" {
		query += " AND project = ?"
		args = append(args, project)
	}
	var n int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}
