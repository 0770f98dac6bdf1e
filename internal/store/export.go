package store

import "context"

// ObservationsPage fetches up to limit observations with id > afterID,
// oldest-id first, optionally filtered by project and/or type (empty string
// matches any). Used by internal/importexport for streaming export.
func (s *Store) ObservationsPage(ctx context.Context, project, obsType string, afterID int64, limit int) ([]*Observation, error) {
	query := "SELECT " + observationColumns + " FROM observations WHERE id > ?"
	args := []any{afterID}
	if project != "" {
		query += " AND project = ?"
		args = append(args, project)
	}
	if obsType != "" {
		query += " AND type = ?"
		args = append(args, obsType)
	}
	query += " ORDER BY id ASC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanObservationRows(rows)
}

// CountObservations counts observations matching the same optional filters
// as ObservationsPage, for the export `_meta.counts` record.
func (s *Store) CountObservations(ctx context.Context, project, obsType string) (int, error) {
	query := "SELECT COUNT(*) FROM observations WHERE 1=1"
	args := []any{}
	if project != "" {
		query += " AND project = ?"
		args = append(args, project)
	}
	if obsType != "" {
		query += " AND type = ?"
		args = append(args, obsType)
	}
	var n int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

// SummariesPage fetches up to limit summaries with id > afterID, oldest-id
// first, optionally filtered by project.
func (s *Store) SummariesPage(ctx context.Context, project string, afterID int64, limit int) ([]*Summary, error) {
	query := `SELECT id, session_id, project, request, investigated, learned,
		completed, next_steps, notes, created_at_epoch FROM summaries WHERE id > ?`
	args := []any{afterID}
	if project != "" {
		query += " AND project = ?"
		args = append(args, project)
	}
	query += " ORDER BY id ASC LIMIT ?"
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

// CountSummaries counts summaries matching SummariesPage's filter.
func (s *Store) CountSummaries(ctx context.Context, project string) (int, error) {
	query := "SELECT COUNT(*) FROM summaries WHERE 1=1"
	args := []any{}
	if project != "" {
		query += " AND project = ?"
		args = append(args, project)
	}
	var n int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

// PromptsPage fetches up to limit prompts with id > afterID, oldest-id
// first, optionally filtered by project.
func (s *Store) PromptsPage(ctx context.Context, project string, afterID int64, limit int) ([]*UserPrompt, error) {
	query := `SELECT id, content_session_id, project, prompt_number, prompt_text,
		created_at_epoch FROM user_prompts WHERE id > ?`
	args := []any{afterID}
	if project != "" {
		query += " AND project = ?"
		args = append(args, project)
	}
	query += " ORDER BY id ASC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*UserPrompt
	for rows.Next() {
		var p UserPrompt
		if err := rows.Scan(&p.ID, &p.ContentSessionID, &p.Project, &p.PromptNumber,
			&p.PromptText, &p.CreatedAtEpoch); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// CountPrompts counts prompts matching PromptsPage's filter.
func (s *Store) CountPrompts(ctx context.Context, project string) (int, error) {
	query := "SELECT COUNT(*) FROM user_prompts WHERE 1=1"
	args := []any{}
	if project != "" {
		query += " AND project = ?"
		args = append(args, project)
	}
	var n int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}
