package store

import "context"

// InsertUserPrompt records one prompt given within a session.
func (s *Store) InsertUserPrompt(ctx context.Context, p *UserPrompt) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO user_prompts (content_session_id, project, prompt_number, prompt_text, created_at_epoch)
		VALUES (?, ?, ?, ?, ?)`,
		p.ContentSessionID, p.Project, p.PromptNumber, p.PromptText, p.CreatedAtEpoch)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// RecentPromptsForProject fetches up to limit recent prompts for a project.
func (s *Store) RecentPromptsForProject(ctx context.Context, project string, limit int) ([]*UserPrompt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content_session_id, project, prompt_number, prompt_text, created_at_epoch
		FROM user_prompts WHERE project = ? ORDER BY created_at_epoch DESC LIMIT ?`, project, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*UserPrompt
	for rows.Next() {
		var p UserPrompt
		if err := rows.Scan(&p.ID, &p.ContentSessionID, &p.Project, &p.PromptNumber, &p.PromptText, &p.CreatedAtEpoch); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// CountPromptsOlderThan counts prompts eligible for retention deletion.
func (s *Store) CountPromptsOlderThan(ctx context.Context, cutoffEpoch int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM user_prompts WHERE created_at_epoch < ?", cutoffEpoch).Scan(&n)
	return n, err
}

// DeletePromptsOlderThan deletes prompts created before cutoffEpoch.
func (s *Store) DeletePromptsOlderThan(ctx context.Context, cutoffEpoch int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM user_prompts WHERE created_at_epoch < ?", cutoffEpoch)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
