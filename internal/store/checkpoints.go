package store

import "context"

// InsertCheckpoint writes a resumable checkpoint, including its serialized
// 10-item context snapshot.
func (s *Store) InsertCheckpoint(ctx context.Context, c *Checkpoint) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (session_id, project, task, progress, next_steps, open_questions, relevant_files, context_snapshot, created_at_epoch)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.SessionID, c.Project, c.Task, c.Progress, c.NextSteps, c.OpenQuestions, c.RelevantFiles, c.ContextSnapshot, c.CreatedAtEpoch)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// LatestCheckpointForProject fetches the most recent checkpoint for a project.
func (s *Store) LatestCheckpointForProject(ctx context.Context, project string) (*Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, project, task, progress, next_steps, open_questions, relevant_files, context_snapshot, created_at_epoch
		FROM checkpoints WHERE project = ? ORDER BY created_at_epoch DESC LIMIT 1`, project)
	return scanCheckpoint(row)
}

// LatestCheckpointForSession fetches the most recent checkpoint for a session.
func (s *Store) LatestCheckpointForSession(ctx context.Context, sessionID int64) (*Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, project, task, progress, next_steps, open_questions, relevant_files, context_snapshot, created_at_epoch
		FROM checkpoints WHERE session_id = ? ORDER BY created_at_epoch DESC LIMIT 1`, sessionID)
	return scanCheckpoint(row)
}

func scanCheckpoint(row interface {
	Scan(dest ...any) error
}) (*Checkpoint, error) {
	var c Checkpoint
	err := row.Scan(&c.ID, &c.SessionID, &c.Project, &c.Task, &c.Progress, &c.NextSteps,
		&c.OpenQuestions, &c.RelevantFiles, &c.ContextSnapshot, &c.CreatedAtEpoch)
	if err != nil {
		return nil, translateNoRows(err)
	}
	return &c, nil
}
