package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by single-row lookups that find nothing.
var ErrNotFound = errors.New("not found")

// GetOrCreateSession is idempotent on contentSessionID: a second call with
// the same id returns the existing row untouched.
func (s *Store) GetOrCreateSession(ctx context.Context, contentSessionID, project, userPrompt string) (*Session, error) {
	existing, err := s.GetSessionByContentID(ctx, contentSessionID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := time.Now().UnixMilli()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (content_session_id, project, user_prompt, status, started_at_epoch)
		VALUES (?, ?, ?, ?, ?)`,
		contentSessionID, project, userPrompt, SessionActive, now)
	if err != nil {
		// Lost the race with a concurrent create; fetch what won.
		if existing, gerr := s.GetSessionByContentID(ctx, contentSessionID); gerr == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("create session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:               id,
		ContentSessionID: contentSessionID,
		Project:          project,
		UserPrompt:       userPrompt,
		Status:           SessionActive,
		StartedAtEpoch:   now,
	}, nil
}

// GetSessionByContentID fetches a session by its externally supplied id.
func (s *Store) GetSessionByContentID(ctx context.Context, contentSessionID string) (*Session, error) {
	return s.scanSession(s.db.QueryRowContext(ctx, `
		SELECT id, content_session_id, project, user_prompt, status, started_at_epoch, completed_at_epoch
		FROM sessions WHERE content_session_id = ?`, contentSessionID))
}

// GetSession fetches a session by numeric id.
func (s *Store) GetSession(ctx context.Context, id int64) (*Session, error) {
	return s.scanSession(s.db.QueryRowContext(ctx, `
		SELECT id, content_session_id, project, user_prompt, status, started_at_epoch, completed_at_epoch
		FROM sessions WHERE id = ?`, id))
}

func (s *Store) scanSession(row *sql.Row) (*Session, error) {
	var sess Session
	var completedAt sql.NullInt64
	err := row.Scan(&sess.ID, &sess.ContentSessionID, &sess.Project, &sess.UserPrompt,
		&sess.Status, &sess.StartedAtEpoch, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		v := completedAt.Int64
		sess.CompletedAtEpoch = &v
	}
	return &sess, nil
}

// CompleteSession transitions active→completed exactly once; repeated
// calls are no-ops.
func (s *Store) CompleteSession(ctx context.Context, id int64) error {
	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET status = ?, completed_at_epoch = ?
		WHERE id = ? AND status = ?`,
		SessionCompleted, now, id, SessionActive)
	return err
}
