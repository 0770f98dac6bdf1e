package store

import (
	"context"
	"database/sql"
)

// Transact runs fn inside one transaction, committing on nil error and
// rolling back otherwise. Exported for internal/importexport, which needs
// to batch up to 100 rows per transaction.
func (s *Store) Transact(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return s.withTx(ctx, fn)
}

// InsertObservationTx writes one observation row inside an existing
// transaction.
func InsertObservationTx(ctx context.Context, tx *sql.Tx, o *Observation) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO observations (
			memory_session_id, project, type, title, subtitle, text, narrative,
			facts, concepts, files_read, files_modified, prompt_number,
			created_at_epoch, content_hash, discovery_tokens, auto_category
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.MemorySessionID, o.Project, o.Type, o.Title, o.Subtitle, o.Text, o.Narrative,
		o.Facts, o.Concepts, o.FilesRead, o.FilesModified, o.PromptNumber,
		o.CreatedAtEpoch, o.ContentHash, o.DiscoveryTokens, o.AutoCategory)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// InsertSummaryTx writes one summary row inside an existing transaction.
func InsertSummaryTx(ctx context.Context, tx *sql.Tx, sm *Summary) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO summaries (session_id, project, request, investigated, learned, completed, next_steps, notes, created_at_epoch)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sm.SessionID, sm.Project, sm.Request, sm.Investigated, sm.Learned, sm.Completed, sm.NextSteps, sm.Notes, sm.CreatedAtEpoch)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// InsertUserPromptTx writes one prompt row inside an existing transaction.
func InsertUserPromptTx(ctx context.Context, tx *sql.Tx, p *UserPrompt) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO user_prompts (content_session_id, project, prompt_number, prompt_text, created_at_epoch)
		VALUES (?, ?, ?, ?, ?)`,
		p.ContentSessionID, p.Project, p.PromptNumber, p.PromptText, p.CreatedAtEpoch)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
