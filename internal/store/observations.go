package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// DedupWindowMS returns the per-type dedup window in milliseconds.
func DedupWindowMS(obsType string) int64 {
	switch obsType {
	case "file-read":
		return 60_000
	case "file-write":
		return 10_000
	case "command":
		return 30_000
	case "research":
		return 120_000
	case "delegation":
		return 60_000
	default:
		return 30_000
	}
}

// FindDuplicate looks up a row with the same content hash created within
// the dedup window ending at nowEpoch. Returns (id, true, nil) on a hit.
func (s *Store) FindDuplicate(ctx context.Context, contentHash string, obsType string, nowEpoch int64) (int64, bool, error) {
	windowStart := nowEpoch - DedupWindowMS(obsType)
	var id int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM observations
		WHERE content_hash = ? AND created_at_epoch > ?
		ORDER BY created_at_epoch DESC LIMIT 1`,
		contentHash, windowStart).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// InsertObservation writes a single observation row. Validation, redaction,
// categorization and dedup are the caller's responsibility (internal/ingest
// orchestrates them in order); this is the durable write step.
func (s *Store) InsertObservation(ctx context.Context, o *Observation) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO observations (
			memory_session_id, project, type, title, subtitle, text, narrative,
			facts, concepts, files_read, files_modified, prompt_number,
			created_at_epoch, content_hash, discovery_tokens, auto_category
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.MemorySessionID, o.Project, o.Type, o.Title, o.Subtitle, o.Text, o.Narrative,
		o.Facts, o.Concepts, o.FilesRead, o.FilesModified, o.PromptNumber,
		o.CreatedAtEpoch, o.ContentHash, o.DiscoveryTokens, o.AutoCategory)
	if err != nil {
		return 0, fmt.Errorf("insert observation: %w", err)
	}
	return res.LastInsertId()
}

const observationColumns = `
	id, memory_session_id, project, type, title, subtitle, text, narrative,
	facts, concepts, files_read, files_modified, prompt_number,
	created_at_epoch, content_hash, discovery_tokens, last_accessed_epoch,
	is_stale, auto_category`

// ObservationColumns is the column list (unqualified) backing Observation,
// in the order ScanObservation expects. Exported so internal/retrieval can
// build queries that join against other tables while still reusing the
// same scan logic.
const ObservationColumns = observationColumns

// ObservationColumnsPrefixed is ObservationColumns qualified with a table
// alias, for queries that join observations against another table.
func ObservationColumnsPrefixed(alias string) string {
	cols := []string{
		"id", "memory_session_id", "project", "type", "title", "subtitle", "text", "narrative",
		"facts", "concepts", "files_read", "files_modified", "prompt_number",
		"created_at_epoch", "content_hash", "discovery_tokens", "last_accessed_epoch",
		"is_stale", "auto_category",
	}
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += alias + "." + c
	}
	return out
}

// Scanner is satisfied by *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// ScanObservation scans one row matching ObservationColumns' order.
// Exported for internal/retrieval, which issues its own join queries but
// still needs the observation row shape.
func ScanObservation(row Scanner) (*Observation, error) {
	return scanObservation(row)
}

// scanObservation scans one row matching observationColumns' order.
func scanObservation(row interface {
	Scan(dest ...any) error
}) (*Observation, error) {
	var o Observation
	var sessionID sql.NullInt64
	var lastAccessed sql.NullInt64
	var isStale int
	err := row.Scan(&o.ID, &sessionID, &o.Project, &o.Type, &o.Title, &o.Subtitle, &o.Text, &o.Narrative,
		&o.Facts, &o.Concepts, &o.FilesRead, &o.FilesModified, &o.PromptNumber,
		&o.CreatedAtEpoch, &o.ContentHash, &o.DiscoveryTokens, &lastAccessed,
		&isStale, &o.AutoCategory)
	if err != nil {
		return nil, err
	}
	if sessionID.Valid {
		v := sessionID.Int64
		o.MemorySessionID = &v
	}
	if lastAccessed.Valid {
		v := lastAccessed.Int64
		o.LastAccessedEpoch = &v
	}
	o.IsStale = isStale != 0
	return &o, nil
}

// GetObservation fetches a single observation by id.
func (s *Store) GetObservation(ctx context.Context, id int64) (*Observation, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+observationColumns+" FROM observations WHERE id = ?", id)
	o, err := scanObservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

// BatchGetObservations fetches observations by id, preserving the order of
// ids as given.
func (s *Store) BatchGetObservations(ctx context.Context, ids []int64) ([]*Observation, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := "SELECT " + observationColumns + " FROM observations WHERE id IN (" + strings.Join(placeholders, ",") + ")"
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[int64]*Observation, len(ids))
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		byID[o.ID] = o
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*Observation, 0, len(ids))
	for _, id := range ids {
		if o, ok := byID[id]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}

// RecentObservations fetches up to limit recent observations for a project,
// newest first, stably ordered for pagination.
func (s *Store) RecentObservations(ctx context.Context, project string, limit int) ([]*Observation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+observationColumns+` FROM observations
		WHERE project = ?
		ORDER BY created_at_epoch DESC, id DESC
		LIMIT ?`, project, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanObservationRows(rows)
}

// ScanObservations scans all remaining rows with ObservationColumns' shape.
// Exported for internal/retrieval's own join queries.
func ScanObservations(rows *sql.Rows) ([]*Observation, error) {
	return scanObservationRows(rows)
}

func scanObservationRows(rows *sql.Rows) ([]*Observation, error) {
	var out []*Observation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ObservationsBySession fetches all observations recorded under a session,
// oldest first, for summary and checkpoint generation.
func (s *Store) ObservationsBySession(ctx context.Context, sessionID int64) ([]*Observation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+observationColumns+` FROM observations
		WHERE memory_session_id = ?
		ORDER BY created_at_epoch ASC, id ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanObservationRows(rows)
}

// MarkLastAccessed records that ids were surfaced by a retrieval operation.
func (s *Store) MarkLastAccessed(ctx context.Context, ids []int64, nowEpoch int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, nowEpoch)
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}
	_, err := s.db.ExecContext(ctx,
		"UPDATE observations SET last_accessed_epoch = ? WHERE id IN ("+strings.Join(placeholders, ",")+")",
		args...)
	return err
}
