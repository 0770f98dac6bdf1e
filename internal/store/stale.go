package store

import (
	"context"
	"os"
	"strings"
	"time"
)

// MarkStaleObservations scans observations for a project whose referenced
// files have a newer modification time than the observation's creation
// time, and marks them is_stale in bulk. Returns the number of
// rows updated.
func (s *Store) MarkStaleObservations(ctx context.Context, project string) (int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, files_read, files_modified, created_at_epoch
		FROM observations WHERE project = ? AND is_stale = 0`, project)
	if err != nil {
		return 0, err
	}

	type candidate struct {
		id        int64
		files     []string
		createdAt int64
	}
	var candidates []candidate
	for rows.Next() {
		var id, createdAt int64
		var filesRead, filesModified string
		if err := rows.Scan(&id, &filesRead, &filesModified, &createdAt); err != nil {
			rows.Close()
			return 0, err
		}
		files := append(splitFiles(filesRead), splitFiles(filesModified)...)
		candidates = append(candidates, candidate{id: id, files: files, createdAt: createdAt})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	var staleIDs []int64
	for _, c := range candidates {
		if len(c.files) == 0 {
			continue
		}
		createdAt := time.UnixMilli(c.createdAt)
		for _, f := range c.files {
			info, err := os.Stat(f)
			if err != nil {
				continue // missing/unreadable file is not evidence of staleness
			}
			if info.ModTime().After(createdAt) {
				staleIDs = append(staleIDs, c.id)
				break
			}
		}
	}
	if len(staleIDs) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(staleIDs))
	args := make([]any, len(staleIDs))
	for i, id := range staleIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	_, err = s.db.ExecContext(ctx,
		"UPDATE observations SET is_stale = 1 WHERE id IN ("+strings.Join(placeholders, ",")+")",
		args...)
	if err != nil {
		return 0, err
	}
	return len(staleIDs), nil
}

func splitFiles(csv string) []string {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
