package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// MinGroupSize is the default minimum group size for consolidation.
const MinGroupSize = 3

// MaxMergedTextBytes caps the merged text body of a consolidated group.
const MaxMergedTextBytes = 100_000

// ConsolidateOptions configures a consolidation pass.
//
// By default consolidation groups are scoped within a session; setting
// CrossSession true groups project-wide instead.
type ConsolidateOptions struct {
	Project      string
	MinGroupSize int
	DryRun       bool
	CrossSession bool
}

// ConsolidateResult reports how many observations were merged/removed.
type ConsolidateResult struct {
	Merged  int
	Removed int
}

type consolidateGroup struct {
	sessionKey    sql.NullInt64
	obsType       string
	filesModified string
	ids           []int64
}

// Consolidate groups observations for a project by (type, files_modified),
// optionally scoped within memory_session_id, keeps the most recent row,
// merges the others' text bodies into it, and deletes the rest plus their
// embeddings. Runs inside one transaction; DryRun reports counts without
// mutating.
func (s *Store) Consolidate(ctx context.Context, opts ConsolidateOptions) (ConsolidateResult, error) {
	minGroup := opts.MinGroupSize
	if minGroup <= 0 {
		minGroup = MinGroupSize
	}

	groups, err := s.findConsolidationGroups(ctx, opts.Project, minGroup, opts.CrossSession)
	if err != nil {
		return ConsolidateResult{}, err
	}

	result := ConsolidateResult{}
	for _, g := range groups {
		result.Merged++
		result.Removed += len(g.ids) - 1
	}
	if opts.DryRun || len(groups) == 0 {
		return result, nil
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		for _, g := range groups {
			if err := consolidateGroupTx(tx, g); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ConsolidateResult{}, err
	}
	return result, nil
}

func (s *Store) findConsolidationGroups(ctx context.Context, project string, minGroup int, crossSession bool) ([]consolidateGroup, error) {
	query := `SELECT memory_session_id, type, files_modified, id, created_at_epoch
		FROM observations WHERE project = ? ORDER BY type, files_modified, created_at_epoch DESC`
	rows, err := s.db.QueryContext(ctx, query, project)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type key struct {
		session sql.NullInt64
		obsType string
		files   string
	}
	byKey := map[key]*consolidateGroup{}
	var order []key

	for rows.Next() {
		var sessionID sql.NullInt64
		var obsType, files string
		var id int64
		var createdAt int64
		if err := rows.Scan(&sessionID, &obsType, &files, &id, &createdAt); err != nil {
			return nil, err
		}
		k := key{obsType: obsType, files: files}
		if !crossSession {
			k.session = sessionID
		}
		g, ok := byKey[k]
		if !ok {
			g = &consolidateGroup{sessionKey: sessionID, obsType: obsType, filesModified: files}
			byKey[k] = g
			order = append(order, k)
		}
		g.ids = append(g.ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []consolidateGroup
	for _, k := range order {
		g := byKey[k]
		if len(g.ids) >= minGroup {
			out = append(out, *g)
		}
	}
	return out, nil
}

// consolidateGroupTx merges g.ids (already ordered newest-first by the
// caller's query) into g.ids[0], deleting the rest.
func consolidateGroupTx(tx *sql.Tx, g consolidateGroup) error {
	keepID := g.ids[0]
	others := g.ids[1:]

	var keepTitle, keepText string
	if err := tx.QueryRow("SELECT title, text FROM observations WHERE id = ?", keepID).Scan(&keepTitle, &keepText); err != nil {
		return fmt.Errorf("load kept observation %d: %w", keepID, err)
	}

	merged := []string{keepText}
	seen := map[string]bool{keepText: true}
	for _, id := range others {
		var text string
		if err := tx.QueryRow("SELECT text FROM observations WHERE id = ?", id).Scan(&text); err != nil {
			return fmt.Errorf("load observation %d: %w", id, err)
		}
		// Only distinct bodies are merged; duplicates add nothing.
		if !seen[text] {
			seen[text] = true
			merged = append(merged, text)
		}
	}
	mergedText := strings.Join(merged, "\n---\n")
	if len(mergedText) > MaxMergedTextBytes {
		mergedText = mergedText[:MaxMergedTextBytes]
	}

	newTitle := fmt.Sprintf("[consolidated x%d] %s", len(g.ids), stripExistingPrefix(keepTitle))

	if _, err := tx.Exec("UPDATE observations SET title = ?, text = ? WHERE id = ?", newTitle, mergedText, keepID); err != nil {
		return fmt.Errorf("update kept observation %d: %w", keepID, err)
	}

	placeholders := make([]string, len(others))
	args := make([]any, len(others))
	for i, id := range others {
		placeholders[i] = "?"
		args[i] = id
	}
	if len(others) > 0 {
		if _, err := tx.Exec("DELETE FROM observations WHERE id IN ("+strings.Join(placeholders, ",")+")", args...); err != nil {
			return fmt.Errorf("delete consolidated rows: %w", err)
		}
	}
	return nil
}

func stripExistingPrefix(title string) string {
	if idx := strings.Index(title, "] "); idx >= 0 && strings.HasPrefix(title, "[consolidated x") {
		return title[idx+2:]
	}
	return title
}
