package store

import (
	"context"
	"database/sql"
	"encoding/json"
)

// RetentionCounts reports how many rows each record class removed during a
// retention pass.
type RetentionCounts struct {
	Observations int64
	Summaries    int64
	Prompts      int64
}

// DeleteExpiredObservations deletes non-knowledge observations older than
// cutoffEpoch. Knowledge observations are exempt by default; they are only
// considered when knowledgeCutoffEpoch > 0 (a knowledge retention policy is
// active), and even then only if facts.importance < 4.
func (s *Store) DeleteExpiredObservations(ctx context.Context, cutoffEpoch int64, knowledgeCutoffEpoch int64) (int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, facts, created_at_epoch FROM observations WHERE created_at_epoch < ?`,
		maxEpoch(cutoffEpoch, knowledgeCutoffEpoch))
	if err != nil {
		return 0, err
	}

	var toDelete []int64
	for rows.Next() {
		var id int64
		var obsType, facts string
		var createdAt int64
		if err := rows.Scan(&id, &obsType, &facts, &createdAt); err != nil {
			rows.Close()
			return 0, err
		}
		if KnowledgeTypes[obsType] {
			if knowledgeCutoffEpoch <= 0 || createdAt >= knowledgeCutoffEpoch || importanceAtLeast4(facts) {
				continue
			}
		} else if createdAt >= cutoffEpoch {
			continue
		}
		toDelete = append(toDelete, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	if len(toDelete) == 0 {
		return 0, nil
	}

	var affected int64
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		for _, id := range toDelete {
			res, err := tx.Exec("DELETE FROM observations WHERE id = ?", id)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			affected += n
		}
		return nil
	})
	return affected, err
}

func maxEpoch(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func importanceAtLeast4(facts string) bool {
	if facts == "" {
		return false
	}
	var parsed struct {
		Importance float64 `json:"importance"`
	}
	if err := json.Unmarshal([]byte(facts), &parsed); err != nil {
		return false
	}
	return parsed.Importance >= 4
}
