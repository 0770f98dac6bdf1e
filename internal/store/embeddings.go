package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"math"
)

// EncodeVector packs a []float32 into a little-endian BLOB.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, val := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(val))
	}
	return buf
}

// DecodeVector unpacks a BLOB into []float32. Returns nil for a blob
// whose length isn't a multiple of 4.
func DecodeVector(blob []byte) []float32 {
	if len(blob)%4 != 0 {
		return nil
	}
	v := make([]float32, len(blob)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return v
}

// CosineSimilarity computes the cosine of two vectors. Vectors of
// mismatched length never compare equal; mismatched-dimension rows are
// reported through Stats rather than silently scored.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// UpsertEmbedding stores or replaces an observation's embedding row.
func (s *Store) UpsertEmbedding(ctx context.Context, e *Embedding) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO embeddings (observation_id, vector, model_provider, dimensions, created_at_epoch)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(observation_id) DO UPDATE SET
			vector = excluded.vector,
			model_provider = excluded.model_provider,
			dimensions = excluded.dimensions,
			created_at_epoch = excluded.created_at_epoch`,
		e.ObservationID, e.Vector, e.ModelProvider, e.Dimensions, e.CreatedAtEpoch)
	return err
}

// GetEmbedding fetches the embedding row for an observation, if any.
func (s *Store) GetEmbedding(ctx context.Context, observationID int64) (*Embedding, error) {
	var e Embedding
	e.ObservationID = observationID
	err := s.db.QueryRowContext(ctx, `
		SELECT vector, model_provider, dimensions, created_at_epoch
		FROM embeddings WHERE observation_id = ?`, observationID).
		Scan(&e.Vector, &e.ModelProvider, &e.Dimensions, &e.CreatedAtEpoch)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ObservationsMissingEmbedding returns up to limit observation ids with no
// embedding row, for the backfill loop.
func (s *Store) ObservationsMissingEmbedding(ctx context.Context, limit int) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.id FROM observations o
		LEFT JOIN embeddings e ON e.observation_id = o.id
		WHERE e.observation_id IS NULL
		ORDER BY o.id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// EmbeddingStats summarizes the embedding table for /api/embeddings/stats.
type EmbeddingStats struct {
	Total          int            `json:"total"`
	MissingCount   int            `json:"missingCount"`
	ByProvider     map[string]int `json:"byProvider"`
	OrphanedByDims map[int]int    `json:"orphanedByDims"`
}

// EmbeddingStatsFor computes embedding coverage and per-provider/dimension
// breakdowns. Rows whose dimensions differ from the most common dimension
// are reported as orphaned, surfacing a provider dimension change instead
// of erroring the scan.
func (s *Store) EmbeddingStatsFor(ctx context.Context, project string) (*EmbeddingStats, error) {
	stats := &EmbeddingStats{ByProvider: map[string]int{}, OrphanedByDims: map[int]int{}}

	var total int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM observations o
		JOIN embeddings e ON e.observation_id = o.id
		WHERE o.project = ? OR ? = ''`, project, project).Scan(&total); err != nil {
		return nil, err
	}
	stats.Total = total

	var missing int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM observations o
		LEFT JOIN embeddings e ON e.observation_id = o.id
		WHERE (o.project = ? OR ? = '') AND e.observation_id IS NULL`, project, project).Scan(&missing); err != nil {
		return nil, err
	}
	stats.MissingCount = missing

	rows, err := s.db.QueryContext(ctx, `
		SELECT e.model_provider, e.dimensions, COUNT(*)
		FROM embeddings e
		JOIN observations o ON o.id = e.observation_id
		WHERE o.project = ? OR ? = ''
		GROUP BY e.model_provider, e.dimensions`, project, project)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	dimCounts := map[int]int{}
	for rows.Next() {
		var provider string
		var dims, n int
		if err := rows.Scan(&provider, &dims, &n); err != nil {
			return nil, err
		}
		stats.ByProvider[provider] += n
		dimCounts[dims] += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	majority := 0
	for dims, n := range dimCounts {
		if n > dimCounts[majority] {
			majority = dims
		}
	}
	for dims, n := range dimCounts {
		if dims != majority {
			stats.OrphanedByDims[dims] = n
		}
	}
	return stats, nil
}
