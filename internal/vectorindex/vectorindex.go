// Package vectorindex persists embeddings as packed BLOBs and runs the
// project-scoped cosine similarity scans backing hybrid search, plus the
// backfill loop for observations that never got a vector.
package vectorindex

import (
	"context"
	"sort"

	"github.com/kiro-memory/worker/internal/embedding"
	"github.com/kiro-memory/worker/internal/store"
)

// Index wraps a Store for vector-similarity operations.
type Index struct {
	store *store.Store
}

// New builds an Index over the given Store.
func New(s *store.Store) *Index {
	return &Index{store: s}
}

// Match is one scored result from a vector scan.
type Match struct {
	ObservationID int64
	Cosine        float64
}

// Upsert stores or replaces the embedding for an observation.
func (idx *Index) Upsert(ctx context.Context, observationID int64, vec []float32, provider embedding.Provider, nowEpoch int64) error {
	return idx.store.UpsertEmbedding(ctx, &store.Embedding{
		ObservationID:  observationID,
		Vector:         store.EncodeVector(vec),
		ModelProvider:  provider.Name(),
		Dimensions:     len(vec),
		CreatedAtEpoch: nowEpoch,
	})
}

// Search scans all embeddings for observations in project, scoring each by
// cosine similarity against query, and returns the top limit matches sorted
// descending. Vectors whose dimension doesn't match query's are skipped
// rather than erroring the whole scan.
func (idx *Index) Search(ctx context.Context, project string, query []float32, limit int) ([]Match, error) {
	rows, err := idx.store.DB().QueryContext(ctx, `
		SELECT e.observation_id, e.vector, e.dimensions
		FROM embeddings e
		JOIN observations o ON o.id = e.observation_id
		WHERE o.project = ?`, project)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var observationID int64
		var blob []byte
		var dims int
		if err := rows.Scan(&observationID, &blob, &dims); err != nil {
			return nil, err
		}
		if dims != len(query) {
			continue
		}
		vec := store.DecodeVector(blob)
		sim := store.CosineSimilarity(query, vec)
		matches = append(matches, Match{ObservationID: observationID, Cosine: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Cosine > matches[j].Cosine })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// Backfill finds up to batchSize observations with no embedding row, embeds
// their title+text+narrative with provider, and stores the result. Returns
// the number of rows processed; individual embed failures are logged and
// skipped by the caller rather than aborting the whole batch.
func (idx *Index) Backfill(ctx context.Context, provider embedding.Provider, batchSize int, nowEpoch int64, onError func(observationID int64, err error)) (int, error) {
	ids, err := idx.store.ObservationsMissingEmbedding(ctx, batchSize)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, id := range ids {
		obs, err := idx.store.GetObservation(ctx, id)
		if err != nil {
			if onError != nil {
				onError(id, err)
			}
			continue
		}
		text := obs.Title + "\n" + obs.Text + "\n" + obs.Narrative
		vec, err := provider.Embed(ctx, text)
		if err != nil {
			if onError != nil {
				onError(id, err)
			}
			continue
		}
		if err := idx.Upsert(ctx, id, vec, provider, nowEpoch); err != nil {
			if onError != nil {
				onError(id, err)
			}
			continue
		}
		processed++
	}
	return processed, nil
}
