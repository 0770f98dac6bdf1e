// Package hybrid merges full-text and vector search results under
// SEARCH_WEIGHTS into a single ranked list.
package hybrid

import (
	"context"
	"sort"
	"time"

	"github.com/kiro-memory/worker/internal/embedding"
	"github.com/kiro-memory/worker/internal/retrieval"
	"github.com/kiro-memory/worker/internal/scoring"
	"github.com/kiro-memory/worker/internal/store"
	"github.com/kiro-memory/worker/internal/vectorindex"
)

// Source identifies which underlying search(es) produced a hybrid result.
type Source string

const (
	SourceFTS    Source = "fts"
	SourceVector Source = "vector"
	SourceBoth   Source = "both"
)

// Searcher runs FTS and vector search independently against the same
// project scope and merges by observation id, taking the max score per id.
type Searcher struct {
	retriever *retrieval.Retriever
	index     *vectorindex.Index
	provider  embedding.Provider
	store     *store.Store
}

// New builds a Searcher from its collaborators.
func New(r *retrieval.Retriever, idx *vectorindex.Index, provider embedding.Provider, s *store.Store) *Searcher {
	return &Searcher{retriever: r, index: idx, provider: provider, store: s}
}

// Item is one ranked hybrid result.
type Item struct {
	Observation *store.Observation
	Score       float64
	Source      Source
	FTSRank     *float64
	Cosine      *float64
}

// Search runs FTS and vector search for project+query with the same limit,
// scores each under SEARCH_WEIGHTS (filling the other signal with 0),
// merges by observation id taking the max score, sorts descending, and
// truncates to limit.
func (s *Searcher) Search(ctx context.Context, project, query string, limit int) ([]Item, error) {
	ftsPage, err := s.retriever.FTSSearch(ctx, retrieval.Query{Text: query, Project: project, Limit: limit}, "")
	if err != nil {
		return nil, err
	}

	var matches []vectorindex.Match
	if s.provider != nil {
		vec, err := s.provider.Embed(ctx, query)
		if err == nil {
			matches, err = s.index.Search(ctx, project, vec, limit)
			if err != nil {
				return nil, err
			}
		}
	}

	now := time.Now().UnixMilli()
	byID := map[int64]*Item{}

	for _, r := range ftsPage.Results {
		score := scoring.Composite(scoring.SearchWeights, scoring.Signals{
			AgeHours:           ageHours(r.Observation.CreatedAtEpoch, now),
			ObservationProject: r.Observation.Project,
			QueryProject:       project,
			FTSRank:            r.FTSRank,
			ObservationType:    r.Observation.Type,
		})
		byID[r.Observation.ID] = &Item{Observation: r.Observation, Score: score, Source: SourceFTS, FTSRank: r.FTSRank}
	}

	for _, m := range matches {
		cosine := m.Cosine

		// Resolve the row before scoring: recency, project match and the
		// knowledge boost all come from real observation fields, so a
		// vector-only hit must not be scored off zero values.
		var obs *store.Observation
		existing, seen := byID[m.ObservationID]
		if seen {
			obs = existing.Observation
		} else {
			fetched, err := s.observationByID(ctx, m.ObservationID)
			if err != nil {
				continue
			}
			obs = fetched
		}

		score := scoring.Composite(scoring.SearchWeights, scoring.Signals{
			AgeHours:           ageHours(obs.CreatedAtEpoch, now),
			ObservationProject: obs.Project,
			QueryProject:       project,
			Cosine:             &cosine,
			ObservationType:    obs.Type,
		})

		if seen {
			if score > existing.Score {
				existing.Score = score
			}
			existing.Cosine = &cosine
			existing.Source = SourceBoth
			continue
		}
		byID[m.ObservationID] = &Item{Observation: obs, Score: score, Source: SourceVector, Cosine: &cosine}
	}

	items := make([]Item, 0, len(byID))
	for _, it := range byID {
		items = append(items, *it)
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Score > items[j].Score })
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Searcher) observationByID(ctx context.Context, id int64) (*store.Observation, error) {
	return s.store.GetObservation(ctx, id)
}

func ageHours(epoch, nowEpoch int64) float64 {
	if epoch == 0 {
		return 0
	}
	return float64(nowEpoch-epoch) / (1000 * 60 * 60)
}
