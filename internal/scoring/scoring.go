// Package scoring computes the composite ranking score used by retrieval,
// hybrid search and smart-context assembly: a weighted sum of recency,
// project-match, full-text and semantic signals, boosted for knowledge
// types and clamped to [0, 1].
package scoring

import "math"

// RecencyHalfLifeHours is τ in exp(-age_hours/τ).
const RecencyHalfLifeHours = 72.0

// Weights is a named weight profile over the four signals.
type Weights struct {
	Recency      float64
	ProjectMatch float64
	FTS          float64
	Semantic     float64
}

// SearchWeights favors semantic and full-text relevance for explicit queries.
var SearchWeights = Weights{Recency: 0.10, ProjectMatch: 0.10, FTS: 0.35, Semantic: 0.45}

// ContextWeights favors recency and project affinity for ambient context
// assembly where there is no explicit query.
var ContextWeights = Weights{Recency: 0.45, ProjectMatch: 0.30, FTS: 0.10, Semantic: 0.15}

// knowledgeTypeBoost multiplies the composite score for knowledge
// observation types; ordinary observations get 1 (no boost).
var knowledgeTypeBoost = map[string]float64{
	"constraint": 1.5,
	"decision":   1.4,
	"heuristic":  1.3,
	"rejected":   1.2,
}

// Recency computes exp(-age_hours/τ), clamped to [0, 1].
func Recency(ageHours float64) float64 {
	if ageHours < 0 {
		ageHours = 0
	}
	v := math.Exp(-ageHours / RecencyHalfLifeHours)
	return clamp01(v)
}

// ProjectMatch returns 1 for an exact match, 0 otherwise.
func ProjectMatch(observationProject, queryProject string) float64 {
	if queryProject == "" {
		return 0
	}
	if observationProject == queryProject {
		return 1
	}
	return 0
}

// FTS normalizes a raw full-text rank (SQLite FTS5 bm25 is negative and
// unbounded; smaller/more-negative is a better match) into [0, 1].
func FTS(rank float64) float64 {
	if rank >= 0 {
		return 0
	}
	// bm25 ranks rarely exceed magnitude 20 in practice for this corpus
	// size; map -rank through a saturating curve instead of a hard cutoff.
	v := -rank / (-rank + 10)
	return clamp01(v)
}

// Semantic clamps a cosine similarity into [0, 1].
func Semantic(cosine float64) float64 {
	return clamp01(math.Max(0, cosine))
}

// Signals is the per-item signal vector fed into Composite.
type Signals struct {
	AgeHours            float64
	ObservationProject  string
	QueryProject        string
	FTSRank             *float64 // nil when the item has no FTS result
	Cosine              *float64 // nil when the item has no vector result
	ObservationType     string
}

// Composite computes the weighted sum of signals, multiplies by the
// knowledge-type boost, and clamps to [0, 1].
func Composite(w Weights, s Signals) float64 {
	fts := 0.0
	if s.FTSRank != nil {
		fts = FTS(*s.FTSRank)
	}
	semantic := 0.0
	if s.Cosine != nil {
		semantic = Semantic(*s.Cosine)
	}

	score := w.Recency*Recency(s.AgeHours) +
		w.ProjectMatch*ProjectMatch(s.ObservationProject, s.QueryProject) +
		w.FTS*fts +
		w.Semantic*semantic

	score *= KnowledgeTypeBoost(s.ObservationType)
	return clamp01(score)
}

// KnowledgeTypeBoost returns the multiplier for an observation type: 1 for
// ordinary types, >1 for the four knowledge types.
func KnowledgeTypeBoost(obsType string) float64 {
	if boost, ok := knowledgeTypeBoost[obsType]; ok {
		return boost
	}
	return 1
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
