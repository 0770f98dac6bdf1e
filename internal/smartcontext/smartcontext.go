// Package smartcontext assembles a project-scoped, token-budgeted context
// for the agent: knowledge observations first, then normal observations,
// always including recent summaries, greedily filling a token budget
// without ever splitting an item.
package smartcontext

import (
	"context"
	"sort"
	"time"

	"github.com/kiro-memory/worker/internal/hybrid"
	"github.com/kiro-memory/worker/internal/scoring"
	"github.com/kiro-memory/worker/internal/store"
)

// DefaultTokenBudget is the smart-context token budget absent an override.
const DefaultTokenBudget = 2000

// RecentObservationPoolSize is how many recent observations are considered
// for scoring when no query is given.
const RecentObservationPoolSize = 30

// MaxSummaries caps how many recent summaries are always included.
const MaxSummaries = 5

// Request describes one smart-context assembly call.
type Request struct {
	Project     string
	Query       string
	TokenBudget int
}

// Item is one assembled context entry with its estimated token cost.
type Item struct {
	Observation *store.Observation
	Tokens      int
	IsKnowledge bool
}

// Result is the assembled context.
type Result struct {
	Items      []Item
	Summaries  []*store.Summary
	TokensUsed int
}

// Assembler builds smart context from the store, optionally consulting
// hybrid search when a query is present.
type Assembler struct {
	store  *store.Store
	hybrid *hybrid.Searcher
}

// New builds an Assembler.
func New(s *store.Store, h *hybrid.Searcher) *Assembler {
	return &Assembler{store: s, hybrid: h}
}

// Assemble builds a token-budgeted context for req.
func (a *Assembler) Assemble(ctx context.Context, req Request) (*Result, error) {
	budget := req.TokenBudget
	if budget <= 0 {
		budget = DefaultTokenBudget
	}

	summaries, err := a.store.RecentSummaries(ctx, req.Project, MaxSummaries)
	if err != nil {
		return nil, err
	}

	knowledge, normal, err := a.gatherCandidates(ctx, req)
	if err != nil {
		return nil, err
	}

	result := &Result{Summaries: summaries}
	for _, group := range [][]*store.Observation{knowledge, normal} {
		for _, obs := range group {
			tokens := estimateTokens(obs)
			if result.TokensUsed+tokens > budget {
				return finalize(result, budget), nil
			}
			result.Items = append(result.Items, Item{Observation: obs, Tokens: tokens, IsKnowledge: obs.IsKnowledge()})
			result.TokensUsed += tokens
		}
	}
	return finalize(result, budget), nil
}

func finalize(r *Result, budget int) *Result {
	if r.TokensUsed > budget {
		r.TokensUsed = budget
	}
	return r
}

// gatherCandidates returns (knowledge, normal) observation lists, each
// already scored and sorted descending under CONTEXT_WEIGHTS (or, if a
// query is present, the hybrid-search ranking).
func (a *Assembler) gatherCandidates(ctx context.Context, req Request) ([]*store.Observation, []*store.Observation, error) {
	if req.Query != "" && a.hybrid != nil {
		items, err := a.hybrid.Search(ctx, req.Project, req.Query, RecentObservationPoolSize)
		if err != nil {
			return nil, nil, err
		}
		var knowledge, normal []*store.Observation
		for _, it := range items {
			if it.Observation.IsKnowledge() {
				knowledge = append(knowledge, it.Observation)
			} else {
				normal = append(normal, it.Observation)
			}
		}
		return knowledge, normal, nil
	}

	recent, err := a.store.RecentObservations(ctx, req.Project, RecentObservationPoolSize)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UnixMilli()
	var knowledgeScored, normalScored []scoredObservation
	for _, obs := range recent {
		ageHours := float64(now-obs.CreatedAtEpoch) / (1000 * 60 * 60)
		score := scoring.Composite(scoring.ContextWeights, scoring.Signals{
			AgeHours:           ageHours,
			ObservationProject: obs.Project,
			QueryProject:       req.Project,
			ObservationType:    obs.Type,
		})
		if obs.IsKnowledge() {
			knowledgeScored = append(knowledgeScored, scoredObservation{obs, score})
		} else {
			normalScored = append(normalScored, scoredObservation{obs, score})
		}
	}

	return sortedObservations(knowledgeScored), sortedObservations(normalScored), nil
}

type scoredObservation struct {
	obs   *store.Observation
	score float64
}

func sortedObservations(scored []scoredObservation) []*store.Observation {
	sort.Slice(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	out := make([]*store.Observation, len(scored))
	for i, s := range scored {
		out[i] = s.obs
	}
	return out
}

// estimateTokens applies the ⌈(len(title)+len(content))/4⌉ estimator.
func estimateTokens(obs *store.Observation) int {
	n := len(obs.Title) + len(obs.Text)
	return (n + 3) / 4
}
