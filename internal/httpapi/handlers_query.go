package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kiro-memory/worker/internal/hybrid"
	"github.com/kiro-memory/worker/internal/report"
	"github.com/kiro-memory/worker/internal/retrieval"
	"github.com/kiro-memory/worker/internal/smartcontext"
)

func intQuery(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// handleSearch serves GET /api/search?q&project&type&limit&cursor.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		badRequest(w, "q is required")
		return
	}
	ctx, cancel := queryCtx(r)
	defer cancel()

	query := retrieval.Query{
		Text:    q,
		Project: r.URL.Query().Get("project"),
		Type:    r.URL.Query().Get("type"),
		Limit:   intQuery(r, "limit", 20),
	}
	page, err := s.retriever.FTSSearch(ctx, query, r.URL.Query().Get("cursor"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	summaries, err := s.store.SearchSummaries(ctx, q, query.Project, 5)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	observations := make([]observationView, 0, len(page.Results))
	for _, res := range page.Results {
		observations = append(observations, toObservationView(res.Observation))
	}

	resp := map[string]any{
		"observations": observations,
		"summaries":    toSummaryViews(summaries),
	}
	if page.NextCursor != "" {
		resp["nextCursor"] = page.NextCursor
	}
	writeJSON(w, http.StatusOK, resp)
}

type hybridResultView struct {
	ID      int64          `json:"id"`
	Title   string         `json:"title"`
	Content string         `json:"content"`
	Type    string         `json:"type"`
	Project string         `json:"project"`
	Score   float64        `json:"score"`
	Source  hybrid.Source  `json:"source"`
	Signals map[string]any `json:"signals"`
}

// handleHybridSearch serves GET /api/hybrid-search?q&project&limit.
func (s *Server) handleHybridSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		badRequest(w, "q is required")
		return
	}
	ctx, cancel := queryCtx(r)
	defer cancel()

	items, err := s.hybrid.Search(ctx, r.URL.Query().Get("project"), q, intQuery(r, "limit", 20))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	results := make([]hybridResultView, 0, len(items))
	for _, it := range items {
		signals := map[string]any{}
		if it.FTSRank != nil {
			signals["fts_rank"] = *it.FTSRank
		}
		if it.Cosine != nil {
			signals["cosine"] = *it.Cosine
		}
		results = append(results, hybridResultView{
			ID:      it.Observation.ID,
			Title:   it.Observation.Title,
			Content: it.Observation.Text,
			Type:    it.Observation.Type,
			Project: it.Observation.Project,
			Score:   it.Score,
			Source:  it.Source,
			Signals: signals,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// handleBatchObservations serves POST /api/observations/batch, preserving
// input-id order and recording the access (last_accessed_epoch).
func (s *Server) handleBatchObservations(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IDs []int64 `json:"ids"`
	}
	if err := decodeBody(r, &body); err != nil || len(body.IDs) == 0 {
		badRequest(w, "ids must be a non-empty array")
		return
	}
	ctx, cancel := queryCtx(r)
	defer cancel()

	observations, err := s.store.BatchGetObservations(ctx, body.IDs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.store.MarkLastAccessed(ctx, body.IDs, time.Now().UnixMilli()); err != nil && s.log != nil {
		s.log.Warn().Err(err).Msg("failed to mark last access")
	}
	writeJSON(w, http.StatusOK, map[string]any{"observations": toObservationViews(observations)})
}

// handleTimeline serves GET /api/timeline?anchor&depth_before&depth_after.
func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	anchor, err := strconv.ParseInt(r.URL.Query().Get("anchor"), 10, 64)
	if err != nil || anchor <= 0 {
		badRequest(w, "anchor must be a positive observation id")
		return
	}
	ctx, cancel := queryCtx(r)
	defer cancel()

	entries, err := s.retriever.Timeline(ctx, anchor,
		intQuery(r, "depth_before", 5), intQuery(r, "depth_after", 5))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": toObservationViews(entries)})
}

// handleContext serves GET /api/context/{project}: the token-budgeted smart
// context plus recent prompts.
func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")
	ctx, cancel := queryCtx(r)
	defer cancel()

	budget := s.cfg.ContextTokens
	if v := intQuery(r, "tokens", 0); v > 0 {
		budget = v
	}
	result, err := s.smart.Assemble(ctx, smartcontext.Request{
		Project:     project,
		Query:       r.URL.Query().Get("q"),
		TokenBudget: budget,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	prompts, err := s.store.RecentPromptsForProject(ctx, project, 10)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	observations := make([]observationView, 0, len(result.Items))
	for _, item := range result.Items {
		observations = append(observations, toObservationView(item.Observation))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"project":      project,
		"observations": observations,
		"summaries":    toSummaryViews(result.Summaries),
		"prompts":      toPromptViews(prompts),
		"tokensUsed":   result.TokensUsed,
	})
}

// handleCheckpointByProject serves GET /api/checkpoint?project.
func (s *Server) handleCheckpointByProject(w http.ResponseWriter, r *http.Request) {
	project := r.URL.Query().Get("project")
	if project == "" {
		badRequest(w, "project is required")
		return
	}
	ctx, cancel := queryCtx(r)
	defer cancel()

	cp, err := s.store.LatestCheckpointForProject(ctx, project)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"checkpoint": toCheckpointView(cp)})
}

// handleCheckpointBySession serves GET /api/sessions/{id}/checkpoint.
func (s *Server) handleCheckpointBySession(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(w, "session id must be a positive integer")
		return
	}
	ctx, cancel := queryCtx(r)
	defer cancel()

	cp, err := s.store.LatestCheckpointForSession(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"checkpoint": toCheckpointView(cp)})
}

// handleEmbeddingStats serves GET /api/embeddings/stats.
func (s *Server) handleEmbeddingStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := queryCtx(r)
	defer cancel()

	stats, err := s.store.EmbeddingStatsFor(ctx, r.URL.Query().Get("project"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleEmbeddingBackfill serves POST /api/embeddings/backfill, embedding a
// batch of observations missing vectors.
func (s *Server) handleEmbeddingBackfill(w http.ResponseWriter, r *http.Request) {
	if s.provider == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "no embedding provider configured"})
		return
	}
	batch := intQuery(r, "batch", 100)
	var failed int
	processed, err := s.index.Backfill(r.Context(), s.provider, batch, time.Now().UnixMilli(),
		func(id int64, err error) {
			failed++
			if s.log != nil {
				s.log.Warn().Int64("observation_id", id).Err(err).Msg("backfill: embed failed")
			}
		})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"embedded": processed, "failed": failed})
}

// handleReport serves GET /api/report?project&period&format.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	period := report.Period(r.URL.Query().Get("period"))
	if period == "" {
		period = report.PeriodWeekly
	}
	if !period.Valid() {
		badRequest(w, "period must be weekly or monthly")
		return
	}
	ctx, cancel := queryCtx(r)
	defer cancel()

	rep, err := report.Build(ctx, s.store, r.URL.Query().Get("project"), period, time.Now().UnixMilli())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if r.URL.Query().Get("format") == "markdown" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write([]byte(rep.Markdown()))
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
