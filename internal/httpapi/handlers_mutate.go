package httpapi

import (
	"bufio"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kiro-memory/worker/internal/backup"
	"github.com/kiro-memory/worker/internal/eventbus"
	"github.com/kiro-memory/worker/internal/importexport"
	"github.com/kiro-memory/worker/internal/ingest"
	"github.com/kiro-memory/worker/internal/scheduler"
	"github.com/kiro-memory/worker/internal/store"
)

// knowledgeTypes restricts POST /api/knowledge bodies to the four types
// the scoring engine and retention policy treat as knowledge.
var knowledgeTypes = map[string]bool{
	"constraint": true,
	"decision":   true,
	"heuristic":  true,
	"rejected":   true,
}

// handleKnowledge serves POST /api/knowledge.
func (s *Server) handleKnowledge(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Project       string          `json:"project"`
		KnowledgeType string          `json:"knowledge_type"`
		Title         string          `json:"title"`
		Content       string          `json:"content"`
		Narrative     string          `json:"narrative"`
		Concepts      string          `json:"concepts"`
		Metadata      json.RawMessage `json:"metadata"`
	}
	if err := decodeBody(r, &body); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if !knowledgeTypes[body.KnowledgeType] {
		badRequest(w, "knowledge_type must be one of constraint, decision, heuristic, rejected")
		return
	}
	if body.Project == "" {
		body.Project = s.cfg.Project
	}

	facts := ""
	if len(body.Metadata) > 0 {
		facts = string(body.Metadata)
	}
	id, err := s.pipeline.Ingest(r.Context(), ingest.Candidate{
		Project:   body.Project,
		Type:      body.KnowledgeType,
		Title:     body.Title,
		Text:      body.Content,
		Narrative: body.Narrative,
		Concepts:  body.Concepts,
		Facts:     facts,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "duplicate": id == store.DuplicateID})
}

// handleMemorySave serves POST /api/memory/save (manual observation,
// default type research).
func (s *Server) handleMemorySave(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Project   string `json:"project"`
		Type      string `json:"type"`
		Title     string `json:"title"`
		Content   string `json:"content"`
		Narrative string `json:"narrative"`
		Concepts  string `json:"concepts"`
	}
	if err := decodeBody(r, &body); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if body.Type == "" {
		body.Type = "research"
	}
	if body.Project == "" {
		body.Project = s.cfg.Project
	}

	id, err := s.pipeline.Ingest(r.Context(), ingest.Candidate{
		Project:   body.Project,
		Type:      body.Type,
		Title:     body.Title,
		Text:      body.Content,
		Narrative: body.Narrative,
		Concepts:  body.Concepts,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "duplicate": id == store.DuplicateID})
}

// handleHookObservation serves POST /api/hooks/observation: the agent-side
// shell hook reporting one tool invocation. The session is resolved (or
// created) from the content session id before the ingest pipeline runs.
func (s *Server) handleHookObservation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ContentSessionID string `json:"content_session_id"`
		Project          string `json:"project"`
		Type             string `json:"type"`
		Title            string `json:"title"`
		Subtitle         string `json:"subtitle"`
		Text             string `json:"text"`
		Narrative        string `json:"narrative"`
		Facts            string `json:"facts"`
		Concepts         string `json:"concepts"`
		FilesRead        string `json:"files_read"`
		FilesModified    string `json:"files_modified"`
		PromptNumber     int    `json:"prompt_number"`
	}
	if err := decodeBody(r, &body); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if body.Project == "" {
		body.Project = s.cfg.Project
	}

	candidate := ingest.Candidate{
		Project:       body.Project,
		Type:          body.Type,
		Title:         body.Title,
		Subtitle:      body.Subtitle,
		Text:          body.Text,
		Narrative:     body.Narrative,
		Facts:         body.Facts,
		Concepts:      body.Concepts,
		FilesRead:     body.FilesRead,
		FilesModified: body.FilesModified,
		PromptNumber:  body.PromptNumber,
	}
	if body.ContentSessionID != "" {
		sess, err := s.sessions.GetOrCreate(r.Context(), body.ContentSessionID, body.Project, "")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		candidate.MemorySessionID = &sess.ID
	}

	id, err := s.pipeline.Ingest(r.Context(), candidate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "duplicate": id == store.DuplicateID})
}

// handleHookPrompt serves POST /api/hooks/prompt, recording one user prompt
// within a session.
func (s *Server) handleHookPrompt(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ContentSessionID string `json:"content_session_id"`
		Project          string `json:"project"`
		PromptNumber     int    `json:"prompt_number"`
		PromptText       string `json:"prompt_text"`
	}
	if err := decodeBody(r, &body); err != nil || body.ContentSessionID == "" {
		badRequest(w, "content_session_id is required")
		return
	}
	if body.Project == "" {
		body.Project = s.cfg.Project
	}
	if _, err := s.sessions.GetOrCreate(r.Context(), body.ContentSessionID, body.Project, body.PromptText); err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := s.store.InsertUserPrompt(r.Context(), &store.UserPrompt{
		ContentSessionID: body.ContentSessionID,
		Project:          body.Project,
		PromptNumber:     body.PromptNumber,
		PromptText:       body.PromptText,
		CreatedAtEpoch:   nowEpoch(),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id})
}

// handleHookSessionStart serves POST /api/hooks/session-start. getOrCreate
// is idempotent, so replays of the same content session id return the same
// row.
func (s *Server) handleHookSessionStart(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ContentSessionID string `json:"content_session_id"`
		Project          string `json:"project"`
		Prompt           string `json:"prompt"`
	}
	if err := decodeBody(r, &body); err != nil || body.ContentSessionID == "" {
		badRequest(w, "content_session_id is required")
		return
	}
	if body.Project == "" {
		body.Project = s.cfg.Project
	}

	sess, err := s.sessions.GetOrCreate(r.Context(), body.ContentSessionID, body.Project, body.Prompt)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if s.bus != nil {
		_ = s.bus.Publish(eventbus.SubjectSessionStarted, eventbus.SessionStartedEvent{
			ID:               sess.ID,
			ContentSessionID: sess.ContentSessionID,
			Project:          sess.Project,
			StartedAtEpoch:   sess.StartedAtEpoch,
		})
	}
	if s.hooks != nil {
		s.hooks.OnSessionStart(r.Context(), sess)
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": toSessionView(sess)})
}

// handleHookSessionEnd serves POST /api/hooks/session-end: completes the
// session, synthesizes its summary and checkpoint, and fans both out.
func (s *Server) handleHookSessionEnd(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ContentSessionID string `json:"content_session_id"`
	}
	if err := decodeBody(r, &body); err != nil || body.ContentSessionID == "" {
		badRequest(w, "content_session_id is required")
		return
	}

	sess, err := s.store.GetSessionByContentID(r.Context(), body.ContentSessionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	summary, checkpoint, err := s.sessions.Complete(r.Context(), sess.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if summary == nil {
		// Already completed; repeated session-end hooks are no-ops.
		writeJSON(w, http.StatusOK, map[string]any{"session": toSessionView(sess)})
		return
	}

	if s.bus != nil {
		_ = s.bus.Publish(eventbus.SubjectSummaryCreated, eventbus.SummaryCreatedEvent{
			ID: summary.ID, SessionID: summary.SessionID, Project: summary.Project, CreatedAtEpoch: summary.CreatedAtEpoch,
		})
		_ = s.bus.Publish(eventbus.SubjectCheckpointCreated, eventbus.CheckpointCreatedEvent{
			ID: checkpoint.ID, SessionID: checkpoint.SessionID, Project: checkpoint.Project, CreatedAtEpoch: checkpoint.CreatedAtEpoch,
		})
		_ = s.bus.Publish(eventbus.SubjectSessionCompleted, eventbus.SessionCompletedEvent{
			ID:               sess.ID,
			ContentSessionID: sess.ContentSessionID,
			Project:          sess.Project,
			CompletedAtEpoch: summary.CreatedAtEpoch,
		})
	}
	if s.hooks != nil {
		s.hooks.OnSummary(r.Context(), summary)
		s.hooks.OnSessionEnd(r.Context(), sess)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"summary":    toSummaryView(summary),
		"checkpoint": toCheckpointView(checkpoint),
	})
}

// handleConsolidate serves POST /api/observations/consolidate.
func (s *Server) handleConsolidate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Project      string `json:"project"`
		MinGroupSize int    `json:"min_group_size"`
		DryRun       bool   `json:"dry_run"`
		CrossSession bool   `json:"cross_session"`
	}
	if err := decodeBody(r, &body); err != nil || body.Project == "" {
		badRequest(w, "project is required")
		return
	}
	result, err := s.store.Consolidate(r.Context(), store.ConsolidateOptions{
		Project:      body.Project,
		MinGroupSize: body.MinGroupSize,
		DryRun:       body.DryRun,
		CrossSession: body.CrossSession,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"merged": result.Merged, "removed": result.Removed, "dry_run": body.DryRun})
}

// handleMarkStale serves POST /api/observations/mark-stale.
func (s *Server) handleMarkStale(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Project string `json:"project"`
	}
	if err := decodeBody(r, &body); err != nil || body.Project == "" {
		badRequest(w, "project is required")
		return
	}
	marked, err := s.store.MarkStaleObservations(r.Context(), body.Project)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"marked": marked})
}

// handleBackupCreate serves POST /api/backup/create.
func (s *Server) handleBackupCreate(w http.ResponseWriter, r *http.Request) {
	filename, err := s.backups.Create(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"filename": filename})
}

// handleBackupList serves GET /api/backup/list.
func (s *Server) handleBackupList(w http.ResponseWriter, r *http.Request) {
	names, err := s.backups.List()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"backups": names})
}

// handleBackupRestore serves POST /api/backup/restore (authenticated). A
// filename outside the validated set is a conflict, not an internal error.
func (s *Server) handleBackupRestore(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Filename string `json:"filename"`
	}
	if err := decodeBody(r, &body); err != nil || body.Filename == "" {
		badRequest(w, "filename is required")
		return
	}
	if err := s.backups.Restore(body.Filename); err != nil {
		if errors.Is(err, backup.ErrInvalidFilename) || errors.Is(err, backup.ErrUnknownBackup) {
			writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
			return
		}
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"restored": body.Filename, "restart_required": true})
}

// handleAdminRetention serves POST /api/admin/retention (authenticated):
// one immediate retention sweep under override max-age settings.
func (s *Server) handleAdminRetention(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ObservationDays *int `json:"observation_days"`
		SummaryDays     *int `json:"summary_days"`
		PromptDays      *int `json:"prompt_days"`
		KnowledgeDays   *int `json:"knowledge_days"`
	}
	if err := decodeBody(r, &body); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	cfg := scheduler.RetentionConfig{
		ObservationDays: s.cfg.RetentionDaysObs,
		SummaryDays:     s.cfg.RetentionDaysSumm,
		PromptDays:      s.cfg.RetentionDaysProm,
		KnowledgeDays:   s.cfg.RetentionDaysKnow,
	}
	if body.ObservationDays != nil {
		cfg.ObservationDays = *body.ObservationDays
	}
	if body.SummaryDays != nil {
		cfg.SummaryDays = *body.SummaryDays
	}
	if body.PromptDays != nil {
		cfg.PromptDays = *body.PromptDays
	}
	if body.KnowledgeDays != nil {
		cfg.KnowledgeDays = *body.KnowledgeDays
	}
	result := s.sched.RunRetentionNow(r.Context(), cfg)
	writeJSON(w, http.StatusOK, result)
}

// handleImport serves POST /api/import/jsonl. The body is the raw NDJSON
// stream (text/plain); ?dry_run=true validates without writing.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	dryRun := r.URL.Query().Get("dry_run") == "true"

	result, err := importexport.Import(r.Context(), s.store, r.Body, importexport.ImportOptions{DryRun: dryRun})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	errs := make([]map[string]any, 0, len(result.Errors))
	for _, ie := range result.Errors {
		errs = append(errs, map[string]any{"line": ie.Line, "reason": ie.Reason})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"imported": result.Imported,
		"skipped":  result.Skipped,
		"errors":   errs,
		"dry_run":  dryRun,
	})
}

// handleExport serves GET /api/export/jsonl?project&type, streaming NDJSON
// straight onto the response writer.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	bw := bufio.NewWriter(w)
	err := importexport.Export(r.Context(), s.store, importexport.ExportOptions{
		Project: r.URL.Query().Get("project"),
		Type:    r.URL.Query().Get("type"),
	}, func(line string) error {
		if _, err := bw.WriteString(line); err != nil {
			return err
		}
		return bw.WriteByte('\n')
	})
	if err != nil {
		// Headers may already be out; log instead of rewriting the status.
		if s.log != nil {
			s.log.Error().Err(err).Msg("export stream failed")
		}
		return
	}
	_ = bw.Flush()
}
