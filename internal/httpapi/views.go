package httpapi

import (
	"time"

	"github.com/kiro-memory/worker/internal/store"
)

// JSON views of the store types. The store structs stay tag-free; the
// HTTP surface owns its own serialization.

type observationView struct {
	ID                int64  `json:"id"`
	MemorySessionID   *int64 `json:"memory_session_id,omitempty"`
	Project           string `json:"project"`
	Type              string `json:"type"`
	Title             string `json:"title"`
	Subtitle          string `json:"subtitle,omitempty"`
	Text              string `json:"text,omitempty"`
	Narrative         string `json:"narrative,omitempty"`
	Facts             string `json:"facts,omitempty"`
	Concepts          string `json:"concepts,omitempty"`
	FilesRead         string `json:"files_read,omitempty"`
	FilesModified     string `json:"files_modified,omitempty"`
	PromptNumber      int    `json:"prompt_number,omitempty"`
	CreatedAt         string `json:"created_at"`
	CreatedAtEpoch    int64  `json:"created_at_epoch"`
	LastAccessedEpoch *int64 `json:"last_accessed_epoch,omitempty"`
	IsStale           bool   `json:"is_stale"`
	AutoCategory      string `json:"auto_category,omitempty"`
}

func toObservationView(o *store.Observation) observationView {
	return observationView{
		ID:                o.ID,
		MemorySessionID:   o.MemorySessionID,
		Project:           o.Project,
		Type:              o.Type,
		Title:             o.Title,
		Subtitle:          o.Subtitle,
		Text:              o.Text,
		Narrative:         o.Narrative,
		Facts:             o.Facts,
		Concepts:          o.Concepts,
		FilesRead:         o.FilesRead,
		FilesModified:     o.FilesModified,
		PromptNumber:      o.PromptNumber,
		CreatedAt:         isoTime(o.CreatedAtEpoch),
		CreatedAtEpoch:    o.CreatedAtEpoch,
		LastAccessedEpoch: o.LastAccessedEpoch,
		IsStale:           o.IsStale,
		AutoCategory:      o.AutoCategory,
	}
}

func toObservationViews(obs []*store.Observation) []observationView {
	out := make([]observationView, 0, len(obs))
	for _, o := range obs {
		out = append(out, toObservationView(o))
	}
	return out
}

type summaryView struct {
	ID             int64  `json:"id"`
	SessionID      int64  `json:"session_id"`
	Project        string `json:"project"`
	Request        string `json:"request,omitempty"`
	Investigated   string `json:"investigated,omitempty"`
	Learned        string `json:"learned,omitempty"`
	Completed      string `json:"completed,omitempty"`
	NextSteps      string `json:"next_steps,omitempty"`
	Notes          string `json:"notes,omitempty"`
	CreatedAt      string `json:"created_at"`
	CreatedAtEpoch int64  `json:"created_at_epoch"`
}

func toSummaryView(sm *store.Summary) summaryView {
	return summaryView{
		ID:             sm.ID,
		SessionID:      sm.SessionID,
		Project:        sm.Project,
		Request:        sm.Request,
		Investigated:   sm.Investigated,
		Learned:        sm.Learned,
		Completed:      sm.Completed,
		NextSteps:      sm.NextSteps,
		Notes:          sm.Notes,
		CreatedAt:      isoTime(sm.CreatedAtEpoch),
		CreatedAtEpoch: sm.CreatedAtEpoch,
	}
}

func toSummaryViews(sums []*store.Summary) []summaryView {
	out := make([]summaryView, 0, len(sums))
	for _, sm := range sums {
		out = append(out, toSummaryView(sm))
	}
	return out
}

type checkpointView struct {
	ID              int64  `json:"id"`
	SessionID       int64  `json:"session_id"`
	Project         string `json:"project"`
	Task            string `json:"task,omitempty"`
	Progress        string `json:"progress,omitempty"`
	NextSteps       string `json:"next_steps,omitempty"`
	OpenQuestions   string `json:"open_questions,omitempty"`
	RelevantFiles   string `json:"relevant_files,omitempty"`
	ContextSnapshot string `json:"context_snapshot,omitempty"`
	CreatedAt       string `json:"created_at"`
	CreatedAtEpoch  int64  `json:"created_at_epoch"`
}

func toCheckpointView(c *store.Checkpoint) checkpointView {
	return checkpointView{
		ID:              c.ID,
		SessionID:       c.SessionID,
		Project:         c.Project,
		Task:            c.Task,
		Progress:        c.Progress,
		NextSteps:       c.NextSteps,
		OpenQuestions:   c.OpenQuestions,
		RelevantFiles:   c.RelevantFiles,
		ContextSnapshot: c.ContextSnapshot,
		CreatedAt:       isoTime(c.CreatedAtEpoch),
		CreatedAtEpoch:  c.CreatedAtEpoch,
	}
}

type promptView struct {
	ID               int64  `json:"id"`
	ContentSessionID string `json:"content_session_id"`
	Project          string `json:"project"`
	PromptNumber     int    `json:"prompt_number"`
	PromptText       string `json:"prompt_text"`
	CreatedAtEpoch   int64  `json:"created_at_epoch"`
}

func toPromptViews(prompts []*store.UserPrompt) []promptView {
	out := make([]promptView, 0, len(prompts))
	for _, p := range prompts {
		out = append(out, promptView{
			ID:               p.ID,
			ContentSessionID: p.ContentSessionID,
			Project:          p.Project,
			PromptNumber:     p.PromptNumber,
			PromptText:       p.PromptText,
			CreatedAtEpoch:   p.CreatedAtEpoch,
		})
	}
	return out
}

type sessionView struct {
	ID               int64  `json:"id"`
	ContentSessionID string `json:"content_session_id"`
	Project          string `json:"project"`
	UserPrompt       string `json:"user_prompt,omitempty"`
	Status           string `json:"status"`
	StartedAtEpoch   int64  `json:"started_at_epoch"`
	CompletedAtEpoch *int64 `json:"completed_at_epoch,omitempty"`
}

func toSessionView(sess *store.Session) sessionView {
	return sessionView{
		ID:               sess.ID,
		ContentSessionID: sess.ContentSessionID,
		Project:          sess.Project,
		UserPrompt:       sess.UserPrompt,
		Status:           sess.Status,
		StartedAtEpoch:   sess.StartedAtEpoch,
		CompletedAtEpoch: sess.CompletedAtEpoch,
	}
}

func isoTime(epochMS int64) string {
	return time.UnixMilli(epochMS).UTC().Format(time.RFC3339)
}
