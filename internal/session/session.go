// Package session drives the session state machine: getOrCreate
// is idempotent on content-session-id, complete is a one-shot transition,
// and completion synthesizes a Summary followed by a Checkpoint snapshot.
package session

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/kiro-memory/worker/internal/store"
)

// CheckpointSnapshotSize is how many recent observations are captured into
// a checkpoint's context snapshot.
const CheckpointSnapshotSize = 10

// snapshotEntry is one item in a checkpoint's serialized context snapshot.
type snapshotEntry struct {
	ID    int64  `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title"`
}

// Manager drives session lifecycle transitions and end-of-session synthesis.
type Manager struct {
	store     *store.Store
	generator Generator
}

// New builds a Manager using generator for end-of-session summaries.
func New(s *store.Store, generator Generator) *Manager {
	return &Manager{store: s, generator: generator}
}

// GetOrCreate returns the active session for contentSessionID, creating it
// on first use.
func (m *Manager) GetOrCreate(ctx context.Context, contentSessionID, project, userPrompt string) (*store.Session, error) {
	return m.store.GetOrCreateSession(ctx, contentSessionID, project, userPrompt)
}

// Complete transitions a session to completed, synthesizes its Summary, and
// writes the follow-up Checkpoint. Repeated calls on an already-completed
// session are no-ops and return nil summary/checkpoint.
func (m *Manager) Complete(ctx context.Context, sessionID int64) (*store.Summary, *store.Checkpoint, error) {
	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if sess.Status == store.SessionCompleted {
		return nil, nil, nil
	}

	if err := m.store.CompleteSession(ctx, sessionID); err != nil {
		return nil, nil, err
	}

	observations, err := m.store.ObservationsBySession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UnixMilli()
	input := SummaryInput{
		SessionID:        sessionID,
		Project:          sess.Project,
		UserPrompt:       sess.UserPrompt,
		Observations:     observations,
		StartedAtEpoch:   sess.StartedAtEpoch,
		CompletedAtEpoch: now,
	}

	summary, err := m.generator.Generate(ctx, input)
	if err != nil {
		return nil, nil, err
	}
	summary.SessionID = sessionID
	summary.Project = sess.Project
	summary.CreatedAtEpoch = now

	id, err := m.store.InsertSummary(ctx, summary)
	if err != nil {
		return nil, nil, err
	}
	summary.ID = id

	checkpoint, err := m.buildCheckpoint(ctx, sess, summary, now)
	if err != nil {
		return summary, nil, err
	}

	return summary, checkpoint, nil
}

func (m *Manager) buildCheckpoint(ctx context.Context, sess *store.Session, summary *store.Summary, now int64) (*store.Checkpoint, error) {
	recent, err := m.store.RecentObservations(ctx, sess.Project, CheckpointSnapshotSize)
	if err != nil {
		return nil, err
	}

	entries := make([]snapshotEntry, 0, len(recent))
	files := map[string]bool{}
	var relevant []string
	for _, o := range recent {
		entries = append(entries, snapshotEntry{ID: o.ID, Type: o.Type, Title: o.Title})
		for _, f := range strings.Split(o.FilesModified, ",") {
			f = strings.TrimSpace(f)
			if f != "" && !files[f] {
				files[f] = true
				relevant = append(relevant, f)
			}
		}
	}
	snapshotJSON, err := json.Marshal(entries)
	if err != nil {
		return nil, err
	}

	cp := &store.Checkpoint{
		SessionID:       sess.ID,
		Project:         sess.Project,
		Task:            sess.UserPrompt,
		Progress:        summary.Completed,
		NextSteps:       summary.NextSteps,
		RelevantFiles:   strings.Join(relevant, ","),
		ContextSnapshot: string(snapshotJSON),
		CreatedAtEpoch:  now,
	}
	id, err := m.store.InsertCheckpoint(ctx, cp)
	if err != nil {
		return nil, err
	}
	cp.ID = id
	return cp, nil
}
