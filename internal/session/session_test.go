package session

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kiro-memory/worker/internal/logging"
	"github.com/kiro-memory/worker/internal/store"
)

func setupTestManager(t *testing.T, gen Generator) (*Manager, *store.Store, func()) {
	t.Helper()
	tmpDir := t.TempDir()
	log := logging.New("test", logging.LevelSilent, io.Discard)
	s, err := store.Open(filepath.Join(tmpDir, "test.db"), log)
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	return New(s, gen), s, func() {
		s.Close()
		os.RemoveAll(tmpDir)
	}
}

func TestCompleteSynthesizesSummaryAndCheckpoint(t *testing.T) {
	m, s, cleanup := setupTestManager(t, NewTemplateGenerator())
	defer cleanup()

	ctx := context.Background()
	sess, err := m.GetOrCreate(ctx, "content-1", "demo", "fix the bug")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	_, err = s.InsertObservation(ctx, &store.Observation{
		MemorySessionID: &sess.ID, Project: "demo", Type: "research",
		Title: "found root cause", Narrative: "JWT tokens expire in 1h",
		ContentHash: "h1", CreatedAtEpoch: time.Now().UnixMilli(),
	})
	if err != nil {
		t.Fatalf("InsertObservation failed: %v", err)
	}
	_, err = s.InsertObservation(ctx, &store.Observation{
		MemorySessionID: &sess.ID, Project: "demo", Type: "command",
		Title: "ran tests", Text: "TODO: add more coverage",
		ContentHash: "h2", CreatedAtEpoch: time.Now().UnixMilli(),
	})
	if err != nil {
		t.Fatalf("InsertObservation failed: %v", err)
	}

	summary, checkpoint, err := m.Complete(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if summary == nil || checkpoint == nil {
		t.Fatalf("expected a summary and checkpoint, got %+v / %+v", summary, checkpoint)
	}
	if summary.Learned == "" {
		t.Errorf("expected learned to include the research narrative")
	}
	if summary.NextSteps == "" {
		t.Errorf("expected next-steps to include the mined TODO")
	}

	updated, err := s.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if updated.Status != store.SessionCompleted {
		t.Errorf("expected session completed, got %s", updated.Status)
	}
}

func TestCompleteIsOneShot(t *testing.T) {
	m, _, cleanup := setupTestManager(t, NewTemplateGenerator())
	defer cleanup()

	ctx := context.Background()
	sess, err := m.GetOrCreate(ctx, "content-2", "demo", "")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	if _, _, err := m.Complete(ctx, sess.ID); err != nil {
		t.Fatalf("first Complete failed: %v", err)
	}
	summary, checkpoint, err := m.Complete(ctx, sess.ID)
	if err != nil {
		t.Fatalf("second Complete failed: %v", err)
	}
	if summary != nil || checkpoint != nil {
		t.Errorf("expected no-op on repeated complete, got %+v / %+v", summary, checkpoint)
	}
}

func TestLLMGeneratorFallsBackToTemplateOnHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	log := logging.New("test", logging.LevelSilent, io.Discard)
	gen := NewLLMGenerator(srv.URL, "gpt-test", "", log)

	input := SummaryInput{
		UserPrompt: "investigate the outage",
		Observations: []*store.Observation{
			{Type: "research", Title: "checked logs", Narrative: "found a stack overflow"},
		},
		StartedAtEpoch:   1000,
		CompletedAtEpoch: 2000,
	}

	summary, err := gen.Generate(context.Background(), input)
	if err != nil {
		t.Fatalf("expected fallback to succeed, got error: %v", err)
	}
	if summary.Learned == "" {
		t.Errorf("expected fallback template summary to populate learned")
	}
}

func TestLLMGeneratorUsesValidJSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fields := summaryFields{
			Request: "fix the bug", Investigated: "read the code",
			Learned: "root cause was X", Completed: "patched it",
			NextSteps: "add a regression test", Notes: "took 10 minutes",
		}
		content, _ := json.Marshal(fields)
		resp := chatResponse{Choices: []struct {
			Message chatMessage `json:"message"`
		}{{Message: chatMessage{Role: "assistant", Content: string(content)}}}}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	log := logging.New("test", logging.LevelSilent, io.Discard)
	gen := NewLLMGenerator(srv.URL, "gpt-test", "", log)

	summary, err := gen.Generate(context.Background(), SummaryInput{UserPrompt: "fix the bug"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if summary.Learned != "root cause was X" {
		t.Errorf("expected learned from LLM response, got %q", summary.Learned)
	}
}
