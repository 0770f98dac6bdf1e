package hybrid

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kiro-memory/worker/internal/embedding"
	"github.com/kiro-memory/worker/internal/logging"
	"github.com/kiro-memory/worker/internal/retrieval"
	"github.com/kiro-memory/worker/internal/store"
	"github.com/kiro-memory/worker/internal/vectorindex"
)

func TestSearchMergesFTSAndVectorTakingMaxScore(t *testing.T) {
	tmpDir := t.TempDir()
	defer os.RemoveAll(tmpDir)
	log := logging.New("test", logging.LevelSilent, io.Discard)
	s, err := store.Open(filepath.Join(tmpDir, "test.db"), log)
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	id, err := s.InsertObservation(ctx, &store.Observation{
		Project:        "demo",
		Type:           "research",
		Title:          "JWT tokens expire in 1h",
		Text:           "JWT tokens expire in 1h after issuance",
		ContentHash:    "hash-1",
		CreatedAtEpoch: time.Now().UnixMilli(),
	})
	if err != nil {
		t.Fatalf("InsertObservation failed: %v", err)
	}

	provider := embedding.NewLocalHashProvider(32)
	idx := vectorindex.New(s)
	vec, _ := provider.Embed(ctx, "JWT tokens expire in 1h after issuance")
	if err := idx.Upsert(ctx, id, vec, provider, time.Now().UnixMilli()); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	searcher := New(retrieval.New(s), idx, provider, s)
	items, err := searcher.Search(ctx, "demo", "JWT tokens expire", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 merged item, got %d", len(items))
	}
	if items[0].Source != SourceBoth {
		t.Errorf("expected source=both, got %s", items[0].Source)
	}
	if items[0].Score <= 0 {
		t.Errorf("expected a positive score, got %f", items[0].Score)
	}
}

func TestVectorOnlyHitScoredFromStoredRow(t *testing.T) {
	tmpDir := t.TempDir()
	log := logging.New("test", logging.LevelSilent, io.Discard)
	s, err := store.Open(filepath.Join(tmpDir, "test.db"), log)
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	now := time.Now().UnixMilli()
	freshID, err := s.InsertObservation(ctx, &store.Observation{
		Project:        "demo",
		Type:           "research",
		Title:          "Cache layout notes",
		Text:           "cache design sketch",
		ContentHash:    "hash-fresh",
		CreatedAtEpoch: now,
	})
	if err != nil {
		t.Fatalf("InsertObservation failed: %v", err)
	}
	oldID, err := s.InsertObservation(ctx, &store.Observation{
		Project:        "demo",
		Type:           "research",
		Title:          "Cache layout archive",
		Text:           "cache design sketch, older",
		ContentHash:    "hash-old",
		CreatedAtEpoch: now - 30*24*time.Hour.Milliseconds(),
	})
	if err != nil {
		t.Fatalf("InsertObservation failed: %v", err)
	}

	// Give both rows the query's own vector so they are perfect vector hits
	// while the query tokens match neither title nor text, keeping FTS out.
	provider := embedding.NewLocalHashProvider(32)
	query := "completely unrelated words"
	qvec, _ := provider.Embed(ctx, query)
	idx := vectorindex.New(s)
	for _, id := range []int64{freshID, oldID} {
		if err := idx.Upsert(ctx, id, qvec, provider, now); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	searcher := New(retrieval.New(s), idx, provider, s)
	items, err := searcher.Search(ctx, "demo", query, 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 vector-only items, got %d", len(items))
	}

	scores := map[int64]float64{}
	for _, it := range items {
		if it.Source != SourceVector {
			t.Errorf("expected source=vector, got %s", it.Source)
		}
		if it.Observation == nil {
			t.Fatal("expected the observation to be resolved")
		}
		if it.Observation.Project != "demo" {
			t.Errorf("expected resolved project, got %q", it.Observation.Project)
		}
		scores[it.Observation.ID] = it.Score
	}
	if scores[freshID] <= scores[oldID] {
		t.Errorf("expected the fresh hit to outscore the 30-day-old one, got fresh=%f old=%f",
			scores[freshID], scores[oldID])
	}
}
