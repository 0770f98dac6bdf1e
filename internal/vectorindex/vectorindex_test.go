package vectorindex

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kiro-memory/worker/internal/embedding"
	"github.com/kiro-memory/worker/internal/logging"
	"github.com/kiro-memory/worker/internal/store"
)

func setupTestIndex(t *testing.T) (*Index, *store.Store, func()) {
	t.Helper()
	tmpDir := t.TempDir()
	log := logging.New("test", logging.LevelSilent, io.Discard)
	s, err := store.Open(filepath.Join(tmpDir, "test.db"), log)
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	return New(s), s, func() {
		s.Close()
		os.RemoveAll(tmpDir)
	}
}

func TestBackfillEmbedsMissingObservations(t *testing.T) {
	idx, s, cleanup := setupTestIndex(t)
	defer cleanup()

	ctx := context.Background()
	id, err := s.InsertObservation(ctx, &store.Observation{
		Project:        "demo",
		Type:           "research",
		Title:          "JWT expiry",
		Text:           "JWT tokens expire in 1h",
		ContentHash:    "hash-1",
		CreatedAtEpoch: time.Now().UnixMilli(),
	})
	if err != nil {
		t.Fatalf("InsertObservation failed: %v", err)
	}

	provider := embedding.NewLocalHashProvider(32)
	n, err := idx.Backfill(ctx, provider, 10, time.Now().UnixMilli(), nil)
	if err != nil {
		t.Fatalf("Backfill failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 processed, got %d", n)
	}

	emb, err := s.GetEmbedding(ctx, id)
	if err != nil {
		t.Fatalf("GetEmbedding failed: %v", err)
	}
	if emb.Dimensions != 32 {
		t.Errorf("expected 32 dims, got %d", emb.Dimensions)
	}
}

func TestSearchRanksByCosineAndSkipsMismatchedDims(t *testing.T) {
	idx, s, cleanup := setupTestIndex(t)
	defer cleanup()

	ctx := context.Background()
	provider := embedding.NewLocalHashProvider(16)

	id1, _ := s.InsertObservation(ctx, &store.Observation{Project: "demo", Type: "research", Title: "alpha topic", ContentHash: "h1", CreatedAtEpoch: time.Now().UnixMilli()})
	vec1, _ := provider.Embed(ctx, "alpha topic")
	if err := idx.Upsert(ctx, id1, vec1, provider, time.Now().UnixMilli()); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	id2, _ := s.InsertObservation(ctx, &store.Observation{Project: "demo", Type: "research", Title: "mismatched dims", ContentHash: "h2", CreatedAtEpoch: time.Now().UnixMilli()})
	if err := s.UpsertEmbedding(ctx, &store.Embedding{ObservationID: id2, Vector: store.EncodeVector([]float32{1, 2, 3}), ModelProvider: "other", Dimensions: 3, CreatedAtEpoch: time.Now().UnixMilli()}); err != nil {
		t.Fatalf("UpsertEmbedding failed: %v", err)
	}

	matches, err := idx.Search(ctx, "demo", vec1, 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected mismatched-dim row to be skipped, got %d matches", len(matches))
	}
	if matches[0].ObservationID != id1 {
		t.Errorf("expected match for id1, got %d", matches[0].ObservationID)
	}
	if matches[0].Cosine < 0.99 {
		t.Errorf("expected near-1 self-similarity, got %f", matches[0].Cosine)
	}
}
