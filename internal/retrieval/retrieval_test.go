package retrieval

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kiro-memory/worker/internal/logging"
	"github.com/kiro-memory/worker/internal/store"
)

func setupTestRetriever(t *testing.T) (*Retriever, *store.Store, func()) {
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

func TestKeysetPaginationCoversEveryRowExactlyOnce(t *testing.T) {
	r, s, cleanup := setupTestRetriever(t)
	defer cleanup()

	ctx := context.Background()
	base := time.Now().UnixMilli()
	const total = 23
	for i := 0; i < total; i++ {
		_, err := s.InsertObservation(ctx, &store.Observation{
			Project:        "demo",
			Type:           "command",
			Title:          "step",
			Text:           "run build",
			ContentHash:    "hash-" + string(rune('a'+i)),
			CreatedAtEpoch: base + int64(i),
		})
		if err != nil {
			t.Fatalf("InsertObservation failed: %v", err)
		}
	}

	seen := map[int64]bool{}
	cursor := ""
	for {
		page, err := r.KeywordSearch(ctx, Query{Text: "build", Project: "demo", Limit: 7}, cursor)
		if err != nil {
			t.Fatalf("KeywordSearch failed: %v", err)
		}
		for _, res := range page.Results {
			if seen[res.Observation.ID] {
				t.Fatalf("observation %d seen twice", res.Observation.ID)
			}
			seen[res.Observation.ID] = true
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	if len(seen) != total {
		t.Fatalf("expected to see %d observations, saw %d", total, len(seen))
	}
}

func TestTimelineOrdersChronologicallyAroundAnchor(t *testing.T) {
	r, s, cleanup := setupTestRetriever(t)
	defer cleanup()

	ctx := context.Background()
	base := time.Now().UnixMilli()
	var ids []int64
	for i := 0; i < 5; i++ {
		id, err := s.InsertObservation(ctx, &store.Observation{
			Project:        "demo",
			Type:           "command",
			Title:          "step",
			ContentHash:    "hash-" + string(rune('a'+i)),
			CreatedAtEpoch: base + int64(i)*1000,
		})
		if err != nil {
			t.Fatalf("InsertObservation failed: %v", err)
		}
		ids = append(ids, id)
	}

	timeline, err := r.Timeline(ctx, ids[2], 1, 1)
	if err != nil {
		t.Fatalf("Timeline failed: %v", err)
	}
	if len(timeline) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(timeline))
	}
	for i := 0; i < len(timeline)-1; i++ {
		if timeline[i].CreatedAtEpoch > timeline[i+1].CreatedAtEpoch {
			t.Errorf("expected chronological order, got %d before %d", timeline[i].CreatedAtEpoch, timeline[i+1].CreatedAtEpoch)
		}
	}
	if timeline[1].ID != ids[2] {
		t.Errorf("expected anchor in the middle, got id %d", timeline[1].ID)
	}
}

func TestFTSSearchReflectsInsertUpdateDelete(t *testing.T) {
	r, s, cleanup := setupTestRetriever(t)
	defer cleanup()

	ctx := context.Background()
	id, err := s.InsertObservation(ctx, &store.Observation{
		Project:        "demo",
		Type:           "research",
		Title:          "uniquetoken9000 appears here",
		ContentHash:    "hash-unique",
		CreatedAtEpoch: time.Now().UnixMilli(),
	})
	if err != nil {
		t.Fatalf("InsertObservation failed: %v", err)
	}

	page, err := r.FTSSearch(ctx, Query{Text: "uniquetoken9000", Project: "demo", Limit: 10}, "")
	if err != nil {
		t.Fatalf("FTSSearch failed: %v", err)
	}
	if len(page.Results) != 1 || page.Results[0].Observation.ID != id {
		t.Fatalf("expected to find the inserted row, got %d results", len(page.Results))
	}

	if err := s.MarkLastAccessed(ctx, []int64{id}, time.Now().UnixMilli()); err != nil {
		t.Fatalf("MarkLastAccessed failed: %v", err)
	}
	page, err = r.FTSSearch(ctx, Query{Text: "uniquetoken9000", Project: "demo", Limit: 10}, "")
	if err != nil {
		t.Fatalf("FTSSearch after update failed: %v", err)
	}
	if len(page.Results) != 1 || page.Results[0].Observation.ID != id {
		t.Fatalf("expected row still findable after update, got %d results", len(page.Results))
	}

	if _, err := s.DB().ExecContext(ctx, "DELETE FROM observations WHERE id = ?", id); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	page, err = r.FTSSearch(ctx, Query{Text: "uniquetoken9000", Project: "demo", Limit: 10}, "")
	if err != nil {
		t.Fatalf("FTSSearch after delete failed: %v", err)
	}
	if len(page.Results) != 0 {
		t.Fatalf("expected no results after delete, got %d", len(page.Results))
	}
}
