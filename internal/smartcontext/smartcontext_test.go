package smartcontext

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

func TestAssembleStaysWithinBudgetAndOrdersKnowledgeFirst(t *testing.T) {
	tmpDir := t.TempDir()
	defer os.RemoveAll(tmpDir)
	log := logging.New("test", logging.LevelSilent, io.Discard)
	s, err := store.Open(filepath.Join(tmpDir, "test.db"), log)
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	now := time.Now().UnixMilli()

	_, err = s.InsertObservation(ctx, &store.Observation{
		Project: "demo", Type: "decision", Title: "Use esbuild", Text: "decided to use esbuild for bundling",
		ContentHash: "h1", CreatedAtEpoch: now,
	})
	if err != nil {
		t.Fatalf("InsertObservation failed: %v", err)
	}
	_, err = s.InsertObservation(ctx, &store.Observation{
		Project: "demo", Type: "file-read", Title: "Read app.ts", Text: "looked at the entry point",
		ContentHash: "h2", CreatedAtEpoch: now,
	})
	if err != nil {
		t.Fatalf("InsertObservation failed: %v", err)
	}

	asm := New(s, nil)
	result, err := asm.Assemble(ctx, Request{Project: "demo", TokenBudget: 1000})
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	if len(result.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(result.Items))
	}
	if !result.Items[0].IsKnowledge {
		t.Errorf("expected knowledge item first, got %+v", result.Items[0])
	}

	var sum int
	for _, it := range result.Items {
		sum += it.Tokens
	}
	if sum > 1000 {
		t.Errorf("expected token sum <= budget, got %d", sum)
	}
	if result.TokensUsed > 1000 {
		t.Errorf("expected TokensUsed <= budget, got %d", result.TokensUsed)
	}
}

func TestAssembleNeverSplitsAnItemOnOverflow(t *testing.T) {
	tmpDir := t.TempDir()
	defer os.RemoveAll(tmpDir)
	log := logging.New("test", logging.LevelSilent, io.Discard)
	s, err := store.Open(filepath.Join(tmpDir, "test.db"), log)
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	now := time.Now().UnixMilli()
	bigText := make([]byte, 2000)
	for i := range bigText {
		bigText[i] = 'x'
	}
	for i := 0; i < 3; i++ {
		_, err := s.InsertObservation(ctx, &store.Observation{
			Project: "demo", Type: "command", Title: "step", Text: string(bigText),
			ContentHash: "h" + string(rune('a'+i)), CreatedAtEpoch: now + int64(i),
		})
		if err != nil {
			t.Fatalf("InsertObservation failed: %v", err)
		}
	}

	asm := New(s, nil)
	result, err := asm.Assemble(ctx, Request{Project: "demo", TokenBudget: 600})
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if len(result.Items) != 1 {
		t.Fatalf("expected exactly 1 item to fit before overflow, got %d", len(result.Items))
	}
}
