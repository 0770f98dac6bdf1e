package importexport

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kiro-memory/worker/internal/logging"
	"github.com/kiro-memory/worker/internal/store"
)

func setupTestStore(t *testing.T) (*store.Store, func()) {
	t.Helper()
	tmpDir := t.TempDir()
	log := logging.New("test", logging.LevelSilent, io.Discard)
	s, err := store.Open(filepath.Join(tmpDir, "test.db"), log)
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	return s, func() { s.Close() }
}

func collectLines(lines *[]string) func(string) error {
	return func(line string) error {
		*lines = append(*lines, line)
		return nil
	}
}

func TestExportEmitsMetaThenOneLinePerRow(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	if _, err := s.InsertObservation(ctx, &store.Observation{
		Project: "demo", Type: "command", Title: "ran tests", ContentHash: "h1", CreatedAtEpoch: 1000,
	}); err != nil {
		t.Fatalf("InsertObservation failed: %v", err)
	}

	var lines []string
	if err := Export(ctx, s, ExportOptions{}, collectLines(&lines)); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("expected a _meta line plus 1 observation line, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "_meta") {
		t.Errorf("expected first line to be the _meta record, got %q", lines[0])
	}
	if !strings.Contains(lines[1], "\"_type\":\"observation\"") {
		t.Errorf("expected second line to be an observation record, got %q", lines[1])
	}
}

func TestRoundTripExportImportYieldsIdenticalCounts(t *testing.T) {
	src, cleanupSrc := setupTestStore(t)
	defer cleanupSrc()
	dst, cleanupDst := setupTestStore(t)
	defer cleanupDst()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := src.InsertObservation(ctx, &store.Observation{
			Project: "demo", Type: "command", Title: "step", Narrative: "n",
			ContentHash: "ignored-on-export", CreatedAtEpoch: int64(1000 + i),
		}); err != nil {
			t.Fatalf("InsertObservation failed: %v", err)
		}
	}

	var lines []string
	if err := Export(ctx, src, ExportOptions{}, collectLines(&lines)); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	body := strings.Join(lines, "\n")
	result, err := Import(ctx, dst, strings.NewReader(body), ImportOptions{})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if result.Imported != 3 {
		t.Fatalf("expected 3 imported, got %d (errors: %+v)", result.Imported, result.Errors)
	}

	second, err := Import(ctx, dst, strings.NewReader(body), ImportOptions{})
	if err != nil {
		t.Fatalf("second Import failed: %v", err)
	}
	if second.Imported != 0 || second.Skipped != 3 {
		t.Fatalf("expected second import to skip all 3 duplicates, got imported=%d skipped=%d", second.Imported, second.Skipped)
	}
}

func TestImportCountsMalformedLinesAsErrors(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	body := `{"_meta":{"version":1}}
not json at all
{"_type":"observation","observation":{"Project":"demo","Type":"command","Title":"ok"}}
{"_type":"observation","observation":{"Project":"demo"}}
`
	result, err := Import(context.Background(), s, strings.NewReader(body), ImportOptions{})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if result.Imported != 1 {
		t.Errorf("expected 1 successful import, got %d", result.Imported)
	}
	if len(result.Errors) != 2 {
		t.Fatalf("expected 2 errors (bad JSON + missing required field), got %d: %+v", len(result.Errors), result.Errors)
	}
	if result.Errors[0].Line != 2 {
		t.Errorf("expected first error on line 2, got line %d", result.Errors[0].Line)
	}
}

func TestImportDryRunWritesNothing(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	body := `{"_type":"observation","observation":{"Project":"demo","Type":"command","Title":"ok"}}`
	result, err := Import(context.Background(), s, strings.NewReader(body), ImportOptions{DryRun: true})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if result.Imported != 1 {
		t.Fatalf("expected dry-run to still count 1 would-be import, got %d", result.Imported)
	}

	count, err := s.CountObservations(context.Background(), "", "")
	if err != nil {
		t.Fatalf("CountObservations failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected dry-run to write nothing, found %d rows", count)
	}
}
