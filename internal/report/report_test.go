package report

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kiro-memory/worker/internal/logging"
	"github.com/kiro-memory/worker/internal/store"
)

func setupReportStore(t *testing.T) *store.Store {
	t.Helper()
	log := logging.New("test", logging.LevelSilent, io.Discard)
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBuildAggregatesWindowOnly(t *testing.T) {
	s := setupReportStore(t)
	ctx := context.Background()
	now := time.Now().UnixMilli()

	insert := func(title, obsType, files string, epoch int64) {
		_, err := s.InsertObservation(ctx, &store.Observation{
			Project:        "demo",
			Type:           obsType,
			Title:          title,
			Text:           "body",
			FilesModified:  files,
			ContentHash:    "hash-" + title,
			CreatedAtEpoch: epoch,
		})
		require.NoError(t, err)
	}

	insert("recent write", "file-write", "/src/app.go", now-time.Hour.Milliseconds())
	insert("recent command", "command", "/src/app.go", now-2*time.Hour.Milliseconds())
	insert("old write", "file-write", "/src/old.go", now-40*24*time.Hour.Milliseconds())

	rep, err := Build(ctx, s, "demo", PeriodWeekly, now)
	require.NoError(t, err)

	require.Equal(t, 2, rep.Observations)
	require.Equal(t, 1, rep.ByType["file-write"])
	require.Equal(t, 1, rep.ByType["command"])
	require.Len(t, rep.TopFiles, 1)
	require.Equal(t, FileCount{File: "/src/app.go", Count: 2}, rep.TopFiles[0])
}

func TestBuildCollectsKnowledgeHighlights(t *testing.T) {
	s := setupReportStore(t)
	ctx := context.Background()
	now := time.Now().UnixMilli()

	_, err := s.InsertObservation(ctx, &store.Observation{
		Project:        "demo",
		Type:           "decision",
		Title:          "Use esbuild",
		ContentHash:    "hash-decision",
		CreatedAtEpoch: now - 1000,
	})
	require.NoError(t, err)

	rep, err := Build(ctx, s, "demo", PeriodMonthly, now)
	require.NoError(t, err)
	require.Len(t, rep.Knowledge, 1)
	require.Equal(t, "Use esbuild", rep.Knowledge[0].Title)
	require.Equal(t, "decision", rep.Knowledge[0].Type)
}

func TestMarkdownRendersSections(t *testing.T) {
	s := setupReportStore(t)
	ctx := context.Background()
	now := time.Now().UnixMilli()

	_, err := s.InsertObservation(ctx, &store.Observation{
		Project:        "demo",
		Type:           "file-write",
		Title:          "Edit handler",
		FilesModified:  "/src/handler.go",
		ContentHash:    "hash-md",
		CreatedAtEpoch: now - 1000,
	})
	require.NoError(t, err)

	rep, err := Build(ctx, s, "demo", PeriodWeekly, now)
	require.NoError(t, err)

	md := rep.Markdown()
	require.True(t, strings.HasPrefix(md, "# Weekly activity report — demo"))
	require.Contains(t, md, "## Observations by type")
	require.Contains(t, md, "- file-write: 1")
	require.Contains(t, md, "/src/handler.go (1)")
}

func TestPeriodValidation(t *testing.T) {
	require.True(t, PeriodWeekly.Valid())
	require.True(t, PeriodMonthly.Valid())
	require.False(t, Period("daily").Valid())
	require.Greater(t, PeriodMonthly.WindowMS(), PeriodWeekly.WindowMS())
}
