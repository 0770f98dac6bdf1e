package scheduler

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

func setupTestScheduler(t *testing.T, retention RetentionConfig, backupFunc BackupFunc) (*Scheduler, *store.Store, func()) {
	t.Helper()
	tmpDir := t.TempDir()
	log := logging.New("test", logging.LevelSilent, io.Discard)
	s, err := store.Open(filepath.Join(tmpDir, "test.db"), log)
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	sched := New(s, retention, backupFunc, log)
	return sched, s, func() {
		s.Close()
		os.RemoveAll(tmpDir)
	}
}

func TestRunRetentionDeletesExpiredObservations(t *testing.T) {
	sched, s, cleanup := setupTestScheduler(t, RetentionConfig{ObservationDays: 90}, nil)
	defer cleanup()

	ctx := context.Background()
	old := time.Now().Add(-200 * 24 * time.Hour).UnixMilli()
	_, err := s.InsertObservation(ctx, &store.Observation{
		Project: "demo", Type: "command", Title: "old run",
		ContentHash: "old-hash", CreatedAtEpoch: old,
	})
	if err != nil {
		t.Fatalf("InsertObservation failed: %v", err)
	}

	sched.runRetention(ctx)

	remaining, err := s.RecentObservations(ctx, "demo", 10)
	if err != nil {
		t.Fatalf("RecentObservations failed: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected expired observation to be deleted, got %d remaining", len(remaining))
	}
}

func TestRunBackupInvokesBackupFunc(t *testing.T) {
	called := false
	backupFn := func(ctx context.Context) (string, error) {
		called = true
		return "backup-test.db", nil
	}
	sched, _, cleanup := setupTestScheduler(t, RetentionConfig{}, backupFn)
	defer cleanup()

	sched.runBackup(context.Background())
	if !called {
		t.Error("expected backup function to be invoked")
	}
}

func TestRetentionAndBackupAreMutuallyExclusive(t *testing.T) {
	started := make(chan struct{})
	proceed := make(chan struct{})
	backupFn := func(ctx context.Context) (string, error) {
		close(started)
		<-proceed
		return "backup-test.db", nil
	}
	sched, _, cleanup := setupTestScheduler(t, RetentionConfig{ObservationDays: 90}, backupFn)
	defer cleanup()

	go sched.runBackup(context.Background())
	<-started

	retentionDone := make(chan struct{})
	go func() {
		sched.runRetention(context.Background())
		close(retentionDone)
	}()

	select {
	case <-retentionDone:
		t.Fatal("expected retention to block while backup holds the scheduler mutex")
	case <-time.After(100 * time.Millisecond):
	}

	close(proceed)
	<-retentionDone
}
