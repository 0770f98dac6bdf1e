// Package scheduler runs the retention sweep, backup, and embedding
// backfill jobs on cron schedules, serialized against each other so no two
// maintenance passes ever hold the database at once.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kiro-memory/worker/internal/logging"
	"github.com/kiro-memory/worker/internal/store"
)

// RetentionStartupDelay and BackupStartupDelay are the first-run delays
// after process start.
const (
	RetentionStartupDelay = 30 * time.Second
	BackupStartupDelay    = 60 * time.Second
	BackfillStartupDelay  = 90 * time.Second
)

// RetentionConfig carries the per-class max-age settings; 0 means disabled.
type RetentionConfig struct {
	ObservationDays int
	SummaryDays     int
	PromptDays      int
	KnowledgeDays   int
}

// BackupFunc performs one backup pass, returning the written filename.
type BackupFunc func(ctx context.Context) (string, error)

// BackfillFunc embeds one batch of observations missing vectors, returning
// how many were processed.
type BackfillFunc func(ctx context.Context) (int, error)

// Scheduler owns the cron runtime and serializes retention/backup against
// each other with a single mutex.
type Scheduler struct {
	store        *store.Store
	retention    RetentionConfig
	backupFunc   BackupFunc
	backfillFunc BackfillFunc
	log          *logging.Logger

	mu sync.Mutex
	cr *cron.Cron
}

// SetBackfill registers an embedding backfill job to run alongside
// retention and backup; call before Start.
func (s *Scheduler) SetBackfill(fn BackfillFunc) {
	s.backfillFunc = fn
}

// New builds a Scheduler; pass Start a zero period to fall back to the
// 24h default for either job.
func New(s *store.Store, retention RetentionConfig, backupFunc BackupFunc, log *logging.Logger) *Scheduler {
	return &Scheduler{store: s, retention: retention, backupFunc: backupFunc, log: log, cr: cron.New()}
}

// Start schedules the retention and backup jobs (every retentionHours /
// backupHours, default 24 if <= 0) and fires each once after its startup
// delay, then returns immediately; jobs run on the cron runtime's own
// goroutine.
func (s *Scheduler) Start(retentionHours, backupHours int) {
	if retentionHours <= 0 {
		retentionHours = 24
	}
	if backupHours <= 0 {
		backupHours = 24
	}

	retentionSpec := fmt.Sprintf("@every %dh", retentionHours)
	backupSpec := fmt.Sprintf("@every %dh", backupHours)

	if _, err := s.cr.AddFunc(retentionSpec, func() { s.runRetention(context.Background()) }); err != nil && s.log != nil {
		s.log.Warn().Err(err).Msg("failed to schedule retention job")
	}
	if _, err := s.cr.AddFunc(backupSpec, func() { s.runBackup(context.Background()) }); err != nil && s.log != nil {
		s.log.Warn().Err(err).Msg("failed to schedule backup job")
	}
	if s.backfillFunc != nil {
		if _, err := s.cr.AddFunc(retentionSpec, func() { s.runBackfill(context.Background()) }); err != nil && s.log != nil {
			s.log.Warn().Err(err).Msg("failed to schedule backfill job")
		}
		time.AfterFunc(BackfillStartupDelay, func() { s.runBackfill(context.Background()) })
	}
	s.cr.Start()

	time.AfterFunc(RetentionStartupDelay, func() { s.runRetention(context.Background()) })
	time.AfterFunc(BackupStartupDelay, func() { s.runBackup(context.Background()) })
}

func (s *Scheduler) runBackfill(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	processed, err := s.backfillFunc(ctx)
	if err != nil {
		if s.log != nil {
			s.log.Warn().Err(err).Msg("embedding backfill failed")
		}
		return
	}
	if s.log != nil && processed > 0 {
		s.log.Info().Int("embedded", processed).Msg("embedding backfill complete")
	}
}

// Stop halts the cron runtime, waiting for any in-flight job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cr.Stop()
	<-ctx.Done()
}

// RetentionResult reports how many rows one sweep deleted per class.
type RetentionResult struct {
	Observations int64 `json:"observations_deleted"`
	Summaries    int64 `json:"summaries_deleted"`
	Prompts      int64 `json:"prompts_deleted"`
}

func (s *Scheduler) runRetention(ctx context.Context) {
	s.RunRetentionNow(ctx, s.retention)
}

// RunRetentionNow performs one sweep under cfg (which may override the
// scheduled policy, e.g. from the authenticated admin route), serialized
// against the scheduled jobs by the same mutex.
func (s *Scheduler) RunRetentionNow(ctx context.Context, cfg RetentionConfig) RetentionResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()
	var obsCutoff, knowledgeCutoff int64
	if cfg.ObservationDays > 0 {
		obsCutoff = now - int64(cfg.ObservationDays)*86_400_000
	}
	if cfg.KnowledgeDays > 0 {
		knowledgeCutoff = now - int64(cfg.KnowledgeDays)*86_400_000
	}

	var result RetentionResult
	var err error
	if obsCutoff > 0 || knowledgeCutoff > 0 {
		result.Observations, err = s.store.DeleteExpiredObservations(ctx, obsCutoff, knowledgeCutoff)
		if err != nil && s.log != nil {
			s.log.Warn().Err(err).Msg("retention: observation sweep failed")
		}
	}
	if cfg.SummaryDays > 0 {
		cutoff := now - int64(cfg.SummaryDays)*86_400_000
		result.Summaries, err = s.store.DeleteSummariesOlderThan(ctx, cutoff)
		if err != nil && s.log != nil {
			s.log.Warn().Err(err).Msg("retention: summary sweep failed")
		}
	}
	if cfg.PromptDays > 0 {
		cutoff := now - int64(cfg.PromptDays)*86_400_000
		result.Prompts, err = s.store.DeletePromptsOlderThan(ctx, cutoff)
		if err != nil && s.log != nil {
			s.log.Warn().Err(err).Msg("retention: prompt sweep failed")
		}
	}

	if s.log != nil {
		s.log.Info().
			Int64("observations_deleted", result.Observations).
			Int64("summaries_deleted", result.Summaries).
			Int64("prompts_deleted", result.Prompts).
			Msg("retention sweep complete")
	}
	return result
}

func (s *Scheduler) runBackup(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.backupFunc == nil {
		return
	}
	filename, err := s.backupFunc(ctx)
	if err != nil {
		if s.log != nil {
			s.log.Warn().Err(err).Msg("backup failed")
		}
		return
	}
	if s.log != nil {
		s.log.Info().Str("filename", filename).Msg("backup complete")
	}
}
