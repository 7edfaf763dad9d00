package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"TrendToVideo-server/config"
	"TrendToVideo-server/logger"
	"TrendToVideo-server/models"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// TaskSchedules is the fixed cron schedule of every named task, in UTC.
// These expressions are an external contract (ops dashboards and runbooks
// reference them); do not change them without coordinating downstream.
var TaskSchedules = map[string]string{
	"topic-refresh":    "30 0 * * *",  // 06:00 IST
	"daily-batch":      "30 3 * * *",  // 09:00 IST
	"due-upload-check": "*/30 * * * *",
	"storage-cleanup":  "30 20 * * 6", // Sun 02:00 IST
	"health-check":     "0 * * * *",
	"stats-rollup":     "30 18 * * *", // 00:00 IST next day
}

// TopicRefresher refreshes the trending topic pool.
type TopicRefresher interface {
	Refresh(ctx context.Context) error
}

// StorageCleaner removes stale stored artifacts.
type StorageCleaner interface {
	CleanupStaleArtifacts(ctx context.Context, retention time.Duration) (int, error)
}

// Scheduler supervises the named periodic tasks. Every tick runs inside an
// error boundary: a failing or panicking tick is audited and the task keeps
// its future ticks; no task failure can starve a sibling or crash the
// process.
type Scheduler struct {
	Store        models.JobStore
	Orchestrator *Orchestrator
	Topics       TopicRefresher
	Cleaner      StorageCleaner
	Health       *HealthChecker

	StuckJobMaxAge    time.Duration
	ArtifactRetention time.Duration

	cron    *cron.Cron
	started bool
}

func NewScheduler(store models.JobStore, orchestrator *Orchestrator, topics TopicRefresher, cleaner StorageCleaner, health *HealthChecker) *Scheduler {
	auto := config.AppConfig.Automation
	return &Scheduler{
		Store:             store,
		Orchestrator:      orchestrator,
		Topics:            topics,
		Cleaner:           cleaner,
		Health:            health,
		StuckJobMaxAge:    time.Duration(auto.StuckJobMaxAgeMin) * time.Minute,
		ArtifactRetention: time.Duration(auto.ArtifactRetainDays) * 24 * time.Hour,
	}
}

// Start registers all tasks and begins ticking. Idempotent.
func (s *Scheduler) Start() error {
	if s.started {
		return nil
	}
	c := cron.New(cron.WithLocation(time.UTC))

	tasks := map[string]func(ctx context.Context) error{
		"topic-refresh":    s.runTopicRefresh,
		"daily-batch":      s.runDailyBatch,
		"due-upload-check": s.runDueUploadCheck,
		"storage-cleanup":  s.runStorageCleanup,
		"health-check":     s.runHealthCheck,
		"stats-rollup":     s.runStatsRollup,
	}
	for name, fn := range tasks {
		name, fn := name, fn
		spec := TaskSchedules[name]
		if _, err := c.AddFunc(spec, func() { s.runGuarded(name, fn) }); err != nil {
			return fmt.Errorf("register task %s (%s) failed: %w", name, spec, err)
		}
	}

	c.Start()
	s.cron = c
	s.started = true
	logger.L().Infof("scheduler started with %d tasks", len(tasks))
	return nil
}

// Stop halts all tasks. Running ticks finish; no new ticks fire.
func (s *Scheduler) Stop() {
	if !s.started {
		return
	}
	s.cron.Stop()
	s.cron = nil
	s.started = false
	logger.L().Info("scheduler stopped")
}

// Pause stops all tasks and persists system_status=paused for external
// visibility.
func (s *Scheduler) Pause() error {
	s.Stop()
	if err := s.Store.UpsertSetting(models.SettingSystemStatus, models.SystemStatusPaused); err != nil {
		return fmt.Errorf("persist paused status failed: %w", err)
	}
	s.activity(models.ActivityInfo, "scheduler", "automation paused", nil)
	return nil
}

// Resume restarts all tasks and persists system_status=active.
func (s *Scheduler) Resume() error {
	if err := s.Start(); err != nil {
		return err
	}
	if err := s.Store.UpsertSetting(models.SettingSystemStatus, models.SystemStatusActive); err != nil {
		return fmt.Errorf("persist active status failed: %w", err)
	}
	s.activity(models.ActivityInfo, "scheduler", "automation resumed", nil)
	return nil
}

// ResetAndStart is the administrative recovery path: stop everything, sweep
// jobs orphaned by a previous crash, reset the system status, and restart.
// The whole sequence is audited as one entry.
func (s *Scheduler) ResetAndStart(ctx context.Context) error {
	s.Stop()

	swept, err := s.Store.ClearStuckJobs(s.StuckJobMaxAge)
	if err != nil {
		s.activity(models.ActivityError, "scheduler", fmt.Sprintf("reset failed during stuck-job sweep: %v", err), nil)
		return fmt.Errorf("stuck-job sweep failed: %w", err)
	}
	if err := s.Store.UpsertSetting(models.SettingSystemStatus, models.SystemStatusActive); err != nil {
		return fmt.Errorf("reset system status failed: %w", err)
	}
	if err := s.Start(); err != nil {
		return err
	}

	s.activity(models.ActivityInfo, "scheduler",
		fmt.Sprintf("automation reset: %d stuck jobs swept, all tasks restarted", swept),
		models.LogDetails{"sweptJobs": swept})
	return nil
}

// ClearStuckJobs runs the sweep on demand (admin surface); the hourly
// health tick and ResetAndStart share the same staleness threshold.
func (s *Scheduler) ClearStuckJobs() (int64, error) {
	return s.Store.ClearStuckJobs(s.StuckJobMaxAge)
}

// runGuarded is the per-tick error boundary.
func (s *Scheduler) runGuarded(name string, fn func(ctx context.Context) error) {
	log := logger.L().WithField("task", name)
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("task panicked: %v", r)
			s.activity(models.ActivityError, name, fmt.Sprintf("task panicked: %v", r), nil)
		}
	}()

	if s.isPaused() {
		log.Debug("automation paused, tick skipped")
		return
	}

	start := time.Now()
	if err := fn(context.Background()); err != nil {
		log.WithError(err).Error("task failed")
		s.activity(models.ActivityError, name, fmt.Sprintf("task failed: %v", err), nil)
		return
	}
	log.Debugf("task finished in %s", time.Since(start))
}

func (s *Scheduler) isPaused() bool {
	status, err := s.Store.GetSetting(models.SettingSystemStatus)
	if err != nil {
		logger.L().WithError(err).Warn("failed to read system status, assuming active")
		return false
	}
	return status == models.SystemStatusPaused
}

func (s *Scheduler) runTopicRefresh(ctx context.Context) error {
	return s.Topics.Refresh(ctx)
}

func (s *Scheduler) runDailyBatch(ctx context.Context) error {
	return s.Orchestrator.RunDailyBatch(ctx)
}

func (s *Scheduler) runDueUploadCheck(ctx context.Context) error {
	return s.Orchestrator.ProcessDueUploads(ctx)
}

func (s *Scheduler) runStorageCleanup(ctx context.Context) error {
	removed, err := s.Cleaner.CleanupStaleArtifacts(ctx, s.ArtifactRetention)
	if err != nil {
		return err
	}
	s.activity(models.ActivityInfo, "storage-cleanup",
		fmt.Sprintf("storage cleanup removed %d stale artifacts", removed),
		models.LogDetails{"removed": removed})
	return nil
}

// runHealthCheck persists the aggregate summary and additionally sweeps
// stuck jobs, which is what makes orphaned jobs self-heal on an hourly
// cadence without operator action.
func (s *Scheduler) runHealthCheck(ctx context.Context) error {
	summary := s.Health.Check(ctx)
	b, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal health summary failed: %w", err)
	}
	if err := s.Store.UpsertSetting(models.SettingHealthStatus, string(b)); err != nil {
		return fmt.Errorf("persist health summary failed: %w", err)
	}
	if summary.Status != HealthStatusHealthy {
		s.activity(models.ActivityWarning, "health-check",
			fmt.Sprintf("system %s", summary.Status),
			models.LogDetails{"summary": string(b)})
	}

	swept, err := s.Store.ClearStuckJobs(s.StuckJobMaxAge)
	if err != nil {
		return fmt.Errorf("stuck-job sweep failed: %w", err)
	}
	if swept > 0 {
		s.activity(models.ActivityWarning, "health-check",
			fmt.Sprintf("swept %d stuck jobs to failed", swept),
			models.LogDetails{"sweptJobs": swept})
	}
	return nil
}

func (s *Scheduler) runStatsRollup(ctx context.Context) error {
	counts, err := s.Store.CountJobsByStatus()
	if err != nil {
		return fmt.Errorf("count jobs failed: %w", err)
	}
	b, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("marshal stats failed: %w", err)
	}
	if err := s.Store.UpsertSetting(models.SettingDailyStats, string(b)); err != nil {
		return fmt.Errorf("persist stats failed: %w", err)
	}
	s.activity(models.ActivityInfo, "stats-rollup",
		fmt.Sprintf("daily stats: %s", string(b)), nil)
	return nil
}

func (s *Scheduler) activity(logType, source, message string, details models.LogDetails) {
	entry := &models.ActivityLogEntry{
		ID:      uuid.NewString(),
		Type:    logType,
		Source:  source,
		Message: message,
		Details: details,
	}
	if err := s.Store.AppendActivityLog(entry); err != nil {
		logger.L().WithError(err).Warn("activity log write failed")
	}
}
