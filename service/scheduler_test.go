package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"TrendToVideo-server/models"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRefresher struct {
	calls int
	fail  error
}

func (f *fakeRefresher) Refresh(ctx context.Context) error {
	f.calls++
	return f.fail
}

type fakeCleaner struct {
	removed int
	fail    error
}

func (f *fakeCleaner) CleanupStaleArtifacts(ctx context.Context, retention time.Duration) (int, error) {
	return f.removed, f.fail
}

func newTestScheduler(store *fakeStore) *Scheduler {
	o, _, _, _, _ := newTestOrchestrator(store)
	return &Scheduler{
		Store:             store,
		Orchestrator:      o,
		Topics:            &fakeRefresher{},
		Cleaner:           &fakeCleaner{},
		StuckJobMaxAge:    time.Hour,
		ArtifactRetention: 7 * 24 * time.Hour,
	}
}

// The six schedules are an external contract consumed by ops tooling; this
// test pins them bit-exact.
func TestTaskSchedulesContract(t *testing.T) {
	want := map[string]string{
		"topic-refresh":    "30 0 * * *",
		"daily-batch":      "30 3 * * *",
		"due-upload-check": "*/30 * * * *",
		"storage-cleanup":  "30 20 * * 6",
		"health-check":     "0 * * * *",
		"stats-rollup":     "30 18 * * *",
	}
	assert.Equal(t, want, TaskSchedules)

	for name, spec := range TaskSchedules {
		_, err := cron.ParseStandard(spec)
		assert.NoError(t, err, "task %s spec %q must parse", name, spec)
	}
}

func TestRunGuardedIsolatesFailures(t *testing.T) {
	store := newFakeStore()
	s := newTestScheduler(store)

	// A panicking tick must not propagate.
	assert.NotPanics(t, func() {
		s.runGuarded("exploding-task", func(ctx context.Context) error {
			panic("boom")
		})
	})

	s.runGuarded("failing-task", func(ctx context.Context) error {
		return errors.New("tick failed")
	})

	ran := false
	s.runGuarded("ok-task", func(ctx context.Context) error {
		ran = true
		return nil
	})
	assert.True(t, ran, "a healthy task still runs after sibling failures")

	errs := store.activityMessages(models.ActivityError)
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "panicked")
	assert.Contains(t, errs[1], "tick failed")
}

func TestRunGuardedSkipsWhenPaused(t *testing.T) {
	store := newFakeStore()
	s := newTestScheduler(store)
	require.NoError(t, store.UpsertSetting(models.SettingSystemStatus, models.SystemStatusPaused))

	ran := false
	s.runGuarded("any-task", func(ctx context.Context) error {
		ran = true
		return nil
	})
	assert.False(t, ran, "paused automation skips ticks")
}

func TestPauseAndResumePersistSystemStatus(t *testing.T) {
	store := newFakeStore()
	s := newTestScheduler(store)
	require.NoError(t, s.Start())
	defer s.Stop()

	require.NoError(t, s.Pause())
	status, _ := store.GetSetting(models.SettingSystemStatus)
	assert.Equal(t, models.SystemStatusPaused, status)
	assert.False(t, s.started)

	require.NoError(t, s.Resume())
	status, _ = store.GetSetting(models.SettingSystemStatus)
	assert.Equal(t, models.SystemStatusActive, status)
	assert.True(t, s.started)
}

func TestResetAndStartSweepsAndRestarts(t *testing.T) {
	store := newFakeStore()
	s := newTestScheduler(store)

	frozen := time.Now().Add(-2 * time.Hour)
	store.now = func() time.Time { return frozen }
	store.CreateJob(&models.Job{ID: "orphan", Status: models.JobStatusScript, Progress: 25})
	store.now = time.Now

	require.NoError(t, s.ResetAndStart(context.Background()))
	defer s.Stop()

	orphan, _ := store.GetJobByID("orphan")
	assert.Equal(t, models.JobStatusFailed, orphan.Status)
	assert.Equal(t, 0, orphan.Progress)

	status, _ := store.GetSetting(models.SettingSystemStatus)
	assert.Equal(t, models.SystemStatusActive, status)
	assert.True(t, s.started)

	infos := store.activityMessages(models.ActivityInfo)
	require.NotEmpty(t, infos)
	assert.Contains(t, infos[len(infos)-1], "1 stuck jobs swept")
}

func TestRunStorageCleanupAudits(t *testing.T) {
	store := newFakeStore()
	s := newTestScheduler(store)
	s.Cleaner = &fakeCleaner{removed: 4}

	require.NoError(t, s.runStorageCleanup(context.Background()))
	infos := store.activityMessages(models.ActivityInfo)
	require.Len(t, infos, 1)
	assert.Contains(t, infos[0], "removed 4 stale artifacts")

	s.Cleaner = &fakeCleaner{fail: errors.New("bucket gone")}
	assert.Error(t, s.runStorageCleanup(context.Background()))
}

func TestRunStatsRollupPersistsCounts(t *testing.T) {
	store := newFakeStore()
	s := newTestScheduler(store)
	store.CreateJob(&models.Job{ID: "a", Status: models.JobStatusCompleted})
	store.CreateJob(&models.Job{ID: "b", Status: models.JobStatusCompleted})
	store.CreateJob(&models.Job{ID: "c", Status: models.JobStatusFailed})

	require.NoError(t, s.runStatsRollup(context.Background()))

	raw, _ := store.GetSetting(models.SettingDailyStats)
	assert.Contains(t, raw, `"completed":2`)
	assert.Contains(t, raw, `"failed":1`)
}

func TestRunHealthCheckNeverThrows(t *testing.T) {
	store := newFakeStore()
	s := newTestScheduler(store)
	s.Health = &HealthChecker{
		Store: store,
		// nil minio client: the storage sub-check panics internally and
		// must be captured, not propagated.
		Artifacts:         &MinioArtifactStore{},
		HTTP:              &http.Client{Timeout: time.Second},
		WorkerAddr:        "http://127.0.0.1:1",
		StorageUsageMaxGB: 50,
		DiskHeadroomMinGB: 0.001,
		DiskPath:          ".",
	}

	require.NoError(t, s.runHealthCheck(context.Background()))

	raw, _ := store.GetSetting(models.SettingHealthStatus)
	require.NotEmpty(t, raw)
	assert.Contains(t, raw, `"status":"degraded"`)
	assert.Contains(t, raw, `"storage_usage"`)
	assert.Contains(t, raw, `"worker_api"`)
}

func TestHealthCheckAllSubChecksFailingIsUnhealthy(t *testing.T) {
	h := &HealthChecker{
		Store:             newFailingSettingsStore(),
		Artifacts:         &MinioArtifactStore{},
		HTTP:              &http.Client{Timeout: time.Second},
		WorkerAddr:        "http://127.0.0.1:1",
		StorageUsageMaxGB: 50,
		DiskHeadroomMinGB: 1 << 20, // absurd minimum, guaranteed to fail
		DiskPath:          ".",
	}
	summary := h.Check(context.Background())
	assert.Equal(t, HealthStatusUnhealthy, summary.Status)
	assert.Len(t, summary.Checks, 4)
	for _, c := range summary.Checks {
		assert.False(t, c.Healthy, "sub-check %s", c.Name)
		assert.NotEmpty(t, c.Detail)
	}
}

// failingSettingsStore makes the store sub-check fail while keeping the
// rest of the JobStore contract intact.
type failingSettingsStore struct {
	*fakeStore
}

func newFailingSettingsStore() *failingSettingsStore {
	return &failingSettingsStore{fakeStore: newFakeStore()}
}

func (s *failingSettingsStore) GetSetting(key string) (string, error) {
	return "", errors.New("connection refused")
}
