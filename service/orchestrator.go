package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"TrendToVideo-server/logger"
	"TrendToVideo-server/models"

	"github.com/google/uuid"
)

// Orchestrator drives one job through the stage pipeline and owns the batch
// operations around it. All collaborators are injected so tests can swap
// them for fakes.
type Orchestrator struct {
	Store     models.JobStore
	Scripts   ScriptGenerator
	Video     VideoRenderer
	Thumbs    ThumbnailRenderer
	Artifacts ArtifactStore
	Publisher Publisher
	Planner   *PublishPlanner

	// Now is injected for tests; defaults to time.Now.
	Now func() time.Time

	mu           sync.Mutex
	batchRunning bool
}

// ActiveStatus is a read-only aggregate of pipeline activity.
type ActiveStatus struct {
	Active    int  `json:"active"`
	Scheduled int  `json:"scheduled"`
	IsRunning bool `json:"isRunning"`
}

func NewOrchestrator(store models.JobStore, scripts ScriptGenerator, video VideoRenderer, thumbs ThumbnailRenderer, artifacts ArtifactStore, publisher Publisher, planner *PublishPlanner) *Orchestrator {
	return &Orchestrator{
		Store:     store,
		Scripts:   scripts,
		Video:     video,
		Thumbs:    thumbs,
		Artifacts: artifacts,
		Publisher: publisher,
		Planner:   planner,
		Now:       time.Now,
	}
}

// ProcessTopic runs the full pipeline for one topic: script (creates the
// job), video render, thumbnail render, artifact storage, publish-time
// scheduling. On success the job lands in ready_for_upload with progress
// 100. Any stage failure drives the job to failed and is returned to the
// caller; this operation never swallows a stage error.
func (o *Orchestrator) ProcessTopic(ctx context.Context, topicID, videoType string) (*models.Job, error) {
	if videoType != models.VideoTypeLongForm && videoType != models.VideoTypeShort {
		return nil, fmt.Errorf("invalid video type %q", videoType)
	}
	topic, err := o.Store.GetTopicByID(topicID)
	if err != nil {
		return nil, fmt.Errorf("topic %s not found: %w", topicID, err)
	}

	log := logger.L().WithFields(map[string]interface{}{
		"topicId": topicID,
		"type":    videoType,
	})
	log.Info("pipeline start")

	// Script generation is the only stage that creates the job row. If it
	// fails there is no job to mark failed; the error is audited and
	// returned.
	job, err := o.Scripts.GenerateScriptAndCreateJob(ctx, topic, videoType)
	if err != nil {
		o.activity(models.ActivityError, "process_topic",
			fmt.Sprintf("script generation failed for topic %s: %v", topicID, err), nil)
		return nil, fmt.Errorf("script stage failed: %w", err)
	}

	o.pipelineLog(job.ID, models.StepPipelineStart, models.PhaseStarting,
		fmt.Sprintf("pipeline started for topic %q (%s)", topic.Title, videoType), job.Progress)
	o.pipelineLog(job.ID, models.JobStatusScript, models.PhaseCompleted,
		"script generated", job.Progress)

	// Video render.
	if err := o.beginStage(job, models.JobStatusRenderVideo, models.StageMilestones[models.JobStatusRenderVideo]); err != nil {
		return job, o.failJob(job, models.JobStatusRenderVideo, err)
	}
	videoPath, err := o.Video.RenderVideo(ctx, job)
	if err != nil {
		return job, o.failJob(job, models.JobStatusRenderVideo, err)
	}
	job.VideoPath = videoPath
	job.Progress = models.StageMilestones["render_video_done"]
	if err := o.Store.UpdateJobFields(job.ID, map[string]interface{}{
		"video_path": videoPath,
		"progress":   job.Progress,
	}); err != nil {
		return job, o.failJob(job, models.JobStatusRenderVideo, err)
	}
	o.pipelineLog(job.ID, models.JobStatusRenderVideo, models.PhaseCompleted, "video rendered", job.Progress)

	// Thumbnail render.
	if err := o.beginStage(job, models.JobStatusRenderThumbnail, job.Progress); err != nil {
		return job, o.failJob(job, models.JobStatusRenderThumbnail, err)
	}
	thumbnailPath, err := o.Thumbs.RenderThumbnail(ctx, job)
	if err != nil {
		return job, o.failJob(job, models.JobStatusRenderThumbnail, err)
	}
	job.ThumbnailPath = thumbnailPath
	job.Progress = models.StageMilestones[models.JobStatusRenderThumbnail]
	if err := o.Store.UpdateJobFields(job.ID, map[string]interface{}{
		"thumbnail_path": thumbnailPath,
		"progress":       job.Progress,
	}); err != nil {
		return job, o.failJob(job, models.JobStatusRenderThumbnail, err)
	}
	o.pipelineLog(job.ID, models.JobStatusRenderThumbnail, models.PhaseCompleted, "thumbnail rendered", job.Progress)

	// Artifact storage. The store degrades to placeholder references on
	// outage, so an error here is a genuine stage failure.
	if err := o.beginStage(job, models.JobStatusStoreArtifacts, job.Progress); err != nil {
		return job, o.failJob(job, models.JobStatusStoreArtifacts, err)
	}
	stored, err := o.Artifacts.StoreArtifacts(ctx, job.VideoPath, job.ThumbnailPath, job.ID)
	if err != nil {
		return job, o.failJob(job, models.JobStatusStoreArtifacts, err)
	}
	job.StorageURL = stored.StorageURL
	job.ThumbnailURL = stored.ThumbnailURL
	job.Progress = models.StageMilestones[models.JobStatusStoreArtifacts]
	if err := o.Store.UpdateJobFields(job.ID, map[string]interface{}{
		"storage_url":   stored.StorageURL,
		"thumbnail_url": stored.ThumbnailURL,
		"progress":      job.Progress,
	}); err != nil {
		return job, o.failJob(job, models.JobStatusStoreArtifacts, err)
	}
	o.pipelineLog(job.ID, models.JobStatusStoreArtifacts, models.PhaseCompleted, "artifacts stored", job.Progress)
	if !strings.HasPrefix(stored.StorageURL, "pending://") {
		// Local render output is only kept while the upload is pending.
		RemoveLocalArtifacts(job.VideoPath, job.ThumbnailPath)
	}

	// Publish-time scheduling. ScheduledTime is only ever written here,
	// after StorageURL is set, which is what keeps the two fields in
	// lockstep.
	scheduledTime, err := o.Planner.Next(videoType, o.Now())
	if err != nil {
		return job, o.failJob(job, "scheduled", err)
	}
	job.ScheduledTime = &scheduledTime
	job.Progress = models.StageMilestones["scheduled"]
	if err := o.Store.UpdateJobFields(job.ID, map[string]interface{}{
		"scheduled_time": scheduledTime,
		"progress":       job.Progress,
	}); err != nil {
		return job, o.failJob(job, "scheduled", err)
	}
	o.pipelineLog(job.ID, "scheduled", models.PhaseCompleted,
		fmt.Sprintf("publish scheduled for %s", scheduledTime.Format(time.RFC3339)), job.Progress)

	// Done: ready for upload.
	job.Status = models.JobStatusReadyForUpload
	job.Progress = models.StageMilestones[models.JobStatusReadyForUpload]
	if err := o.Store.UpdateJobFields(job.ID, map[string]interface{}{
		"status":   job.Status,
		"progress": job.Progress,
	}); err != nil {
		return job, o.failJob(job, models.JobStatusReadyForUpload, err)
	}
	o.pipelineLog(job.ID, models.JobStatusReadyForUpload, models.PhaseCompleted, "job ready for upload", job.Progress)
	o.activity(models.ActivitySuccess, "process_topic",
		fmt.Sprintf("job %s ready for upload at %s", job.ID, scheduledTime.Format(time.RFC3339)),
		models.LogDetails{"jobId": job.ID, "topicId": topicID, "videoType": videoType})

	log.WithField("jobId", job.ID).Info("pipeline finished")
	return job, nil
}

// ProcessDueUploads publishes every ready_for_upload job whose scheduled
// time has elapsed. One job's failure never blocks the remaining due jobs.
func (o *Orchestrator) ProcessDueUploads(ctx context.Context) error {
	jobs, err := o.Store.ListDueJobs()
	if err != nil {
		return fmt.Errorf("list due jobs failed: %w", err)
	}
	now := o.Now()

	for i := range jobs {
		job := &jobs[i]
		if job.ScheduledTime == nil || job.ScheduledTime.After(now) {
			continue
		}
		if job.StorageURL == "" {
			// Never publish without a confirmed artifact, even if an
			// upstream bug scheduled the job anyway.
			o.activity(models.ActivityWarning, "due_uploads",
				fmt.Sprintf("job %s is due but has no storage url, skipping publish", job.ID),
				models.LogDetails{"jobId": job.ID})
			continue
		}
		if err := o.publishJob(ctx, job); err != nil {
			logger.L().WithError(err).Errorf("publish failed for job %s, continuing with remaining due jobs", job.ID)
			continue
		}
	}
	return nil
}

func (o *Orchestrator) publishJob(ctx context.Context, job *models.Job) error {
	if err := o.beginStage(job, models.JobStatusPublishing, job.Progress); err != nil {
		return o.failJob(job, models.JobStatusPublishing, err)
	}
	publishID, err := o.Publisher.Publish(ctx, job)
	if err != nil {
		return o.failJob(job, models.JobStatusPublishing, err)
	}

	job.PublishID = publishID
	job.Status = models.JobStatusCompleted
	if err := o.Store.UpdateJobFields(job.ID, map[string]interface{}{
		"status":     models.JobStatusCompleted,
		"publish_id": publishID,
	}); err != nil {
		return o.failJob(job, models.JobStatusPublishing, err)
	}
	o.pipelineLog(job.ID, models.JobStatusPublishing, models.PhaseCompleted,
		fmt.Sprintf("published with id %s", publishID), job.Progress)
	o.activity(models.ActivitySuccess, "due_uploads",
		fmt.Sprintf("job %s published", job.ID),
		models.LogDetails{"jobId": job.ID, "publishId": publishID})
	return nil
}

// RunDailyBatch creates the day's two jobs: one long-form and one short.
// Overlapping invocations are a logged no-op, not an error. Both jobs run
// concurrently and are settled together; either failing marks the whole
// batch failed, unlike the per-job isolation in ProcessDueUploads.
func (o *Orchestrator) RunDailyBatch(ctx context.Context) error {
	o.mu.Lock()
	if o.batchRunning {
		o.mu.Unlock()
		o.activity(models.ActivityInfo, "daily_batch", "daily batch skipped: already running", nil)
		return nil
	}
	o.batchRunning = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.batchRunning = false
		o.mu.Unlock()
	}()

	topics, err := o.selectBatchTopics()
	if err != nil {
		o.activity(models.ActivityError, "daily_batch", fmt.Sprintf("topic selection failed: %v", err), nil)
		return err
	}
	if len(topics) == 0 {
		o.activity(models.ActivityWarning, "daily_batch", "no trending topics available, skipping batch", nil)
		return nil
	}
	// With a single candidate the same topic feeds both formats.
	longTopic := topics[0]
	shortTopic := topics[0]
	if len(topics) > 1 {
		shortTopic = topics[1]
	}

	o.activity(models.ActivityInfo, "daily_batch",
		fmt.Sprintf("daily batch started: long_form=%s short=%s", longTopic.ID, shortTopic.ID),
		models.LogDetails{"longTopicId": longTopic.ID, "shortTopicId": shortTopic.ID})

	results := settleAll(
		func() error {
			_, err := o.ProcessTopic(ctx, longTopic.ID, models.VideoTypeLongForm)
			return err
		},
		func() error {
			_, err := o.ProcessTopic(ctx, shortTopic.ID, models.VideoTypeShort)
			return err
		},
	)

	var failed []error
	for _, err := range results {
		if err != nil {
			failed = append(failed, err)
		}
	}
	if len(failed) > 0 {
		o.activity(models.ActivityError, "daily_batch",
			fmt.Sprintf("daily batch failed: %d of %d jobs errored", len(failed), len(results)), nil)
		return fmt.Errorf("daily batch failed: %v", failed)
	}

	o.activity(models.ActivitySuccess, "daily_batch", "daily batch completed", nil)
	return nil
}

// selectBatchTopics prefers two high-priority topics and supplements with
// medium-priority ones, keeping high before medium.
func (o *Orchestrator) selectBatchTopics() ([]models.TrendingTopic, error) {
	topics, err := o.Store.ListTopicsByPriority(models.TopicPriorityHigh)
	if err != nil {
		return nil, err
	}
	if len(topics) < 2 {
		medium, err := o.Store.ListTopicsByPriority(models.TopicPriorityMedium)
		if err != nil {
			return nil, err
		}
		topics = append(topics, medium...)
	}
	if len(topics) > 2 {
		topics = topics[:2]
	}
	return topics, nil
}

// GetActiveStatus is a pure read aggregation, safe mid-batch.
func (o *Orchestrator) GetActiveStatus() (ActiveStatus, error) {
	active, err := o.Store.ListActiveJobs()
	if err != nil {
		return ActiveStatus{}, err
	}
	scheduled, err := o.Store.ListDueJobs()
	if err != nil {
		return ActiveStatus{}, err
	}
	o.mu.Lock()
	running := o.batchRunning
	o.mu.Unlock()
	return ActiveStatus{
		Active:    len(active),
		Scheduled: len(scheduled),
		IsRunning: running,
	}, nil
}

// beginStage moves the job forward one status and records the starting log
// entry. Transitions are validated against the status machine.
func (o *Orchestrator) beginStage(job *models.Job, status string, progress int) error {
	if !models.ValidTransition(job.Status, status) {
		return fmt.Errorf("illegal transition %s -> %s for job %s", job.Status, status, job.ID)
	}
	o.pipelineLog(job.ID, status, models.PhaseStarting, fmt.Sprintf("stage %s starting", status), progress)
	if err := o.Store.UpdateJobFields(job.ID, map[string]interface{}{
		"status":   status,
		"progress": progress,
	}); err != nil {
		return fmt.Errorf("update job %s to %s failed: %w", job.ID, status, err)
	}
	job.Status = status
	job.Progress = progress
	return nil
}

// failJob drives the job to terminal failed, resets progress, and audits the
// failure. The stage error is returned wrapped so callers decide isolation.
func (o *Orchestrator) failJob(job *models.Job, stage string, stageErr error) error {
	if err := o.Store.UpdateJobFields(job.ID, map[string]interface{}{
		"status":        models.JobStatusFailed,
		"progress":      0,
		"error_message": stageErr.Error(),
	}); err != nil {
		logger.L().WithError(err).Errorf("failed to mark job %s failed", job.ID)
	}
	job.Status = models.JobStatusFailed
	job.Progress = 0
	job.ErrorMessage = stageErr.Error()

	o.pipelineLog(job.ID, models.StepPipelineError, models.PhaseError,
		fmt.Sprintf("stage %s failed: %v", stage, stageErr), 0)
	o.activity(models.ActivityError, "process_topic",
		fmt.Sprintf("job %s failed at stage %s: %v", job.ID, stage, stageErr),
		models.LogDetails{"jobId": job.ID, "stage": stage})

	return fmt.Errorf("stage %s failed: %w", stage, stageErr)
}

// pipelineLog appends an audit row for one stage transition. A failed
// insert is reported but never fails the stage; a status update and its log
// entry are separate writes with no transactional guarantee.
func (o *Orchestrator) pipelineLog(jobID, step, phase, message string, progress int) {
	entry := &models.PipelineLogEntry{
		ID:       uuid.NewString(),
		JobID:    jobID,
		Step:     step,
		Phase:    phase,
		Message:  message,
		Progress: progress,
	}
	if err := o.Store.AppendPipelineLog(entry); err != nil {
		logger.L().WithError(err).Warnf("pipeline log write failed for job %s", jobID)
	}
}

func (o *Orchestrator) activity(logType, source, message string, details models.LogDetails) {
	entry := &models.ActivityLogEntry{
		ID:      uuid.NewString(),
		Type:    logType,
		Source:  source,
		Message: message,
		Details: details,
	}
	if err := o.Store.AppendActivityLog(entry); err != nil {
		logger.L().WithError(err).Warn("activity log write failed")
	}
}

// settleAll runs every fn concurrently and waits for all of them, returning
// one result slot per fn. Callers choose whether any failure fails the
// whole group.
func settleAll(fns ...func() error) []error {
	results := make([]error, len(fns))
	var wg sync.WaitGroup
	for i, fn := range fns {
		wg.Add(1)
		go func(i int, fn func() error) {
			defer wg.Done()
			results[i] = fn()
		}(i, fn)
	}
	wg.Wait()
	return results
}
