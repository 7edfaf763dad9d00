package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"TrendToVideo-server/models"
)

// fakeStore is an in-memory models.JobStore with the same semantics as the
// gorm implementation, shared by the orchestrator and scheduler tests.
type fakeStore struct {
	mu           sync.Mutex
	jobs         map[string]*models.Job
	topics       map[string]*models.TrendingTopic
	pipelineLogs []models.PipelineLogEntry
	activityLogs []models.ActivityLogEntry
	settings     map[string]string

	now func() time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs:     make(map[string]*models.Job),
		topics:   make(map[string]*models.TrendingTopic),
		settings: make(map[string]string),
		now:      time.Now,
	}
}

func (s *fakeStore) CreateJob(job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	cp.UpdatedAt = s.now()
	s.jobs[job.ID] = &cp
	return nil
}

func (s *fakeStore) UpdateJobFields(id string, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}
	for k, v := range fields {
		switch k {
		case "status":
			job.Status = v.(string)
		case "progress":
			job.Progress = v.(int)
		case "video_path":
			job.VideoPath = v.(string)
		case "thumbnail_path":
			job.ThumbnailPath = v.(string)
		case "storage_url":
			job.StorageURL = v.(string)
		case "thumbnail_url":
			job.ThumbnailURL = v.(string)
		case "publish_id":
			job.PublishID = v.(string)
		case "scheduled_time":
			t := v.(time.Time)
			job.ScheduledTime = &t
		case "error_message":
			job.ErrorMessage = v.(string)
		}
	}
	job.UpdatedAt = s.now()
	return nil
}

func (s *fakeStore) GetJobByID(id string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s not found", id)
	}
	cp := *job
	return &cp, nil
}

func (s *fakeStore) ListActiveJobs() ([]models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Job
	for _, job := range s.jobs {
		if !models.IsTerminalStatus(job.Status) {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (s *fakeStore) ListDueJobs() ([]models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Job
	for _, job := range s.jobs {
		if job.Status == models.JobStatusReadyForUpload {
			out = append(out, *job)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].ScheduledTime, out[j].ScheduledTime
		if ti == nil || tj == nil {
			return tj == nil
		}
		return ti.Before(*tj)
	})
	return out, nil
}

func (s *fakeStore) ClearStuckJobs(staleness time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-staleness)
	var swept int64
	for _, job := range s.jobs {
		if models.IsTerminalStatus(job.Status) {
			continue
		}
		if job.UpdatedAt.Before(cutoff) {
			job.Status = models.JobStatusFailed
			job.Progress = 0
			job.ErrorMessage = "job stuck past staleness threshold, forced to failed by sweep"
			job.UpdatedAt = s.now()
			swept++
		}
	}
	return swept, nil
}

func (s *fakeStore) CountJobsByStatus() (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[string]int64)
	for _, job := range s.jobs {
		counts[job.Status]++
	}
	return counts, nil
}

func (s *fakeStore) AppendPipelineLog(entry *models.PipelineLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	s.pipelineLogs = append(s.pipelineLogs, *entry)
	return nil
}

func (s *fakeStore) AppendActivityLog(entry *models.ActivityLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	s.activityLogs = append(s.activityLogs, *entry)
	return nil
}

func (s *fakeStore) ListPipelineLogs(jobID string) ([]models.PipelineLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PipelineLogEntry
	for _, e := range s.pipelineLogs {
		if e.JobID == jobID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeStore) ListTopicsByPriority(priority string) ([]models.TrendingTopic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TrendingTopic
	for _, t := range s.topics {
		if t.Priority == priority {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SearchVolume > out[j].SearchVolume })
	return out, nil
}

func (s *fakeStore) GetTopicByID(id string) (*models.TrendingTopic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.topics[id]
	if !ok {
		return nil, fmt.Errorf("topic %s not found", id)
	}
	cp := *t
	return &cp, nil
}

func (s *fakeStore) CreateTopics(topics []models.TrendingTopic) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range topics {
		cp := topics[i]
		s.topics[cp.ID] = &cp
	}
	return nil
}

func (s *fakeStore) DeleteExpiredTopics(maxAge time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-maxAge)
	var deleted int64
	for id, t := range s.topics {
		if t.CreatedAt.Before(cutoff) {
			delete(s.topics, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *fakeStore) UpsertSetting(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
	return nil
}

func (s *fakeStore) GetSetting(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings[key], nil
}

func (s *fakeStore) addTopic(id, priority string, volume int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics[id] = &models.TrendingTopic{
		ID:           id,
		Title:        "topic " + id,
		Priority:     priority,
		SearchVolume: volume,
		CreatedAt:    s.now(),
	}
}

func (s *fakeStore) activityMessages(logType string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.activityLogs {
		if logType == "" || e.Type == logType {
			out = append(out, e.Message)
		}
	}
	return out
}

func (s *fakeStore) jobByTopic(topicID, videoType string) *models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if job.TopicID == topicID && job.VideoType == videoType {
			cp := *job
			return &cp
		}
	}
	return nil
}

// Fake stage collaborators. Any of them can be rigged to fail; the script
// generator can also block on a gate to model an in-flight batch.

type fakeScripts struct {
	store models.JobStore
	fail  error
	gate  chan struct{}

	mu      sync.Mutex
	created []string
}

func (f *fakeScripts) GenerateScriptAndCreateJob(ctx context.Context, topic *models.TrendingTopic, videoType string) (*models.Job, error) {
	if f.gate != nil {
		<-f.gate
	}
	if f.fail != nil {
		return nil, f.fail
	}
	job := &models.Job{
		ID:        fmt.Sprintf("job-%s-%s", topic.ID, videoType),
		TopicID:   topic.ID,
		VideoType: videoType,
		Title:     "title for " + topic.Title,
		Script:    "script body",
		Status:    models.JobStatusScript,
		Progress:  models.StageMilestones[models.JobStatusScript],
		CreatedAt: time.Now(),
	}
	if err := f.store.CreateJob(job); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.created = append(f.created, job.ID)
	f.mu.Unlock()
	return job, nil
}

type fakeRenderer struct {
	failVideo error
	failThumb error
	// failVideoType limits failVideo to jobs of one video type.
	failVideoType string
}

func (f *fakeRenderer) RenderVideo(ctx context.Context, job *models.Job) (string, error) {
	if f.failVideo != nil && (f.failVideoType == "" || job.VideoType == f.failVideoType) {
		return "", f.failVideo
	}
	return "/tmp/render/" + job.ID + ".mp4", nil
}

func (f *fakeRenderer) RenderThumbnail(ctx context.Context, job *models.Job) (string, error) {
	if f.failThumb != nil {
		return "", f.failThumb
	}
	return "/tmp/render/" + job.ID + ".png", nil
}

type fakeArtifacts struct {
	fail        error
	placeholder bool
}

func (f *fakeArtifacts) StoreArtifacts(ctx context.Context, videoPath, thumbnailPath, jobID string) (StoredArtifacts, error) {
	if f.fail != nil {
		return StoredArtifacts{}, f.fail
	}
	if f.placeholder {
		return StoredArtifacts{
			StorageURL:   "pending://jobs/" + jobID + "/video.mp4",
			ThumbnailURL: "pending://jobs/" + jobID + "/thumb.png",
		}, nil
	}
	return StoredArtifacts{
		StorageURL:   "https://storage.local/jobs/" + jobID + "/video.mp4",
		ThumbnailURL: "https://storage.local/jobs/" + jobID + "/thumb.png",
	}, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	failJobs  map[string]error
	published []string
}

func (f *fakePublisher) Publish(ctx context.Context, job *models.Job) (string, error) {
	if job.StorageURL == "" {
		return "", fmt.Errorf("job %s has no storage url", job.ID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failJobs[job.ID]; ok {
		return "", err
	}
	f.published = append(f.published, job.ID)
	return "pub-" + job.ID, nil
}

func istPlanner() *PublishPlanner {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		panic(err)
	}
	return &PublishPlanner{
		Location:     loc,
		LongFormSlot: "18:00",
		ShortSlot:    "20:00",
	}
}

func newTestOrchestrator(store *fakeStore) (*Orchestrator, *fakeScripts, *fakeRenderer, *fakeArtifacts, *fakePublisher) {
	scripts := &fakeScripts{store: store}
	renderer := &fakeRenderer{}
	artifacts := &fakeArtifacts{}
	publisher := &fakePublisher{failJobs: make(map[string]error)}
	o := NewOrchestrator(store, scripts, renderer, renderer, artifacts, publisher, istPlanner())
	return o, scripts, renderer, artifacts, publisher
}
