package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Job statuses. A job only ever moves forward through the pipeline; "failed"
// is reachable from every non-terminal status; "completed" and "failed" are
// terminal.
const (
	JobStatusPending         = "pending"
	JobStatusScript          = "script"
	JobStatusRenderVideo     = "render_video"
	JobStatusRenderThumbnail = "render_thumbnail"
	JobStatusStoreArtifacts  = "store_artifacts"
	JobStatusReadyForUpload  = "ready_for_upload"
	JobStatusPublishing      = "publishing"
	JobStatusCompleted       = "completed"
	JobStatusFailed          = "failed"
)

const (
	VideoTypeLongForm = "long_form"
	VideoTypeShort    = "short"
)

// StageMilestones is the fixed per-stage progress table. The values are a
// display contract consumed by the dashboard; do not recompute them.
var StageMilestones = map[string]int{
	JobStatusScript:          25,
	JobStatusRenderVideo:     30,
	"render_video_done":      70,
	JobStatusRenderThumbnail: 80,
	JobStatusStoreArtifacts:  90,
	"scheduled":              95,
	JobStatusReadyForUpload:  100,
}

// jobStatusRank orders the forward path of the pipeline. Used to validate
// that transitions never skip backward.
var jobStatusRank = map[string]int{
	JobStatusPending:         0,
	JobStatusScript:          1,
	JobStatusRenderVideo:     2,
	JobStatusRenderThumbnail: 3,
	JobStatusStoreArtifacts:  4,
	JobStatusReadyForUpload:  5,
	JobStatusPublishing:      6,
	JobStatusCompleted:       7,
}

// IsTerminalStatus reports whether a job in this status can never move again.
func IsTerminalStatus(status string) bool {
	return status == JobStatusCompleted || status == JobStatusFailed
}

// ValidTransition reports whether from -> to is a legal move in the status
// machine: one step forward on the main path, or to failed from any
// non-terminal status.
func ValidTransition(from, to string) bool {
	if IsTerminalStatus(from) {
		return false
	}
	if to == JobStatusFailed {
		return true
	}
	fr, ok1 := jobStatusRank[from]
	tr, ok2 := jobStatusRank[to]
	if !ok1 || !ok2 {
		return false
	}
	return tr == fr+1
}

type JobMetadata map[string]interface{}

func (m JobMetadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	return json.Marshal(m)
}

func (m *JobMetadata) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New(fmt.Sprint("failed to unmarshal JSON value:", value))
	}
	return json.Unmarshal(bytes, m)
}

// Job is one content-production unit, created by the script stage and then
// mutated one stage at a time by the orchestrator.
type Job struct {
	ID            string      `gorm:"primaryKey;type:varchar(64)" json:"id"`
	TopicID       string      `gorm:"index" json:"topicId"`
	VideoType     string      `json:"videoType"`
	Title         string      `json:"title"`
	Script        string      `gorm:"type:text" json:"script,omitempty"`
	Status        string      `gorm:"index" json:"status"`
	Progress      int         `json:"progress"`
	VideoPath     string      `json:"videoPath"`
	ThumbnailPath string      `json:"thumbnailPath"`
	StorageURL    string      `json:"storageUrl"`
	ThumbnailURL  string      `json:"thumbnailUrl"`
	PublishID     string      `json:"publishId"`
	ScheduledTime *time.Time  `json:"scheduledTime"`
	ErrorMessage  string      `gorm:"type:text" json:"errorMessage"`
	Metadata      JobMetadata `gorm:"type:json" json:"metadata"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

func (Job) TableName() string {
	return "jobs"
}

// JobStore is the narrow persistence contract the orchestrator and scheduler
// consume. GormJobStore is the production implementation; tests substitute
// an in-memory fake.
type JobStore interface {
	CreateJob(job *Job) error
	UpdateJobFields(id string, fields map[string]interface{}) error
	GetJobByID(id string) (*Job, error)
	ListActiveJobs() ([]Job, error)
	ListDueJobs() ([]Job, error)
	ClearStuckJobs(staleness time.Duration) (int64, error)
	CountJobsByStatus() (map[string]int64, error)

	AppendPipelineLog(entry *PipelineLogEntry) error
	AppendActivityLog(entry *ActivityLogEntry) error
	ListPipelineLogs(jobID string) ([]PipelineLogEntry, error)

	ListTopicsByPriority(priority string) ([]TrendingTopic, error)
	GetTopicByID(id string) (*TrendingTopic, error)
	CreateTopics(topics []TrendingTopic) error
	DeleteExpiredTopics(maxAge time.Duration) (int64, error)

	UpsertSetting(key, value string) error
	GetSetting(key string) (string, error)
}

type GormJobStore struct {
	DB *gorm.DB
}

func NewGormJobStore(db *gorm.DB) *GormJobStore {
	return &GormJobStore{DB: db}
}

func (s *GormJobStore) CreateJob(job *Job) error {
	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	return s.DB.Create(job).Error
}

func (s *GormJobStore) UpdateJobFields(id string, fields map[string]interface{}) error {
	if _, ok := fields["updated_at"]; !ok {
		fields["updated_at"] = time.Now()
	}
	return s.DB.Model(&Job{}).Where("id = ?", id).Updates(fields).Error
}

func (s *GormJobStore) GetJobByID(id string) (*Job, error) {
	var job Job
	if err := s.DB.First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// ListActiveJobs returns every job not yet in a terminal status.
func (s *GormJobStore) ListActiveJobs() ([]Job, error) {
	var jobs []Job
	err := s.DB.
		Where("status NOT IN ?", []string{JobStatusCompleted, JobStatusFailed}).
		Order("created_at DESC").
		Find(&jobs).Error
	return jobs, err
}

// ListDueJobs returns all jobs in ready_for_upload. The scheduled-time
// comparison happens in the orchestrator, not here, so there is exactly one
// place deciding what "due" means.
func (s *GormJobStore) ListDueJobs() ([]Job, error) {
	var jobs []Job
	err := s.DB.
		Where("status = ?", JobStatusReadyForUpload).
		Order("scheduled_time ASC").
		Find(&jobs).Error
	return jobs, err
}

// ClearStuckJobs forces every non-terminal job whose updated_at is older
// than the staleness window into failed with progress 0. Returns the number
// of jobs swept.
func (s *GormJobStore) ClearStuckJobs(staleness time.Duration) (int64, error) {
	cutoff := time.Now().Add(-staleness)
	res := s.DB.Model(&Job{}).
		Where("status NOT IN ?", []string{JobStatusCompleted, JobStatusFailed}).
		Where("updated_at < ?", cutoff).
		Updates(map[string]interface{}{
			"status":        JobStatusFailed,
			"progress":      0,
			"error_message": "job stuck past staleness threshold, forced to failed by sweep",
			"updated_at":    time.Now(),
		})
	return res.RowsAffected, res.Error
}

func (s *GormJobStore) CountJobsByStatus() (map[string]int64, error) {
	type row struct {
		Status string
		N      int64
	}
	var rows []row
	err := s.DB.Model(&Job{}).
		Select("status, count(*) as n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.N
	}
	return counts, nil
}
