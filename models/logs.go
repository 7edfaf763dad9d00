package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Pipeline log steps beyond the job statuses themselves.
const (
	StepPipelineStart = "pipeline_start"
	StepPipelineError = "pipeline_error"
)

// Pipeline log phases.
const (
	PhaseStarting  = "starting"
	PhaseCompleted = "completed"
	PhaseError     = "error"
	PhaseWarning   = "warning"
)

// Activity log types.
const (
	ActivityInfo    = "info"
	ActivitySuccess = "success"
	ActivityWarning = "warning"
	ActivityError   = "error"
)

type LogDetails map[string]interface{}

func (d LogDetails) Value() (driver.Value, error) {
	if d == nil {
		return "{}", nil
	}
	return json.Marshal(d)
}

func (d *LogDetails) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New(fmt.Sprint("failed to unmarshal JSON value:", value))
	}
	return json.Unmarshal(bytes, d)
}

// PipelineLogEntry is one append-only audit row for a stage transition of a
// single job. Entries are never updated after insert.
type PipelineLogEntry struct {
	ID        string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	JobID     string     `gorm:"index" json:"jobId"`
	Step      string     `json:"step"`
	Phase     string     `json:"phase"`
	Message   string     `gorm:"type:text" json:"message"`
	Details   LogDetails `gorm:"type:json" json:"details"`
	Progress  int        `json:"progress"`
	CreatedAt time.Time  `json:"createdAt"`
}

func (PipelineLogEntry) TableName() string {
	return "pipeline_logs"
}

// ActivityLogEntry is a system-wide audit row, independent of any single job
// (automation start/stop, batch summaries, health results, resets).
type ActivityLogEntry struct {
	ID        string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Type      string     `json:"type"`
	Source    string     `json:"source"`
	Message   string     `gorm:"type:text" json:"message"`
	Details   LogDetails `gorm:"type:json" json:"details"`
	CreatedAt time.Time  `json:"createdAt"`
}

func (ActivityLogEntry) TableName() string {
	return "activity_logs"
}

func (s *GormJobStore) AppendPipelineLog(entry *PipelineLogEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	return s.DB.Create(entry).Error
}

func (s *GormJobStore) AppendActivityLog(entry *ActivityLogEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	return s.DB.Create(entry).Error
}

func (s *GormJobStore) ListPipelineLogs(jobID string) ([]PipelineLogEntry, error) {
	var entries []PipelineLogEntry
	err := s.DB.
		Where("job_id = ?", jobID).
		Order("created_at ASC").
		Find(&entries).Error
	return entries, err
}
