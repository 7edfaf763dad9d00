package api

import (
	"encoding/json"
	"net/http"

	"TrendToVideo-server/models"
	"TrendToVideo-server/service"

	"github.com/gin-gonic/gin"
)

var (
	store        models.JobStore
	orchestrator *service.Orchestrator
	scheduler    *service.Scheduler
)

// Setup wires the handler package to its dependencies, called from main.go.
func Setup(s models.JobStore, o *service.Orchestrator, sch *service.Scheduler) {
	store = s
	orchestrator = o
	scheduler = sch
}

// TriggerTopicGeneration queues an ad-hoc pipeline run for one topic.
// POST /v1/api/automation/topics/:topic_id/generate
func TriggerTopicGeneration(c *gin.Context) {
	topicID := c.Param("topic_id")
	videoType := c.DefaultQuery("video_type", models.VideoTypeShort)
	if videoType != models.VideoTypeLongForm && videoType != models.VideoTypeShort {
		c.JSON(http.StatusBadRequest, gin.H{"error": "video_type must be long_form or short"})
		return
	}
	if _, err := store.GetTopicByID(topicID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "topic not found: " + err.Error()})
		return
	}
	if err := service.EnqueueTopicJob(topicID, videoType); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"queued": true, "topicId": topicID, "videoType": videoType})
}

// TriggerDailyBatch runs the daily batch out of schedule. Overlap with a
// running batch is a logged no-op.
// POST /v1/api/automation/daily-batch
func TriggerDailyBatch(c *gin.Context) {
	go func() {
		_ = orchestrator.RunDailyBatch(c.Copy())
	}()
	c.JSON(http.StatusAccepted, gin.H{"triggered": true})
}

// PauseAutomation - POST /v1/api/automation/pause
func PauseAutomation(c *gin.Context) {
	if err := scheduler.Pause(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": models.SystemStatusPaused})
}

// ResumeAutomation - POST /v1/api/automation/resume
func ResumeAutomation(c *gin.Context) {
	if err := scheduler.Resume(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": models.SystemStatusActive})
}

// ResetAutomation - POST /v1/api/automation/reset
func ResetAutomation(c *gin.Context) {
	if err := scheduler.ResetAndStart(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reset": true})
}

// ClearStuckJobs - POST /v1/api/automation/stuck-jobs/clear
func ClearStuckJobs(c *gin.Context) {
	swept, err := scheduler.ClearStuckJobs()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"swept": swept})
}

// GetAutomationStatus aggregates the orchestrator view, system status and
// last health summary. GET /v1/api/automation/status
func GetAutomationStatus(c *gin.Context) {
	active, err := orchestrator.GetActiveStatus()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	systemStatus, err := store.GetSetting(models.SettingSystemStatus)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if systemStatus == "" {
		systemStatus = models.SystemStatusActive
	}

	var health interface{}
	if raw, err := store.GetSetting(models.SettingHealthStatus); err == nil && raw != "" {
		var parsed map[string]interface{}
		if json.Unmarshal([]byte(raw), &parsed) == nil {
			health = parsed
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"pipeline":     active,
		"systemStatus": systemStatus,
		"health":       health,
		"schedules":    service.TaskSchedules,
	})
}
