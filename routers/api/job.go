package api

import (
	"net/http"
	"time"

	"TrendToVideo-server/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// GetJob - GET /v1/api/jobs/:job_id
func GetJob(c *gin.Context) {
	jobID := c.Param("job_id")
	job, err := store.GetJobByID(jobID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job})
}

// ListActiveJobs - GET /v1/api/jobs
func ListActiveJobs(c *gin.Context) {
	jobs, err := store.ListActiveJobs()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

// GetJobLogs - GET /v1/api/jobs/:job_id/logs
func GetJobLogs(c *gin.Context) {
	jobID := c.Param("job_id")
	entries, err := store.ListPipelineLogs(jobID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": entries})
}

// JobProgressWebSocket streams job status/progress changes. The database is
// the single source of truth: the handler polls it and pushes rows on
// change, closing once the job reaches a terminal status.
func JobProgressWebSocket(c *gin.Context) {
	jobID := c.Param("job_id")
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "websocket upgrade failed"})
		return
	}
	defer conn.Close()

	job, err := store.GetJobByID(jobID)
	if err != nil {
		conn.WriteJSON(map[string]interface{}{"error": "job not found: " + err.Error()})
		return
	}
	_ = conn.WriteJSON(job)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	prevStatus := job.Status
	prevProgress := job.Progress

	for range ticker.C {
		cur, err := store.GetJobByID(jobID)
		if err != nil {
			continue
		}

		if cur.Status != prevStatus || cur.Progress != prevProgress {
			if err := conn.WriteJSON(cur); err != nil {
				break
			}
			prevStatus = cur.Status
			prevProgress = cur.Progress
		}

		if models.IsTerminalStatus(cur.Status) {
			_ = conn.WriteJSON(cur)
			break
		}
	}
}
