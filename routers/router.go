package routers

import (
	"TrendToVideo-server/routers/api"

	"github.com/gin-gonic/gin"
)

func InitRouter() *gin.Engine {
	r := gin.Default()
	v1 := r.Group("/v1/api")
	{
		v1.POST("/automation/topics/:topic_id/generate", api.TriggerTopicGeneration)
		v1.POST("/automation/daily-batch", api.TriggerDailyBatch)
		v1.POST("/automation/pause", api.PauseAutomation)
		v1.POST("/automation/resume", api.ResumeAutomation)
		v1.POST("/automation/reset", api.ResetAutomation)
		v1.POST("/automation/stuck-jobs/clear", api.ClearStuckJobs)
		v1.GET("/automation/status", api.GetAutomationStatus)
		v1.GET("/jobs", api.ListActiveJobs)
		v1.GET("/jobs/:job_id", api.GetJob)
		v1.GET("/jobs/:job_id/logs", api.GetJobLogs)
		v1.GET("/topics", api.ListTopics)
		v1.GET("/topics/:topic_id", api.GetTopic)
	}
	r.GET("/jobs/:job_id/wss", api.JobProgressWebSocket)
	return r
}
