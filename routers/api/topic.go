package api

import (
	"net/http"

	"TrendToVideo-server/models"

	"github.com/gin-gonic/gin"
)

// ListTopics - GET /v1/api/topics?priority=high
func ListTopics(c *gin.Context) {
	priority := c.DefaultQuery("priority", models.TopicPriorityHigh)
	switch priority {
	case models.TopicPriorityHigh, models.TopicPriorityMedium, models.TopicPriorityLow:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "priority must be high, medium or low"})
		return
	}
	topics, err := store.ListTopicsByPriority(priority)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"topics": topics})
}

// GetTopic - GET /v1/api/topics/:topic_id
func GetTopic(c *gin.Context) {
	topicID := c.Param("topic_id")
	topic, err := store.GetTopicByID(topicID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "topic not found: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"topic": topic})
}
