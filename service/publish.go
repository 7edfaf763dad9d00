package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"TrendToVideo-server/config"
	"TrendToVideo-server/logger"
	"TrendToVideo-server/models"
)

// PlatformPublisher uploads a stored artifact to the publish platform.
type PlatformPublisher struct {
	Endpoint string
	Token    string
	HTTP     *http.Client
}

func NewPlatformPublisher() *PlatformPublisher {
	return &PlatformPublisher{
		Endpoint: config.AppConfig.Publish.Addr,
		Token:    config.AppConfig.Publish.Token,
		HTTP:     &http.Client{Timeout: 5 * time.Minute},
	}
}

func (p *PlatformPublisher) Publish(ctx context.Context, job *models.Job) (string, error) {
	if job.StorageURL == "" {
		return "", fmt.Errorf("job %s has no storage url, refusing to publish", job.ID)
	}

	description := ""
	var tags interface{}
	if job.Metadata != nil {
		if d, ok := job.Metadata["description"].(string); ok {
			description = d
		}
		tags = job.Metadata["tags"]
	}

	reqBody := map[string]interface{}{
		"job_id":        job.ID,
		"title":         job.Title,
		"description":   description,
		"tags":          tags,
		"video_type":    job.VideoType,
		"storage_url":   job.StorageURL,
		"thumbnail_url": job.ThumbnailURL,
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal publish request failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint+"/v1/uploads", bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create publish request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.Token)
	}

	resp, err := p.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("publish request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("publish platform status code: %d", resp.StatusCode)
	}

	var respData struct {
		PublishID string `json:"publish_id"`
		ID        string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return "", fmt.Errorf("decode publish response failed: %w", err)
	}
	publishID := respData.PublishID
	if publishID == "" {
		publishID = respData.ID
	}
	if publishID == "" {
		return "", fmt.Errorf("publish response missing id")
	}

	logger.L().Infof("job %s published, publish id %s", job.ID, publishID)
	return publishID, nil
}
