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

// Stage collaborator contracts consumed by the orchestrator. Each stage is a
// single blocking call; the orchestrator drives them strictly in order.

// ScriptGenerator creates the Job record together with its script. It is the
// only stage allowed to create a job; every later stage only mutates it.
type ScriptGenerator interface {
	GenerateScriptAndCreateJob(ctx context.Context, topic *models.TrendingTopic, videoType string) (*models.Job, error)
}

type VideoRenderer interface {
	RenderVideo(ctx context.Context, job *models.Job) (string, error)
}

type ThumbnailRenderer interface {
	RenderThumbnail(ctx context.Context, job *models.Job) (string, error)
}

// StoredArtifacts is the result of durably storing a job's output files.
type StoredArtifacts struct {
	StorageURL   string
	ThumbnailURL string
}

// ArtifactStore uploads rendered files to durable storage. Implementations
// degrade to a placeholder reference on upstream outage instead of failing,
// so from the orchestrator's side this call effectively never errors.
type ArtifactStore interface {
	StoreArtifacts(ctx context.Context, videoPath, thumbnailPath, jobID string) (StoredArtifacts, error)
}

// Publisher uploads a stored artifact to the publish platform. It requires
// StorageURL to already be set on the job and errors otherwise.
type Publisher interface {
	Publish(ctx context.Context, job *models.Job) (string, error)
}

// RenderWorkerClient talks to the external FFmpeg render worker. It submits
// a render request, receives a worker-side job id, then polls until the
// worker reports a terminal state.
type RenderWorkerClient struct {
	Endpoint string
	HTTP     *http.Client

	PollInterval time.Duration
	PollTimeout  time.Duration
}

func NewRenderWorkerClient() *RenderWorkerClient {
	return &RenderWorkerClient{
		Endpoint:     config.AppConfig.Worker.Addr,
		HTTP:         &http.Client{Timeout: 30 * time.Second},
		PollInterval: 3 * time.Second,
		PollTimeout:  30 * time.Minute,
	}
}

func (c *RenderWorkerClient) RenderVideo(ctx context.Context, job *models.Job) (string, error) {
	return c.render(ctx, "/v1/render", map[string]interface{}{
		"job_id":     job.ID,
		"video_type": job.VideoType,
		"title":      job.Title,
		"script":     job.Script,
	})
}

func (c *RenderWorkerClient) RenderThumbnail(ctx context.Context, job *models.Job) (string, error) {
	return c.render(ctx, "/v1/thumbnails", map[string]interface{}{
		"job_id":     job.ID,
		"title":      job.Title,
		"video_path": job.VideoPath,
	})
}

func (c *RenderWorkerClient) render(ctx context.Context, apiPath string, reqBody map[string]interface{}) (string, error) {
	workerJobID, err := c.dispatch(ctx, apiPath, reqBody)
	if err != nil {
		return "", err
	}
	return c.pollResult(ctx, workerJobID)
}

func (c *RenderWorkerClient) dispatch(ctx context.Context, apiPath string, reqBody map[string]interface{}) (string, error) {
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request failed: %w", err)
	}
	fullURL := c.Endpoint + apiPath
	logger.L().Debugf("POST %s", fullURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("worker status code: %d", resp.StatusCode)
	}

	var respData map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return "", fmt.Errorf("decode response failed: %w", err)
	}
	if id, ok := respData["id"].(string); ok {
		return id, nil
	}
	if jobID, ok := respData["job_id"].(string); ok {
		return jobID, nil
	}
	return "", fmt.Errorf("response missing 'id'")
}

// pollResult polls GET /v1/jobs/{id} until the worker reports
// finished/failed, returning the output path on success.
func (c *RenderWorkerClient) pollResult(ctx context.Context, workerJobID string) (string, error) {
	jobURL := fmt.Sprintf("%s/v1/jobs/%s", c.Endpoint, workerJobID)

	timeout := time.After(c.PollTimeout)
	ticker := time.NewTicker(c.PollInterval)
	defer ticker.Stop()

	log := logger.L()

	for {
		select {
		case <-timeout:
			return "", fmt.Errorf("polling timeout for worker job %s", workerJobID)
		case <-ctx.Done():
			return "", fmt.Errorf("polling canceled: %v", ctx.Err())
		case <-ticker.C:
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, jobURL, nil)
			if err != nil {
				log.Warnf("create poll request failed: %v", err)
				continue
			}
			resp, err := c.HTTP.Do(req)
			if err != nil {
				log.Warnf("poll network error (retrying): %v", err)
				continue
			}

			var status struct {
				ID         string `json:"id"`
				Status     string `json:"status"`
				OutputPath string `json:"output_path"`
				Error      string `json:"error"`
			}
			err = json.NewDecoder(resp.Body).Decode(&status)
			resp.Body.Close()
			if err != nil {
				log.Warnf("decode poll response failed: %v", err)
				continue
			}

			switch status.Status {
			case "finished", "completed", "success", "succeeded":
				if status.OutputPath == "" {
					return "", fmt.Errorf("worker job %s finished without output path", workerJobID)
				}
				return status.OutputPath, nil
			case "failed", "error":
				return "", fmt.Errorf("worker reported failure: %s", status.Error)
			}
			// still running, keep polling
		}
	}
}
