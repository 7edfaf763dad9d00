package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"TrendToVideo-server/config"
	"TrendToVideo-server/logger"

	"github.com/hibiken/asynq"
)

const (
	TypeTopicGenerate = "automation:topic"
)

type TopicTaskPayload struct {
	TopicID   string `json:"topic_id"`
	VideoType string `json:"video_type"`
}

var QueueClient *asynq.Client

func InitQueue() {
	QueueClient = asynq.NewClient(asynq.RedisClientOpt{
		Addr:     config.AppConfig.Redis.Addr,
		Password: config.AppConfig.Redis.Password,
	})
}

// EnqueueTopicJob queues an ad-hoc single-topic generation request. The
// daily batch does not go through the queue; it calls the orchestrator
// directly so both jobs can be settled in one batch result.
func EnqueueTopicJob(topicID, videoType string) error {
	payload, err := json.Marshal(TopicTaskPayload{TopicID: topicID, VideoType: videoType})
	if err != nil {
		return fmt.Errorf("marshal payload failed: %w", err)
	}

	task := asynq.NewTask(TypeTopicGenerate, payload,
		asynq.MaxRetry(0), // a failed pipeline run is terminal, not retried
		asynq.Timeout(60*time.Minute),
		asynq.Retention(24*time.Hour),
	)

	info, err := QueueClient.Enqueue(task)
	if err != nil {
		return fmt.Errorf("enqueue failed: %w", err)
	}

	logger.L().Infof("[queue] topic job enqueued: topic=%s type=%s task=%s", topicID, videoType, info.ID)
	return nil
}

// StartQueueWorker starts the in-process asynq consumer that executes
// ad-hoc topic jobs against the orchestrator.
func StartQueueWorker(orchestrator *Orchestrator, concurrency int) {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     config.AppConfig.Redis.Addr,
			Password: config.AppConfig.Redis.Password,
		},
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeTopicGenerate, func(ctx context.Context, t *asynq.Task) error {
		var payload TopicTaskPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
		}
		_, err := orchestrator.ProcessTopic(ctx, payload.TopicID, payload.VideoType)
		return err
	})

	logger.L().Infof("starting queue worker with concurrency %d", concurrency)
	go func() {
		if err := srv.Run(mux); err != nil {
			logger.L().Fatalf("could not run queue worker: %v", err)
		}
	}()
}
