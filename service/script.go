package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"TrendToVideo-server/config"
	"TrendToVideo-server/logger"
	"TrendToVideo-server/models"

	"github.com/google/uuid"
	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// ScriptResponse is the structured output we ask the model for.
type ScriptResponse struct {
	Title       string   `json:"title" jsonschema_description:"An engaging video title under 100 characters"`
	Script      string   `json:"script" jsonschema_description:"The full narration script for the video"`
	Description string   `json:"description" jsonschema_description:"A short video description for the publish platform"`
	Tags        []string `json:"tags" jsonschema_description:"Search tags for the video"`
}

// GenerateSchema generates a JSON schema for structured outputs.
func GenerateSchema[T any]() interface{} {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

var scriptResponseSchema = GenerateSchema[ScriptResponse]()

// OpenAIScriptGenerator writes the script with an OpenAI chat completion and
// creates the Job record from the result.
type OpenAIScriptGenerator struct {
	Store  models.JobStore
	APIKey string
	Model  string
}

func NewOpenAIScriptGenerator(store models.JobStore) *OpenAIScriptGenerator {
	return &OpenAIScriptGenerator{
		Store:  store,
		APIKey: config.AppConfig.OpenAI.APIKey,
		Model:  config.AppConfig.OpenAI.Model,
	}
}

func (g *OpenAIScriptGenerator) GenerateScriptAndCreateJob(ctx context.Context, topic *models.TrendingTopic, videoType string) (*models.Job, error) {
	if g.APIKey == "" {
		return nil, fmt.Errorf("openai api_key not configured")
	}

	client := openai.NewClient(
		option.WithAPIKey(g.APIKey),
	)

	lengthHint := "a detailed 6-8 minute narration"
	if videoType == models.VideoTypeShort {
		lengthHint = "a punchy 45-60 second narration"
	}

	prompt := fmt.Sprintf(`You are writing a video for an automated content channel.

Trending topic: %s
Topic description: %s
Category: %s
Video format: %s

Write %s about this topic. The script should open with a hook, stay factual,
and end with a call to action.

Respond in JSON with this structure:
{
  "title": "...",
  "script": "...",
  "description": "...",
  "tags": ["..."]
}`, topic.Title, topic.Description, topic.Category, videoType, lengthHint)

	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        "video_script",
		Description: openai.String("A complete script and metadata for one video"),
		Schema:      scriptResponseSchema,
		Strict:      openai.Bool(true),
	}

	chatCompletion, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model: openai.ChatModel(g.Model),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: schemaParam,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(chatCompletion.Choices) == 0 {
		return nil, fmt.Errorf("no response from OpenAI")
	}

	rawResponse := chatCompletion.Choices[0].Message.Content
	if rawResponse == "" {
		return nil, fmt.Errorf("OpenAI returned empty response, finish reason: %s", chatCompletion.Choices[0].FinishReason)
	}

	var scriptResp ScriptResponse
	if err := json.Unmarshal([]byte(rawResponse), &scriptResp); err != nil {
		return nil, fmt.Errorf("failed to parse OpenAI JSON response: %w", err)
	}
	title := strings.TrimSpace(scriptResp.Title)
	script := strings.TrimSpace(scriptResp.Script)
	if title == "" || script == "" {
		return nil, fmt.Errorf("OpenAI returned empty title or script")
	}

	job := &models.Job{
		ID:        uuid.NewString(),
		TopicID:   topic.ID,
		VideoType: videoType,
		Title:     title,
		Script:    script,
		Status:    models.JobStatusScript,
		Progress:  models.StageMilestones[models.JobStatusScript],
		Metadata: models.JobMetadata{
			"description": scriptResp.Description,
			"tags":        scriptResp.Tags,
			"topic_title": topic.Title,
		},
		CreatedAt: time.Now(),
	}
	if err := g.Store.CreateJob(job); err != nil {
		return nil, fmt.Errorf("create job failed: %w", err)
	}

	logger.L().WithFields(map[string]interface{}{
		"jobId":   job.ID,
		"topicId": topic.ID,
		"type":    videoType,
	}).Info("script generated, job created")

	return job, nil
}
