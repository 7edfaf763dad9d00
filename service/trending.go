package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"TrendToVideo-server/config"
	"TrendToVideo-server/logger"
	"TrendToVideo-server/models"

	"github.com/google/uuid"
)

// TrendingFetcher pulls candidate topics from the trending source API and
// stores them. Expired topics (older than about a day) are deleted first so
// the candidate pool never grows without bound.
type TrendingFetcher struct {
	Store     models.JobStore
	SourceURL string
	HTTP      *http.Client

	TopicMaxAge time.Duration
}

func NewTrendingFetcher(store models.JobStore) *TrendingFetcher {
	return &TrendingFetcher{
		Store:       store,
		SourceURL:   config.AppConfig.Trending.SourceURL,
		HTTP:        &http.Client{Timeout: 30 * time.Second},
		TopicMaxAge: 24 * time.Hour,
	}
}

// Refresh deletes expired topics and inserts freshly fetched ones.
func (f *TrendingFetcher) Refresh(ctx context.Context) error {
	deleted, err := f.Store.DeleteExpiredTopics(f.TopicMaxAge)
	if err != nil {
		return fmt.Errorf("delete expired topics failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.SourceURL, nil)
	if err != nil {
		return fmt.Errorf("create trending request failed: %w", err)
	}
	resp, err := f.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("trending request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("trending source status code: %d", resp.StatusCode)
	}

	var payload struct {
		Topics []struct {
			Title        string `json:"title"`
			Description  string `json:"description"`
			SearchVolume int64  `json:"search_volume"`
			Priority     string `json:"priority"`
			Category     string `json:"category"`
			Source       string `json:"source"`
		} `json:"topics"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decode trending response failed: %w", err)
	}

	topics := make([]models.TrendingTopic, 0, len(payload.Topics))
	now := time.Now()
	for _, t := range payload.Topics {
		priority := t.Priority
		switch priority {
		case models.TopicPriorityHigh, models.TopicPriorityMedium, models.TopicPriorityLow:
		default:
			priority = models.TopicPriorityLow
		}
		topics = append(topics, models.TrendingTopic{
			ID:           uuid.NewString(),
			Title:        t.Title,
			Description:  t.Description,
			SearchVolume: t.SearchVolume,
			Priority:     priority,
			Category:     t.Category,
			Source:       t.Source,
			CreatedAt:    now,
		})
	}
	if err := f.Store.CreateTopics(topics); err != nil {
		return fmt.Errorf("store topics failed: %w", err)
	}

	logger.L().Infof("topic refresh done: %d expired deleted, %d fetched", deleted, len(topics))
	return nil
}
