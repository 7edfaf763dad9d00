package models

import "time"

const (
	TopicPriorityHigh   = "high"
	TopicPriorityMedium = "medium"
	TopicPriorityLow    = "low"
)

// TrendingTopic is a candidate subject for job creation. Rows expire after
// roughly a day and are deleted during topic refresh; job creation only
// references a topic by id, it never consumes the row.
type TrendingTopic struct {
	ID           string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Title        string    `json:"title"`
	Description  string    `gorm:"type:text" json:"description"`
	SearchVolume int64     `json:"searchVolume"`
	Priority     string    `gorm:"index" json:"priority"`
	Category     string    `json:"category"`
	Source       string    `json:"source"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (TrendingTopic) TableName() string {
	return "trending_topics"
}

func (s *GormJobStore) ListTopicsByPriority(priority string) ([]TrendingTopic, error) {
	var topics []TrendingTopic
	err := s.DB.
		Where("priority = ?", priority).
		Order("search_volume DESC").
		Find(&topics).Error
	return topics, err
}

func (s *GormJobStore) GetTopicByID(id string) (*TrendingTopic, error) {
	var topic TrendingTopic
	if err := s.DB.First(&topic, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &topic, nil
}

func (s *GormJobStore) CreateTopics(topics []TrendingTopic) error {
	if len(topics) == 0 {
		return nil
	}
	return s.DB.Create(&topics).Error
}

func (s *GormJobStore) DeleteExpiredTopics(maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge)
	res := s.DB.Where("created_at < ?", cutoff).Delete(&TrendingTopic{})
	return res.RowsAffected, res.Error
}
