package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Well-known setting keys.
const (
	SettingSystemStatus = "system_status"
	SettingHealthStatus = "health_status"
	SettingDailyStats   = "daily_stats"
)

const (
	SystemStatusActive = "active"
	SystemStatusPaused = "paused"
)

// Setting is a key-value row for state that outside consumers (dashboard,
// ops scripts) read directly from the database.
type Setting struct {
	Key       string    `gorm:"primaryKey;type:varchar(64)" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Setting) TableName() string {
	return "settings"
}

func (s *GormJobStore) UpsertSetting(key, value string) error {
	setting := Setting{Key: key, Value: value, UpdatedAt: time.Now()}
	return s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&setting).Error
}

// GetSetting returns "" without error when the key has never been written.
func (s *GormJobStore) GetSetting(key string) (string, error) {
	var setting Setting
	err := s.DB.First(&setting, "`key` = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return setting.Value, nil
}
