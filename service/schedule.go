package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"TrendToVideo-server/config"
	"TrendToVideo-server/models"
)

// PublishPlanner computes publish times. Each video type targets one fixed
// evening slot in the automation timezone; if today's slot has already
// passed, the job rolls to the same slot tomorrow.
type PublishPlanner struct {
	Location     *time.Location
	LongFormSlot string // "HH:MM"
	ShortSlot    string // "HH:MM"
}

func NewPublishPlanner() (*PublishPlanner, error) {
	cfg := config.AppConfig.Automation
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q failed: %w", cfg.Timezone, err)
	}
	return &PublishPlanner{
		Location:     loc,
		LongFormSlot: cfg.LongFormSlot,
		ShortSlot:    cfg.ShortSlot,
	}, nil
}

// Next returns the next occurrence of the slot for videoType strictly after
// now.
func (p *PublishPlanner) Next(videoType string, now time.Time) (time.Time, error) {
	slot := p.LongFormSlot
	if videoType == models.VideoTypeShort {
		slot = p.ShortSlot
	}
	hour, minute, err := parseSlot(slot)
	if err != nil {
		return time.Time{}, err
	}
	local := now.In(p.Location)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, p.Location)
	if !candidate.After(local) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate, nil
}

func parseSlot(slot string) (int, int, error) {
	parts := strings.SplitN(slot, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid slot %q, want HH:MM", slot)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid slot hour in %q", slot)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid slot minute in %q", slot)
	}
	return hour, minute, nil
}
