package app

import (
	"fmt"
	"time"

	"github.com/charlesng35/calsched/internal/availability"
)

// SearcherConfig converts the scheduling section into the availability search configuration.
// Zero values fall back to availability.DefaultConfig.
func (c SchedulingConfig) SearcherConfig() (availability.Config, error) {
	cfg := availability.DefaultConfig()

	if c.SlotStep > 0 {
		cfg.Step = c.SlotStep
	}
	if c.MaxCandidates > 0 {
		cfg.MaxCandidates = c.MaxCandidates
	}
	if c.MaxDuration > 0 {
		cfg.MaxDuration = c.MaxDuration
	}
	if c.WorkingHoursStart != "" {
		start, err := availability.ParseClock(c.WorkingHoursStart)
		if err != nil {
			return cfg, fmt.Errorf("scheduling.working_hours_start: %w", err)
		}
		cfg.WorkingHoursStart = start
	}
	if c.WorkingHoursEnd != "" {
		end, err := availability.ParseClock(c.WorkingHoursEnd)
		if err != nil {
			return cfg, fmt.Errorf("scheduling.working_hours_end: %w", err)
		}
		cfg.WorkingHoursEnd = end
	}
	if cfg.WorkingHoursEnd <= cfg.WorkingHoursStart {
		return cfg, fmt.Errorf("scheduling: working hours end must be after start")
	}
	if c.WorkingHoursBonus > 0 {
		cfg.WorkingHoursBonus = c.WorkingHoursBonus
	}
	if c.PenaltyPerHour > 0 {
		cfg.PenaltyPerHour = c.PenaltyPerHour
	}
	if c.SuggestionsPerParticipant > 0 {
		cfg.SuggestionsPerParticipant = c.SuggestionsPerParticipant
	}
	if c.Lookahead > 0 {
		cfg.SuggestionLookahead = c.Lookahead
	}
	return cfg, nil
}

// RetentionWindow returns how long cancelled events are kept before purge.
func (c RetentionConfig) RetentionWindow() time.Duration {
	days := c.CancelledEventsDays
	if days <= 0 {
		days = 30
	}
	return time.Duration(days) * 24 * time.Hour
}
