package reminders

import (
	"time"

	"github.com/BearBump/ShipBox/internal/models"
)

type Slot string

const (
	SlotT48     Slot = "t48"
	SlotT24     Slot = "t24"
	SlotMorning Slot = "morning"
)

func (s Slot) Tag() models.EventTag {
	switch s {
	case SlotT48:
		return models.TagShipByReminderT48
	case SlotT24:
		return models.TagShipByReminderT24
	default:
		return models.TagShipByReminderMorning
	}
}

type PlannerConfig struct {
	T48Lead time.Duration // default: 48h before ship-by
	T24Lead time.Duration // default: 24h before ship-by
	// MorningAt is the offset from ship-by midnight when the morning reminder opens.
	MorningAt time.Duration // default: 8h
}

func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		T48Lead:   48 * time.Hour,
		T24Lead:   24 * time.Hour,
		MorningAt: 8 * time.Hour,
	}
}

type Planner struct {
	cfg PlannerConfig
}

func NewPlanner(cfg PlannerConfig) *Planner {
	def := DefaultPlannerConfig()
	if cfg.T48Lead <= 0 {
		cfg.T48Lead = def.T48Lead
	}
	if cfg.T24Lead <= 0 {
		cfg.T24Lead = def.T24Lead
	}
	if cfg.T24Lead > cfg.T48Lead {
		cfg.T24Lead = cfg.T48Lead
	}
	if cfg.MorningAt <= 0 {
		cfg.MorningAt = def.MorningAt
	}
	return &Planner{cfg: cfg}
}

// Due returns the slot whose window contains now. Only the latest open window counts:
// a missed t48 is not sent once t24 has opened. Already stamped slots are never due.
func (p *Planner) Due(shipBy, now time.Time, stamped map[string]any) (Slot, bool) {
	morningFrom := shipBy.Add(p.cfg.MorningAt)
	endOfDay := shipBy.AddDate(0, 0, 1)

	var slot Slot
	switch {
	case !now.Before(endOfDay):
		return "", false
	case !now.Before(morningFrom):
		slot = SlotMorning
	case !now.Before(shipBy.Add(-p.cfg.T24Lead)):
		slot = SlotT24
	case !now.Before(shipBy.Add(-p.cfg.T48Lead)):
		slot = SlotT48
	default:
		return "", false
	}

	if _, done := stamped[string(slot)]; done {
		return "", false
	}
	return slot, true
}
