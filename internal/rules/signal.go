package rules

import (
	"time"
)

// Type identifies the rule that produced a signal.
type Type string

const (
	TypeStopLoss        Type = "stop_loss"
	TypeScaleUp         Type = "scale_up"
	TypeCreativeRefresh Type = "creative_refresh"
)

// Priority orders signals for delivery. Lower is more urgent.
type Priority int

const (
	PriorityCritical Priority = 1
	PriorityHigh     Priority = 2
	PriorityMedium   Priority = 3
	PriorityLow      Priority = 4
)

// String renders a priority label.
func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// Signal is one recommended action for one campaign. Immutable once
// created; it passes through the frequency controller exactly once before
// reaching the notifier.
type Signal struct {
	Type        Type
	Priority    Priority
	SubjectID   string
	SubjectName string
	Owner       string
	Channel     string
	Country     string
	Message     string
	Action      string
	Metrics     map[string]string
	CreatedAt   time.Time
}
