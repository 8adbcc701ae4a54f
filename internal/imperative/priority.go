package imperative

import (
	"fmt"
	"strings"
)

// Priority orders impulses competing in the same beat.
type Priority int

const (
	// PriorityMaintenance is for housekeeping that only runs when nothing else wants to.
	PriorityMaintenance Priority = iota
	// PriorityNormal is the default.
	PriorityNormal
	// PriorityGoal is for impulses that directly advance a goal.
	PriorityGoal
	// PriorityCritical preempts everything, e.g. keeping the agent alive.
	PriorityCritical
)

// String returns the priority name.
func (p Priority) String() string {
	switch p {
	case PriorityMaintenance:
		return "maintenance"
	case PriorityNormal:
		return "normal"
	case PriorityGoal:
		return "goal"
	case PriorityCritical:
		return "critical"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

// ParsePriority parses a priority name. The empty string is normal.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "maintenance":
		return PriorityMaintenance, nil
	case "", "normal":
		return PriorityNormal, nil
	case "goal":
		return PriorityGoal, nil
	case "critical":
		return PriorityCritical, nil
	default:
		return PriorityNormal, fmt.Errorf("unknown priority %q", s)
	}
}
