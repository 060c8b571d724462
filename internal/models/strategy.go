package models

import "strings"

// InvestigationStrategy trades investigation speed against depth.
type InvestigationStrategy string

const (
	// StrategyActiveIncident optimises for mitigation of a live issue.
	StrategyActiveIncident InvestigationStrategy = "active_incident"
	// StrategyPostMortem optimises for a complete root cause analysis.
	StrategyPostMortem InvestigationStrategy = "post_mortem"
)

// ParseStrategy maps user-facing aliases onto a strategy.
func ParseStrategy(s string) (InvestigationStrategy, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active_incident", "active", "incident", "urgent":
		return StrategyActiveIncident, true
	case "post_mortem", "postmortem", "rca", "root_cause":
		return StrategyPostMortem, true
	}
	return "", false
}

// OrDefault returns s, or StrategyActiveIncident when s is empty.
func (s InvestigationStrategy) OrDefault() InvestigationStrategy {
	if s == "" {
		return StrategyActiveIncident
	}
	return s
}
