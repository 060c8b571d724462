package investigation

import (
	"fmt"
	"strings"
	"time"

	"github.com/kubilitics/kubilitics-investigator/internal/models"
)

// historicalIncidentAge is the age past which an incident is analysed as a post-mortem.
const historicalIncidentAge = 24 * time.Hour

// StrategyConfig holds the thresholds one strategy applies.
type StrategyConfig struct {
	Name        string
	PrimaryGoal string

	// MinHypothesisConfidence is the confidence the user is told to expect
	// before a root cause is accepted.
	MinHypothesisConfidence float64
	// SolutionConfidenceThreshold gates WorkingConclusion.CanProceedWithSolution.
	SolutionConfidenceThreshold float64

	OfferPostMortem bool
}

var strategyConfigs = map[models.InvestigationStrategy]StrategyConfig{
	models.StrategyActiveIncident: {
		Name:                        "Active Incident",
		PrimaryGoal:                 "Rapid mitigation and service restoration",
		MinHypothesisConfidence:     0.60,
		SolutionConfidenceThreshold: 0.70,
		OfferPostMortem:             true,
	},
	models.StrategyPostMortem: {
		Name:                        "Post-Mortem",
		PrimaryGoal:                 "Complete root cause analysis and prevention",
		MinHypothesisConfidence:     0.85,
		SolutionConfidenceThreshold: 0.85,
	},
}

// ConfigForStrategy returns the thresholds of s. Unknown and empty
// strategies fall back to active incident.
func ConfigForStrategy(s models.InvestigationStrategy) StrategyConfig {
	if cfg, ok := strategyConfigs[s]; ok {
		return cfg
	}
	return strategyConfigs[models.StrategyActiveIncident]
}

// StrategySummary describes how the investigation will behave under s.
func StrategySummary(s models.InvestigationStrategy) string {
	s = s.OrDefault()
	cfg := ConfigForStrategy(s)
	pct := int(cfg.MinHypothesisConfidence * 100)
	if s == models.StrategyPostMortem {
		return fmt.Sprintf("%s: conducting thorough root cause analysis; every hypothesis is tested and %d%%+ confidence is required before concluding.",
			cfg.Name, pct)
	}
	return fmt.Sprintf("%s: prioritizing rapid mitigation; proceeding once a root cause reaches %d%%+ confidence, with a post-mortem offered after resolution.",
		cfg.Name, pct)
}

func isHighUrgency(urgency string) bool {
	switch strings.ToLower(strings.TrimSpace(urgency)) {
	case "critical", "high":
		return true
	}
	return false
}

// SelectStrategy picks the initial strategy. An explicit preference wins,
// then high urgency, then incident age; active incident is the default.
func SelectStrategy(preference, urgency string, sinceIncident time.Duration) (models.InvestigationStrategy, string) {
	if s, ok := models.ParseStrategy(preference); ok {
		if s == models.StrategyPostMortem {
			return s, "User explicitly requested thorough post-mortem analysis"
		}
		return s, "User requested rapid incident response"
	}
	if isHighUrgency(urgency) {
		return models.StrategyActiveIncident, fmt.Sprintf("High urgency (%s) requires rapid mitigation", strings.ToLower(urgency))
	}
	if sinceIncident > historicalIncidentAge {
		return models.StrategyPostMortem, "Problem occurred more than 24h ago, performing thorough root cause analysis"
	}
	return models.StrategyActiveIncident, "Default strategy for active troubleshooting"
}

// strategyChange reports the strategy an ongoing investigation should move
// to, if any. An explicit preference wins; otherwise a post-mortem switches
// to active incident when urgency escalates.
func strategyChange(current models.InvestigationStrategy, preference, urgency string) (models.InvestigationStrategy, string, bool) {
	current = current.OrDefault()
	if s, ok := models.ParseStrategy(preference); ok {
		if s == current {
			return "", "", false
		}
		return s, "User changed investigation strategy", true
	}
	if current == models.StrategyPostMortem && isHighUrgency(urgency) {
		return models.StrategyActiveIncident, "Urgency escalated, switching to rapid mitigation", true
	}
	return "", "", false
}

// PostMortemOffer returns the offer made to the user once a case resolves
// under a strategy that offers a follow-up post-mortem, or "".
func PostMortemOffer(c *models.Case) string {
	if c.Status != models.StatusResolved || !ConfigForStrategy(c.Strategy).OfferPostMortem {
		return ""
	}
	return "Your problem has been resolved. Would you like a thorough post-mortem analysis " +
		"to identify the root cause and prevent recurrence? This involves deeper evidence " +
		"gathering and comprehensive hypothesis testing."
}
