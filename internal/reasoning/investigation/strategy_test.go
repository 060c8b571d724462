package investigation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kubilitics-investigator/internal/models"
)

func TestSelectStrategy(t *testing.T) {
	tests := []struct {
		name       string
		preference string
		urgency    string
		since      time.Duration
		want       models.InvestigationStrategy
	}{
		{name: "default", want: models.StrategyActiveIncident},
		{name: "preference wins over urgency", preference: "rca", urgency: "critical", want: models.StrategyPostMortem},
		{name: "preference wins over age", preference: "urgent", since: 72 * time.Hour, want: models.StrategyActiveIncident},
		{name: "high urgency", urgency: "High", since: 72 * time.Hour, want: models.StrategyActiveIncident},
		{name: "old incident", urgency: "low", since: 25 * time.Hour, want: models.StrategyPostMortem},
		{name: "recent incident", urgency: "medium", since: time.Hour, want: models.StrategyActiveIncident},
		{name: "unknown preference ignored", preference: "thorough", since: 48 * time.Hour, want: models.StrategyPostMortem},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := SelectStrategy(tt.preference, tt.urgency, tt.since)
			assert.Equal(t, tt.want, got)
			assert.NotEmpty(t, reason)
		})
	}
}

func TestStrategyChange(t *testing.T) {
	_, _, ok := strategyChange("", "active", "")
	assert.False(t, ok, "empty strategy already means active incident")

	s, _, ok := strategyChange(models.StrategyActiveIncident, "post_mortem", "critical")
	require.True(t, ok)
	assert.Equal(t, models.StrategyPostMortem, s)

	s, _, ok = strategyChange(models.StrategyPostMortem, "", "critical")
	require.True(t, ok)
	assert.Equal(t, models.StrategyActiveIncident, s)

	_, _, ok = strategyChange(models.StrategyActiveIncident, "", "critical")
	assert.False(t, ok)
}

func TestStrategyDrivesSolutionThreshold(t *testing.T) {
	c := investigatingCase()
	c.Hypotheses = []*models.Hypothesis{
		{ID: "hyp_1", Statement: "Bad rollout", Status: models.HypothesisValidated, Likelihood: 0.8},
	}

	assert.True(t, GenerateWorkingConclusion(c, 3).CanProceedWithSolution)

	c.Strategy = models.StrategyPostMortem
	assert.False(t, GenerateWorkingConclusion(c, 3).CanProceedWithSolution)

	c.Hypotheses[0].Likelihood = 0.85
	assert.True(t, GenerateWorkingConclusion(c, 3).CanProceedWithSolution)
}

func TestStrategySelectedWhenInvestigationStarts(t *testing.T) {
	e := newTestEngine(t, nil)
	c := consultingCase()
	started := fixedNow.Add(-48 * time.Hour)

	res := processFacts(t, e, c, TurnFacts{
		ProposedProblemStatement: "Nightly batch failed last week",
		ConfirmsProblemStatement: true,
		RequestsInvestigation:    true,
		IncidentStartedAt:        &started,
	})
	require.Equal(t, models.StatusInvestigating, c.Status)
	assert.Equal(t, models.StrategyPostMortem, c.Strategy)
	assert.Equal(t, models.StrategyPostMortem, res.Strategy)
	assert.Contains(t, res.StrategyReason, "24h")

	res = processFacts(t, e, c, TurnFacts{Urgency: "critical"})
	assert.Equal(t, models.StrategyActiveIncident, c.Strategy)
	assert.Equal(t, models.StrategyActiveIncident, res.Strategy)
	assert.False(t, res.ProgressMade, "a strategy switch alone is not progress")

	res = processFacts(t, e, c, TurnFacts{})
	assert.Empty(t, res.Strategy)
}

func TestStrategySummary(t *testing.T) {
	assert.Contains(t, StrategySummary(""), "Active Incident")
	assert.Contains(t, StrategySummary(""), "60%+")
	assert.Contains(t, StrategySummary(models.StrategyPostMortem), "85%+")
}

func TestPostMortemOffer(t *testing.T) {
	c := investigatingCase()
	assert.Empty(t, PostMortemOffer(c), "only resolved cases get an offer")

	c.Status = models.StatusResolved
	assert.Contains(t, PostMortemOffer(c), "post-mortem")

	c.Strategy = models.StrategyPostMortem
	assert.Empty(t, PostMortemOffer(c))
}
