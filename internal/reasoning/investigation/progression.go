package investigation

import (
	"github.com/kubilitics/kubilitics-investigator/internal/models"
)

// Complexity indicators reported while a case is still consulting.
const (
	IndicatorMultiTurn     = "multi_turn_conversation"
	IndicatorUnclearScope  = "unclear_scope"
	IndicatorUserRequested = "user_expressed_need"
	IndicatorComplexity    = "complexity_detected"
)

const (
	multiTurnThreshold    = 5
	unclearScopeTurn      = 4
	undecidedConfirmTurn  = 3
	minStartIndicators    = 2
	rootCauseConfidence   = 0.70
	defaultSolutionResult = "Solution applied and verified"
)

// StartInvestigationSuggestion proposes moving a consulting case into a
// structured investigation.
type StartInvestigationSuggestion struct {
	Indicators []string `json:"indicators"`
}

// SuggestStartInvestigation reports whether a consulting case at turn looks
// complex enough for a structured investigation. Two indicators are needed.
func SuggestStartInvestigation(c *models.Case, turn int) *StartInvestigationSuggestion {
	if c.Status != models.StatusConsulting {
		return nil
	}
	cd := c.Consulting
	var indicators []string
	if turn >= multiTurnThreshold {
		indicators = append(indicators, IndicatorMultiTurn)
	}
	if turn >= unclearScopeTurn && cd.ProposedProblemStatement == "" {
		indicators = append(indicators, IndicatorUnclearScope)
	}
	if cd.InvestigationRequested {
		indicators = append(indicators, IndicatorUserRequested)
	}
	if cd.ProblemStatementConfirmed && !cd.DecidedToInvestigate && turn >= undecidedConfirmTurn {
		indicators = append(indicators, IndicatorComplexity)
	}
	if len(indicators) < minStartIndicators {
		return nil
	}
	return &StartInvestigationSuggestion{Indicators: indicators}
}

// ResolutionSummary describes how a resolved case was closed out.
type ResolutionSummary struct {
	RootCause       string  `json:"root_cause,omitempty"`
	HypothesisID    string  `json:"hypothesis_id,omitempty"`
	Confidence      float64 `json:"confidence"`
	SolutionSummary string  `json:"solution_summary"`
	PostMortemOffer string  `json:"post_mortem_offer,omitempty"`
}

// summarizeResolution picks the strongest validated hypothesis at or above
// 0.70 as the root cause and the latest solution as the fix.
func summarizeResolution(c *models.Case) *ResolutionSummary {
	rs := &ResolutionSummary{
		SolutionSummary: defaultSolutionResult,
		PostMortemOffer: PostMortemOffer(c),
	}
	for _, h := range c.Hypotheses {
		if h.Status != models.HypothesisValidated || h.Likelihood < rootCauseConfidence {
			continue
		}
		if rs.HypothesisID == "" || h.Likelihood > rs.Confidence {
			rs.RootCause = h.Statement
			rs.HypothesisID = h.ID
			rs.Confidence = h.Likelihood
		}
	}
	if n := len(c.Solutions); n > 0 {
		rs.SolutionSummary = c.Solutions[n-1].Title
	}
	return rs
}
