package investigation

import (
	"fmt"
	"math"

	"github.com/kubilitics/kubilitics-investigator/internal/models"
)

// ConfidenceLevel is a human-readable band over hypothesis likelihood.
type ConfidenceLevel string

const (
	ConfidenceSpeculation ConfidenceLevel = "speculation"
	ConfidenceProbable    ConfidenceLevel = "probable"
	ConfidenceConfident   ConfidenceLevel = "confident"
	ConfidenceVerified    ConfidenceLevel = "verified"
)

const (
	verifiedThreshold    = 0.90
	confidentThreshold   = 0.70
	probableThreshold    = 0.50
	alternativeThreshold = 0.30
	maxAlternatives      = 3
	maxNextEvidence      = 3
	significantChange    = 0.05
)

// LevelForConfidence maps a likelihood onto its ConfidenceLevel.
func LevelForConfidence(v float64) ConfidenceLevel {
	switch {
	case v >= verifiedThreshold:
		return ConfidenceVerified
	case v >= confidentThreshold:
		return ConfidenceConfident
	case v >= probableThreshold:
		return ConfidenceProbable
	default:
		return ConfidenceSpeculation
	}
}

// WorkingConclusion is the current best understanding of the root cause.
type WorkingConclusion struct {
	Statement                string          `json:"statement"`
	HypothesisID             string          `json:"hypothesis_id,omitempty"`
	Confidence               float64         `json:"confidence"`
	Level                    ConfidenceLevel `json:"confidence_level"`
	SupportingEvidenceCount  int             `json:"supporting_evidence_count"`
	TotalEvidenceCount       int             `json:"total_evidence_count"`
	EvidenceCompleteness     float64         `json:"evidence_completeness"`
	Caveats                  []string        `json:"caveats"`
	Alternatives             []string        `json:"alternative_explanations"`
	CanProceedWithSolution   bool            `json:"can_proceed_with_solution"`
	NextEvidenceNeeded       []string        `json:"next_evidence_needed"`
	LastConfidenceChangeTurn int             `json:"last_confidence_change_turn"`
	GeneratedAtTurn          int             `json:"generated_at_turn"`
}

// GenerateWorkingConclusion derives the conclusion from the best ACTIVE or
// VALIDATED hypothesis of c.
func GenerateWorkingConclusion(c *models.Case, turn int) *WorkingConclusion {
	var candidates []*models.Hypothesis
	captured := 0
	for _, h := range c.Hypotheses {
		switch h.Status {
		case models.HypothesisActive, models.HypothesisValidated:
			candidates = append(candidates, h)
		case models.HypothesisCaptured:
			captured++
		}
	}

	if len(candidates) == 0 {
		if dead := len(c.Hypotheses) - captured; dead > 0 && captured == 0 {
			return exhaustedConclusion(c, turn, dead)
		}
		return earlyConclusion(c, turn)
	}

	best := candidates[0]
	for _, h := range candidates[1:] {
		if h.Likelihood > best.Likelihood {
			best = h
		}
	}

	completeness := evidenceCompleteness(best)

	alternatives := make([]string, 0, maxAlternatives)
	for _, h := range candidates {
		if h.ID == best.ID || h.Likelihood < alternativeThreshold {
			continue
		}
		alternatives = append(alternatives, h.Statement)
		if len(alternatives) == maxAlternatives {
			break
		}
	}

	return &WorkingConclusion{
		Statement:                best.Statement,
		HypothesisID:             best.ID,
		Confidence:               best.Likelihood,
		Level:                    LevelForConfidence(best.Likelihood),
		SupportingEvidenceCount:  len(best.SupportingEvidence),
		TotalEvidenceCount:       len(c.Evidence),
		EvidenceCompleteness:     completeness,
		Caveats:                  caveats(best, completeness),
		Alternatives:             alternatives,
		CanProceedWithSolution:   best.Likelihood >= ConfigForStrategy(c.Strategy).SolutionConfidenceThreshold,
		NextEvidenceNeeded:       missingEvidence(best),
		LastConfidenceChangeTurn: lastConfidenceChange(best, turn),
		GeneratedAtTurn:          turn,
	}
}

func evidenceCompleteness(h *models.Hypothesis) float64 {
	if len(h.RequiredEvidence) == 0 {
		return 1
	}
	return math.Min(float64(len(h.SupportingEvidence))/float64(len(h.RequiredEvidence)), 1)
}

func caveats(h *models.Hypothesis, completeness float64) []string {
	out := make([]string, 0)

	switch {
	case completeness < 0.50:
		out = append(out, fmt.Sprintf("Only %.0f%% of required evidence collected", completeness*100))
	case completeness < 0.70:
		out = append(out, fmt.Sprintf("Evidence partially complete (%.0f%%)", completeness*100))
	}

	switch {
	case h.Likelihood < probableThreshold:
		out = append(out, "Low confidence - this is speculative")
	case h.Likelihood < confidentThreshold:
		out = append(out, "Moderate confidence - not yet validated")
	}

	if n := len(h.RefutingEvidence); n > 0 {
		out = append(out, fmt.Sprintf("%d evidence items contradict this hypothesis", n))
	}
	return out
}

// missingEvidence lists required evidence not yet supporting h, in declared order.
func missingEvidence(h *models.Hypothesis) []string {
	out := make([]string, 0, maxNextEvidence)
	for _, req := range h.RequiredEvidence {
		if h.HasSupporting(req) {
			continue
		}
		out = append(out, req)
		if len(out) == maxNextEvidence {
			break
		}
	}
	return out
}

func lastConfidenceChange(h *models.Hypothesis, turn int) int {
	t := h.ConfidenceTrajectory
	for i := len(t) - 1; i > 0; i-- {
		if math.Abs(t[i].Value-t[i-1].Value) > significantChange {
			return t[i].Turn
		}
	}
	return turn
}

func earlyConclusion(c *models.Case, turn int) *WorkingConclusion {
	statement := "Investigation in early phase"
	if c.Progress.CurrentStage() == models.StageSymptomVerification {
		statement = "Verifying symptoms, scope and timeline"
	}
	return &WorkingConclusion{
		Statement:                statement,
		Level:                    ConfidenceSpeculation,
		TotalEvidenceCount:       len(c.Evidence),
		Caveats:                  []string{"Investigation in early phase - hypotheses not yet generated"},
		Alternatives:             make([]string, 0),
		NextEvidenceNeeded:       make([]string, 0),
		LastConfidenceChangeTurn: turn,
		GeneratedAtTurn:          turn,
	}
}

func exhaustedConclusion(c *models.Case, turn, dead int) *WorkingConclusion {
	return &WorkingConclusion{
		Statement:          fmt.Sprintf("All %d hypotheses refuted - investigation requires loop-back", dead),
		Level:              ConfidenceSpeculation,
		TotalEvidenceCount: len(c.Evidence),
		Caveats: []string{
			fmt.Sprintf("All %d hypotheses have been refuted by evidence", dead),
			"Need to generate new hypotheses with different approach",
		},
		Alternatives:             make([]string, 0),
		NextEvidenceNeeded:       []string{"Need new hypothesis generation approach"},
		LastConfidenceChangeTurn: turn,
		GeneratedAtTurn:          turn,
	}
}

// MaxLoopBacks is the number of returns to hypothesis generation after
// which escalation is suggested even outside degraded mode.
const MaxLoopBacks = 3

// EscalationSuggestion recommends handing the case to a human.
type EscalationSuggestion struct {
	Reason          string                  `json:"reason"`
	ModeType        models.DegradedModeType `json:"mode_type,omitempty"`
	DegradedTurns   int                     `json:"degraded_turns"`
	LoopBacks       int                     `json:"loop_backs"`
	Recommendations []string                `json:"recommendations"`
}

var escalationRecommendations = map[models.DegradedModeType][]string{
	models.DegradedHypothesisSpaceExhausted: {
		"Escalate to senior engineer or specialist",
		"Request access to additional diagnostic tools",
		"Consider bringing in vendor support",
	},
	models.DegradedLimitedData: {
		"Request access to missing logs/metrics",
		"Escalate to team with access to required evidence",
		"Consider alternative diagnostic approaches",
	},
	models.DegradedNoProgress: {
		"Escalate for additional resources or tools",
		"Request guidance on how to proceed",
		"Document limitations for future reference",
	},
}

var loopBackRecommendations = []string{
	"Re-frame the problem from a different perspective",
	"Escalate to get fresh eyes on the issue",
	"Consider whether this is actually multiple separate issues",
}

// SuggestEscalation reports whether c should be escalated using the default
// threshold of six degraded turns. It never changes the case.
func SuggestEscalation(c *models.Case) *EscalationSuggestion {
	return suggestEscalation(c, DefaultEscalationTurns)
}

func suggestEscalation(c *models.Case, afterTurns int) *EscalationSuggestion {
	if c.Status.IsTerminal() {
		return nil
	}

	if mode := c.DegradedMode; mode != nil {
		degraded := c.CurrentTurn - mode.EnteredAtTurn
		switch {
		case mode.ModeType == models.DegradedHypothesisSpaceExhausted:
			return &EscalationSuggestion{
				Reason:          "Hypothesis space exhausted: every hypothesis has been ruled out",
				ModeType:        mode.ModeType,
				DegradedTurns:   degraded,
				LoopBacks:       c.LoopBackCount,
				Recommendations: recommendationsFor(mode.ModeType),
			}
		case degraded >= afterTurns:
			return &EscalationSuggestion{
				Reason:          fmt.Sprintf("Degraded for %d turns without recovery", degraded),
				ModeType:        mode.ModeType,
				DegradedTurns:   degraded,
				LoopBacks:       c.LoopBackCount,
				Recommendations: recommendationsFor(mode.ModeType),
			}
		}
	}

	if c.LoopBackCount >= MaxLoopBacks {
		return &EscalationSuggestion{
			Reason:          fmt.Sprintf("Investigation has looped back %d times, the hypotheses or approach need rethinking", c.LoopBackCount),
			LoopBacks:       c.LoopBackCount,
			Recommendations: append([]string(nil), loopBackRecommendations...),
		}
	}
	return nil
}

func recommendationsFor(mode models.DegradedModeType) []string {
	if recs, ok := escalationRecommendations[mode]; ok {
		return append([]string(nil), recs...)
	}
	return []string{"Escalate to senior engineer", "Request additional resources"}
}
