package models

// Milestone is one of the eight fixed investigation checkpoints.
type Milestone string

const (
	MilestoneSymptomVerified     Milestone = "symptom_verified"
	MilestoneScopeAssessed       Milestone = "scope_assessed"
	MilestoneTimelineEstablished Milestone = "timeline_established"
	MilestoneChangesIdentified   Milestone = "changes_identified"
	MilestoneRootCauseIdentified Milestone = "root_cause_identified"
	MilestoneSolutionProposed    Milestone = "solution_proposed"
	MilestoneSolutionApplied     Milestone = "solution_applied"
	MilestoneSolutionVerified    Milestone = "solution_verified"
)

// AllMilestones lists milestones in investigation order.
var AllMilestones = []Milestone{
	MilestoneSymptomVerified,
	MilestoneScopeAssessed,
	MilestoneTimelineEstablished,
	MilestoneChangesIdentified,
	MilestoneRootCauseIdentified,
	MilestoneSolutionProposed,
	MilestoneSolutionApplied,
	MilestoneSolutionVerified,
}

// IsValid reports whether m is a known milestone.
func (m Milestone) IsValid() bool {
	for _, known := range AllMilestones {
		if m == known {
			return true
		}
	}
	return false
}

// InvestigationStage is a coarse view of where the investigation stands.
type InvestigationStage string

const (
	StageSymptomVerification InvestigationStage = "symptom_verification"
	StageHypothesisTesting   InvestigationStage = "hypothesis_testing"
	StageSolution            InvestigationStage = "solution"
	StageComplete            InvestigationStage = "complete"
)

// InvestigationProgress holds the milestone flags for a case.
//
// Flags are only ever set through Complete; a flag never reverts to false
// within the same case.
type InvestigationProgress struct {
	SymptomVerified     bool `json:"symptom_verified"`
	ScopeAssessed       bool `json:"scope_assessed"`
	TimelineEstablished bool `json:"timeline_established"`
	ChangesIdentified   bool `json:"changes_identified"`
	RootCauseIdentified bool `json:"root_cause_identified"`
	SolutionProposed    bool `json:"solution_proposed"`
	SolutionApplied     bool `json:"solution_applied"`
	SolutionVerified    bool `json:"solution_verified"`

	RootCauseConfidence  float64 `json:"root_cause_confidence"`
	RootCauseMethod      string  `json:"root_cause_method,omitempty"`
	VerificationComplete bool    `json:"verification_complete"`
}

// IsVerificationComplete is the AND of the four verification milestones.
func (p *InvestigationProgress) IsVerificationComplete() bool {
	return p.SymptomVerified && p.ScopeAssessed && p.TimelineEstablished && p.ChangesIdentified
}

// IsComplete reports the state of a single milestone.
func (p *InvestigationProgress) IsComplete(m Milestone) bool {
	if f := p.flag(m); f != nil {
		return *f
	}
	return false
}

// Complete marks m done and reports whether it was newly completed.
// Unknown milestones are ignored.
func (p *InvestigationProgress) Complete(m Milestone) bool {
	f := p.flag(m)
	if f == nil || *f {
		return false
	}
	*f = true
	return true
}

// CompletedMilestones returns completed milestones in investigation order.
func (p *InvestigationProgress) CompletedMilestones() []Milestone {
	var out []Milestone
	for _, m := range AllMilestones {
		if p.IsComplete(m) {
			out = append(out, m)
		}
	}
	return out
}

// CurrentStage derives the stage from milestone flags.
func (p *InvestigationProgress) CurrentStage() InvestigationStage {
	switch {
	case p.SolutionVerified:
		return StageComplete
	case p.RootCauseIdentified || p.SolutionProposed:
		return StageSolution
	case p.IsVerificationComplete():
		return StageHypothesisTesting
	default:
		return StageSymptomVerification
	}
}

func (p *InvestigationProgress) flag(m Milestone) *bool {
	switch m {
	case MilestoneSymptomVerified:
		return &p.SymptomVerified
	case MilestoneScopeAssessed:
		return &p.ScopeAssessed
	case MilestoneTimelineEstablished:
		return &p.TimelineEstablished
	case MilestoneChangesIdentified:
		return &p.ChangesIdentified
	case MilestoneRootCauseIdentified:
		return &p.RootCauseIdentified
	case MilestoneSolutionProposed:
		return &p.SolutionProposed
	case MilestoneSolutionApplied:
		return &p.SolutionApplied
	case MilestoneSolutionVerified:
		return &p.SolutionVerified
	}
	return nil
}
