package models

import "time"

// HypothesisStatus is the lifecycle status of a causal theory.
type HypothesisStatus string

const (
	HypothesisCaptured   HypothesisStatus = "captured"
	HypothesisActive     HypothesisStatus = "active"
	HypothesisValidated  HypothesisStatus = "validated"
	HypothesisRefuted    HypothesisStatus = "refuted"
	HypothesisRetired    HypothesisStatus = "retired"
	HypothesisSuperseded HypothesisStatus = "superseded"
)

// IsTerminal reports whether the status ends the lifecycle.
func (s HypothesisStatus) IsTerminal() bool {
	switch s {
	case HypothesisValidated, HypothesisRefuted, HypothesisRetired, HypothesisSuperseded:
		return true
	}
	return false
}

// GenerationMode records how a hypothesis came to exist.
type GenerationMode string

const (
	GenerationOpportunistic     GenerationMode = "opportunistic"
	GenerationSystematic        GenerationMode = "systematic"
	GenerationForcedAlternative GenerationMode = "forced_alternative"
)

// ConfidencePoint is one entry of a confidence trajectory.
type ConfidencePoint struct {
	Turn  int     `json:"turn"`
	Value float64 `json:"value"`
}

// Hypothesis is a candidate root-cause explanation.
type Hypothesis struct {
	ID        string           `json:"id"`
	Statement string           `json:"statement"`
	Category  string           `json:"category"`
	Status    HypothesisStatus `json:"status"`

	Likelihood           float64           `json:"likelihood"`
	InitialLikelihood    float64           `json:"initial_likelihood"`
	ConfidenceTrajectory []ConfidencePoint `json:"confidence_trajectory"`

	SupportingEvidence []string `json:"supporting_evidence"`
	RefutingEvidence   []string `json:"refuting_evidence"`
	RequiredEvidence   []string `json:"required_evidence,omitempty"`

	IterationsWithoutProgress int `json:"iterations_without_progress"`
	LastProgressAtTurn        int `json:"last_progress_at_turn"`

	GenerationMode        GenerationMode `json:"generation_mode"`
	TriggeringObservation string         `json:"triggering_observation,omitempty"`
	RetirementReason      string         `json:"retirement_reason,omitempty"`
	SupersededBy          string         `json:"superseded_by,omitempty"`

	CapturedAtTurn         int  `json:"captured_at_turn"`
	PromotedToActiveAtTurn *int `json:"promoted_to_active_at_turn,omitempty"`
	LastUpdatedTurn        int  `json:"last_updated_turn"`

	CreatedAt time.Time `json:"created_at"`
}

// HasSupporting reports whether id is already linked as supporting evidence.
func (h *Hypothesis) HasSupporting(id string) bool {
	return containsString(h.SupportingEvidence, id)
}

// HasRefuting reports whether id is already linked as refuting evidence.
func (h *Hypothesis) HasRefuting(id string) bool {
	return containsString(h.RefutingEvidence, id)
}

// TestResult is the declared outcome of a hypothesis test.
type TestResult string

const (
	TestSupports     TestResult = "supports"
	TestRefutes      TestResult = "refutes"
	TestInconclusive TestResult = "inconclusive"
)

// HypothesisTest records one explicit test of a hypothesis.
type HypothesisTest struct {
	HypothesisID     string     `json:"hypothesis_id"`
	Description      string     `json:"description"`
	EvidenceRequired []string   `json:"evidence_required,omitempty"`
	EvidenceObtained []string   `json:"evidence_obtained,omitempty"`
	Result           TestResult `json:"result"`
	ConfidenceChange float64    `json:"confidence_change"`
	ExecutedAtTurn   int        `json:"executed_at_turn"`
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
