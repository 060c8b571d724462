package investigation

import (
	"context"
	"time"

	"github.com/kubilitics/kubilitics-investigator/internal/models"
)

// TurnInput is everything the host hands to the engine for one turn.
type TurnInput struct {
	UserMessage string       `json:"user_message" yaml:"user_message"`
	Attachments []Attachment `json:"attachments,omitempty" yaml:"attachments,omitempty"`

	// Facts carries structured output of the interpretation layer. When nil
	// the configured Interpreter, if any, is asked to supply it.
	Facts *TurnFacts `json:"facts,omitempty" yaml:"facts,omitempty"`
}

// Interpreter derives structured facts from a user message. The engine
// itself never parses free text.
type Interpreter interface {
	Interpret(ctx context.Context, c *models.Case, in TurnInput) (*TurnFacts, error)
}

// Repository persists cases. The engine never calls it; hosts save only
// after ProcessTurn returns without error.
type Repository interface {
	SaveCase(ctx context.Context, c *models.Case) error
	GetCase(ctx context.Context, id string) (*models.Case, error)
}

// TurnFacts is the structured result of interpreting one exchange.
type TurnFacts struct {
	// Consulting signals.
	ConfirmsProblemStatement bool   `json:"confirms_problem_statement,omitempty" yaml:"confirms_problem_statement,omitempty"`
	RequestsInvestigation    bool   `json:"requests_investigation,omitempty" yaml:"requests_investigation,omitempty"`
	ProposedProblemStatement string `json:"proposed_problem_statement,omitempty" yaml:"proposed_problem_statement,omitempty"`

	// Strategy inputs: urgency is low, medium, high or critical.
	Urgency            string     `json:"urgency,omitempty" yaml:"urgency,omitempty"`
	StrategyPreference string     `json:"strategy_preference,omitempty" yaml:"strategy_preference,omitempty"`
	IncidentStartedAt  *time.Time `json:"incident_started_at,omitempty" yaml:"incident_started_at,omitempty"`

	MilestoneUpdates []MilestoneUpdate `json:"milestone_updates,omitempty" yaml:"milestone_updates,omitempty"`

	NewHypotheses        []HypothesisProposal   `json:"new_hypotheses,omitempty" yaml:"new_hypotheses,omitempty"`
	PromoteHypotheses    []string               `json:"promote_hypotheses,omitempty" yaml:"promote_hypotheses,omitempty"`
	EvidenceLinks        []EvidenceLink         `json:"evidence_links,omitempty" yaml:"evidence_links,omitempty"`
	HypothesisTests      []HypothesisTestResult `json:"hypothesis_tests,omitempty" yaml:"hypothesis_tests,omitempty"`
	RefutedHypotheses    []Refutation           `json:"refuted_hypotheses,omitempty" yaml:"refuted_hypotheses,omitempty"`
	SupersededHypotheses []Supersession         `json:"superseded_hypotheses,omitempty" yaml:"superseded_hypotheses,omitempty"`

	Solutions []SolutionProposal `json:"solutions,omitempty" yaml:"solutions,omitempty"`

	Insights         []string `json:"insights,omitempty" yaml:"insights,omitempty"`
	AttemptedActions []string `json:"attempted_actions,omitempty" yaml:"attempted_actions,omitempty"`
	AgentResponse    string   `json:"agent_response,omitempty" yaml:"agent_response,omitempty"`
}

// MilestoneUpdate marks one milestone complete. RootCauseConfidence and
// RootCauseMethod are only read for root_cause_identified.
type MilestoneUpdate struct {
	Milestone           models.Milestone `json:"milestone" yaml:"milestone"`
	RootCauseConfidence float64          `json:"root_cause_confidence,omitempty" yaml:"root_cause_confidence,omitempty"`
	RootCauseMethod     string           `json:"root_cause_method,omitempty" yaml:"root_cause_method,omitempty"`
}

// HypothesisProposal asks the engine to create a hypothesis.
type HypothesisProposal struct {
	Statement             string                `json:"statement" yaml:"statement"`
	Category              string                `json:"category" yaml:"category"`
	Likelihood            float64               `json:"likelihood" yaml:"likelihood"`
	Mode                  models.GenerationMode `json:"mode,omitempty" yaml:"mode,omitempty"`
	TriggeringObservation string                `json:"triggering_observation,omitempty" yaml:"triggering_observation,omitempty"`
	RequiredEvidence      []string              `json:"required_evidence,omitempty" yaml:"required_evidence,omitempty"`
}

// EvidenceLink attaches an evidence id to a hypothesis.
type EvidenceLink struct {
	HypothesisID string `json:"hypothesis_id" yaml:"hypothesis_id"`
	EvidenceID   string `json:"evidence_id" yaml:"evidence_id"`
	Supports     bool   `json:"supports" yaml:"supports"`
}

// HypothesisTestResult is the declared outcome of an executed test.
type HypothesisTestResult struct {
	HypothesisID     string            `json:"hypothesis_id" yaml:"hypothesis_id"`
	Description      string            `json:"description" yaml:"description"`
	EvidenceRequired []string          `json:"evidence_required,omitempty" yaml:"evidence_required,omitempty"`
	EvidenceObtained []string          `json:"evidence_obtained,omitempty" yaml:"evidence_obtained,omitempty"`
	Result           models.TestResult `json:"result" yaml:"result"`
	ConfidenceChange float64           `json:"confidence_change" yaml:"confidence_change"`
}

// Refutation explicitly refutes a hypothesis.
type Refutation struct {
	HypothesisID string   `json:"hypothesis_id" yaml:"hypothesis_id"`
	EvidenceIDs  []string `json:"evidence_ids,omitempty" yaml:"evidence_ids,omitempty"`
	Reason       string   `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Supersession replaces one hypothesis with another.
type Supersession struct {
	HypothesisID string `json:"hypothesis_id" yaml:"hypothesis_id"`
	SupersededBy string `json:"superseded_by" yaml:"superseded_by"`
}

// SolutionProposal becomes a Solution record.
type SolutionProposal struct {
	Title           string              `json:"title" yaml:"title"`
	Description     string              `json:"description,omitempty" yaml:"description,omitempty"`
	Type            models.SolutionType `json:"type,omitempty" yaml:"type,omitempty"`
	AddressesCauses []string            `json:"addresses_causes,omitempty" yaml:"addresses_causes,omitempty"`
}
