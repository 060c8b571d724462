// Package models defines the case aggregate and the records it owns.
//
// A Case is the aggregate root of one troubleshooting investigation. It is
// created on first user contact, mutated exactly once per conversational turn
// by the investigation engine, and never deleted: it only moves to a terminal
// status (resolved or closed).
//
// Ownership:
//   - Case owns its Hypotheses, Evidence, UploadedFiles, Solutions, TurnHistory
//     and Memory. Nothing in this package shares slices between cases.
//   - HierarchicalMemory owns its four tiers.
package models

import (
	"time"
)

// CaseStatus is the investigation lifecycle status.
type CaseStatus string

const (
	StatusConsulting    CaseStatus = "consulting"
	StatusInvestigating CaseStatus = "investigating"
	StatusResolved      CaseStatus = "resolved"
	StatusClosed        CaseStatus = "closed"
)

// IsValid reports whether s is one of the four known statuses.
func (s CaseStatus) IsValid() bool {
	switch s {
	case StatusConsulting, StatusInvestigating, StatusResolved, StatusClosed:
		return true
	}
	return false
}

// IsTerminal reports whether no further investigation is allowed.
func (s CaseStatus) IsTerminal() bool {
	return s == StatusResolved || s == StatusClosed
}

// Case is one troubleshooting investigation.
type Case struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      CaseStatus `json:"status"`

	// Strategy is chosen when investigation starts. Empty means active incident.
	Strategy InvestigationStrategy `json:"strategy,omitempty"`

	// CurrentTurn is incremented once per processed turn.
	CurrentTurn          int           `json:"current_turn"`
	TurnsWithoutProgress int           `json:"turns_without_progress"`
	DegradedMode         *DegradedMode `json:"degraded_mode,omitempty"`

	// LoopBackCount counts turns that generated new hypotheses after every
	// earlier hypothesis was ruled out.
	LoopBackCount int `json:"loop_back_count"`

	Consulting          ConsultingData        `json:"consulting"`
	ProblemVerification *ProblemVerification  `json:"problem_verification,omitempty"`
	Progress            InvestigationProgress `json:"progress"`

	TurnHistory   []TurnProgress `json:"turn_history"`
	Hypotheses    []*Hypothesis  `json:"hypotheses"`
	Evidence      []Evidence     `json:"evidence"`
	UploadedFiles []UploadedFile `json:"uploaded_files"`
	Solutions     []Solution     `json:"solutions"`

	Memory *HierarchicalMemory `json:"memory,omitempty"`

	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	ClosedAt       *time.Time `json:"closed_at,omitempty"`
	ClosureReason  string     `json:"closure_reason,omitempty"`
}

// NewCase returns a CONSULTING case with empty collections.
func NewCase(id, userID, title string, now time.Time) *Case {
	return &Case{
		ID:             id,
		UserID:         userID,
		Title:          title,
		Status:         StatusConsulting,
		TurnHistory:    make([]TurnProgress, 0),
		Hypotheses:     make([]*Hypothesis, 0),
		Evidence:       make([]Evidence, 0),
		UploadedFiles:  make([]UploadedFile, 0),
		Solutions:      make([]Solution, 0),
		CreatedAt:      now,
		UpdatedAt:      now,
		LastActivityAt: now,
	}
}

// FindHypothesis returns the hypothesis with the given id, or nil.
func (c *Case) FindHypothesis(id string) *Hypothesis {
	for _, h := range c.Hypotheses {
		if h.ID == id {
			return h
		}
	}
	return nil
}

// HasEvidence reports whether an evidence record with the given id exists.
func (c *Case) HasEvidence(id string) bool {
	for _, ev := range c.Evidence {
		if ev.ID == id {
			return true
		}
	}
	return false
}

// ConsultingData tracks the pre-investigation dialogue.
type ConsultingData struct {
	ProposedProblemStatement  string     `json:"proposed_problem_statement,omitempty"`
	ProblemStatementConfirmed bool       `json:"problem_statement_confirmed"`
	ConfirmedAt               *time.Time `json:"confirmed_at,omitempty"`
	DecidedToInvestigate      bool       `json:"decided_to_investigate"`
	DecisionMadeAt            *time.Time `json:"decision_made_at,omitempty"`

	// InvestigationRequested records a request made before the problem
	// statement was confirmed.
	InvestigationRequested bool `json:"investigation_requested,omitempty"`
}

// ProblemVerification is the scaffolding created when investigation starts.
type ProblemVerification struct {
	SymptomStatement string    `json:"symptom_statement"`
	InitializedAt    time.Time `json:"initialized_at"`
}

// DegradedModeType classifies why an investigation cannot progress.
type DegradedModeType string

const (
	DegradedNoProgress               DegradedModeType = "no_progress"
	DegradedLimitedData              DegradedModeType = "limited_data"
	DegradedHypothesisSpaceExhausted DegradedModeType = "hypothesis_space_exhausted"
)

// DegradedMode flags that the investigation is operating with reduced confidence.
type DegradedMode struct {
	ModeType         DegradedModeType `json:"mode_type"`
	Reason           string           `json:"reason"`
	EnteredAt        time.Time        `json:"entered_at"`
	EnteredAtTurn    int              `json:"entered_at_turn"`
	AttemptedActions []string         `json:"attempted_actions"`
}

// UploadedFile records a user attachment regardless of case status.
type UploadedFile struct {
	FileID               string    `json:"file_id"`
	Filename             string    `json:"filename"`
	SizeBytes            int64     `json:"size_bytes"`
	DataType             string    `json:"data_type"`
	SourceType           string    `json:"source_type"`
	UploadedAtTurn       int       `json:"uploaded_at_turn"`
	UploadedAt           time.Time `json:"uploaded_at"`
	PreprocessingSummary string    `json:"preprocessing_summary,omitempty"`
	ContentRef           string    `json:"content_ref"`
}

// SolutionType classifies a proposed fix.
type SolutionType string

const (
	SolutionMitigation SolutionType = "mitigation"
	SolutionPermanent  SolutionType = "permanent_fix"
	SolutionWorkaround SolutionType = "workaround"
)

// Solution is a proposed remediation.
type Solution struct {
	ID              string       `json:"id"`
	Title           string       `json:"title"`
	Description     string       `json:"description"`
	Type            SolutionType `json:"type"`
	ProposedAtTurn  int          `json:"proposed_at_turn"`
	ProposedAt      time.Time    `json:"proposed_at"`
	AddressesCauses []string     `json:"addresses_causes,omitempty"`
}
