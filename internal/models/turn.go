package models

import "time"

// TurnOutcome classifies a processed turn for analytics and display.
type TurnOutcome string

const (
	OutcomeConversation       TurnOutcome = "conversation"
	OutcomeDataProvided       TurnOutcome = "data_provided"
	OutcomeMilestoneCompleted TurnOutcome = "milestone_completed"
)

// TurnProgress is the history record appended after every turn.
type TurnProgress struct {
	TurnNumber           int         `json:"turn_number"`
	Timestamp            time.Time   `json:"timestamp"`
	Status               CaseStatus  `json:"status"`
	MilestonesCompleted  []Milestone `json:"milestones_completed"`
	EvidenceAdded        []string    `json:"evidence_added"`
	FilesUploaded        []string    `json:"files_uploaded"`
	HypothesesGenerated  []string    `json:"hypotheses_generated"`
	HypothesesValidated  []string    `json:"hypotheses_validated"`
	SolutionsProposed    []string    `json:"solutions_proposed"`
	ProgressMade         bool        `json:"progress_made"`
	ActionsTaken         []string    `json:"actions_taken"`
	Outcome              TurnOutcome `json:"outcome"`
	UserMessageSummary   string      `json:"user_message_summary"`
	AgentResponseSummary string      `json:"agent_response_summary"`
}
