package models

import "time"

// EvidenceCategory is inferred from investigation progress when evidence is collected.
type EvidenceCategory string

const (
	EvidenceSymptom    EvidenceCategory = "symptom_evidence"
	EvidenceCausal     EvidenceCategory = "causal_evidence"
	EvidenceResolution EvidenceCategory = "resolution_evidence"
)

// Evidence is a piece of collected data attached to a case.
type Evidence struct {
	ID                  string           `json:"id"`
	Summary             string           `json:"summary"`
	Category            EvidenceCategory `json:"category"`
	SourceType          string           `json:"source_type"`
	ContentRef          string           `json:"content_ref"`
	ContentSizeBytes    int64            `json:"content_size_bytes"`
	PreprocessingMethod string           `json:"preprocessing_method"`
	AdvancesMilestones  []Milestone      `json:"advances_milestones,omitempty"`
	CollectedBy         string           `json:"collected_by"`
	CollectedAtTurn     int              `json:"collected_at_turn"`
	CollectedAt         time.Time        `json:"collected_at"`
}
