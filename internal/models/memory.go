package models

// Iteration is one full-fidelity record of investigation activity kept in hot memory.
type Iteration struct {
	IterationNumber      int                `json:"iteration_number"`
	Phase                InvestigationStage `json:"phase"`
	StartedAtTurn        int                `json:"started_at_turn"`
	DurationTurns        int                `json:"duration_turns"`
	StepsCompleted       []string           `json:"steps_completed"`
	NewInsights          []string           `json:"new_insights"`
	NewEvidenceCollected int                `json:"new_evidence_collected"`
	ConfidenceDelta      float64            `json:"confidence_delta"`
	MadeProgress         bool               `json:"made_progress"`
}

// MemorySnapshot is a compressed group of iterations held in the warm or cold tier.
type MemorySnapshot struct {
	IterationStart    int                `json:"iteration_start"`
	IterationEnd      int                `json:"iteration_end"`
	Summary           string             `json:"summary"`
	KeyFacts          []string           `json:"key_facts"`
	ConfidenceChanges map[string]float64 `json:"confidence_changes"`
	EvidenceCollected []string           `json:"evidence_collected"`
	DecisionsMade     []string           `json:"decisions_made"`
}

// HierarchicalMemory is the four-tier investigation context.
type HierarchicalMemory struct {
	HotMemory           []Iteration      `json:"hot_memory"`
	WarmSnapshots       []MemorySnapshot `json:"warm_snapshots"`
	ColdSnapshots       []MemorySnapshot `json:"cold_snapshots"`
	PersistentInsights  []string         `json:"persistent_insights"`
	LastCompressionTurn int              `json:"last_compression_turn"`
}

// NewHierarchicalMemory returns an empty memory.
func NewHierarchicalMemory() *HierarchicalMemory {
	return &HierarchicalMemory{
		HotMemory:          make([]Iteration, 0),
		WarmSnapshots:      make([]MemorySnapshot, 0),
		ColdSnapshots:      make([]MemorySnapshot, 0),
		PersistentInsights: make([]string, 0),
	}
}

// ShouldCompress reports whether at least interval turns have passed since the
// last fold. The interval is inclusive: with interval 3 and the last fold at
// turn 0, turn 3 compresses.
func (m *HierarchicalMemory) ShouldCompress(currentTurn, interval int) bool {
	return currentTurn-m.LastCompressionTurn >= interval
}
