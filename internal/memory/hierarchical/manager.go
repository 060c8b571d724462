// Package hierarchical keeps investigation context inside a bounded token
// budget using four tiers:
//
//	hot         last HotTierSize iterations, full fidelity
//	warm        summarised snapshots of older iterations
//	cold        key facts of the oldest snapshots
//	persistent  insights that survive every compression
//
// Iterations enter hot memory one per turn. Every CompressionInterval turns
// the overflow moves hot → warm → cold and the oldest cold snapshots are
// pruned. Token accounting is advisory and never blocks an update.
package hierarchical

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-investigator/internal/llm/types"
	"github.com/kubilitics/kubilitics-investigator/internal/metrics"
	"github.com/kubilitics/kubilitics-investigator/internal/models"
)

const (
	coldSummaryRunes = 100
	coldKeyFacts     = 3
	coldDecisions    = 2
	contextColdFacts = 5
)

// Manager applies tier policy to a case's HierarchicalMemory.
type Manager struct {
	settings    Settings
	compression *CompressionEngine
	logger      *zap.Logger
}

// NewManager creates a memory manager. summarizer may be nil.
func NewManager(settings Settings, summarizer Summarizer, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("memory")

	logger.Debug("memory manager initialized",
		zap.Int("hot_tokens", settings.HotTokens),
		zap.Int("warm_tokens", settings.WarmTokens),
		zap.Int("cold_tokens", settings.ColdTokens),
		zap.Int("persistent_tokens", settings.PersistentTokens),
		zap.Int("total_budget", settings.TotalBudget()),
	)

	return &Manager{
		settings:    settings,
		compression: NewCompressionEngine(summarizer, settings.SummaryTemperature, logger),
		logger:      logger,
	}
}

// Settings returns the active settings.
func (m *Manager) Settings() Settings {
	return m.settings
}

// UpdateMemory appends an iteration, runs the compression pipeline when the
// interval has elapsed, then promotes any remaining hot overflow.
func (m *Manager) UpdateMemory(ctx context.Context, mem *models.HierarchicalMemory, iteration models.Iteration, currentTurn int) error {
	if mem == nil {
		return fmt.Errorf("update memory: nil memory")
	}

	mem.HotMemory = append(mem.HotMemory, iteration)

	if mem.ShouldCompress(currentTurn, m.settings.CompressionInterval) {
		m.logger.Debug("compression triggered", zap.Int("turn", currentTurn))
		if err := m.compress(ctx, mem); err != nil {
			return err
		}
		mem.LastCompressionTurn = currentTurn
	}

	if len(mem.HotMemory) > m.settings.HotTierSize {
		if err := m.promoteToWarm(ctx, mem); err != nil {
			return err
		}
	}

	metrics.MemoryEstimatedTokens.Observe(float64(m.EstimateTokenUsage(mem)))
	return nil
}

// compress runs promote, demote and prune in order, each only on overflow.
func (m *Manager) compress(ctx context.Context, mem *models.HierarchicalMemory) error {
	metrics.MemoryCompressions.Inc()

	if len(mem.HotMemory) > m.settings.HotTierSize {
		if err := m.promoteToWarm(ctx, mem); err != nil {
			return err
		}
	}
	if len(mem.WarmSnapshots) > m.settings.WarmTierSize {
		m.demoteToCold(mem)
	}
	if len(mem.ColdSnapshots) > m.settings.ColdTierSize {
		m.pruneCold(mem)
	}

	m.logger.Debug("compression complete",
		zap.Int("hot", len(mem.HotMemory)),
		zap.Int("warm", len(mem.WarmSnapshots)),
		zap.Int("cold", len(mem.ColdSnapshots)),
	)
	return nil
}

func (m *Manager) promoteToWarm(ctx context.Context, mem *models.HierarchicalMemory) error {
	overflow := len(mem.HotMemory) - m.settings.HotTierSize
	if overflow <= 0 {
		return nil
	}

	snapshot, err := m.compression.CompressIterations(ctx, mem.HotMemory[:overflow], m.settings.WarmTargetTokens())
	if err != nil {
		return fmt.Errorf("promote to warm: %w", err)
	}

	mem.WarmSnapshots = append(mem.WarmSnapshots, snapshot)
	mem.HotMemory = append([]models.Iteration(nil), mem.HotMemory[overflow:]...)

	m.logger.Debug("promoted iterations to warm memory",
		zap.Int("count", overflow),
		zap.Int("from", snapshot.IterationStart),
		zap.Int("to", snapshot.IterationEnd),
	)
	return nil
}

func (m *Manager) demoteToCold(mem *models.HierarchicalMemory) {
	overflow := len(mem.WarmSnapshots) - m.settings.WarmTierSize
	if overflow <= 0 {
		return
	}

	for _, s := range mem.WarmSnapshots[:overflow] {
		mem.ColdSnapshots = append(mem.ColdSnapshots, models.MemorySnapshot{
			IterationStart:    s.IterationStart,
			IterationEnd:      s.IterationEnd,
			Summary:           truncateRunes(s.Summary, coldSummaryRunes),
			KeyFacts:          headStrings(s.KeyFacts, coldKeyFacts),
			ConfidenceChanges: maps.Clone(s.ConfidenceChanges),
			EvidenceCollected: make([]string, 0),
			DecisionsMade:     headStrings(s.DecisionsMade, coldDecisions),
		})
	}
	mem.WarmSnapshots = append([]models.MemorySnapshot(nil), mem.WarmSnapshots[overflow:]...)

	m.logger.Debug("demoted snapshots to cold memory", zap.Int("count", overflow))
}

func (m *Manager) pruneCold(mem *models.HierarchicalMemory) {
	overflow := len(mem.ColdSnapshots) - m.settings.ColdTierSize
	if overflow <= 0 {
		return
	}

	pruned := mem.ColdSnapshots[:overflow]
	m.logger.Debug("pruned cold snapshots",
		zap.Int("count", overflow),
		zap.Int("from", pruned[0].IterationStart),
		zap.Int("to", pruned[len(pruned)-1].IterationEnd),
	)
	mem.ColdSnapshots = append([]models.MemorySnapshot(nil), mem.ColdSnapshots[overflow:]...)
}

// AddPersistentInsight appends an insight if absent, keeping only the most
// recent MaxPersistentInsights.
func (m *Manager) AddPersistentInsight(mem *models.HierarchicalMemory, insight string) {
	found := false
	for _, existing := range mem.PersistentInsights {
		if existing == insight {
			found = true
			break
		}
	}
	if !found {
		mem.PersistentInsights = append(mem.PersistentInsights, insight)
	}

	if limit := m.settings.MaxPersistentInsights; len(mem.PersistentInsights) > limit {
		mem.PersistentInsights = append([]string(nil), mem.PersistentInsights[len(mem.PersistentInsights)-limit:]...)
		m.logger.Debug("trimmed persistent insights", zap.Int("limit", limit))
	}
}

// ContextString renders memory for a model prompt.
func (m *Manager) ContextString(mem *models.HierarchicalMemory, includeCold bool) string {
	var parts []string

	if len(mem.PersistentInsights) > 0 {
		parts = append(parts, "=== Key Learnings ===")
		for _, insight := range mem.PersistentInsights {
			parts = append(parts, "• "+insight)
		}
		parts = append(parts, "")
	}

	if len(mem.HotMemory) > 0 {
		parts = append(parts, "=== Recent Progress ===")
		for _, it := range mem.HotMemory {
			parts = append(parts, fmt.Sprintf("Iteration %d (%s, %d turns):",
				it.IterationNumber, strings.ToUpper(string(it.Phase)), it.DurationTurns))
			for _, insight := range it.NewInsights {
				parts = append(parts, "  • "+insight)
			}
			if it.MadeProgress {
				parts = append(parts, fmt.Sprintf("  ✓ Progress made (Δconfidence: %+.2f)", it.ConfidenceDelta))
			} else {
				parts = append(parts, "  ⚠ No progress in this iteration")
			}
		}
		parts = append(parts, "")
	}

	if len(mem.WarmSnapshots) > 0 {
		parts = append(parts, "=== Earlier Investigation ===")
		for _, s := range mem.WarmSnapshots {
			parts = append(parts, fmt.Sprintf("Iterations %d-%d: %s", s.IterationStart, s.IterationEnd, s.Summary))
		}
		parts = append(parts, "")
	}

	if includeCold && len(mem.ColdSnapshots) > 0 {
		parts = append(parts, "=== Background Context ===")
		var facts []string
		for _, s := range mem.ColdSnapshots {
			facts = append(facts, s.KeyFacts...)
		}
		for _, fact := range headStrings(facts, contextColdFacts) {
			parts = append(parts, "• "+fact)
		}
		parts = append(parts, "")
	}

	return strings.Join(parts, "\n")
}

// EstimateTokenUsage approximates the rendered context size in tokens.
func (m *Manager) EstimateTokenUsage(mem *models.HierarchicalMemory) int {
	return types.EstimateTokens(m.ContextString(mem, true))
}

// Stats summarises tier occupancy.
type Stats struct {
	HotIterations       int    `json:"hot_iterations" yaml:"hot_iterations"`
	WarmSnapshots       int    `json:"warm_snapshots" yaml:"warm_snapshots"`
	ColdSnapshots       int    `json:"cold_snapshots" yaml:"cold_snapshots"`
	PersistentInsights  int    `json:"persistent_insights" yaml:"persistent_insights"`
	EstimatedTokens     int    `json:"estimated_tokens" yaml:"estimated_tokens"`
	BudgetUtilization   string `json:"budget_utilization" yaml:"budget_utilization"`
	LastCompressionTurn int    `json:"last_compression_turn" yaml:"last_compression_turn"`
}

// Stats reports tier sizes and budget utilisation.
func (m *Manager) Stats(mem *models.HierarchicalMemory) Stats {
	tokens := m.EstimateTokenUsage(mem)
	utilization := 0.0
	if budget := m.settings.TotalBudget(); budget > 0 {
		utilization = float64(tokens) / float64(budget) * 100
	}

	return Stats{
		HotIterations:       len(mem.HotMemory),
		WarmSnapshots:       len(mem.WarmSnapshots),
		ColdSnapshots:       len(mem.ColdSnapshots),
		PersistentInsights:  len(mem.PersistentInsights),
		EstimatedTokens:     tokens,
		BudgetUtilization:   fmt.Sprintf("%.1f%%", utilization),
		LastCompressionTurn: mem.LastCompressionTurn,
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
