package hierarchical

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-investigator/internal/llm/types"
	"github.com/kubilitics/kubilitics-investigator/internal/metrics"
	"github.com/kubilitics/kubilitics-investigator/internal/models"
)

// Summarizer produces free-text summaries. adapter.Provider satisfies it.
type Summarizer interface {
	Generate(ctx context.Context, prompt string, opts types.GenerateOptions) (string, error)
}

// ErrNoIterations is returned when asked to compress an empty group.
var ErrNoIterations = errors.New("cannot compress empty iteration list")

const (
	snapshotKeyFacts     = 5
	summaryKeyFacts      = 3
	summaryDecisions     = 2
	defaultSummaryTarget = 300
)

// CompressionEngine folds groups of iterations into snapshots.
type CompressionEngine struct {
	summarizer  Summarizer
	temperature float32
	logger      *zap.Logger
}

// NewCompressionEngine creates an engine. A nil summarizer always uses the
// deterministic summary.
func NewCompressionEngine(summarizer Summarizer, temperature float32, logger *zap.Logger) *CompressionEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompressionEngine{
		summarizer:  summarizer,
		temperature: temperature,
		logger:      logger,
	}
}

// CompressIterations builds one snapshot covering the given iterations.
func (e *CompressionEngine) CompressIterations(ctx context.Context, iterations []models.Iteration, targetTokens int) (models.MemorySnapshot, error) {
	if len(iterations) == 0 {
		return models.MemorySnapshot{}, ErrNoIterations
	}
	if targetTokens <= 0 {
		targetTokens = defaultSummaryTarget
	}

	first := iterations[0].IterationNumber
	last := iterations[len(iterations)-1].IterationNumber

	keyFacts := make([]string, 0)
	decisions := make([]string, 0)
	evidence := make([]string, 0)
	confidenceChanges := make(map[string]float64)

	for _, it := range iterations {
		keyFacts = append(keyFacts, it.NewInsights...)

		if it.ConfidenceDelta != 0 {
			confidenceChanges[fmt.Sprintf("iter_%d", it.IterationNumber)] = it.ConfidenceDelta
		}
		if it.NewEvidenceCollected > 0 {
			evidence = append(evidence, fmt.Sprintf("evidence_in_iter_%d", it.IterationNumber))
		}
		if len(it.StepsCompleted) > 0 {
			decisions = append(decisions, fmt.Sprintf("Iter %d: %d steps completed", it.IterationNumber, len(it.StepsCompleted)))
		}
	}

	summary := e.summarize(ctx, iterations, keyFacts, decisions, targetTokens)

	snapshot := models.MemorySnapshot{
		IterationStart:    first,
		IterationEnd:      last,
		Summary:           summary,
		KeyFacts:          headStrings(keyFacts, snapshotKeyFacts),
		ConfidenceChanges: confidenceChanges,
		EvidenceCollected: evidence,
		DecisionsMade:     decisions,
	}

	e.logger.Debug("compressed iterations",
		zap.Int("from", first),
		zap.Int("to", last),
		zap.Int("summary_chars", len(summary)),
		zap.Int("facts", len(keyFacts)),
	)

	return snapshot, nil
}

func (e *CompressionEngine) summarize(ctx context.Context, iterations []models.Iteration, keyFacts, decisions []string, targetTokens int) string {
	if e.summarizer == nil {
		metrics.SummarizerFallbacks.Inc()
		return SimpleSummary(iterations, keyFacts, decisions)
	}

	out, err := e.summarizer.Generate(ctx, summaryPrompt(iterations, keyFacts, decisions, targetTokens), types.GenerateOptions{
		Temperature: e.temperature,
		MaxTokens:   targetTokens / 2,
	})
	if err != nil {
		e.logger.Warn("LLM summarization failed, using fallback", zap.Error(err))
		metrics.SummarizerFallbacks.Inc()
		return SimpleSummary(iterations, keyFacts, decisions)
	}
	return strings.TrimSpace(out)
}

func summaryPrompt(iterations []models.Iteration, keyFacts, decisions []string, targetTokens int) string {
	facts, _ := json.MarshalIndent(keyFacts, "", "  ")
	acts, _ := json.MarshalIndent(decisions, "", "  ")

	var b strings.Builder
	fmt.Fprintf(&b, "Summarize these investigation iterations concisely (target: %d tokens):\n\n", targetTokens)
	fmt.Fprintf(&b, "Iterations: %d to %d\n", iterations[0].IterationNumber, iterations[len(iterations)-1].IterationNumber)
	fmt.Fprintf(&b, "Key Facts: %s\n", facts)
	fmt.Fprintf(&b, "Decisions: %s\n\n", acts)
	b.WriteString("Provide a 2-3 sentence summary focusing on:\n")
	b.WriteString("1. What evidence was collected\n")
	b.WriteString("2. How hypotheses evolved\n")
	b.WriteString("3. Key decisions or findings\n\n")
	b.WriteString("Summary:")
	return b.String()
}

// SimpleSummary is the deterministic summary used when no summarizer is
// available or it fails.
func SimpleSummary(iterations []models.Iteration, keyFacts, decisions []string) string {
	if len(iterations) == 0 {
		return ""
	}

	progress := 0
	for _, it := range iterations {
		if it.MadeProgress {
			progress++
		}
	}

	parts := []string{fmt.Sprintf("Iterations %d-%d: %d/%d made progress.",
		iterations[0].IterationNumber, iterations[len(iterations)-1].IterationNumber, progress, len(iterations))}

	if len(keyFacts) > 0 {
		parts = append(parts, "Key findings: "+strings.Join(headStrings(keyFacts, summaryKeyFacts), "; "))
	}
	if len(decisions) > 0 {
		parts = append(parts, "Actions: "+strings.Join(headStrings(decisions, summaryDecisions), "; "))
	}

	return strings.Join(parts, " ")
}

// headStrings returns a copy of at most n leading elements.
func headStrings(s []string, n int) []string {
	if len(s) < n {
		n = len(s)
	}
	out := make([]string, n)
	copy(out, s[:n])
	return out
}
