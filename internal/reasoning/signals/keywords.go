// Package signals provides a minimal Interpreter that detects consulting
// signals by keyword. Hosts with a language model plug in their own
// Interpreter instead; this one keeps the CLI usable without one.
package signals

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-investigator/internal/models"
	"github.com/kubilitics/kubilitics-investigator/internal/reasoning/investigation"
)

var (
	DefaultConfirmKeywords     = []string{"yes", "correct"}
	DefaultInvestigateKeywords = []string{"investigate", "go ahead"}
)

// KeywordInterpreter maps substrings of the user message to consulting facts.
// Investigating and terminal cases receive empty facts.
type KeywordInterpreter struct {
	confirm     []string
	investigate []string
	logger      *zap.Logger
}

var _ investigation.Interpreter = (*KeywordInterpreter)(nil)

// NewKeywordInterpreter uses the default keyword lists.
func NewKeywordInterpreter(logger *zap.Logger) *KeywordInterpreter {
	return NewKeywordInterpreterWith(DefaultConfirmKeywords, DefaultInvestigateKeywords, logger)
}

// NewKeywordInterpreterWith uses custom keyword lists. Matching is case-insensitive.
func NewKeywordInterpreterWith(confirm, investigate []string, logger *zap.Logger) *KeywordInterpreter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KeywordInterpreter{
		confirm:     lowerAll(confirm),
		investigate: lowerAll(investigate),
		logger:      logger.Named("signals"),
	}
}

// Interpret implements investigation.Interpreter.
func (k *KeywordInterpreter) Interpret(_ context.Context, c *models.Case, in investigation.TurnInput) (*investigation.TurnFacts, error) {
	facts := &investigation.TurnFacts{}
	if c == nil || c.Status != models.StatusConsulting {
		return facts, nil
	}

	msg := strings.ToLower(in.UserMessage)
	facts.ConfirmsProblemStatement = containsAny(msg, k.confirm)
	facts.RequestsInvestigation = containsAny(msg, k.investigate)

	k.logger.Debug("consulting signals",
		zap.String("case_id", c.ID),
		zap.Bool("confirms", facts.ConfirmsProblemStatement),
		zap.Bool("investigate", facts.RequestsInvestigation),
	)
	return facts, nil
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
