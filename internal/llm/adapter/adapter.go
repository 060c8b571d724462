package adapter

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-investigator/internal/config"
	"github.com/kubilitics/kubilitics-investigator/internal/llm/provider/openai"
	"github.com/kubilitics/kubilitics-investigator/internal/llm/types"
)

// Package adapter provides a unified interface over LLM providers.
//
// The investigator only needs plain text completion: memory compression asks
// a provider to summarise older iterations. Providers:
//   1. none: no provider, callers use their deterministic fallback
//   2. openai: OpenAI or any OpenAI-compatible endpoint (base_url)

// Provider is the completion interface consumed by the memory summarizer.
type Provider interface {
	// Generate sends a single prompt and returns the completion text.
	Generate(ctx context.Context, prompt string, opts types.GenerateOptions) (string, error)

	// Name returns the provider identifier ("openai").
	Name() string
}

// NewProvider builds the configured provider. It returns (nil, nil) when no
// provider is configured; callers treat a nil Provider as "use fallback".
func NewProvider(cfg *config.Config, logger *zap.Logger) (Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil {
		return nil, nil
	}

	switch cfg.LLM.Provider {
	case "", "none":
		return nil, nil
	case "openai":
		if cfg.LLM.APIKey == "" {
			logger.Warn("openai provider selected without an API key; using deterministic summaries")
			return nil, nil
		}
		client, err := openai.NewClient(openai.Options{
			APIKey:  cfg.LLM.APIKey,
			Model:   cfg.LLM.Model,
			BaseURL: cfg.LLM.BaseURL,
			Timeout: time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("create openai client: %w", err)
		}
		logger.Info("LLM provider configured",
			zap.String("provider", client.Name()),
			zap.String("model", cfg.LLM.Model),
		)
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLM.Provider)
	}
}
