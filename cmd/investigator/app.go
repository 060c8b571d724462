package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-investigator/internal/audit"
	"github.com/kubilitics/kubilitics-investigator/internal/casework"
	"github.com/kubilitics/kubilitics-investigator/internal/config"
	"github.com/kubilitics/kubilitics-investigator/internal/db"
	"github.com/kubilitics/kubilitics-investigator/internal/llm/adapter"
	"github.com/kubilitics/kubilitics-investigator/internal/memory/hierarchical"
	"github.com/kubilitics/kubilitics-investigator/internal/reasoning/hypothesis"
	"github.com/kubilitics/kubilitics-investigator/internal/reasoning/investigation"
	"github.com/kubilitics/kubilitics-investigator/internal/reasoning/signals"
)

// app holds the components one command invocation needs.
type app struct {
	cfg     *config.Config
	audit   audit.Logger
	logger  *zap.Logger
	store   db.CaseStore
	memory  *hierarchical.Manager
	service *casework.Service
}

// newApp loads configuration and wires every component in dependency order:
// config → logging → store → LLM → memory → engine → service.
func newApp(ctx context.Context, configPath string) (*app, error) {
	mgr, err := config.NewConfigManager(configPath)
	if err != nil {
		return nil, fmt.Errorf("create config manager: %w", err)
	}
	if err := mgr.Load(ctx); err != nil {
		return nil, err
	}
	if err := mgr.Validate(ctx); err != nil {
		return nil, err
	}
	cfg := mgr.Get(ctx)

	auditLogger, err := audit.NewLogger(&audit.Config{
		AuditLogPath: cfg.Logging.AuditLogPath,
		AppLogPath:   cfg.Logging.AppLogPath,
		MaxSize:      cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAge:       cfg.Logging.MaxAgeDays,
		Compress:     true,
		LogLevel:     cfg.Logging.Level,
		Format:       cfg.Logging.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	logger := auditLogger.AppLogger()
	_ = auditLogger.LogConfigLoaded(ctx, configPath)

	store, err := db.Open(ctx, cfg, logger)
	if err != nil {
		_ = auditLogger.Close()
		return nil, err
	}

	provider, err := adapter.NewProvider(cfg, logger)
	if err != nil {
		_ = store.Close()
		_ = auditLogger.Close()
		return nil, err
	}
	var summarizer hierarchical.Summarizer
	if provider != nil {
		summarizer = provider
	}

	memory := hierarchical.NewManager(hierarchical.SettingsFromConfig(cfg), summarizer, logger)
	engine := investigation.NewEngine(investigation.Options{
		Hypotheses:            hypothesis.NewManager(logger),
		Memory:                memory,
		Interpreter:           signals.NewKeywordInterpreter(logger),
		Logger:                logger,
		DegradedModeThreshold: cfg.Engine.DegradedModeThreshold,
		EscalationTurns:       cfg.Engine.EscalationTurns,
		TestableLimit:         cfg.Engine.TestableHypothesisLimit,
	})

	return &app{
		cfg:     cfg,
		audit:   auditLogger,
		logger:  logger,
		store:   store,
		memory:  memory,
		service: casework.NewService(engine, store, auditLogger, logger),
	}, nil
}

// Close flushes the audit trail and releases the store.
func (a *app) Close() error {
	return errors.Join(a.store.Close(), a.audit.Close())
}
