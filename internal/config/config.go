package config

import "context"

// Package config provides configuration management for kubilitics-investigator.
//
// Configuration Sources (priority order, high to low):
//   1. Environment variables (KUBILITICS_* prefix, e.g. KUBILITICS_DATABASE_TYPE)
//   2. YAML config file (default: /etc/kubilitics/investigator.yaml)
//   3. Built-in defaults
//
// Secrets are never required in the file: OPENAI_API_KEY and REDIS_URL are
// read from the environment when set.
//
// Main Configuration Sections:
//
//   1. Engine
//      - degraded_mode_threshold: turns without progress before degraded mode (default 3)
//      - escalation_turns: turns in degraded mode before escalation is suggested (default 6)
//      - testable_hypothesis_limit: hypotheses offered for testing per turn (default 3)
//
//   2. Memory
//      - hot_tokens / warm_tokens / cold_tokens / persistent_tokens: tier budgets (500/300/100/100)
//      - hot_tier_size / warm_tier_size / cold_tier_size: tier capacities (2/3/5)
//      - compression_interval: turns between compression passes (default 3)
//      - max_persistent_insights: insight cap (default 10)
//
//   3. LLM
//      - provider: "none" | "openai"
//      - model, api_key, base_url
//      - summary_temperature: temperature for memory summaries (default 0.3)
//      - timeout_seconds
//
//   4. Database
//      - type: "sqlite" | "redis" | "memory"
//      - sqlite_path, redis_url, redis_ttl_hours
//      - cache_enabled, cache_ttl_seconds: read-through case cache
//
//   5. Logging
//      - level: "debug" | "info" | "warn" | "error"
//      - format: "json" | "console"
//      - app_log_path, audit_log_path: empty means stderr only / audit disabled on disk
//      - max_size_mb, max_backups, max_age_days: rotation
//
// Config struct contains all configuration fields
type Config struct {
	// Engine configuration
	Engine struct {
		DegradedModeThreshold   int
		EscalationTurns         int
		TestableHypothesisLimit int
	}

	// Memory tier configuration
	Memory struct {
		HotTokens             int
		WarmTokens            int
		ColdTokens            int
		PersistentTokens      int
		HotTierSize           int
		WarmTierSize          int
		ColdTierSize          int
		CompressionInterval   int
		MaxPersistentInsights int
	}

	// LLM provider configuration
	LLM struct {
		Provider           string
		Model              string
		APIKey             string
		BaseURL            string
		SummaryTemperature float64
		TimeoutSeconds     int
		// Configured is set by Validate when the provider has what it needs to run.
		Configured bool
	}

	// Database configuration
	Database struct {
		Type            string
		SQLitePath      string
		RedisURL        string
		RedisTTLHours   int
		CacheEnabled    bool
		CacheTTLSeconds int
	}

	// Logging configuration
	Logging struct {
		Level        string
		Format       string
		AppLogPath   string
		AuditLogPath string
		MaxSizeMB    int
		MaxBackups   int
		MaxAgeDays   int
	}
}

// TotalMemoryBudget is the sum of the four tier token budgets.
func (c *Config) TotalMemoryBudget() int {
	return c.Memory.HotTokens + c.Memory.WarmTokens + c.Memory.ColdTokens + c.Memory.PersistentTokens
}

// ConfigManager defines the interface for configuration access.
type ConfigManager interface {
	// Load loads configuration from all sources.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate validates configuration is correct and complete.
	Validate(ctx context.Context) error

	// Watch watches for configuration changes and reloads.
	Watch(ctx context.Context) <-chan Config

	// Reload reloads configuration from sources.
	Reload(ctx context.Context) error
}

// NewConfigManager creates a new configuration manager.
func NewConfigManager(configPath string) (ConfigManager, error) {
	mgr := &viperConfigManager{
		configPath: configPath,
		config:     DefaultConfig(),
		watchChan:  make(chan Config, 1),
	}
	return mgr, nil
}

// NewConfigManagerWithDefaults creates a config manager with default config path.
func NewConfigManagerWithDefaults() (ConfigManager, error) {
	return NewConfigManager(DefaultConfigPath)
}
