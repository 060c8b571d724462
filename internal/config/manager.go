package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// viperConfigManager implements ConfigManager using Viper.
type viperConfigManager struct {
	configPath string
	config     *Config
	viper      *viper.Viper
	watchChan  chan Config
}

// Load loads configuration from all sources.
func (m *viperConfigManager) Load(ctx context.Context) error {
	// Initialize viper
	m.viper = viper.New()

	// Set config file path
	m.viper.SetConfigFile(m.configPath)
	m.viper.SetConfigType("yaml")

	// Set environment variable prefix
	m.viper.SetEnvPrefix("KUBILITICS")
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	m.setDefaults()

	// Try to read config file (optional)
	if err := m.readConfigFile(); err != nil {
		return err
	}

	// Unmarshal into config struct
	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Apply environment variable overrides for sensitive data
	m.applyEnvOverrides()

	return nil
}

// readConfigFile reads the YAML file; a missing file is not an error.
func (m *viperConfigManager) readConfigFile() error {
	err := m.viper.ReadInConfig()
	if err == nil {
		return nil
	}
	// Config file not found is OK, we use defaults + env vars.
	// Check both ConfigFileNotFoundError and os.IsNotExist for file not found
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) || os.IsNotExist(err) {
		return nil
	}
	// Other error reading config file
	return fmt.Errorf("error reading config file: %w", err)
}

// Get returns the current configuration.
func (m *viperConfigManager) Get(ctx context.Context) *Config {
	return m.config
}

// Validate validates configuration is correct and complete.
func (m *viperConfigManager) Validate(ctx context.Context) error {
	errs := m.config.Validate()
	if len(errs) > 0 {
		// Combine all errors into a single error message
		var errMsgs []string
		for _, err := range errs {
			errMsgs = append(errMsgs, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errMsgs, "\n  - "))
	}
	return nil
}

// Watch watches for configuration changes and reloads.
func (m *viperConfigManager) Watch(ctx context.Context) <-chan Config {
	// Start watching config file
	m.viper.WatchConfig()
	m.viper.OnConfigChange(func(e fsnotify.Event) {
		// Reload config; a bad edit keeps the previous config
		if err := m.unmarshalConfig(); err != nil {
			return
		}
		m.applyEnvOverrides()

		// Send updated config to channel
		select {
		case m.watchChan <- *m.config:
		default:
			// Channel full, skip this update
		}
	})

	return m.watchChan
}

// Reload reloads configuration from sources.
func (m *viperConfigManager) Reload(ctx context.Context) error {
	if m.viper == nil {
		return m.Load(ctx)
	}

	// Re-read config file
	if err := m.readConfigFile(); err != nil {
		return err
	}

	// Unmarshal into config struct
	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Apply environment variable overrides
	m.applyEnvOverrides()

	return nil
}

// setDefaults sets default values in viper.
func (m *viperConfigManager) setDefaults() {
	defaults := DefaultConfig()

	// Engine defaults
	m.viper.SetDefault("engine.degraded_mode_threshold", defaults.Engine.DegradedModeThreshold)
	m.viper.SetDefault("engine.escalation_turns", defaults.Engine.EscalationTurns)
	m.viper.SetDefault("engine.testable_hypothesis_limit", defaults.Engine.TestableHypothesisLimit)

	// Memory defaults
	m.viper.SetDefault("memory.hot_tokens", defaults.Memory.HotTokens)
	m.viper.SetDefault("memory.warm_tokens", defaults.Memory.WarmTokens)
	m.viper.SetDefault("memory.cold_tokens", defaults.Memory.ColdTokens)
	m.viper.SetDefault("memory.persistent_tokens", defaults.Memory.PersistentTokens)
	m.viper.SetDefault("memory.hot_tier_size", defaults.Memory.HotTierSize)
	m.viper.SetDefault("memory.warm_tier_size", defaults.Memory.WarmTierSize)
	m.viper.SetDefault("memory.cold_tier_size", defaults.Memory.ColdTierSize)
	m.viper.SetDefault("memory.compression_interval", defaults.Memory.CompressionInterval)
	m.viper.SetDefault("memory.max_persistent_insights", defaults.Memory.MaxPersistentInsights)

	// LLM defaults
	m.viper.SetDefault("llm.provider", defaults.LLM.Provider)
	m.viper.SetDefault("llm.model", defaults.LLM.Model)
	m.viper.SetDefault("llm.api_key", defaults.LLM.APIKey)
	m.viper.SetDefault("llm.base_url", defaults.LLM.BaseURL)
	m.viper.SetDefault("llm.summary_temperature", defaults.LLM.SummaryTemperature)
	m.viper.SetDefault("llm.timeout_seconds", defaults.LLM.TimeoutSeconds)

	// Database defaults
	m.viper.SetDefault("database.type", defaults.Database.Type)
	m.viper.SetDefault("database.sqlite_path", defaults.Database.SQLitePath)
	m.viper.SetDefault("database.redis_url", defaults.Database.RedisURL)
	m.viper.SetDefault("database.redis_ttl_hours", defaults.Database.RedisTTLHours)
	m.viper.SetDefault("database.cache_enabled", defaults.Database.CacheEnabled)
	m.viper.SetDefault("database.cache_ttl_seconds", defaults.Database.CacheTTLSeconds)

	// Logging defaults
	m.viper.SetDefault("logging.level", defaults.Logging.Level)
	m.viper.SetDefault("logging.format", defaults.Logging.Format)
	m.viper.SetDefault("logging.app_log_path", defaults.Logging.AppLogPath)
	m.viper.SetDefault("logging.audit_log_path", defaults.Logging.AuditLogPath)
	m.viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	m.viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	m.viper.SetDefault("logging.max_age_days", defaults.Logging.MaxAgeDays)
}

// unmarshalConfig unmarshals viper config into Config struct.
func (m *viperConfigManager) unmarshalConfig() error {
	cfg := &Config{}

	// Engine
	cfg.Engine.DegradedModeThreshold = m.viper.GetInt("engine.degraded_mode_threshold")
	cfg.Engine.EscalationTurns = m.viper.GetInt("engine.escalation_turns")
	cfg.Engine.TestableHypothesisLimit = m.viper.GetInt("engine.testable_hypothesis_limit")

	// Memory
	cfg.Memory.HotTokens = m.viper.GetInt("memory.hot_tokens")
	cfg.Memory.WarmTokens = m.viper.GetInt("memory.warm_tokens")
	cfg.Memory.ColdTokens = m.viper.GetInt("memory.cold_tokens")
	cfg.Memory.PersistentTokens = m.viper.GetInt("memory.persistent_tokens")
	cfg.Memory.HotTierSize = m.viper.GetInt("memory.hot_tier_size")
	cfg.Memory.WarmTierSize = m.viper.GetInt("memory.warm_tier_size")
	cfg.Memory.ColdTierSize = m.viper.GetInt("memory.cold_tier_size")
	cfg.Memory.CompressionInterval = m.viper.GetInt("memory.compression_interval")
	cfg.Memory.MaxPersistentInsights = m.viper.GetInt("memory.max_persistent_insights")

	// LLM
	cfg.LLM.Provider = m.viper.GetString("llm.provider")
	cfg.LLM.Model = m.viper.GetString("llm.model")
	cfg.LLM.APIKey = m.viper.GetString("llm.api_key")
	cfg.LLM.BaseURL = m.viper.GetString("llm.base_url")
	cfg.LLM.SummaryTemperature = m.viper.GetFloat64("llm.summary_temperature")
	cfg.LLM.TimeoutSeconds = m.viper.GetInt("llm.timeout_seconds")

	// Database
	cfg.Database.Type = m.viper.GetString("database.type")
	cfg.Database.SQLitePath = m.viper.GetString("database.sqlite_path")
	cfg.Database.RedisURL = m.viper.GetString("database.redis_url")
	cfg.Database.RedisTTLHours = m.viper.GetInt("database.redis_ttl_hours")
	cfg.Database.CacheEnabled = m.viper.GetBool("database.cache_enabled")
	cfg.Database.CacheTTLSeconds = m.viper.GetInt("database.cache_ttl_seconds")

	// Logging
	cfg.Logging.Level = m.viper.GetString("logging.level")
	cfg.Logging.Format = m.viper.GetString("logging.format")
	cfg.Logging.AppLogPath = m.viper.GetString("logging.app_log_path")
	cfg.Logging.AuditLogPath = m.viper.GetString("logging.audit_log_path")
	cfg.Logging.MaxSizeMB = m.viper.GetInt("logging.max_size_mb")
	cfg.Logging.MaxBackups = m.viper.GetInt("logging.max_backups")
	cfg.Logging.MaxAgeDays = m.viper.GetInt("logging.max_age_days")

	m.config = cfg
	return nil
}

// applyEnvOverrides applies environment variable overrides for sensitive data.
func (m *viperConfigManager) applyEnvOverrides() {
	// OpenAI API key from environment
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" && m.config.LLM.APIKey == "" {
		m.config.LLM.APIKey = apiKey
	}

	// Redis URL from environment
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		m.config.Database.RedisURL = redisURL
	}
}
