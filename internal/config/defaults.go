package config

// DefaultConfigPath is used when no --config flag is given.
const DefaultConfigPath = "/etc/kubilitics/investigator.yaml"

// DefaultConfig returns a configuration with all default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	// Engine defaults
	cfg.Engine.DegradedModeThreshold = 3
	cfg.Engine.EscalationTurns = 6
	cfg.Engine.TestableHypothesisLimit = 3

	// Memory defaults
	cfg.Memory.HotTokens = 500
	cfg.Memory.WarmTokens = 300
	cfg.Memory.ColdTokens = 100
	cfg.Memory.PersistentTokens = 100
	cfg.Memory.HotTierSize = 2
	cfg.Memory.WarmTierSize = 3
	cfg.Memory.ColdTierSize = 5
	cfg.Memory.CompressionInterval = 3
	cfg.Memory.MaxPersistentInsights = 10

	// LLM defaults
	cfg.LLM.Provider = "none" // deterministic summaries only
	cfg.LLM.Model = "gpt-4o-mini"
	cfg.LLM.APIKey = ""
	cfg.LLM.BaseURL = ""
	cfg.LLM.SummaryTemperature = 0.3
	cfg.LLM.TimeoutSeconds = 30

	// Database defaults
	cfg.Database.Type = "sqlite"
	cfg.Database.SQLitePath = "/var/lib/kubilitics/investigator.db"
	cfg.Database.RedisURL = "redis://localhost:6379/0"
	cfg.Database.RedisTTLHours = 24 * 30
	cfg.Database.CacheEnabled = true
	cfg.Database.CacheTTLSeconds = 300

	// Logging defaults
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Logging.AppLogPath = ""
	cfg.Logging.AuditLogPath = ""
	cfg.Logging.MaxSizeMB = 100
	cfg.Logging.MaxBackups = 10
	cfg.Logging.MaxAgeDays = 30

	return cfg
}
