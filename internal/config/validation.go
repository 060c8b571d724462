package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns validation errors.
func (c *Config) Validate() []error {
	var errs []error

	// Validate engine configuration
	if c.Engine.DegradedModeThreshold < 1 {
		errs = append(errs, &ValidationError{
			Field:   "engine.degraded_mode_threshold",
			Message: fmt.Sprintf("degraded_mode_threshold must be at least 1, got %d", c.Engine.DegradedModeThreshold),
		})
	}
	if c.Engine.EscalationTurns < 1 {
		errs = append(errs, &ValidationError{
			Field:   "engine.escalation_turns",
			Message: fmt.Sprintf("escalation_turns must be at least 1, got %d", c.Engine.EscalationTurns),
		})
	}
	if c.Engine.TestableHypothesisLimit < 1 {
		errs = append(errs, &ValidationError{
			Field:   "engine.testable_hypothesis_limit",
			Message: fmt.Sprintf("testable_hypothesis_limit must be at least 1, got %d", c.Engine.TestableHypothesisLimit),
		})
	}

	// Validate memory configuration
	for field, v := range map[string]int{
		"memory.hot_tokens":              c.Memory.HotTokens,
		"memory.warm_tokens":             c.Memory.WarmTokens,
		"memory.cold_tokens":             c.Memory.ColdTokens,
		"memory.persistent_tokens":       c.Memory.PersistentTokens,
		"memory.hot_tier_size":           c.Memory.HotTierSize,
		"memory.warm_tier_size":          c.Memory.WarmTierSize,
		"memory.cold_tier_size":          c.Memory.ColdTierSize,
		"memory.compression_interval":    c.Memory.CompressionInterval,
		"memory.max_persistent_insights": c.Memory.MaxPersistentInsights,
	} {
		if v < 1 {
			errs = append(errs, &ValidationError{
				Field:   field,
				Message: fmt.Sprintf("must be a positive integer, got %d", v),
			})
		}
	}

	// Validate LLM configuration
	switch c.LLM.Provider {
	case "none":
		c.LLM.Configured = false
	case "openai":
		// A missing key is not fatal: summaries fall back to the deterministic path.
		c.LLM.Configured = c.LLM.APIKey != ""
		if c.LLM.Configured && c.LLM.Model == "" {
			errs = append(errs, &ValidationError{
				Field:   "llm.model",
				Message: "OpenAI model is required",
			})
		}
		if c.LLM.BaseURL != "" {
			if u, err := url.Parse(c.LLM.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
				errs = append(errs, &ValidationError{
					Field:   "llm.base_url",
					Message: fmt.Sprintf("invalid base URL '%s'", c.LLM.BaseURL),
				})
			}
		}
	default:
		errs = append(errs, &ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("invalid provider '%s', must be one of: none, openai", c.LLM.Provider),
		})
	}

	if c.LLM.SummaryTemperature < 0 || c.LLM.SummaryTemperature > 2 {
		errs = append(errs, &ValidationError{
			Field:   "llm.summary_temperature",
			Message: fmt.Sprintf("summary_temperature must be between 0 and 2, got %.2f", c.LLM.SummaryTemperature),
		})
	}
	if c.LLM.TimeoutSeconds < 1 {
		errs = append(errs, &ValidationError{
			Field:   "llm.timeout_seconds",
			Message: fmt.Sprintf("timeout_seconds must be at least 1, got %d", c.LLM.TimeoutSeconds),
		})
	}

	// Validate database configuration
	switch c.Database.Type {
	case "sqlite":
		if c.Database.SQLitePath == "" {
			errs = append(errs, &ValidationError{
				Field:   "database.sqlite_path",
				Message: "sqlite_path is required when database type is sqlite",
			})
		}
	case "redis":
		if c.Database.RedisURL == "" {
			errs = append(errs, &ValidationError{
				Field:   "database.redis_url",
				Message: "redis_url is required when database type is redis",
			})
		}
		if c.Database.RedisTTLHours < 0 {
			errs = append(errs, &ValidationError{
				Field:   "database.redis_ttl_hours",
				Message: fmt.Sprintf("redis_ttl_hours cannot be negative, got %d", c.Database.RedisTTLHours),
			})
		}
	case "memory":
	default:
		errs = append(errs, &ValidationError{
			Field:   "database.type",
			Message: fmt.Sprintf("invalid database type '%s', must be one of: sqlite, redis, memory", c.Database.Type),
		})
	}

	if c.Database.CacheTTLSeconds < 0 {
		errs = append(errs, &ValidationError{
			Field:   "database.cache_ttl_seconds",
			Message: fmt.Sprintf("cache_ttl_seconds cannot be negative, got %d", c.Database.CacheTTLSeconds),
		})
	}

	// Validate logging configuration
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, &ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level),
		})
	}

	validLogFormats := map[string]bool{
		"json":    true,
		"console": true,
	}
	if !validLogFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, &ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format '%s', must be one of: json, console", c.Logging.Format),
		})
	}

	if c.Logging.MaxSizeMB < 1 {
		errs = append(errs, &ValidationError{
			Field:   "logging.max_size_mb",
			Message: fmt.Sprintf("max_size_mb must be at least 1, got %d", c.Logging.MaxSizeMB),
		})
	}

	return errs
}
