package hierarchical

import "github.com/kubilitics/kubilitics-investigator/internal/config"

// Settings holds the tier budgets and capacities.
type Settings struct {
	HotTokens        int
	WarmTokens       int
	ColdTokens       int
	PersistentTokens int

	HotTierSize  int
	WarmTierSize int
	ColdTierSize int

	CompressionInterval   int
	MaxPersistentInsights int

	SummaryTemperature float32
}

// DefaultSettings mirrors config.DefaultConfig's memory section.
func DefaultSettings() Settings {
	return SettingsFromConfig(config.DefaultConfig())
}

// SettingsFromConfig extracts memory settings from the loaded configuration.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		HotTokens:             cfg.Memory.HotTokens,
		WarmTokens:            cfg.Memory.WarmTokens,
		ColdTokens:            cfg.Memory.ColdTokens,
		PersistentTokens:      cfg.Memory.PersistentTokens,
		HotTierSize:           cfg.Memory.HotTierSize,
		WarmTierSize:          cfg.Memory.WarmTierSize,
		ColdTierSize:          cfg.Memory.ColdTierSize,
		CompressionInterval:   cfg.Memory.CompressionInterval,
		MaxPersistentInsights: cfg.Memory.MaxPersistentInsights,
		SummaryTemperature:    float32(cfg.LLM.SummaryTemperature),
	}
}

// TotalBudget is the sum of all four tier token budgets.
func (s Settings) TotalBudget() int {
	return s.HotTokens + s.WarmTokens + s.ColdTokens + s.PersistentTokens
}

// WarmTargetTokens is the summary length targeted for one warm snapshot.
func (s Settings) WarmTargetTokens() int {
	if s.WarmTierSize <= 0 {
		return s.WarmTokens
	}
	return s.WarmTokens / s.WarmTierSize
}
