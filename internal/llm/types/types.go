package types

// GenerateOptions tunes a single completion request
type GenerateOptions struct {
	Temperature float32 `json:"temperature"` // 0 uses the provider default
	MaxTokens   int     `json:"max_tokens"`  // 0 leaves the limit to the provider
	System      string  `json:"system,omitempty"`
}

// EstimateTokens approximates token count as one token per four characters.
func EstimateTokens(text string) int {
	return len(text) / 4
}
