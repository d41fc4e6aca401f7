package common

import (
	"os"
	"strconv"
)

const (
	// DefaultContextLimitTokens is the fallback context limit when models.dev lookup fails
	DefaultContextLimitTokens = 100000
	// CharsPerToken is the conservative estimate for token-to-char conversion
	CharsPerToken = 2.5
)

// GetModelContextLimit returns the context limit in tokens for a given
// model. Falls back to the LLMRT_FALLBACK_MAX_TOKENS environment variable
// (if set to a valid positive integer), then to DefaultContextLimitTokens,
// when the model is not found in models.dev.
func GetModelContextLimit(provider, model string) int {
	modelInfo, _ := GetModel(provider, model)
	if modelInfo != nil && modelInfo.Limit.Context > 0 {
		return modelInfo.Limit.Context
	}
	if raw := os.Getenv("LLMRT_FALLBACK_MAX_TOKENS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return v
		}
	}
	return DefaultContextLimitTokens
}

// MaxCharsForModel estimates the remaining character budget for a model's
// context window after reserving reservedTokens for system overhead
// (instructions, tool schemas), using CharsPerToken as the conversion ratio.
func MaxCharsForModel(provider, model string, reservedTokens int) int {
	limitTokens := GetModelContextLimit(provider, model)
	totalChars := int(float64(limitTokens) * CharsPerToken)
	return totalChars - reservedTokens
}
