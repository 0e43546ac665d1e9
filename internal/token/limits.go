package token

import "fmt"

// DefaultModel is the model assumed when none is configured.
const DefaultModel = "gpt-4"

// WarnRatio is the fraction of a model's limit at which warnings begin.
// Calibration constant, not a structural requirement.
const WarnRatio = 0.8

// ModelLimits maps model names to context-window token limits.
// Unknown names fall back to the "default" entry. The table is never
// mutated at runtime; configuration overrides go through an Estimator.
var ModelLimits = map[string]int{
	// GPT-4 models
	"gpt-4":       8192,
	"gpt-4-32k":   32768,
	"gpt-4-turbo": 128000,
	"gpt-4o":      128000,
	"gpt-4o-mini": 128000,
	// GPT-3.5 models
	"gpt-3.5-turbo":     4096,
	"gpt-3.5-turbo-16k": 16385,
	// Claude models
	"claude-3-opus":     200000,
	"claude-3-sonnet":   200000,
	"claude-3-haiku":    200000,
	"claude-3.5-sonnet": 200000,
	"claude-2":          100000,
	// Gemini models
	"gemini-pro":       32768,
	"gemini-1.5-pro":   1048576,
	"gemini-1.5-flash": 1048576,
	// Default
	"default": 8192,
}

// GetLimit returns the token limit for a model, defaulting on miss.
func GetLimit(model string) int {
	if limit, ok := ModelLimits[model]; ok {
		return limit
	}
	return ModelLimits["default"]
}

// ExceedsLimit reports whether a token count is over the model's limit.
func ExceedsLimit(tokens int, model string) bool {
	return tokens > GetLimit(model)
}

// WarningThreshold returns the token count at which warnings begin
// for a model (80% of its limit).
func WarningThreshold(model string) int {
	return int(float64(GetLimit(model)) * WarnRatio)
}

// IsWarningLevel reports whether tokens fall in the half-open warning
// interval [WarningThreshold, limit).
func IsWarningLevel(tokens int, model string) bool {
	return tokens >= WarningThreshold(model) && tokens < GetLimit(model)
}

// AvailableModels returns the model names in the limit table, excluding
// the "default" fallback entry. Order is unspecified.
func AvailableModels() []string {
	models := make([]string, 0, len(ModelLimits)-1)
	for name := range ModelLimits {
		if name != "default" {
			models = append(models, name)
		}
	}
	return models
}

// FormatCount renders a token count in compact display form (1.2K, 3.4M).
func FormatCount(tokens int) string {
	switch {
	case tokens >= 1000000:
		return fmt.Sprintf("%.1fM", float64(tokens)/1000000)
	case tokens >= 1000:
		return fmt.Sprintf("%.1fK", float64(tokens)/1000)
	default:
		return fmt.Sprintf("%d", tokens)
	}
}
