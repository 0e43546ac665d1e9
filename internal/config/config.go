// Package config loads and merges the bridge configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds application configuration.
type Config struct {
	// Model is the default target model for token limits.
	Model string `json:"model,omitempty"`

	// ModelFamily selects the tokenizer family adjustment ("bpe" or
	// "sentencepiece").
	ModelFamily string `json:"model_family,omitempty"`

	// LimitMode decides what happens when content exceeds the limit:
	// "warn", "truncate", or "chunk".
	LimitMode string `json:"limit_mode,omitempty"`

	// MessageLimit is a custom token limit; the effective limit is the
	// smaller of this and the model's own limit. 0 disables it.
	MessageLimit int `json:"message_limit,omitempty"`

	// PortRangeStart and PortRangeEnd bound the instance discovery sweep.
	PortRangeStart int `json:"port_range_start,omitempty"`
	PortRangeEnd   int `json:"port_range_end,omitempty"`

	// ProbeTimeoutMs is the per-port discovery timeout.
	ProbeTimeoutMs int `json:"probe_timeout_ms,omitempty"`

	// KeepAliveIntervalSec is the liveness tick interval.
	KeepAliveIntervalSec int `json:"keep_alive_interval_sec,omitempty"`

	// Reconnect backoff tuning: delay = min(max, base * 2^(attempt-1)),
	// stopping after ReconnectMaxAttempts.
	ReconnectBaseDelayMs int `json:"reconnect_base_delay_ms,omitempty"`
	ReconnectMaxDelayMs  int `json:"reconnect_max_delay_ms,omitempty"`
	ReconnectMaxAttempts int `json:"reconnect_max_attempts,omitempty"`

	// MaxFileSize is the per-file byte cap for workspace reads.
	MaxFileSize int64 `json:"max_file_size,omitempty"`

	// MaxFilesPerFolder caps one recursive workspace listing.
	MaxFilesPerFolder int `json:"max_files_per_folder,omitempty"`

	// ExcludePatterns are gitignore-style patterns applied to workspace
	// access on top of .gitignore.
	ExcludePatterns []string `json:"exclude_patterns,omitempty"`

	// UseGitignore controls whether the workspace .gitignore is honored.
	// Stored as a pointer so an explicit false in a config file survives
	// merging; nil means "use the default" (true).
	UseGitignore *bool `json:"use_gitignore,omitempty"`

	// ModelLimits overrides or extends the built-in model limit table.
	ModelLimits map[string]int `json:"model_limits,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	yes := true
	return &Config{
		Model:                "gpt-4",
		ModelFamily:          "bpe",
		LimitMode:            "warn",
		PortRangeStart:       64923,
		PortRangeEnd:         64932,
		ProbeTimeoutMs:       1000,
		KeepAliveIntervalSec: 20,
		ReconnectBaseDelayMs: 1000,
		ReconnectMaxDelayMs:  30000,
		ReconnectMaxAttempts: 10,
		MaxFileSize:          100000,
		MaxFilesPerFolder:    50,
		UseGitignore:         &yes,
	}
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of the
// real data directory.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFileRaw(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Merge combines base and overlay configs. Overlay values take precedence
// for scalars; lists and maps are merged.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.Model = pickString(base.Model, overlay.Model)
	result.ModelFamily = pickString(base.ModelFamily, overlay.ModelFamily)
	result.LimitMode = pickString(base.LimitMode, overlay.LimitMode)

	result.MessageLimit = pickInt(base.MessageLimit, overlay.MessageLimit)
	result.PortRangeStart = pickInt(base.PortRangeStart, overlay.PortRangeStart)
	result.PortRangeEnd = pickInt(base.PortRangeEnd, overlay.PortRangeEnd)
	result.ProbeTimeoutMs = pickInt(base.ProbeTimeoutMs, overlay.ProbeTimeoutMs)
	result.KeepAliveIntervalSec = pickInt(base.KeepAliveIntervalSec, overlay.KeepAliveIntervalSec)
	result.ReconnectBaseDelayMs = pickInt(base.ReconnectBaseDelayMs, overlay.ReconnectBaseDelayMs)
	result.ReconnectMaxDelayMs = pickInt(base.ReconnectMaxDelayMs, overlay.ReconnectMaxDelayMs)
	result.ReconnectMaxAttempts = pickInt(base.ReconnectMaxAttempts, overlay.ReconnectMaxAttempts)
	result.MaxFilesPerFolder = pickInt(base.MaxFilesPerFolder, overlay.MaxFilesPerFolder)

	result.MaxFileSize = overlay.MaxFileSize
	if result.MaxFileSize == 0 {
		result.MaxFileSize = base.MaxFileSize
	}

	result.UseGitignore = overlay.UseGitignore
	if result.UseGitignore == nil {
		result.UseGitignore = base.UseGitignore
	}

	// Exclude patterns: union, deduplicated, base order first.
	seen := map[string]bool{}
	for _, p := range append(append([]string{}, base.ExcludePatterns...), overlay.ExcludePatterns...) {
		if seen[p] {
			continue
		}
		seen[p] = true
		result.ExcludePatterns = append(result.ExcludePatterns, p)
	}

	// Model limits: overlay entries win per model.
	if len(base.ModelLimits) > 0 || len(overlay.ModelLimits) > 0 {
		result.ModelLimits = make(map[string]int)
		for model, limit := range base.ModelLimits {
			result.ModelLimits[model] = limit
		}
		for model, limit := range overlay.ModelLimits {
			result.ModelLimits[model] = limit
		}
	}

	return result
}

// Validate rejects configurations the bridge cannot run with.
func (c *Config) Validate() error {
	switch c.LimitMode {
	case "warn", "truncate", "chunk":
	default:
		return fmt.Errorf("invalid limit_mode %q (want warn, truncate, or chunk)", c.LimitMode)
	}
	switch c.ModelFamily {
	case "bpe", "sentencepiece":
	default:
		return fmt.Errorf("invalid model_family %q (want bpe or sentencepiece)", c.ModelFamily)
	}
	if c.PortRangeEnd < c.PortRangeStart {
		return fmt.Errorf("port range [%d, %d] is inverted", c.PortRangeStart, c.PortRangeEnd)
	}
	if c.MessageLimit < 0 {
		return fmt.Errorf("message_limit must be non-negative, got %d", c.MessageLimit)
	}
	return nil
}

// GitignoreEnabled resolves the UseGitignore pointer.
func (c *Config) GitignoreEnabled() bool {
	return c.UseGitignore == nil || *c.UseGitignore
}

func pickString(base, overlay string) string {
	if overlay != "" {
		return overlay
	}
	return base
}

func pickInt(base, overlay int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}
