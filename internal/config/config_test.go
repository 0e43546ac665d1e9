package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Model != "gpt-4" || cfg.LimitMode != "warn" {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.PortRangeStart != 64923 || cfg.PortRangeEnd != 64932 {
		t.Fatalf("port range = [%d, %d]", cfg.PortRangeStart, cfg.PortRangeEnd)
	}
	if !cfg.GitignoreEnabled() {
		t.Fatal("gitignore should default on")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	content := `{
		"model": "claude-3-sonnet",
		"limit_mode": "chunk",
		"message_limit": 4000,
		"use_gitignore": false,
		"exclude_patterns": ["*.env"],
		"model_limits": {"local-llm": 2048}
	}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Model != "claude-3-sonnet" || cfg.LimitMode != "chunk" || cfg.MessageLimit != 4000 {
		t.Fatalf("merged = %+v", cfg)
	}
	// Untouched fields keep defaults.
	if cfg.KeepAliveIntervalSec != 20 || cfg.ReconnectMaxAttempts != 10 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	if cfg.GitignoreEnabled() {
		t.Fatal("explicit use_gitignore=false was lost in merge")
	}
	if cfg.ModelLimits["local-llm"] != 2048 {
		t.Fatalf("model limits = %v", cfg.ModelLimits)
	}
	if len(cfg.ExcludePatterns) != 1 || cfg.ExcludePatterns[0] != "*.env" {
		t.Fatalf("exclude patterns = %v", cfg.ExcludePatterns)
	}
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte("{not json"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestMergeDeduplicatesPatterns(t *testing.T) {
	base := &Config{ExcludePatterns: []string{"*.log", "dist/"}}
	overlay := &Config{ExcludePatterns: []string{"dist/", "*.env"}}

	got := Merge(base, overlay)
	want := []string{"*.log", "dist/", "*.env"}
	if len(got.ExcludePatterns) != len(want) {
		t.Fatalf("patterns = %v", got.ExcludePatterns)
	}
	for i, p := range want {
		if got.ExcludePatterns[i] != p {
			t.Fatalf("patterns = %v, want %v", got.ExcludePatterns, want)
		}
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()

	cfg.LimitMode = "explode"
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid limit mode accepted")
	}
	cfg.LimitMode = "truncate"

	cfg.ModelFamily = "wordpiece"
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid model family accepted")
	}
	cfg.ModelFamily = "sentencepiece"

	cfg.PortRangeStart, cfg.PortRangeEnd = 65000, 64000
	if err := cfg.Validate(); err == nil {
		t.Fatal("inverted port range accepted")
	}
	cfg.PortRangeStart, cfg.PortRangeEnd = 64923, 64932

	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}
