// Package config loads ReflexRuntime configuration from a YAML or JSON file
// with environment overrides. A missing file yields defaults; a .env file in
// the working directory is loaded first so API keys can live outside config.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all ReflexRuntime configuration.
type Config struct {
	Name    string `yaml:"name" json:"name"`
	Version string `yaml:"version" json:"version"`

	LLM      LLMConfig      `yaml:"llm" json:"llm"`
	Sessions SessionsConfig `yaml:"sessions" json:"sessions"`
	Healing  HealingConfig  `yaml:"healing" json:"healing"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
}

// LLMConfig configures the patch-generation model service.
type LLMConfig struct {
	Provider    string  `yaml:"provider" json:"provider"` // openai, gemini
	APIKey      string  `yaml:"api_key" json:"api_key"`
	Model       string  `yaml:"model" json:"model"`
	BaseURL     string  `yaml:"base_url" json:"base_url"`
	Timeout     string  `yaml:"timeout" json:"timeout"`
	MaxTokens   int     `yaml:"max_tokens" json:"max_tokens"`
	Temperature float64 `yaml:"temperature" json:"temperature"`
}

// TimeoutDuration parses the timeout string, falling back to 2 minutes.
func (c LLMConfig) TimeoutDuration() time.Duration {
	if d, err := time.ParseDuration(c.Timeout); err == nil && d > 0 {
		return d
	}
	return 2 * time.Minute
}

// SessionsConfig configures session record persistence.
type SessionsConfig struct {
	Dir string `yaml:"dir" json:"dir"`
}

// HealingConfig configures orchestrator behavior.
type HealingConfig struct {
	Debug               bool `yaml:"debug" json:"debug"`
	MaxPatchesPerTarget int  `yaml:"max_patches_per_target" json:"max_patches_per_target"`
}

// LoggingConfig configures the category file logger.
type LoggingConfig struct {
	DebugMode bool   `yaml:"debug_mode" json:"debug_mode"`
	Level     string `yaml:"level" json:"level"`
	Workspace string `yaml:"workspace" json:"workspace"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Name:    "reflexruntime",
		Version: "0.1.0",
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4",
			BaseURL:     "https://api.openai.com/v1",
			Timeout:     "2m",
			MaxTokens:   1000,
			Temperature: 0.1,
		},
		Sessions: SessionsConfig{Dir: "debug"},
		Healing: HealingConfig{
			Debug:               false,
			MaxPatchesPerTarget: 3,
		},
		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
			Workspace: ".",
		},
	}
}

// Load reads configuration from path. A missing file is not an error: the
// defaults (plus environment overrides) are returned. The decoder is chosen
// by extension; .json uses encoding/json, anything else YAML.
func Load(path string) (Config, error) {
	// Best effort; absence of a .env file is the normal case.
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if filepath.Ext(path) == ".json" {
				if err := json.Unmarshal(data, &cfg); err != nil {
					return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
				}
			} else {
				if err := yaml.Unmarshal(data, &cfg); err != nil {
					return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
				}
			}
		case os.IsNotExist(err):
			// Defaults.
		default:
			return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

// applyEnvOverrides layers environment variables over the loaded values.
// REFLEX_* variables win over provider-specific ones.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("REFLEX_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("REFLEX_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("REFLEX_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("REFLEX_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	} else if cfg.LLM.APIKey == "" {
		switch cfg.LLM.Provider {
		case "gemini":
			cfg.LLM.APIKey = os.Getenv("GEMINI_API_KEY")
		default:
			cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" && cfg.LLM.Provider == "openai" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("REFLEX_SESSIONS_DIR"); v != "" {
		cfg.Sessions.Dir = v
	}
	if v := os.Getenv("REFLEX_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Healing.Debug = b
			cfg.Logging.DebugMode = b
		}
	}
}
