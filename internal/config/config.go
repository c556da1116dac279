// Package config loads and validates the application configuration from a
// JSON file, with environment variable overrides for credentials.
package config

import (
	"encoding/json"
	"os"
	"time"

	"latex-project-translator/internal/logger"
	"latex-project-translator/internal/orchestrator"
	"latex-project-translator/internal/translator"
	"latex-project-translator/internal/types"
	"latex-project-translator/internal/validator"
)

// ChecksConfig toggles the validator checks.
type ChecksConfig struct {
	Balance      bool `json:"balance"`
	Environments bool `json:"environments"`
	References   bool `json:"references"`
	Definitions  bool `json:"definitions"`
	CharacterSet bool `json:"character_set"`
}

// CompileConfig configures the optional post-run compilation check.
type CompileConfig struct {
	Enabled        bool   `json:"enabled"`
	Engine         string `json:"engine"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// Config is the full application configuration.
type Config struct {
	TargetLanguage string `json:"target_language"`

	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url,omitempty"`

	MaxConcurrent    int `json:"max_concurrent"`
	MaxRepairRetries int `json:"max_repair_retries"`
	RetryAttempts    int `json:"retry_attempts"`
	RetryBaseDelayMS int `json:"retry_base_delay_ms"`

	CachePath string `json:"cache_path,omitempty"`

	LogFilePath   string `json:"log_file_path,omitempty"`
	LogLevel      string `json:"log_level"`
	EnableConsole bool   `json:"enable_console"`

	Checks  ChecksConfig  `json:"checks"`
	Compile CompileConfig `json:"compile"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		TargetLanguage:   "Japanese",
		Model:            "gpt-4o-mini",
		MaxConcurrent:    4,
		MaxRepairRetries: 2,
		RetryAttempts:    3,
		RetryBaseDelayMS: 500,
		LogLevel:         "info",
		EnableConsole:    true,
		Checks: ChecksConfig{
			Balance:      true,
			Environments: true,
			References:   true,
			Definitions:  true,
			CharacterSet: true,
		},
		Compile: CompileConfig{Engine: "pdflatex", TimeoutSeconds: 120},
	}
}

// Load reads the configuration file and applies environment overrides. An
// empty path returns defaults with overrides applied.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, types.NewAppErrorWithDetails(types.ErrConfig, "failed to read config file", path, err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, types.NewAppErrorWithDetails(types.ErrConfig, "failed to parse config file", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as indented JSON, useful for generating a
// starter file.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return types.NewAppError(types.ErrConfig, "failed to encode config", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return types.NewAppErrorWithDetails(types.ErrConfig, "failed to write config file", path, err)
	}
	return nil
}

// applyEnv lets the environment override credentials so they stay out of
// config files.
func (c *Config) applyEnv() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		c.BaseURL = v
	}
}

// Validate checks the configuration for values that would break the run.
func (c *Config) Validate() error {
	if c.TargetLanguage == "" {
		return types.NewAppError(types.ErrConfig, "target_language must not be empty", nil)
	}
	if c.MaxConcurrent < 1 {
		return types.NewAppError(types.ErrConfig, "max_concurrent must be at least 1", nil)
	}
	if c.MaxRepairRetries < 0 {
		return types.NewAppError(types.ErrConfig, "max_repair_retries must not be negative", nil)
	}
	if c.RetryAttempts < 1 {
		return types.NewAppError(types.ErrConfig, "retry_attempts must be at least 1", nil)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return types.NewAppErrorWithDetails(types.ErrConfig, "unknown log_level", c.LogLevel, nil)
	}
	return nil
}

// LoggerConfig maps onto the logger package configuration.
func (c *Config) LoggerConfig() *logger.Config {
	lc := logger.DefaultConfig()
	lc.LogFilePath = c.LogFilePath
	lc.EnableConsole = c.EnableConsole
	switch c.LogLevel {
	case "debug":
		lc.Level = logger.LevelDebug
	case "warn":
		lc.Level = logger.LevelWarn
	case "error":
		lc.Level = logger.LevelError
	default:
		lc.Level = logger.LevelInfo
	}
	return lc
}

// ChatConfig maps onto the translation backend configuration.
func (c *Config) ChatConfig() *translator.ChatConfig {
	return &translator.ChatConfig{Model: c.Model, APIKey: c.APIKey, BaseURL: c.BaseURL}
}

// OrchestratorConfig maps onto the run configuration.
func (c *Config) OrchestratorConfig() orchestrator.Config {
	return orchestrator.Config{
		TargetLanguage:   c.TargetLanguage,
		MaxConcurrent:    c.MaxConcurrent,
		MaxRepairRetries: c.MaxRepairRetries,
		Validation: validator.Options{
			Balance:      c.Checks.Balance,
			Environments: c.Checks.Environments,
			References:   c.Checks.References,
			Definitions:  c.Checks.Definitions,
			CharacterSet: c.Checks.CharacterSet,
		},
	}
}

// RetryBaseDelay returns the backoff base as a duration.
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMS) * time.Millisecond
}
