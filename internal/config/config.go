package config

import (
	"time"
)

// Config represents the complete sidekick configuration.
type Config struct {
	AI      AIConfig      `yaml:"ai"`
	Browser BrowserConfig `yaml:"browser"`
	History HistoryConfig `yaml:"history"`
	Meta    MetaConfig    `yaml:"meta"`
}

// AIConfig holds reply-generation provider configuration.
type AIConfig struct {
	Provider  string `yaml:"provider"` // openai, anthropic, mock
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	Endpoint  string `yaml:"endpoint,omitempty"` // for proxies / compatible endpoints
	MaxTokens int    `yaml:"max_tokens,omitempty"`
}

// BrowserConfig holds Chrome attachment configuration.
type BrowserConfig struct {
	Headless   bool   `yaml:"headless"`
	ChromePath string `yaml:"chrome_path,omitempty"` // explicit binary; discovered when empty
	DebugPort  int    `yaml:"debug_port,omitempty"`  // remote debugging port
	StartURL   string `yaml:"start_url,omitempty"`
}

// HistoryConfig holds chat-history persistence configuration.
type HistoryConfig struct {
	Path     string `yaml:"path,omitempty"` // sqlite file; default .sidekick/history.db
	Disabled bool   `yaml:"disabled,omitempty"`
}

// MetaConfig holds metadata about the configuration.
type MetaConfig struct {
	Version   string    `yaml:"version"`
	CreatedAt time.Time `yaml:"created_at"`
	UpdatedAt time.Time `yaml:"updated_at"`
}

// DefaultConfig returns a new config with sensible defaults.
func DefaultConfig() *Config {
	now := time.Now()
	return &Config{
		AI: AIConfig{
			Provider:  "openai",
			Model:     "gpt-4o-mini",
			MaxTokens: 1024,
		},
		Browser: BrowserConfig{
			Headless:  false,
			DebugPort: 9229,
		},
		History: HistoryConfig{
			Path: ".sidekick/history.db",
		},
		Meta: MetaConfig{
			Version:   "1.0.0",
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.AI.Provider == "" {
		return NewValidationError("ai.provider is required")
	}

	if c.AI.APIKey == "" && c.AI.Provider != "mock" {
		return NewValidationError("ai.api_key is required for provider: " + c.AI.Provider)
	}

	if c.Browser.DebugPort < 0 || c.Browser.DebugPort > 65535 {
		return NewValidationError("browser.debug_port is out of range")
	}

	return nil
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "config validation error: " + e.Message
}

// NewValidationError creates a new validation error.
func NewValidationError(message string) error {
	return &ValidationError{Message: message}
}
