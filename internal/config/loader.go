package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	ConfigFileName  = "config.yaml"
	ConfigDirName   = ".sidekick"
	GlobalConfigDir = ".config/sidekick"
)

// Loader handles configuration loading and discovery.
type Loader struct {
	startDir string
}

// NewLoader creates a new config loader starting from the given directory.
func NewLoader(startDir string) *Loader {
	if startDir == "" {
		var err error
		startDir, err = os.Getwd()
		if err != nil {
			startDir = "."
		}
	}

	return &Loader{
		startDir: startDir,
	}
}

// Load loads the configuration with environment variable overrides. When no
// config file exists the defaults are used; env vars can still complete them.
func (l *Loader) Load() (*Config, error) {
	var config *Config

	configPath, err := l.FindConfigFile()
	if err != nil {
		config = DefaultConfig()
	} else {
		config, err = l.loadFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
	}

	l.applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// FindConfigFile searches upward from the start directory for a config file,
// then falls back to the global config location.
func (l *Loader) FindConfigFile() (string, error) {
	dir := l.startDir

	for {
		configPath := filepath.Join(dir, ConfigDirName, ConfigFileName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	homeDir, err := os.UserHomeDir()
	if err == nil {
		globalConfig := filepath.Join(homeDir, GlobalConfigDir, ConfigFileName)
		if _, err := os.Stat(globalConfig); err == nil {
			return globalConfig, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched upward from %s)", l.startDir)
}

// loadFromFile loads configuration from a YAML file.
func (l *Loader) loadFromFile(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func (l *Loader) applyEnvOverrides(config *Config) {
	if provider := os.Getenv("SIDEKICK_AI_PROVIDER"); provider != "" {
		config.AI.Provider = provider
	}
	if model := os.Getenv("SIDEKICK_AI_MODEL"); model != "" {
		config.AI.Model = model
	}

	// Support provider-native key variables for convenience.
	if apiKey := os.Getenv("SIDEKICK_AI_API_KEY"); apiKey != "" {
		config.AI.APIKey = apiKey
	} else if config.AI.APIKey == "" {
		switch config.AI.Provider {
		case "openai":
			config.AI.APIKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic":
			config.AI.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}

	if path := os.Getenv("SIDEKICK_HISTORY_PATH"); path != "" {
		config.History.Path = path
	}
}
