package config

import (
	"encoding/json"
	"fmt"
)

// Config represents the main GoalFlow configuration
type Config struct {
	// Gateway server
	Server ServerConfig `json:"server" mapstructure:"server"`

	// SQLite database
	Database DatabaseConfig `json:"database" mapstructure:"database"`

	// Client authentication
	Auth AuthConfig `json:"auth" mapstructure:"auth"`

	// LLM backend
	LLM LLMConfig `json:"llm" mapstructure:"llm"`

	// Goal digests
	Digest DigestConfig `json:"digest" mapstructure:"digest"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ServerConfig holds gateway server configuration
type ServerConfig struct {
	Port int    `json:"port" mapstructure:"port"`
	Host string `json:"host" mapstructure:"host"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// AuthConfig holds token verification configuration
type AuthConfig struct {
	Provider string `json:"provider" mapstructure:"provider"` // google, static
	Audience string `json:"audience" mapstructure:"audience"`
}

// LLMConfig holds LLM backend configuration
type LLMConfig struct {
	Provider    string  `json:"provider" mapstructure:"provider"` // openai, anthropic
	APIKey      string  `json:"api_key" mapstructure:"api_key"`
	Model       string  `json:"model" mapstructure:"model"`
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `json:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs int     `json:"timeout_secs" mapstructure:"timeout_secs"`
}

// DigestConfig holds goal digest configuration
type DigestConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `json:"level" mapstructure:"level"`
	File  string `json:"file" mapstructure:"file"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8765,
			Host: "0.0.0.0",
		},
		Database: DatabaseConfig{
			Path: "",
		},
		Auth: AuthConfig{
			Provider: "static",
		},
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o",
			Temperature: 0.7,
			MaxTokens:   4096,
			TimeoutSecs: 60,
		},
		Digest: DigestConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Auth.Provider {
	case "google":
		if c.Auth.Audience == "" {
			return fmt.Errorf("auth audience is required for the google provider")
		}
	case "static":
	default:
		return fmt.Errorf("invalid auth provider %s (must be: google, static)", c.Auth.Provider)
	}

	if c.LLM.Provider != "openai" && c.LLM.Provider != "anthropic" {
		return fmt.Errorf("invalid llm provider %s (must be: openai, anthropic)", c.LLM.Provider)
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm api_key is required")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm model is required")
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	return nil
}
