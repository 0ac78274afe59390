// config.go - Configuration management for the pool client daemon
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config represents the daemon configuration
type Config struct {
	// Serving
	ListenAddr string `json:"listen_addr"`

	// Protocol
	ProtocolConfigPath string `json:"protocol_config_path"`
	PoolOwner          string `json:"pool_owner"`

	// Orchestration
	SimulationPolicy string `json:"simulation_policy"` // "advisory" or "gating"
	PollIntervalMS   int    `json:"poll_interval_ms"`
	CallbackTimeoutS int    `json:"callback_timeout_s"`
	MaxRetries       int    `json:"max_retries"`

	// Logging
	LogLevel string `json:"log_level"`
	LogFile  string `json:"log_file"`

	// Rate limiting (per-client token bucket)
	RateLimitRPS   float64 `json:"rate_limit_rps"`
	RateLimitBurst int     `json:"rate_limit_burst"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:       ":8480",
		SimulationPolicy: "advisory",
		PollIntervalMS:   2000,
		CallbackTimeoutS: 120,
		MaxRetries:       5,
		LogLevel:         "info",
		LogFile:          "",
		RateLimitRPS:     2,
		RateLimitBurst:   4,
	}
}

// LoadConfig loads configuration from file or creates default
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); err == nil {
		file, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer file.Close()

		var config Config
		if err := json.NewDecoder(file).Decode(&config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		if err := config.Validate(); err != nil {
			return nil, err
		}
		return &config, nil
	}

	// Create default config and save it for the next run
	config := DefaultConfig()
	if err := SaveConfig(config, configPath); err != nil {
		return nil, fmt.Errorf("failed to save default config: %w", err)
	}
	return config, nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *Config, configPath string) error {
	if dir := filepath.Dir(configPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(config)
}

// Validate checks configuration values
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr must not be empty")
	}
	if c.SimulationPolicy != "advisory" && c.SimulationPolicy != "gating" {
		return fmt.Errorf("simulation_policy must be %q or %q, got %q", "advisory", "gating", c.SimulationPolicy)
	}
	if c.PollIntervalMS <= 0 {
		return fmt.Errorf("poll_interval_ms must be positive")
	}
	if c.CallbackTimeoutS <= 0 {
		return fmt.Errorf("callback_timeout_s must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	return nil
}

// PollInterval returns the poll interval as a duration
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// CallbackTimeout returns the callback timeout as a duration
func (c *Config) CallbackTimeout() time.Duration {
	return time.Duration(c.CallbackTimeoutS) * time.Second
}
