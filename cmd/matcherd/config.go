// config.go - Configuration management for the matcher daemon
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the daemon configuration
type Config struct {
	// Identity and network
	NodeID        string `json:"node_id"`
	ListenAddress string `json:"listen_address"`
	AdminAddress  string `json:"admin_address"`

	// File paths
	StoreDir string `json:"store_dir"`
	KeyDir   string `json:"key_dir"`

	// Chain pacing
	BlockIntervalMS int `json:"block_interval_ms"`
	MatchIntervalMS int `json:"match_interval_ms"`

	// Logging
	LogLevel string `json:"log_level"`
	LogFile  string `json:"log_file"`

	// Rate limiting per peer
	RateLimitTokens int `json:"rate_limit_tokens"`
	RateLimitRefill int `json:"rate_limit_refill"`

	// Security
	EnableAudit  bool   `json:"enable_audit"`
	AuditLogPath string `json:"audit_log_path"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		NodeID:          "matcher",
		ListenAddress:   "127.0.0.1:7747",
		AdminAddress:    "127.0.0.1:7748",
		StoreDir:        "matcher_store",
		KeyDir:          "keys",
		BlockIntervalMS: 1000,
		MatchIntervalMS: 250,
		LogLevel:        "info",
		LogFile:         "matcher.log",
		RateLimitTokens: 20,
		RateLimitRefill: 5,
		EnableAudit:     true,
		AuditLogPath:    "audit.log",
	}
}

// LoadConfig loads configuration from file or creates default
func LoadConfig(configPath string) (*Config, error) {
	// Try to load from file
	if _, err := os.Stat(configPath); err == nil {
		file, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer file.Close()

		var config Config
		if err := json.NewDecoder(file).Decode(&config); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}

		return &config, nil
	}

	// Create default config and save it
	config := DefaultConfig()
	if err := SaveConfig(config, configPath); err != nil {
		return nil, fmt.Errorf("failed to save default config: %w", err)
	}

	return config, nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *Config, configPath string) error {
	// Ensure directory exists
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("node_id must be set")
	}
	if c.ListenAddress == "" {
		return fmt.Errorf("listen_address must be set")
	}
	if c.BlockIntervalMS <= 0 {
		return fmt.Errorf("block_interval_ms must be positive")
	}
	if c.MatchIntervalMS <= 0 {
		return fmt.Errorf("match_interval_ms must be positive")
	}
	if c.RateLimitTokens <= 0 {
		return fmt.Errorf("rate_limit_tokens must be positive")
	}
	if c.RateLimitRefill <= 0 {
		return fmt.Errorf("rate_limit_refill must be positive")
	}
	return nil
}
