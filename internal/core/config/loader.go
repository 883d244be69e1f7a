package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Poller.Interval == 0 {
		cfg.Poller.Interval = 5 * time.Minute
	}
	if cfg.Poller.FetchTimeout == 0 {
		cfg.Poller.FetchTimeout = 15 * time.Second
	}
	if cfg.Poller.BackfillCount == 0 {
		cfg.Poller.BackfillCount = 3
	}
	if cfg.Pipeline.BatchSize == 0 {
		cfg.Pipeline.BatchSize = 3
	}
	if cfg.Pipeline.ProcessTimeout == 0 {
		cfg.Pipeline.ProcessTimeout = 120 * time.Second
	}
	if cfg.Retry.ScanInterval == 0 {
		cfg.Retry.ScanInterval = 30 * time.Second
	}

	return &cfg, nil
}
