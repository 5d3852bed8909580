package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Load reads and parses the configuration file and environment variables
func Load(configPath string) (*Config, *Secrets, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cfg.ValidateInputs(); err != nil {
		return nil, nil, fmt.Errorf("input validation failed: %w", err)
	}

	secrets, err := LoadSecrets()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load secrets: %w", err)
	}

	return &cfg, secrets, nil
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.Run.Mode == "" {
		cfg.Run.Mode = "standard"
	}
	if cfg.Run.IterationsPerProblem == 0 {
		cfg.Run.IterationsPerProblem = 1
	}
	if cfg.Run.MaxHours == 0 {
		cfg.Run.MaxHours = 6.0
	}

	if cfg.Resources.MinBatteryLevel == 0 {
		cfg.Resources.MinBatteryLevel = 20
	}
	if cfg.Resources.MaxTemperatureC == 0 {
		cfg.Resources.MaxTemperatureC = 42.0
	}
	if cfg.Resources.CooldownMs == 0 {
		cfg.Resources.CooldownMs = 30000 // 30s to shed heat
	}
	if cfg.Resources.PollIntervalSeconds == 0 {
		cfg.Resources.PollIntervalSeconds = 15
	}

	if cfg.Joint.BatchSize == 0 {
		cfg.Joint.BatchSize = 10
	}
	if len(cfg.Joint.Modes) == 0 {
		cfg.Joint.Modes = []string{"standard"}
	}

	if cfg.Engine.Temperature == 0 {
		cfg.Engine.Temperature = 0.2
	}
	if cfg.Engine.TopP == 0 {
		cfg.Engine.TopP = 0.95
	}
	if cfg.Engine.MaxOutputTokens == 0 {
		cfg.Engine.MaxOutputTokens = 2048
	}
	if cfg.Engine.MaxBackoffSeconds == 0 {
		cfg.Engine.MaxBackoffSeconds = 120
	}
	// NOTE: in TOML we can't distinguish 0 from unset, so:
	// - Unset (0) defaults to 3
	// - Explicitly -1 means unlimited retries
	if cfg.Engine.MaxRetries == 0 {
		cfg.Engine.MaxRetries = 3
	}

	if cfg.Dataset.Language == "" {
		cfg.Dataset.Language = "python"
	}

	if cfg.Evaluator.Kind == "" {
		cfg.Evaluator.Kind = "exec"
	}
	if cfg.Evaluator.Command == "" && cfg.Evaluator.Kind == "exec" {
		cfg.Evaluator.Command = "python3"
	}
	if cfg.Evaluator.TimeoutSeconds == 0 {
		cfg.Evaluator.TimeoutSeconds = 10
	}

	if cfg.Checkpoint.Interval == 0 {
		cfg.Checkpoint.Interval = 5
	}

	if cfg.Storage.Path == "" {
		cfg.Storage.Path = ".edgebench"
	}

	if cfg.Output.Dir == "" {
		cfg.Output.Dir = "output"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}
