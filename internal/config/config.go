package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/edgebench/edgebench/pkg/models"
)

// Config represents the complete application configuration
type Config struct {
	Run        RunSettings        `toml:"run"`
	Resources  ResourceSettings   `toml:"resources"`
	Joint      JointSettings      `toml:"joint"`
	Engine     EngineSettings     `toml:"engine"`
	Dataset    DatasetSettings    `toml:"dataset"`
	Evaluator  EvaluatorSettings  `toml:"evaluator"`
	Checkpoint CheckpointSettings `toml:"checkpoint"`
	Storage    StorageSettings    `toml:"storage"`
	Output     OutputSettings     `toml:"output"`
	Metrics    MetricsSettings    `toml:"metrics"`
	Logging    LoggingSettings    `toml:"logging"`
}

// RunSettings holds parameters for a single benchmark run
type RunSettings struct {
	ModelID              string  `toml:"model_id"`
	Mode                 string  `toml:"mode"`                   // standard, tool_use, reasoning
	IterationsPerProblem int     `toml:"iterations_per_problem"` // samples per problem (pass@k needs >1)
	ProblemRangeStart    int     `toml:"problem_range_start"`
	ProblemRangeEnd      int     `toml:"problem_range_end"`
	MaxHours             float64 `toml:"max_hours"` // wall-clock budget for the whole run
	PauseBetweenItemsMs  int     `toml:"pause_between_items_ms"`
}

// ResourceSettings holds the admission gate thresholds
type ResourceSettings struct {
	MinBatteryLevel     int     `toml:"min_battery_level"` // percent; run pauses below this
	MaxTemperatureC     float64 `toml:"max_temperature_c"`
	CooldownMs          int     `toml:"cooldown_ms"`           // sleep before the single thermal retry
	PollIntervalSeconds int     `toml:"poll_interval_seconds"` // background telemetry cadence
}

// JointSettings holds batching parameters for multi-mode sweeps
type JointSettings struct {
	BatchSize int      `toml:"batch_size"`
	Modes     []string `toml:"modes"`
}

// EngineSettings configures the inference engine endpoint
type EngineSettings struct {
	BaseURL                  string  `toml:"base_url"`
	Temperature              float64 `toml:"temperature"`
	TopP                     float64 `toml:"top_p"`
	MaxOutputTokens          int     `toml:"max_output_tokens"`
	RateLimitPerMinute       int     `toml:"rate_limit_per_minute"`      // 0 disables request pacing
	MaxRetries               int     `toml:"max_retries"`                // -1 = unlimited
	MaxBackoffSeconds        int     `toml:"max_backoff_seconds"`
	HTTPTimeoutSeconds       int     `toml:"http_timeout_seconds"`       // transport timeout, 0 = none
	GenerationTimeoutSeconds int     `toml:"generation_timeout_seconds"` // per-generation budget, 0 = none
}

// DatasetSettings locates the problem set
type DatasetSettings struct {
	Path     string `toml:"path"`     // JSONL, one problem per line
	Language string `toml:"language"` // language tag for code extraction
}

// EvaluatorSettings selects and configures the solution evaluator
type EvaluatorSettings struct {
	Kind           string `toml:"kind"`    // exec or judge
	Command        string `toml:"command"` // interpreter for exec evaluation
	TimeoutSeconds int    `toml:"timeout_seconds"`
	JudgeModel     string `toml:"judge_model"` // model id for judge verdicts
}

// CheckpointSettings controls run checkpointing. Checkpointing is on unless
// explicitly disabled.
type CheckpointSettings struct {
	Disabled bool `toml:"disabled"`
	Interval int  `toml:"interval"` // persist every N completed problems
}

// StorageSettings configures the durable key/value store
type StorageSettings struct {
	Path     string `toml:"path"`
	InMemory bool   `toml:"in_memory"` // volatile store, useful for dry runs
}

// OutputSettings configures session artifact export
type OutputSettings struct {
	Dir string `toml:"dir"`
}

// MetricsSettings configures optional Prometheus exposition
type MetricsSettings struct {
	ListenAddr string `toml:"listen_addr"` // e.g. ":9090"; empty disables the listener
}

// LoggingSettings configures log verbosity
type LoggingSettings struct {
	Level string `toml:"level"` // debug, info, warn, error
}

// Secrets holds sensitive credentials loaded from environment variables
type Secrets struct {
	APIKeys map[string]string
}

const (
	// MaxIterationsPerProblem bounds the per-problem sample count
	MaxIterationsPerProblem = 100
	// MaxBatchSize bounds the joint batch width
	MaxBatchSize = 1000
	// MaxRangeWidth bounds a single run's problem range
	MaxRangeWidth = 100000
)

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Run.ModelID == "" {
		return fmt.Errorf("run.model_id is required")
	}
	if _, ok := models.ParseMode(c.Run.Mode); !ok {
		return fmt.Errorf("run.mode must be one of: standard, tool_use, reasoning (got %s)", c.Run.Mode)
	}
	if c.Run.IterationsPerProblem < 1 {
		return fmt.Errorf("run.iterations_per_problem must be at least 1")
	}
	if c.Run.IterationsPerProblem > MaxIterationsPerProblem {
		return fmt.Errorf("run.iterations_per_problem must not exceed %d (got %d)", MaxIterationsPerProblem, c.Run.IterationsPerProblem)
	}
	if c.Run.ProblemRangeStart < 0 {
		return fmt.Errorf("run.problem_range_start must not be negative")
	}
	if c.Run.ProblemRangeEnd < c.Run.ProblemRangeStart {
		return fmt.Errorf("run.problem_range_end (%d) must not be below problem_range_start (%d)", c.Run.ProblemRangeEnd, c.Run.ProblemRangeStart)
	}
	if width := c.Run.ProblemRangeEnd - c.Run.ProblemRangeStart + 1; width > MaxRangeWidth {
		return fmt.Errorf("problem range spans %d ids, exceeding the maximum of %d", width, MaxRangeWidth)
	}
	if c.Run.MaxHours <= 0 {
		return fmt.Errorf("run.max_hours must be positive (got %.2f)", c.Run.MaxHours)
	}
	if c.Run.PauseBetweenItemsMs < 0 {
		return fmt.Errorf("run.pause_between_items_ms must not be negative")
	}

	if c.Resources.MinBatteryLevel < 0 || c.Resources.MinBatteryLevel > 100 {
		return fmt.Errorf("resources.min_battery_level must be between 0 and 100 (got %d)", c.Resources.MinBatteryLevel)
	}
	if c.Resources.MaxTemperatureC <= 0 {
		return fmt.Errorf("resources.max_temperature_c must be positive (got %.1f)", c.Resources.MaxTemperatureC)
	}
	if c.Resources.CooldownMs < 0 {
		return fmt.Errorf("resources.cooldown_ms must not be negative")
	}
	if c.Resources.PollIntervalSeconds < 1 {
		return fmt.Errorf("resources.poll_interval_seconds must be at least 1")
	}

	if c.Joint.BatchSize < 1 {
		return fmt.Errorf("joint.batch_size must be at least 1")
	}
	if c.Joint.BatchSize > MaxBatchSize {
		return fmt.Errorf("joint.batch_size must not exceed %d (got %d)", MaxBatchSize, c.Joint.BatchSize)
	}
	for _, m := range c.Joint.Modes {
		if _, ok := models.ParseMode(m); !ok {
			return fmt.Errorf("joint.modes contains unknown mode %q", m)
		}
	}

	if c.Engine.BaseURL == "" {
		return fmt.Errorf("engine.base_url is required")
	}
	if c.Engine.Temperature < 0 || c.Engine.Temperature > 2 {
		return fmt.Errorf("engine.temperature must be between 0 and 2")
	}
	if c.Engine.TopP < 0 || c.Engine.TopP > 1 {
		return fmt.Errorf("engine.top_p must be between 0 and 1")
	}
	if c.Engine.MaxOutputTokens < 1 {
		return fmt.Errorf("engine.max_output_tokens must be at least 1")
	}
	if c.Engine.RateLimitPerMinute < 0 {
		return fmt.Errorf("engine.rate_limit_per_minute must not be negative")
	}
	if c.Engine.MaxRetries < -1 {
		return fmt.Errorf("engine.max_retries must be -1 (unlimited) or non-negative")
	}
	if c.Engine.GenerationTimeoutSeconds < 0 {
		return fmt.Errorf("engine.generation_timeout_seconds must not be negative")
	}

	if c.Dataset.Path == "" {
		return fmt.Errorf("dataset.path is required")
	}

	switch c.Evaluator.Kind {
	case "exec":
		if c.Evaluator.Command == "" {
			return fmt.Errorf("evaluator.command is required for kind=exec")
		}
	case "judge":
		if c.Evaluator.JudgeModel == "" {
			return fmt.Errorf("evaluator.judge_model is required for kind=judge")
		}
	default:
		return fmt.Errorf("evaluator.kind must be exec or judge (got %s)", c.Evaluator.Kind)
	}
	if c.Evaluator.TimeoutSeconds < 1 {
		return fmt.Errorf("evaluator.timeout_seconds must be at least 1")
	}

	if c.Checkpoint.Interval < 1 {
		return fmt.Errorf("checkpoint.interval must be at least 1")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error (got %s)", c.Logging.Level)
	}

	return nil
}

// RunConfig builds the immutable run snapshot embedded in checkpoints.
func (c *Config) RunConfig() models.RunConfig {
	return models.RunConfig{
		MaxHours:             c.Run.MaxHours,
		MinBatteryLevel:      c.Resources.MinBatteryLevel,
		MaxTemperatureC:      c.Resources.MaxTemperatureC,
		PauseBetweenItemsMs:  c.Run.PauseBetweenItemsMs,
		CooldownMs:           c.Resources.CooldownMs,
		IterationsPerProblem: c.Run.IterationsPerProblem,
		ProblemRangeStart:    c.Run.ProblemRangeStart,
		ProblemRangeEnd:      c.Run.ProblemRangeEnd,
	}
}

// JointRunConfig builds the batched sweep configuration.
func (c *Config) JointRunConfig() models.JointRunConfig {
	modes := make([]models.Mode, 0, len(c.Joint.Modes))
	for _, m := range c.Joint.Modes {
		if mode, ok := models.ParseMode(m); ok {
			modes = append(modes, mode)
		}
	}
	return models.JointRunConfig{
		RunConfig: c.RunConfig(),
		BatchSize: c.Joint.BatchSize,
		Modes:     modes,
	}
}

// LoadSecrets loads sensitive credentials from environment variables
func LoadSecrets() (*Secrets, error) {
	secrets := &Secrets{
		APIKeys: make(map[string]string),
	}

	// Generic key for any OpenAI-compatible endpoint
	if key := os.Getenv("API_KEY"); key != "" {
		secrets.APIKeys["generic"] = key
	}
	// Engine-specific key overrides the generic one
	if key := os.Getenv("EDGEBENCH_API_KEY"); key != "" {
		secrets.APIKeys["engine"] = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		secrets.APIKeys["openai"] = key
	}

	return secrets, nil
}

// GetAPIKey returns the API key for a given base URL
func (s *Secrets) GetAPIKey(baseURL string) string {
	if key := s.APIKeys["engine"]; key != "" {
		return key
	}
	if strings.Contains(baseURL, "openai.com") {
		if key := s.APIKeys["openai"]; key != "" {
			return key
		}
	}
	if key := s.APIKeys["generic"]; key != "" {
		return key
	}
	// Local servers commonly run without auth
	return ""
}
