package models

import "time"

// RunState represents the scheduler's lifecycle state
type RunState string

const (
	StateIdle      RunState = "idle"
	StateRunning   RunState = "running"
	StatePaused    RunState = "paused"
	StateCompleted RunState = "completed"
	StateFailed    RunState = "failed"
)

// Terminal reports whether the state admits no further transitions.
func (s RunState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// CheckpointVersion is the current serialization version for Checkpoint records.
const CheckpointVersion = 1

// RunConfig is the immutable configuration snapshot for one scheduling run
type RunConfig struct {
	MaxHours             float64 `json:"max_hours"`
	MinBatteryLevel      int     `json:"min_battery_level"`
	MaxTemperatureC      float64 `json:"max_temperature_c"`
	PauseBetweenItemsMs  int     `json:"pause_between_items_ms"`
	CooldownMs           int     `json:"cooldown_ms"`
	IterationsPerProblem int     `json:"iterations_per_problem"`
	ProblemRangeStart    int     `json:"problem_range_start"`
	ProblemRangeEnd      int     `json:"problem_range_end"`
}

// JointRunConfig extends RunConfig with batching parameters for multi-mode sweeps
type JointRunConfig struct {
	RunConfig
	BatchSize int    `json:"batch_size"`
	Modes     []Mode `json:"modes"`
}

// RunningStats tracks cumulative statistics carried inside a checkpoint
type RunningStats struct {
	AvgTTFTMs             float64 `json:"avg_ttft_ms"`
	AvgTPS                float64 `json:"avg_tps"`
	ThermalThrottleEvents int     `json:"thermal_throttle_events"`
	BatteryPauseEvents    int     `json:"battery_pause_events"`
}

// Checkpoint represents the durable state of one scheduling run. It is
// overwritten in place on every persist and removed when the run reaches a
// terminal state.
type Checkpoint struct {
	Version   int    `json:"version"`
	SessionID string `json:"session_id"` // UUID for this run
	ModelID   string `json:"model_id"`
	Mode      Mode   `json:"mode"` // current mode within a joint run

	Config RunConfig `json:"config"`

	// CompletedProblemIDs only grows within a run; a problem id appears at
	// most once.
	CompletedProblemIDs map[int]bool `json:"completed_problem_ids"`
	CurrentProblemID    *int         `json:"current_problem_id,omitempty"`

	State       RunState `json:"state"`
	PauseReason string   `json:"pause_reason,omitempty"`

	CreatedAt   time.Time `json:"created_at"`    // when the run started
	LastSavedAt time.Time `json:"last_saved_at"` // last persist time

	TokensGenerated      int64   `json:"tokens_generated"`
	EnergyConsumedJoules float64 `json:"energy_consumed_joules"`

	Stats RunningStats `json:"stats"`

	ConfigHash string `json:"config_hash"` // for mismatch detection on resume
}

// CompletedCount returns the number of fully completed problems.
func (c *Checkpoint) CompletedCount() int {
	return len(c.CompletedProblemIDs)
}

// Deadline returns the wall-clock instant after which the run must complete.
func (c *Checkpoint) Deadline() time.Time {
	return c.CreatedAt.Add(time.Duration(c.Config.MaxHours * float64(time.Hour)))
}
