package models

import "time"

// SessionExportRecord tracks where one batch session was exported so the
// combine pass can re-hydrate it after eviction.
type SessionExportRecord struct {
	SessionID  string `json:"session_id"`
	ModelID    string `json:"model_id"`
	Mode       Mode   `json:"mode"`
	BatchStart int    `json:"batch_start"`
	BatchEnd   int    `json:"batch_end"`
	Path       string `json:"path"`
	Problems   int    `json:"problems"`
	Successes  int    `json:"successes"`
}

// ModeAggregate summarizes all batch sessions that ran one mode
type ModeAggregate struct {
	Mode        Mode    `json:"mode"`
	Problems    int     `json:"problems"`
	Successes   int     `json:"successes"`
	SuccessRate float64 `json:"success_rate"`
	AvgTTFTMs   float64 `json:"avg_ttft_ms"`
	AvgTPS      float64 `json:"avg_tps"`
	Tokens      int64   `json:"tokens"`
}

// JointSummary is the combined artifact for a joint run. Complete is set only
// after the summary itself has been durably exported; consumers must not
// observe completion before that write succeeds.
type JointSummary struct {
	ModelID        string                `json:"model_id"`
	StartTime      time.Time             `json:"start_time"`
	EndTime        time.Time             `json:"end_time"`
	BatchSize      int                   `json:"batch_size"`
	Modes          []Mode                `json:"modes"`
	TotalProblems  int                   `json:"total_problems"`
	TotalSuccesses int                   `json:"total_successes"`
	TotalTokens    int64                 `json:"total_tokens"`
	TotalEnergyJ   float64               `json:"total_energy_joules"`
	PerMode        []ModeAggregate       `json:"per_mode"`
	Sessions       []SessionExportRecord `json:"sessions"`
	FailedRuns     []string              `json:"failed_runs,omitempty"`
	Complete       bool                  `json:"complete"`
}
