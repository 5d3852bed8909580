package models

import "time"

// Mode represents an evaluation mode applied to each benchmark problem
type Mode string

const (
	// ModeStandard generates a solution with a plain completion request
	ModeStandard Mode = "standard"
	// ModeToolUse advertises the builtin tools and allows one tool round per problem
	ModeToolUse Mode = "tool_use"
	// ModeReasoning requests the reasoning channel and strips it before extraction
	ModeReasoning Mode = "reasoning"
)

// ParseMode validates a mode string from config or CLI input.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeStandard, ModeToolUse, ModeReasoning:
		return Mode(s), true
	}
	return "", false
}

// WorkItem is the atomic unit of execution: one iteration of one problem in one mode
type WorkItem struct {
	ProblemID int
	Mode      Mode
	Iteration int
}

// TestCase represents a single input/expected-output assertion for a problem
type TestCase struct {
	Input    string `json:"input"`
	Expected string `json:"expected"`
}

// Problem represents one coding-benchmark problem from the dataset
type Problem struct {
	ID           int        `json:"id"`
	Title        string     `json:"title,omitempty"`
	Description  string     `json:"description"`
	FunctionName string     `json:"function_name,omitempty"`
	Tests        []TestCase `json:"tests"`
}

// TestOutcome represents the result of running one test case against a solution
type TestOutcome struct {
	Passed bool   `json:"passed"`
	Error  string `json:"error,omitempty"`
}

// Evaluation represents the evaluator's verdict for one emitted solution
type Evaluation struct {
	Success      bool          `json:"success"`
	TestOutcomes []TestOutcome `json:"test_outcomes"`
}

// ProblemResult represents one evaluated work item. It is append-only: once
// added to a session it is never mutated.
type ProblemResult struct {
	ProblemID     int               `json:"problem_id"`
	Iteration     int               `json:"iteration"`
	StartTime     time.Time         `json:"start_time"`
	EndTime       time.Time         `json:"end_time"`
	RawResponse   string            `json:"raw_response,omitempty"`
	ExtractedCode string            `json:"extracted_code,omitempty"`
	TestOutcomes  []TestOutcome     `json:"test_outcomes,omitempty"`
	Success       bool              `json:"success"`
	FailureReason string            `json:"failure_reason,omitempty"`
	Metrics       GenerationMetrics `json:"metrics"`
}

// ResourceSnapshot represents point-in-time device telemetry. BatteryPercent
// is -1 when the platform does not expose a battery reading.
type ResourceSnapshot struct {
	TakenAt           time.Time `json:"taken_at"`
	BatteryPercent    int       `json:"battery_percent"`
	TemperatureC      float64   `json:"temperature_c"`
	MemoryUsedMB      float64   `json:"memory_used_mb"`
	MemoryAvailableMB float64   `json:"memory_available_mb"`
	CPUPercent        float64   `json:"cpu_percent"`
	PowerWatts        float64   `json:"power_watts,omitempty"`
}

// Session represents one benchmark run over a problem range in a single mode.
// It is the unit of export and the unit consumed by the analysis engine.
type Session struct {
	ID               string             `json:"id"`
	ModelID          string             `json:"model_id"`
	Mode             Mode               `json:"mode"`
	StartTime        time.Time          `json:"start_time"`
	EndTime          *time.Time         `json:"end_time,omitempty"`
	Problems         []ProblemResult    `json:"problems"`
	Snapshots        []ResourceSnapshot `json:"snapshots,omitempty"`
	FailedProblemIDs map[int]bool       `json:"failed_problem_ids,omitempty"`
}

// SuccessCount returns the number of fully passing problem results.
func (s *Session) SuccessCount() int {
	n := 0
	for i := range s.Problems {
		if s.Problems[i].Success {
			n++
		}
	}
	return n
}

// TotalTokens sums generated token counts across all problem results.
func (s *Session) TotalTokens() int64 {
	var n int64
	for i := range s.Problems {
		n += int64(s.Problems[i].Metrics.TokenCount)
	}
	return n
}

// DropResultsFor removes any results recorded for the given problem. Used when
// a problem interrupted mid-iteration is re-run from scratch on resume, so the
// session never carries partial credit.
func (s *Session) DropResultsFor(problemID int) {
	kept := s.Problems[:0]
	for i := range s.Problems {
		if s.Problems[i].ProblemID != problemID {
			kept = append(kept, s.Problems[i])
		}
	}
	s.Problems = kept
	delete(s.FailedProblemIDs, problemID)
}
