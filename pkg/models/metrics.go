package models

// GenerationMetricsVersion is the current serialization version for the
// per-item metrics payload.
const GenerationMetricsVersion = 1

// ToolCallRecord represents the timing breakdown of one tool invocation
type ToolCallRecord struct {
	ToolName  string  `json:"tool_name"`
	PrepMs    float64 `json:"prep_ms"`    // stream arrival to execution start
	ExecMs    float64 `json:"exec_ms"`    // tool execution proper
	ProcessMs float64 `json:"process_ms"` // wall time minus execution
	TotalMs   float64 `json:"total_ms"`   // wall time from call start
}

// GenerationMetrics represents the typed per-item timing payload. TTFTValid
// and TPSValid distinguish "zero" from "never measured": a generation that
// produced a single token has a TTFT but no defined tokens-per-second.
type GenerationMetrics struct {
	Version      int              `json:"version"`
	TokenCount   int              `json:"token_count"`
	TotalTimeMs  float64          `json:"total_time_ms"`
	TTFTMs       float64          `json:"ttft_ms"`
	TTFTValid    bool             `json:"ttft_valid"`
	TPS          float64          `json:"tps"`
	TPSValid     bool             `json:"tps_valid"`
	InterTokenMs []float64        `json:"inter_token_ms,omitempty"`
	ToolCalls    []ToolCallRecord `json:"tool_calls,omitempty"`
	EnergyJoules float64          `json:"energy_joules,omitempty"`
	AvgCPUPct    float64          `json:"avg_cpu_pct,omitempty"`
	PeakMemoryMB float64          `json:"peak_memory_mb,omitempty"`
}
