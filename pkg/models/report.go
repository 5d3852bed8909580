package models

import "time"

// AnomalyType identifies a class of detected performance anomaly
type AnomalyType string

const (
	AnomalyTTFTSpike   AnomalyType = "ttft_spike"
	AnomalyDegradation AnomalyType = "performance_degradation"
	AnomalyInstability AnomalyType = "latency_instability"
)

// AnomalySeverity grades a detected anomaly
type AnomalySeverity string

const (
	SeverityWarning  AnomalySeverity = "warning"
	SeverityCritical AnomalySeverity = "critical"
)

// Anomaly represents one flagged irregularity in a session's timing profile
type Anomaly struct {
	Type        AnomalyType     `json:"type"`
	Severity    AnomalySeverity `json:"severity"`
	Value       float64         `json:"value"`
	Threshold   float64         `json:"threshold"`
	Description string          `json:"description"`
}

// DistributionStats describes the pooled inter-token latency distribution
type DistributionStats struct {
	Count          int       `json:"count"`
	Mean           float64   `json:"mean"`
	Median         float64   `json:"median"`
	Mode           float64   `json:"mode"`
	BinCount       int       `json:"bin_count"`
	Variance       float64   `json:"variance"`
	StdDev         float64   `json:"std_dev"`
	Skewness       float64   `json:"skewness"`
	KurtosisExcess float64   `json:"kurtosis_excess"`
	Outliers       []float64 `json:"outliers,omitempty"`
}

// TTFTStats summarizes time-to-first-token across a session
type TTFTStats struct {
	Count    int     `json:"count"`
	MeanMs   float64 `json:"mean_ms"`
	MedianMs float64 `json:"median_ms"`
	P95Ms    float64 `json:"p95_ms"`
	P99Ms    float64 `json:"p99_ms"`
}

// TPSStats summarizes decode throughput across a session. Stability is
// 1 - (stddev/mean), clamped to [0,1].
type TPSStats struct {
	Count     int     `json:"count"`
	Mean      float64 `json:"mean"`
	Median    float64 `json:"median"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Stability float64 `json:"stability"`
}

// InterTokenStats summarizes the inter-token latency profile. Jitter is the
// RMS of consecutive absolute differences; burstiness is p99/median;
// consistency is 1 - (stddev/mean), clamped to [0,1].
type InterTokenStats struct {
	Count       int     `json:"count"`
	P50Ms       float64 `json:"p50_ms"`
	P75Ms       float64 `json:"p75_ms"`
	P90Ms       float64 `json:"p90_ms"`
	P95Ms       float64 `json:"p95_ms"`
	P99Ms       float64 `json:"p99_ms"`
	JitterMs    float64 `json:"jitter_ms"`
	Burstiness  float64 `json:"burstiness"`
	Consistency float64 `json:"consistency"`
}

// CorrelationStats holds Pearson correlations between generation length and
// latency. The Valid flags are false when the underlying series were
// degenerate (fewer than two points or zero variance).
type CorrelationStats struct {
	TokensVsLatency        float64 `json:"tokens_vs_latency"`
	TokensVsLatencyValid   bool    `json:"tokens_vs_latency_valid"`
	PositionVsLatency      float64 `json:"position_vs_latency"`
	PositionVsLatencyValid bool    `json:"position_vs_latency_valid"`
	PositionProblems       int     `json:"position_problems"` // problems with >5 samples contributing
}

// StatisticalReport is derived on demand from one session and never stored as
// ground truth.
type StatisticalReport struct {
	SessionID    string            `json:"session_id"`
	ModelID      string            `json:"model_id"`
	Mode         Mode              `json:"mode"`
	GeneratedAt  time.Time         `json:"generated_at"`
	ProblemCount int               `json:"problem_count"`
	SuccessCount int               `json:"success_count"`
	Distribution DistributionStats `json:"distribution"`
	TTFT         TTFTStats         `json:"ttft"`
	TPS          TPSStats          `json:"tps"`
	InterToken   InterTokenStats   `json:"inter_token"`
	Anomalies    []Anomaly         `json:"anomalies,omitempty"`
	Correlations CorrelationStats  `json:"correlations"`
	PassAtK      map[int]float64   `json:"pass_at_k,omitempty"`
}
