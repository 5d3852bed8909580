package metrics

import (
	"log/slog"
	"time"

	"github.com/edgebench/edgebench/pkg/models"
)

// Recorder accumulates latency samples for a single work item. The run loop
// owns it exclusively; it is not safe for concurrent use.
type Recorder struct {
	logger *slog.Logger

	startAt      time.Time
	firstTokenAt time.Time
	lastTokenAt  time.Time
	hasFirst     bool
	tokenCount   int
	interTokenMs []float64

	toolStack []toolCallFrame
	toolCalls []models.ToolCallRecord
}

type toolCallFrame struct {
	name    string
	startAt time.Time
	execAt  time.Time
	hasExec bool
}

// NewRecorder creates a recorder for one work item
func NewRecorder(logger *slog.Logger) *Recorder {
	return &Recorder{logger: logger}
}

// Begin marks the start of the generation. Time-to-first-token is measured
// from here.
func (r *Recorder) Begin() {
	r.startAt = time.Now()
}

// FirstToken records the arrival of the first token. Repeat calls are
// ignored, so time-to-first-token is recorded exactly once.
func (r *Recorder) FirstToken(at time.Time) {
	if r.hasFirst {
		return
	}
	r.hasFirst = true
	r.firstTokenAt = at
	r.lastTokenAt = at
	r.tokenCount = 1
}

// Token records a token arrival. The first call establishes the
// time-to-first-token; each subsequent call appends one inter-token gap.
func (r *Recorder) Token(at time.Time) {
	if !r.hasFirst {
		r.FirstToken(at)
		return
	}
	gap := at.Sub(r.lastTokenAt)
	r.interTokenMs = append(r.interTokenMs, float64(gap.Microseconds())/1000.0)
	r.lastTokenAt = at
	r.tokenCount++
}

// StartToolCall pushes a tool invocation onto the timing stack
func (r *Recorder) StartToolCall(name string) {
	r.toolStack = append(r.toolStack, toolCallFrame{name: name, startAt: time.Now()})
}

// MarkToolExec stamps the moment execution begins for the innermost tool
// call; the span since StartToolCall becomes its preparation time
func (r *Recorder) MarkToolExec() {
	if len(r.toolStack) == 0 {
		r.logger.Warn("Tool exec mark without matching start")
		return
	}
	frame := &r.toolStack[len(r.toolStack)-1]
	frame.execAt = time.Now()
	frame.hasExec = true
}

// EndToolCall pops the innermost tool call and derives its timing record
// from the measured execution time. An unmatched call is logged and ignored
// rather than failing the item.
func (r *Recorder) EndToolCall(execMs float64) {
	if len(r.toolStack) == 0 {
		r.logger.Warn("Tool call end without matching start", "exec_ms", execMs)
		return
	}

	frame := r.toolStack[len(r.toolStack)-1]
	r.toolStack = r.toolStack[:len(r.toolStack)-1]

	totalMs := float64(time.Since(frame.startAt).Microseconds()) / 1000.0
	prepMs := 0.0
	if frame.hasExec {
		prepMs = float64(frame.execAt.Sub(frame.startAt).Microseconds()) / 1000.0
	}

	r.toolCalls = append(r.toolCalls, models.ToolCallRecord{
		ToolName:  frame.name,
		PrepMs:    prepMs,
		ExecMs:    execMs,
		ProcessMs: totalMs - execMs,
		TotalMs:   totalMs,
	})
}

// Finalize closes the recording and derives the generation metrics.
// Tokens-per-second is only defined when more than one token arrived; a
// zero- or one-token generation leaves TPSValid false instead of dividing
// by zero.
func (r *Recorder) Finalize() models.GenerationMetrics {
	m := models.GenerationMetrics{
		Version:      models.GenerationMetricsVersion,
		TokenCount:   r.tokenCount,
		TotalTimeMs:  float64(time.Since(r.startAt).Microseconds()) / 1000.0,
		InterTokenMs: r.interTokenMs,
		ToolCalls:    r.toolCalls,
	}

	if r.hasFirst {
		m.TTFTValid = true
		m.TTFTMs = float64(r.firstTokenAt.Sub(r.startAt).Microseconds()) / 1000.0
	}

	if r.tokenCount > 1 {
		span := r.lastTokenAt.Sub(r.firstTokenAt)
		if span > 0 {
			m.TPSValid = true
			m.TPS = float64(r.tokenCount-1) / span.Seconds()
		}
	}

	if len(r.toolStack) > 0 {
		r.logger.Warn("Tool calls left open at finalize", "open", len(r.toolStack))
	}

	return m
}
