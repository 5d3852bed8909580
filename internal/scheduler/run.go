package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/edgebench/edgebench/internal/checkpoint"
	"github.com/edgebench/edgebench/internal/evaluator"
	"github.com/edgebench/edgebench/internal/inference"
	"github.com/edgebench/edgebench/internal/metrics"
	"github.com/edgebench/edgebench/internal/util"
	"github.com/edgebench/edgebench/pkg/models"
)

// runLoop executes pending problems until the range is exhausted, the time
// budget runs out, admission denies the next item, or the run is cancelled.
// It owns every terminal transition except the one made by Stop.
func (s *Scheduler) runLoop(ctx context.Context, mgr *checkpoint.Manager) {
	cp := mgr.Checkpoint()
	runCfg := cp.Config
	deadline := cp.Deadline()

	if err := s.engine.LoadModel(ctx, cp.ModelID); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.failRun(mgr, fmt.Sprintf("model load failed: %v", err))
		return
	}

	problems, err := s.provider.ProblemsInRange(runCfg.ProblemRangeStart, runCfg.ProblemRangeEnd)
	if err != nil {
		s.failRun(mgr, fmt.Sprintf("dataset read failed: %v", err))
		return
	}

	pending := make([]models.Problem, 0, len(problems))
	for _, p := range problems {
		if !cp.CompletedProblemIDs[p.ID] {
			pending = append(pending, p)
		}
	}

	// a problem interrupted mid-iteration re-runs from scratch
	if cp.CurrentProblemID != nil {
		s.dropResults(*cp.CurrentProblemID)
	}

	if len(pending) == 0 {
		s.completeRun(mgr, reasonAllCompleted)
		return
	}

	pollCtx, stopPoller := context.WithCancel(ctx)
	defer stopPoller()
	pollInterval := time.Duration(s.cfg.Resources.PollIntervalSeconds) * time.Second
	go s.admission.Poll(pollCtx, runCfg, pollInterval, func(reason string) {
		if err := s.Pause(reason); err != nil {
			s.logger.Error("Failed to pause from background check", "error", err)
		}
	})

	s.logger.Info("Run loop entered",
		"pending", len(pending),
		"completed", cp.CompletedCount())
	bar := progressbar.Default(int64(len(pending)), "benchmarking")

	for _, problem := range pending {
		if ctx.Err() != nil {
			return
		}
		if mgr.Checkpoint().State != models.StateRunning {
			s.logger.Info("Run loop exiting on pause")
			return
		}
		if time.Now().After(deadline) {
			s.completeRun(mgr, reasonMaxTime)
			return
		}

		ok, reason := s.admission.Gate(ctx, runCfg)
		if ctx.Err() != nil {
			return
		}
		if !ok {
			s.pauseFromLoop(mgr, reason)
			return
		}
		s.noteSnapshot()

		mgr.SetCurrentProblem(problem.ID)
		var problemTokens int64
		var problemEnergy float64

		for iteration := 0; iteration < runCfg.IterationsPerProblem; iteration++ {
			if ctx.Err() != nil {
				return
			}
			if mgr.Checkpoint().State != models.StateRunning {
				s.logger.Info("Run loop exiting on pause", "problem_id", problem.ID)
				return
			}

			result := s.runWorkItem(ctx, problem, iteration, cp.ModelID, cp.Mode)
			if ctx.Err() != nil {
				// cancelled mid-item: the partial result is discarded and
				// the whole problem re-runs on resume
				return
			}

			s.appendResult(result)
			s.collector.RecordGeneration(cp.ModelID, cp.Mode, result.Metrics)
			s.collector.RecordProblem(cp.ModelID, cp.Mode, result.Success)
			problemTokens += int64(result.Metrics.TokenCount)
			problemEnergy += result.Metrics.EnergyJoules

			s.logger.Debug("Work item finished",
				"problem_id", problem.ID,
				"iteration", iteration,
				"success", result.Success,
				"ttft_ms", result.Metrics.TTFTMs,
				"tps", result.Metrics.TPS)

			sleepContext(ctx, time.Duration(runCfg.PauseBetweenItemsMs)*time.Millisecond)
		}

		if err := mgr.MarkProblemComplete(problem.ID, problemTokens, problemEnergy, s.runningStats()); err != nil {
			s.logger.Warn("Failed to checkpoint completed problem", "problem_id", problem.ID, "error", err)
		}
		_ = bar.Add(1)
	}

	s.completeRun(mgr, reasonAllCompleted)
}

// runWorkItem executes one iteration of one problem: builds the prompt,
// streams the generation, runs the tool round when the model asks for it,
// extracts the code and evaluates it. Failures land in the result; they
// never abort the run.
func (s *Scheduler) runWorkItem(ctx context.Context, problem models.Problem, iteration int, modelID string, mode models.Mode) models.ProblemResult {
	rec := metrics.NewRecorder(s.logger)
	result := models.ProblemResult{
		ProblemID: problem.ID,
		Iteration: iteration,
		StartTime: time.Now(),
	}

	req := inference.Request{
		ModelID:  modelID,
		Mode:     mode,
		Messages: buildMessages(problem, mode, s.cfg.Dataset.Language),
	}

	rec.Begin()
	final, toolCalls, err := s.streamOnce(ctx, rec, req)
	if err == nil && mode == models.ModeToolUse && len(toolCalls) > 0 {
		final, err = s.runToolRound(ctx, rec, req, final, toolCalls)
	}
	if err != nil {
		result.FailureReason = fmt.Sprintf("generation failed: %v", err)
		result.Metrics = rec.Finalize()
		result.EndTime = time.Now()
		return result
	}

	result.RawResponse = final.Text
	answer := final.Text
	if mode == models.ModeReasoning {
		answer = util.StripReasoning(answer)
	}
	result.ExtractedCode = util.ExtractCode(answer, s.cfg.Dataset.Language)

	evaluation, evalErr := s.eval.Evaluate(ctx, problem, result.ExtractedCode)
	if evalErr != nil {
		result.FailureReason = fmt.Sprintf("evaluation failed: %v", evalErr)
	} else {
		result.TestOutcomes = evaluation.TestOutcomes
		result.Success = evaluation.Success
	}

	result.Metrics = rec.Finalize()
	result.EndTime = time.Now()

	// best-effort energy estimate from the latest power reading
	if snap, ok := s.admission.LastSnapshot(); ok && snap.PowerWatts > 0 {
		result.Metrics.EnergyJoules = snap.PowerWatts * result.EndTime.Sub(result.StartTime).Seconds()
	}

	return result
}

// streamOnce issues one generation request and consumes the stream to its
// final event, feeding token timings into the recorder.
func (s *Scheduler) streamOnce(ctx context.Context, rec *metrics.Recorder, req inference.Request) (*inference.Final, []inference.ToolCall, error) {
	genCtx := ctx
	if sec := s.cfg.Engine.GenerationTimeoutSeconds; sec > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, time.Duration(sec)*time.Second)
		defer cancel()
	}

	events, err := s.engine.Stream(genCtx, req)
	if err != nil {
		return nil, nil, err
	}

	var final *inference.Final
	var toolCalls []inference.ToolCall
	for ev := range events {
		switch ev.Type {
		case inference.EventToken:
			rec.Token(ev.ArrivedAt)
		case inference.EventToolCall:
			if ev.ToolCall != nil {
				toolCalls = append(toolCalls, *ev.ToolCall)
			}
		case inference.EventFinal:
			final = ev.Final
		case inference.EventError:
			return nil, nil, ev.Err
		}
	}

	if final == nil {
		if genCtx.Err() != nil && ctx.Err() == nil {
			return nil, nil, fmt.Errorf("generation timed out after %ds", s.cfg.Engine.GenerationTimeoutSeconds)
		}
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, errors.New("stream ended without a final event")
	}
	return final, toolCalls, nil
}

// runToolRound executes the model's tool calls and streams the follow-up
// answer. A single round is allowed: the follow-up request advertises no
// tools, so the model has to commit to an answer.
func (s *Scheduler) runToolRound(ctx context.Context, rec *metrics.Recorder, req inference.Request, first *inference.Final, calls []inference.ToolCall) (*inference.Final, error) {
	messages := make([]inference.Message, 0, len(req.Messages)+len(calls)+2)
	messages = append(messages, req.Messages...)
	messages = append(messages, inference.Message{
		Role:      "assistant",
		Content:   first.Text,
		ToolCalls: calls,
	})

	timeout := time.Duration(s.cfg.Evaluator.TimeoutSeconds) * time.Second
	for _, call := range calls {
		rec.StartToolCall(call.Function.Name)
		output := s.executeToolCall(ctx, rec, call, timeout)
		messages = append(messages, inference.Message{
			Role:       "tool",
			Content:    output,
			ToolCallID: call.ID,
		})
	}

	followUp := inference.Request{
		ModelID:  req.ModelID,
		Mode:     models.ModeStandard,
		Messages: messages,
	}
	final, _, err := s.streamOnce(ctx, rec, followUp)
	return final, err
}

// executeToolCall runs one tool invocation and returns the text fed back to
// the model. Tool failures are reported to the model as output; they do not
// fail the item.
func (s *Scheduler) executeToolCall(ctx context.Context, rec *metrics.Recorder, call inference.ToolCall, timeout time.Duration) string {
	if call.Function.Name != inference.RunPythonTool {
		rec.EndToolCall(0)
		return fmt.Sprintf("unknown tool %q", call.Function.Name)
	}

	var args struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		rec.EndToolCall(0)
		return fmt.Sprintf("invalid tool arguments: %v", err)
	}

	rec.MarkToolExec()
	execStart := time.Now()
	output, err := evaluator.RunSnippet(ctx, s.cfg.Evaluator.Command, timeout, args.Code)
	rec.EndToolCall(float64(time.Since(execStart).Microseconds()) / 1000.0)
	if err != nil {
		return fmt.Sprintf("execution failed: %v", err)
	}
	return output
}

// appendResult records one finished work item into the session and feeds the
// running latency averages.
func (s *Scheduler) appendResult(result models.ProblemResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session.Problems = append(s.session.Problems, result)
	if !result.Success {
		s.session.FailedProblemIDs[result.ProblemID] = true
	}
	if result.Metrics.TTFTValid {
		s.ttftSumMs += result.Metrics.TTFTMs
		s.ttftCount++
	}
	if result.Metrics.TPSValid {
		s.tpsSum += result.Metrics.TPS
		s.tpsCount++
	}
}

// dropResults removes any session results recorded for the given problem
func (s *Scheduler) dropResults(problemID int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.session.Problems)
	s.session.DropResultsFor(problemID)
	if dropped := before - len(s.session.Problems); dropped > 0 {
		s.logger.Info("Dropped partial results for interrupted problem",
			"problem_id", problemID,
			"dropped", dropped)
	}
}

// runningStats builds the cumulative stats carried inside the checkpoint
func (s *Scheduler) runningStats() models.RunningStats {
	thermal, battery := s.admission.Events()

	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := models.RunningStats{
		ThermalThrottleEvents: thermal,
		BatteryPauseEvents:    battery,
	}
	if s.ttftCount > 0 {
		stats.AvgTTFTMs = s.ttftSumMs / float64(s.ttftCount)
	}
	if s.tpsCount > 0 {
		stats.AvgTPS = s.tpsSum / float64(s.tpsCount)
	}
	return stats
}

// noteSnapshot appends the latest telemetry reading to the session, skipping
// duplicates from back-to-back checks
func (s *Scheduler) noteSnapshot() {
	snap, ok := s.admission.LastSnapshot()
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.session.Snapshots); n > 0 && s.session.Snapshots[n-1].TakenAt.Equal(snap.TakenAt) {
		return
	}
	s.session.Snapshots = append(s.session.Snapshots, snap)
}

// completeRun exports the session and makes the terminal transition. The
// checkpoint is removed: a completed run is never resumed.
func (s *Scheduler) completeRun(mgr *checkpoint.Manager, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mgr.Checkpoint().State != models.StateRunning {
		return
	}

	now := time.Now()
	s.session.EndTime = &now

	path, err := s.exporter.WriteSession(s.session)
	if err != nil {
		s.logger.Error("Failed to export session", "session_id", s.session.ID, "error", err)
	} else {
		s.exportPath = path
	}

	if err := mgr.SetState(models.StateCompleted, reason); err != nil {
		s.logger.Warn("Failed to persist completion", "error", err)
	}
	if err := mgr.Clear(); err != nil {
		s.logger.Warn("Failed to clear checkpoint", "error", err)
	}
	s.finalReason = reason
	s.closeManagerLocked()

	s.logger.Info("Run completed",
		"session_id", s.session.ID,
		"reason", reason,
		"problems", len(s.session.Problems),
		"successes", s.session.SuccessCount(),
		"tokens", s.session.TotalTokens())
}

// failRun records a run-level failure. The checkpoint is kept so the failure
// stays inspectable; a later run or an explicit clear replaces it.
func (s *Scheduler) failRun(mgr *checkpoint.Manager, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mgr.Checkpoint().State != models.StateRunning {
		return
	}

	now := time.Now()
	s.session.EndTime = &now
	s.logger.Error("Run failed", "session_id", s.session.ID, "reason", reason)

	if err := mgr.SetState(models.StateFailed, reason); err != nil {
		s.logger.Warn("Failed to persist failure", "error", err)
	}
	s.finalReason = reason
	s.closeManagerLocked()
}

// pauseFromLoop records an admission denial observed inside the loop, which
// exits right after
func (s *Scheduler) pauseFromLoop(mgr *checkpoint.Manager, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mgr.Checkpoint().State != models.StateRunning {
		return
	}

	s.logger.Info("Admission denied, pausing run", "reason", reason)
	if err := mgr.SetState(models.StatePaused, reason); err != nil {
		s.logger.Error("Failed to persist pause", "error", err)
	}
}
