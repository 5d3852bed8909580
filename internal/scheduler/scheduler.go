// Package scheduler drives benchmark runs. It owns the run lifecycle,
// gates every work item on device telemetry and persists progress through
// the checkpoint manager, so an interrupted run resumes where it left off
// instead of starting over.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/edgebench/edgebench/internal/checkpoint"
	"github.com/edgebench/edgebench/internal/config"
	"github.com/edgebench/edgebench/internal/dataset"
	"github.com/edgebench/edgebench/internal/evaluator"
	"github.com/edgebench/edgebench/internal/inference"
	"github.com/edgebench/edgebench/internal/metrics"
	"github.com/edgebench/edgebench/internal/store"
	"github.com/edgebench/edgebench/internal/telemetry"
	"github.com/edgebench/edgebench/internal/writer"
	"github.com/edgebench/edgebench/pkg/models"
)

// ErrAlreadyRunning is returned by Start while a run is active or paused
var ErrAlreadyRunning = errors.New("a run is already active")

// Reasons recorded on run transitions. Pause reasons from the admission
// gate are built from the denied condition instead.
const (
	reasonStopped      = "User stopped"
	reasonAllCompleted = "All problems completed"
	reasonMaxTime      = "Max time reached"
	reasonBackgrounded = "App backgrounded"
)

// Scheduler executes one benchmark run at a time. All lifecycle methods are
// safe for concurrent use; the run loop itself is a single goroutine that
// communicates with callers only through the checkpoint state and the run
// context.
type Scheduler struct {
	cfg       *config.Config
	engine    inference.Engine
	provider  dataset.Provider
	eval      evaluator.Evaluator
	admission *AdmissionController
	st        store.Store
	exporter  *writer.Exporter
	collector *metrics.Collector
	logger    *slog.Logger

	mu          sync.RWMutex
	ckptMgr     *checkpoint.Manager
	session     *models.Session
	baseCtx     context.Context
	runCancel   context.CancelFunc
	loopDone    chan struct{}
	exportPath  string
	finalReason string

	// cumulative latency sums feeding the checkpoint's running stats
	ttftSumMs float64
	ttftCount int
	tpsSum    float64
	tpsCount  int
}

// New creates a scheduler around the injected engine, dataset, evaluator and
// telemetry source. The store holds checkpoints; the exporter persists
// finished sessions.
func New(cfg *config.Config, engine inference.Engine, provider dataset.Provider, eval evaluator.Evaluator, source telemetry.Source, st store.Store, exporter *writer.Exporter, collector *metrics.Collector, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		engine:    engine,
		provider:  provider,
		eval:      eval,
		admission: NewAdmissionController(source, collector, logger),
		st:        st,
		exporter:  exporter,
		collector: collector,
		logger:    logger.With("component", "scheduler"),
	}
}

// Start begins a fresh run over the configured problem range. The initial
// checkpoint is persisted before Start returns; the run itself proceeds on a
// background goroutine observed through the accessors and Wait.
func (s *Scheduler) Start(ctx context.Context, modelID string, mode models.Mode, runCfg models.RunConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeLocked() {
		return ErrAlreadyRunning
	}

	mgr := checkpoint.NewManager(s.st, modelID, mode, runCfg, s.cfg.Checkpoint.Interval, !s.cfg.Checkpoint.Disabled, s.logger)
	if err := mgr.SetState(models.StateRunning, ""); err != nil {
		closeErr := mgr.Close()
		if closeErr != nil {
			s.logger.Warn("Failed to close checkpoint manager", "error", closeErr)
		}
		return fmt.Errorf("failed to persist initial checkpoint: %w", err)
	}

	cp := mgr.Checkpoint()
	s.ckptMgr = mgr
	s.session = &models.Session{
		ID:               cp.SessionID,
		ModelID:          modelID,
		Mode:             mode,
		StartTime:        time.Now(),
		FailedProblemIDs: make(map[int]bool),
	}
	s.exportPath = ""
	s.finalReason = ""
	s.ttftSumMs, s.ttftCount = 0, 0
	s.tpsSum, s.tpsCount = 0, 0

	s.logger.Info("Starting benchmark run",
		"session_id", cp.SessionID,
		"model_id", modelID,
		"mode", mode,
		"range_start", runCfg.ProblemRangeStart,
		"range_end", runCfg.ProblemRangeEnd,
		"iterations", runCfg.IterationsPerProblem)

	s.launchLoopLocked(ctx)
	return nil
}

// ResumeFromCheckpoint restores a paused or interrupted run from the
// persisted checkpoint and re-enters the loop. The stored config hash must
// match the current configuration; a checkpoint from a different model, mode
// or range is rejected rather than silently mixing runs.
func (s *Scheduler) ResumeFromCheckpoint(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeLocked() {
		return ErrAlreadyRunning
	}

	cp, err := checkpoint.Load(s.st, s.logger)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if cp == nil {
		return errors.New("no checkpoint to resume")
	}

	mode, ok := models.ParseMode(s.cfg.Run.Mode)
	if !ok {
		return fmt.Errorf("invalid mode %q in config", s.cfg.Run.Mode)
	}
	if err := checkpoint.Validate(cp, s.cfg.Run.ModelID, mode, s.cfg.RunConfig()); err != nil {
		return fmt.Errorf("checkpoint is not resumable: %w", err)
	}

	mgr := checkpoint.NewManagerFromCheckpoint(s.st, cp, s.cfg.Checkpoint.Interval, !s.cfg.Checkpoint.Disabled, s.logger)
	if err := mgr.SetState(models.StateRunning, ""); err != nil {
		closeErr := mgr.Close()
		if closeErr != nil {
			s.logger.Warn("Failed to close checkpoint manager", "error", closeErr)
		}
		return fmt.Errorf("failed to persist resumed checkpoint: %w", err)
	}

	s.ckptMgr = mgr
	s.session = &models.Session{
		ID:               cp.SessionID,
		ModelID:          cp.ModelID,
		Mode:             cp.Mode,
		StartTime:        time.Now(),
		FailedProblemIDs: make(map[int]bool),
	}
	s.exportPath = ""
	s.finalReason = ""
	s.ttftSumMs, s.ttftCount = 0, 0
	s.tpsSum, s.tpsCount = 0, 0

	total := cp.Config.ProblemRangeEnd - cp.Config.ProblemRangeStart + 1
	s.logger.Info("Resuming run from checkpoint",
		"session_id", cp.SessionID,
		"model_id", cp.ModelID,
		"mode", cp.Mode,
		"completed", cp.CompletedCount(),
		"progress_pct", checkpoint.ProgressPercentage(cp, total))

	s.launchLoopLocked(ctx)
	return nil
}

// Pause asks the run loop to stop at the next item boundary. The in-flight
// generation finishes; its result is kept. A paused run holds its checkpoint
// and can be resumed in this process or a later one.
func (s *Scheduler) Pause(reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ckptMgr == nil || s.ckptMgr.Checkpoint().State != models.StateRunning {
		return nil
	}
	s.logger.Info("Pausing run", "reason", reason)
	return s.ckptMgr.SetState(models.StatePaused, reason)
}

// Resume re-enters the run loop of a paused run. Results for a problem that
// was interrupted mid-iteration are dropped so it re-runs from scratch.
func (s *Scheduler) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ckptMgr == nil || s.ckptMgr.Checkpoint().State != models.StatePaused {
		return nil
	}
	if err := s.ckptMgr.SetState(models.StateRunning, ""); err != nil {
		return fmt.Errorf("failed to persist resume: %w", err)
	}
	s.logger.Info("Resuming run")
	s.launchLoopLocked(s.baseCtx)
	return nil
}

// CheckAndResume re-evaluates the admission gate before resuming a paused
// run. If conditions still deny admission the run stays paused with the
// fresh reason.
func (s *Scheduler) CheckAndResume(ctx context.Context) error {
	s.mu.Lock()
	if s.ckptMgr == nil || s.ckptMgr.Checkpoint().State != models.StatePaused {
		s.mu.Unlock()
		return nil
	}
	runCfg := s.ckptMgr.Checkpoint().Config
	s.mu.Unlock()

	ok, reason := s.admission.Gate(ctx, runCfg)
	if !ok {
		s.logger.Info("Conditions still deny admission, staying paused", "reason", reason)
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.ckptMgr != nil && s.ckptMgr.Checkpoint().State == models.StatePaused {
			return s.ckptMgr.SetState(models.StatePaused, reason)
		}
		return nil
	}
	return s.Resume()
}

// Stop cancels the run, including any in-flight generation, and discards the
// checkpoint. The partial result of a cancelled item is not recorded.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.ckptMgr == nil || s.ckptMgr.Checkpoint().State.Terminal() {
		s.mu.Unlock()
		return nil
	}
	if s.runCancel != nil {
		s.runCancel()
	}
	done := s.loopDone
	s.mu.Unlock()

	if done != nil {
		<-done
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ckptMgr == nil || s.ckptMgr.Checkpoint().State.Terminal() {
		// the loop reached a terminal state on its own before cancellation
		return nil
	}

	s.logger.Info("Stopping run")
	if err := s.ckptMgr.SetState(models.StateFailed, reasonStopped); err != nil {
		s.logger.Warn("Failed to persist stop", "error", err)
	}
	if err := s.ckptMgr.Clear(); err != nil {
		s.logger.Warn("Failed to clear checkpoint", "error", err)
	}
	s.finalReason = reasonStopped
	s.closeManagerLocked()
	return nil
}

// NotifyBackgrounded pauses the run when the host app moves to the
// background. The in-flight item finishes first.
func (s *Scheduler) NotifyBackgrounded() {
	if err := s.Pause(reasonBackgrounded); err != nil {
		s.logger.Warn("Failed to pause on background transition", "error", err)
	}
}

// NotifyForegrounded re-checks admission and resumes when the host app
// returns to the foreground.
func (s *Scheduler) NotifyForegrounded(ctx context.Context) {
	if err := s.CheckAndResume(ctx); err != nil {
		s.logger.Warn("Failed to resume on foreground transition", "error", err)
	}
}

// Wait blocks until the current run loop exits. It returns immediately when
// no loop is active.
func (s *Scheduler) Wait() {
	s.mu.RLock()
	done := s.loopDone
	s.mu.RUnlock()
	if done != nil {
		<-done
	}
}

// State returns the current run state, or StateIdle before the first run
func (s *Scheduler) State() models.RunState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ckptMgr == nil {
		return models.StateIdle
	}
	return s.ckptMgr.Checkpoint().State
}

// IsRunning reports whether the run loop is actively executing work
func (s *Scheduler) IsRunning() bool {
	return s.State() == models.StateRunning
}

// IsPaused reports whether a run is paused and resumable
func (s *Scheduler) IsPaused() bool {
	return s.State() == models.StatePaused
}

// Checkpoint returns a copy of the current checkpoint, or nil before the
// first run
func (s *Scheduler) Checkpoint() *models.Checkpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ckptMgr == nil {
		return nil
	}
	return s.ckptMgr.Checkpoint()
}

// Session returns the session being built by the current run. The run loop
// owns it until the run reaches a terminal state; callers should read it
// after Wait.
func (s *Scheduler) Session() *models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// ExportPath returns the path of the exported session file once the run has
// completed, or empty before then
func (s *Scheduler) ExportPath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exportPath
}

// FinalReason returns the reason recorded at the last terminal transition
func (s *Scheduler) FinalReason() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.finalReason
}

// activeLocked reports whether a run is running or paused. Callers hold mu.
func (s *Scheduler) activeLocked() bool {
	if s.ckptMgr == nil {
		return false
	}
	return !s.ckptMgr.Checkpoint().State.Terminal()
}

// launchLoopLocked spawns the run loop goroutine. Callers hold mu and have
// already persisted the running state.
func (s *Scheduler) launchLoopLocked(ctx context.Context) {
	s.baseCtx = ctx
	runCtx, cancel := context.WithCancel(ctx)
	s.runCancel = cancel
	done := make(chan struct{})
	s.loopDone = done
	mgr := s.ckptMgr

	go func() {
		defer close(done)
		defer cancel()
		s.runLoop(runCtx, mgr)
	}()
}

// closeManagerLocked shuts down the checkpoint manager's writer goroutine.
// The manager itself is kept so the final state stays readable; the next
// Start replaces it.
func (s *Scheduler) closeManagerLocked() {
	if s.ckptMgr == nil {
		return
	}
	if err := s.ckptMgr.Close(); err != nil {
		s.logger.Warn("Failed to close checkpoint manager", "error", err)
	}
}
