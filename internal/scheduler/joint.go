package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

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

// pausedError marks a batch run stopped by the admission gate. It aborts the
// sweep: with conditions denying admission, every remaining batch would pause
// the same way.
type pausedError struct {
	reason string
}

func (e *pausedError) Error() string { return e.reason }

// JointRunner sweeps the problem range in fixed-size batches across several
// modes, one full scheduler session per batch and mode. Each session is
// exported as soon as it finishes and then evicted, so at most one session
// stays resident regardless of sweep size; the combine pass rehydrates the
// rest from their exports.
type JointRunner struct {
	cfg       *config.Config
	engine    inference.Engine
	provider  dataset.Provider
	eval      evaluator.Evaluator
	source    telemetry.Source
	st        store.Store
	exporter  *writer.Exporter
	collector *metrics.Collector
	logger    *slog.Logger

	mu       sync.Mutex
	recent   *models.Session
	summary  *models.JointSummary
	complete bool
}

// NewJointRunner creates a runner sharing the scheduler's dependency bundle
func NewJointRunner(cfg *config.Config, engine inference.Engine, provider dataset.Provider, eval evaluator.Evaluator, source telemetry.Source, st store.Store, exporter *writer.Exporter, collector *metrics.Collector, logger *slog.Logger) *JointRunner {
	return &JointRunner{
		cfg:       cfg,
		engine:    engine,
		provider:  provider,
		eval:      eval,
		source:    source,
		st:        st,
		exporter:  exporter,
		collector: collector,
		logger:    logger.With("component", "joint"),
	}
}

// Run executes the full sweep and exports the combined summary. A failed
// batch is recorded and the sweep continues; a paused batch aborts the sweep
// with its checkpoint intact so it can be resumed as a single run.
func (j *JointRunner) Run(ctx context.Context) error {
	jcfg := j.cfg.JointRunConfig()
	if len(jcfg.Modes) == 0 {
		return errors.New("joint run requires at least one valid mode")
	}
	if jcfg.BatchSize < 1 {
		return fmt.Errorf("joint batch size must be positive (got %d)", jcfg.BatchSize)
	}

	start := time.Now()
	var records []models.SessionExportRecord
	var failedRuns []string

	j.logger.Info("Starting joint run",
		"model_id", j.cfg.Run.ModelID,
		"modes", jcfg.Modes,
		"batch_size", jcfg.BatchSize,
		"range_start", jcfg.ProblemRangeStart,
		"range_end", jcfg.ProblemRangeEnd)

	for batchStart := jcfg.ProblemRangeStart; batchStart <= jcfg.ProblemRangeEnd; batchStart += jcfg.BatchSize {
		batchEnd := batchStart + jcfg.BatchSize - 1
		if batchEnd > jcfg.ProblemRangeEnd {
			batchEnd = jcfg.ProblemRangeEnd
		}

		problems, err := j.provider.ProblemsInRange(batchStart, batchEnd)
		if err != nil {
			failedRuns = append(failedRuns, fmt.Sprintf("batch %d-%d: dataset read failed: %v", batchStart, batchEnd, err))
			continue
		}
		if len(problems) == 0 {
			j.logger.Debug("Skipping empty batch", "batch_start", batchStart, "batch_end", batchEnd)
			continue
		}

		for _, mode := range jcfg.Modes {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			record, runErr := j.runOne(ctx, batchStart, batchEnd, mode, jcfg)
			if runErr != nil {
				var paused *pausedError
				if errors.As(runErr, &paused) {
					return fmt.Errorf("joint run blocked at batch %d-%d mode %s: %s (resume the batch once conditions recover)", batchStart, batchEnd, mode, paused.reason)
				}
				j.logger.Error("Batch run failed",
					"batch_start", batchStart,
					"batch_end", batchEnd,
					"mode", mode,
					"error", runErr)
				failedRuns = append(failedRuns, fmt.Sprintf("batch %d-%d mode %s: %v", batchStart, batchEnd, mode, runErr))
				continue
			}

			records = append(records, record)
			j.logger.Info("Batch session finished",
				"batch_start", batchStart,
				"batch_end", batchEnd,
				"mode", mode,
				"problems", record.Problems,
				"successes", record.Successes)
		}
	}

	summary := j.combine(start, jcfg, records, failedRuns)

	// Complete goes into the artifact before the write; the accessors only
	// observe it after the write lands.
	summary.Complete = true
	path, err := j.exporter.WriteSummary(summary)
	if err != nil {
		return fmt.Errorf("failed to export joint summary: %w", err)
	}

	j.mu.Lock()
	j.summary = summary
	j.complete = true
	j.mu.Unlock()

	j.logger.Info("Joint run complete",
		"sessions", len(records),
		"failed_runs", len(failedRuns),
		"total_problems", summary.TotalProblems,
		"total_successes", summary.TotalSuccesses,
		"path", path)
	return nil
}

// runOne executes one batch in one mode as a full scheduler session and
// returns its export record. The finished session becomes the sole resident.
func (j *JointRunner) runOne(ctx context.Context, batchStart, batchEnd int, mode models.Mode, jcfg models.JointRunConfig) (models.SessionExportRecord, error) {
	runCfg := jcfg.RunConfig
	runCfg.ProblemRangeStart = batchStart
	runCfg.ProblemRangeEnd = batchEnd

	sched := New(j.cfg, j.engine, j.provider, j.eval, j.source, j.st, j.exporter, j.collector, j.logger)
	if err := sched.Start(ctx, j.cfg.Run.ModelID, mode, runCfg); err != nil {
		return models.SessionExportRecord{}, err
	}
	sched.Wait()

	switch sched.State() {
	case models.StateCompleted:
		session := sched.Session()
		path := sched.ExportPath()
		if path == "" {
			return models.SessionExportRecord{}, errors.New("session completed but its export is missing")
		}

		j.mu.Lock()
		j.recent = session // evicts the previous resident
		j.mu.Unlock()

		return models.SessionExportRecord{
			SessionID:  session.ID,
			ModelID:    session.ModelID,
			Mode:       mode,
			BatchStart: batchStart,
			BatchEnd:   batchEnd,
			Path:       path,
			Problems:   len(session.Problems),
			Successes:  session.SuccessCount(),
		}, nil

	case models.StatePaused:
		reason := "admission denied"
		if cp := sched.Checkpoint(); cp != nil && cp.PauseReason != "" {
			reason = cp.PauseReason
		}
		return models.SessionExportRecord{}, &pausedError{reason: reason}

	default:
		reason := sched.FinalReason()
		if reason == "" {
			reason = "run did not complete"
		}
		return models.SessionExportRecord{}, errors.New(reason)
	}
}

// combine folds every exported session into the summary, rehydrating evicted
// sessions from disk.
func (j *JointRunner) combine(startTime time.Time, jcfg models.JointRunConfig, records []models.SessionExportRecord, failedRuns []string) *models.JointSummary {
	type modeAccum struct {
		problems  int
		successes int
		tokens    int64
		ttftSum   float64
		ttftN     int
		tpsSum    float64
		tpsN      int
	}
	accums := make(map[models.Mode]*modeAccum, len(jcfg.Modes))
	for _, mode := range jcfg.Modes {
		accums[mode] = &modeAccum{}
	}

	var totalEnergy float64
	for _, rec := range records {
		acc := accums[rec.Mode]
		if acc == nil {
			continue
		}

		session := j.sessionFor(rec)
		if session == nil {
			// rehydration failed; the record's counts are all we have
			acc.problems += rec.Problems
			acc.successes += rec.Successes
			continue
		}

		acc.problems += len(session.Problems)
		acc.successes += session.SuccessCount()
		acc.tokens += session.TotalTokens()
		for i := range session.Problems {
			m := session.Problems[i].Metrics
			if m.TTFTValid {
				acc.ttftSum += m.TTFTMs
				acc.ttftN++
			}
			if m.TPSValid {
				acc.tpsSum += m.TPS
				acc.tpsN++
			}
			totalEnergy += m.EnergyJoules
		}
	}

	summary := &models.JointSummary{
		ModelID:    j.cfg.Run.ModelID,
		StartTime:  startTime,
		EndTime:    time.Now(),
		BatchSize:  jcfg.BatchSize,
		Modes:      jcfg.Modes,
		Sessions:   records,
		FailedRuns: failedRuns,
	}

	for _, mode := range jcfg.Modes {
		acc := accums[mode]
		agg := models.ModeAggregate{
			Mode:      mode,
			Problems:  acc.problems,
			Successes: acc.successes,
			Tokens:    acc.tokens,
		}
		if acc.problems > 0 {
			agg.SuccessRate = float64(acc.successes) / float64(acc.problems)
		}
		if acc.ttftN > 0 {
			agg.AvgTTFTMs = acc.ttftSum / float64(acc.ttftN)
		}
		if acc.tpsN > 0 {
			agg.AvgTPS = acc.tpsSum / float64(acc.tpsN)
		}
		summary.PerMode = append(summary.PerMode, agg)
		summary.TotalProblems += acc.problems
		summary.TotalSuccesses += acc.successes
		summary.TotalTokens += acc.tokens
	}
	summary.TotalEnergyJ = totalEnergy

	return summary
}

// sessionFor returns the resident session when it matches the record,
// otherwise reads the export back from disk. A nil return means the session
// could not be recovered.
func (j *JointRunner) sessionFor(rec models.SessionExportRecord) *models.Session {
	j.mu.Lock()
	recent := j.recent
	j.mu.Unlock()
	if recent != nil && recent.ID == rec.SessionID {
		return recent
	}

	session, err := j.exporter.ReadSession(rec.Path)
	if err != nil {
		j.logger.Error("Failed to rehydrate session for summary",
			"session_id", rec.SessionID,
			"path", rec.Path,
			"error", err)
		return nil
	}
	return session
}

// IsComplete reports whether the sweep finished and its summary was exported
func (j *JointRunner) IsComplete() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.complete
}

// Summary returns the combined summary, or nil before the sweep finishes
func (j *JointRunner) Summary() *models.JointSummary {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.summary
}
