package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/edgebench/edgebench/internal/metrics"
	"github.com/edgebench/edgebench/internal/telemetry"
	"github.com/edgebench/edgebench/pkg/models"
)

// Decision is the outcome of one admission check.
type Decision int

const (
	// DecisionContinue admits the next work item
	DecisionContinue Decision = iota
	// DecisionPause denies admission until conditions recover
	DecisionPause
	// DecisionCooldown denies admission on temperature after sleeping the
	// cooldown window; the caller retries the check once
	DecisionCooldown
)

// overheatedReason is the pause reason recorded when the cooldown retry is
// still over the temperature limit
const overheatedReason = "Device overheating"

// AdmissionController gates work items on device telemetry. A run only
// admits the next item while battery and temperature are inside the
// configured envelope; a telemetry failure denies admission rather than
// running blind.
type AdmissionController struct {
	source    telemetry.Source
	collector *metrics.Collector
	logger    *slog.Logger

	mu            sync.Mutex
	lastSnapshot  models.ResourceSnapshot
	hasSnapshot   bool
	thermalEvents int
	batteryEvents int
}

// NewAdmissionController creates a controller reading from the given
// telemetry source
func NewAdmissionController(source telemetry.Source, collector *metrics.Collector, logger *slog.Logger) *AdmissionController {
	return &AdmissionController{
		source:    source,
		collector: collector,
		logger:    logger.With("component", "admission"),
	}
}

// CheckConditions takes one telemetry snapshot and decides whether the next
// work item may run. A temperature denial sleeps the cooldown window before
// returning so the caller can re-check immediately. The reason string is set
// only for DecisionPause.
func (a *AdmissionController) CheckConditions(ctx context.Context, cfg models.RunConfig) (Decision, string) {
	snap, err := a.source.Snapshot(ctx)
	if err != nil {
		a.logger.Error("Telemetry snapshot failed", "error", err)
		return DecisionPause, "telemetry unavailable"
	}

	a.mu.Lock()
	a.lastSnapshot = snap
	a.hasSnapshot = true
	a.mu.Unlock()
	a.collector.RecordSnapshot(snap)

	if snap.BatteryPercent == telemetry.NoBattery {
		a.logger.Debug("No battery reading, skipping battery gate")
	} else if snap.BatteryPercent < cfg.MinBatteryLevel {
		a.mu.Lock()
		a.batteryEvents++
		a.mu.Unlock()
		a.collector.IncBatteryPause()
		return DecisionPause, fmt.Sprintf("Battery at %d%%, below minimum %d%%", snap.BatteryPercent, cfg.MinBatteryLevel)
	}

	if snap.TemperatureC > cfg.MaxTemperatureC {
		a.mu.Lock()
		a.thermalEvents++
		a.mu.Unlock()
		a.collector.IncThermalThrottle()
		a.logger.Warn("Temperature above limit, cooling down",
			"temperature_c", snap.TemperatureC,
			"max_temperature_c", cfg.MaxTemperatureC,
			"cooldown_ms", cfg.CooldownMs)
		sleepContext(ctx, time.Duration(cfg.CooldownMs)*time.Millisecond)
		return DecisionCooldown, ""
	}

	return DecisionContinue, ""
}

// Gate runs the admission check, allowing one cooldown retry on a thermal
// denial. It returns false with a reason when the run must pause.
func (a *AdmissionController) Gate(ctx context.Context, cfg models.RunConfig) (bool, string) {
	for attempt := 0; attempt < 2; attempt++ {
		decision, reason := a.CheckConditions(ctx, cfg)
		switch decision {
		case DecisionContinue:
			return true, ""
		case DecisionPause:
			return false, reason
		}
	}
	return false, overheatedReason
}

// Poll re-evaluates admission on a fixed cadence while a run is active. When
// a check denies admission it invokes onPause once and stops; the run loop
// restarts the poller on resume.
func (a *AdmissionController) Poll(ctx context.Context, cfg models.RunConfig, interval time.Duration, onPause func(reason string)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, reason := a.Gate(ctx, cfg)
			if ctx.Err() != nil {
				return
			}
			if !ok {
				a.logger.Info("Background check denied admission", "reason", reason)
				onPause(reason)
				return
			}
		}
	}
}

// LastSnapshot returns the most recent successful telemetry reading
func (a *AdmissionController) LastSnapshot() (models.ResourceSnapshot, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastSnapshot, a.hasSnapshot
}

// Events returns the cumulative thermal and battery denial counts for this
// controller's lifetime
func (a *AdmissionController) Events() (thermal, battery int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.thermalEvents, a.batteryEvents
}

// sleepContext waits for the duration or until the context is cancelled
func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
