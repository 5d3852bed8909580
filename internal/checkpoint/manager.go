package checkpoint

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/edgebench/edgebench/internal/store"
	"github.com/edgebench/edgebench/pkg/models"
)

// CheckpointKey is the singleton store key for the active run. Each persist
// overwrites it; at most one checkpointed run exists at a time.
const CheckpointKey = "checkpoint/current"

// Manager handles checkpoint operations with async write support
type Manager struct {
	st          store.Store
	checkpoint  *models.Checkpoint
	mu          sync.RWMutex
	logger      *slog.Logger
	interval    int // Save every N completed problems
	itemCounter int // Counter since last save
	enabled     bool

	// Async write support
	writeChan   chan *models.Checkpoint
	writeWg     sync.WaitGroup
	stopWriter  chan struct{}
	writerError error
	errorMu     sync.Mutex
	writeMu     sync.Mutex // Serializes store writes
}

// NewManager creates a manager for a fresh run. The checkpoint starts in the
// idle state; the scheduler transitions it when the run starts.
func NewManager(st store.Store, modelID string, mode models.Mode, runCfg models.RunConfig, interval int, enabled bool, logger *slog.Logger) *Manager {
	m := &Manager{
		st: st,
		checkpoint: &models.Checkpoint{
			Version:             models.CheckpointVersion,
			SessionID:           uuid.New().String(),
			ModelID:             modelID,
			Mode:                mode,
			Config:              runCfg,
			CompletedProblemIDs: make(map[int]bool),
			State:               models.StateIdle,
			CreatedAt:           time.Now(),
			ConfigHash:          ComputeConfigHash(modelID, mode, runCfg),
		},
		logger:     logger,
		interval:   interval,
		enabled:    enabled,
		writeChan:  make(chan *models.Checkpoint, 10), // Buffer up to 10 pending writes
		stopWriter: make(chan struct{}),
	}

	if m.enabled {
		m.startAsyncWriter()
	}

	return m
}

// NewManagerFromCheckpoint creates a manager around a loaded checkpoint
func NewManagerFromCheckpoint(st store.Store, cp *models.Checkpoint, interval int, enabled bool, logger *slog.Logger) *Manager {
	m := &Manager{
		st:         st,
		checkpoint: cp,
		logger:     logger,
		interval:   interval,
		enabled:    enabled,
		writeChan:  make(chan *models.Checkpoint, 10),
		stopWriter: make(chan struct{}),
	}

	if m.enabled {
		m.startAsyncWriter()
	}

	return m
}

// startAsyncWriter starts the background writer goroutine
func (m *Manager) startAsyncWriter() {
	m.writeWg.Add(1)
	go func() {
		defer m.writeWg.Done()
		for {
			select {
			case cp := <-m.writeChan:
				if err := m.writeToStore(cp); err != nil {
					m.errorMu.Lock()
					m.writerError = err
					m.errorMu.Unlock()
					m.logger.Error("Failed to write checkpoint", "error", err)
				}
			case <-m.stopWriter:
				// Drain remaining writes before stopping
				for len(m.writeChan) > 0 {
					cp := <-m.writeChan
					if err := m.writeToStore(cp); err != nil {
						m.logger.Error("Failed to write checkpoint during shutdown", "error", err)
					}
				}
				return
			}
		}
	}()
}

// writeToStore performs the actual store write (called by async writer)
func (m *Manager) writeToStore(cp *models.Checkpoint) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	if err := m.st.Set(CheckpointKey, data); err != nil {
		return fmt.Errorf("failed to persist checkpoint: %w", err)
	}

	m.logger.Debug("Checkpoint saved",
		"session_id", cp.SessionID,
		"state", cp.State,
		"completed", len(cp.CompletedProblemIDs))
	return nil
}

// Save queues the checkpoint for async write
func (m *Manager) Save() error {
	if !m.enabled {
		return nil
	}

	m.mu.Lock()
	m.checkpoint.LastSavedAt = time.Now()
	// Create a copy to avoid race conditions
	cpCopy := m.copyCheckpoint()
	m.mu.Unlock()

	// Queue for async write (non-blocking if buffer has space)
	select {
	case m.writeChan <- cpCopy:
		return nil
	default:
		// Buffer full, write synchronously
		m.logger.Warn("Checkpoint write buffer full, writing synchronously")
		return m.writeToStore(cpCopy)
	}
}

// SaveSync performs a synchronous checkpoint write. State transitions use
// this path so the transition is durable before it is surfaced.
func (m *Manager) SaveSync() error {
	if !m.enabled {
		return nil
	}

	m.mu.Lock()
	m.checkpoint.LastSavedAt = time.Now()
	cpCopy := m.copyCheckpoint()
	m.mu.Unlock()

	return m.writeToStore(cpCopy)
}

// copyCheckpoint creates a deep copy of the checkpoint
func (m *Manager) copyCheckpoint() *models.Checkpoint {
	cp := &models.Checkpoint{
		Version:              m.checkpoint.Version,
		SessionID:            m.checkpoint.SessionID,
		ModelID:              m.checkpoint.ModelID,
		Mode:                 m.checkpoint.Mode,
		Config:               m.checkpoint.Config,
		CompletedProblemIDs:  make(map[int]bool, len(m.checkpoint.CompletedProblemIDs)),
		State:                m.checkpoint.State,
		PauseReason:          m.checkpoint.PauseReason,
		CreatedAt:            m.checkpoint.CreatedAt,
		LastSavedAt:          m.checkpoint.LastSavedAt,
		TokensGenerated:      m.checkpoint.TokensGenerated,
		EnergyConsumedJoules: m.checkpoint.EnergyConsumedJoules,
		Stats:                m.checkpoint.Stats,
		ConfigHash:           m.checkpoint.ConfigHash,
	}
	for k, v := range m.checkpoint.CompletedProblemIDs {
		cp.CompletedProblemIDs[k] = v
	}
	if m.checkpoint.CurrentProblemID != nil {
		id := *m.checkpoint.CurrentProblemID
		cp.CurrentProblemID = &id
	}
	return cp
}

// MarkProblemComplete marks a single problem as done. Progress is persisted
// every interval completions to keep store traffic off the hot path.
func (m *Manager) MarkProblemComplete(problemID int, tokens int64, energyJoules float64, stats models.RunningStats) error {
	if !m.enabled {
		return nil
	}

	m.mu.Lock()
	m.checkpoint.CompletedProblemIDs[problemID] = true
	m.checkpoint.CurrentProblemID = nil
	m.checkpoint.TokensGenerated += tokens
	m.checkpoint.EnergyConsumedJoules += energyJoules
	m.checkpoint.Stats = stats
	m.itemCounter++
	shouldSave := m.itemCounter >= m.interval
	if shouldSave {
		m.itemCounter = 0
	}
	m.mu.Unlock()

	if shouldSave {
		return m.Save() // Async for routine progress
	}
	return nil
}

// SetCurrentProblem records the problem now in flight. An in-flight problem
// is not completed; on resume it runs again from scratch.
func (m *Manager) SetCurrentProblem(problemID int) {
	m.mu.Lock()
	m.checkpoint.CurrentProblemID = &problemID
	m.mu.Unlock()
}

// SetState transitions the run state and persists it synchronously
func (m *Manager) SetState(state models.RunState, pauseReason string) error {
	m.mu.Lock()
	m.checkpoint.State = state
	m.checkpoint.PauseReason = pauseReason
	m.mu.Unlock()

	return m.SaveSync()
}

// Checkpoint returns a read-only copy of the current checkpoint
func (m *Manager) Checkpoint() *models.Checkpoint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.copyCheckpoint()
}

// Clear removes the persisted checkpoint. Runs that stopped or completed
// leave nothing behind; only paused checkpoints stay for resume.
func (m *Manager) Clear() error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := m.st.Remove(CheckpointKey); err != nil {
		return fmt.Errorf("failed to clear checkpoint: %w", err)
	}
	m.logger.Debug("Checkpoint cleared")
	return nil
}

// Close stops the async writer and waits for pending writes
func (m *Manager) Close() error {
	if !m.enabled {
		return nil
	}

	close(m.stopWriter)
	m.writeWg.Wait()

	m.errorMu.Lock()
	defer m.errorMu.Unlock()
	return m.writerError
}

// ComputeConfigHash fingerprints the fields that define a run's identity.
// A checkpoint only resumes under the same fingerprint.
func ComputeConfigHash(modelID string, mode models.Mode, cfg models.RunConfig) string {
	data := fmt.Sprintf("%s:%s:%d:%d:%d",
		modelID,
		mode,
		cfg.ProblemRangeStart,
		cfg.ProblemRangeEnd,
		cfg.IterationsPerProblem)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash[:8]) // First 8 bytes
}
