package checkpoint

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/edgebench/edgebench/internal/store"
	"github.com/edgebench/edgebench/pkg/models"
)

// Load reads the persisted checkpoint from the store. Returns (nil, nil)
// when no checkpoint exists.
func Load(st store.Store, logger *slog.Logger) (*models.Checkpoint, error) {
	data, err := st.Get(CheckpointKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	if data == nil {
		return nil, nil
	}

	var cp models.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}

	logger.Info("Checkpoint loaded",
		"session_id", cp.SessionID,
		"model", cp.ModelID,
		"mode", cp.Mode,
		"state", cp.State,
		"completed_problems", len(cp.CompletedProblemIDs))

	return &cp, nil
}

// Validate verifies a loaded checkpoint can resume under the given run
// identity
func Validate(cp *models.Checkpoint, modelID string, mode models.Mode, runCfg models.RunConfig) error {
	if cp.Version != models.CheckpointVersion {
		return fmt.Errorf("checkpoint version %d is not supported (want %d)", cp.Version, models.CheckpointVersion)
	}

	expectedHash := ComputeConfigHash(modelID, mode, runCfg)
	if cp.ConfigHash != expectedHash {
		return fmt.Errorf("checkpoint config mismatch: checkpoint was created for a different model/mode/range (hash: %s vs %s)", cp.ConfigHash, expectedHash)
	}

	if cp.State.Terminal() {
		return fmt.Errorf("checkpoint is already %s, nothing to resume", cp.State)
	}

	return nil
}

// PendingProblems filters the given ordered problem IDs down to those not
// yet completed
func PendingProblems(cp *models.Checkpoint, problemIDs []int) []int {
	var pending []int
	for _, id := range problemIDs {
		if !cp.CompletedProblemIDs[id] {
			pending = append(pending, id)
		}
	}
	return pending
}

// ProgressPercentage returns completion percentage over the checkpoint's
// problem range
func ProgressPercentage(cp *models.Checkpoint, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(cp.CompletedCount()) / float64(total) * 100.0
}
