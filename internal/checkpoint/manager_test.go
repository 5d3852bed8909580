package checkpoint

import (
	"log/slog"
	"os"
	"testing"

	"github.com/edgebench/edgebench/internal/store"
	"github.com/edgebench/edgebench/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.Open(store.Options{InMemory: true, Logger: testLogger()})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() {
		if err := st.Close(); err != nil {
			t.Errorf("Failed to close store: %v", err)
		}
	})
	return st
}

func testRunConfig() models.RunConfig {
	return models.RunConfig{
		MaxHours:             6,
		MinBatteryLevel:      20,
		MaxTemperatureC:      42,
		CooldownMs:           100,
		IterationsPerProblem: 1,
		ProblemRangeStart:    10,
		ProblemRangeEnd:      20,
	}
}

func TestManagerSaveAndLoad(t *testing.T) {
	st := testStore(t)
	m := NewManager(st, "test-model", models.ModeStandard, testRunConfig(), 5, true, testLogger())

	m.SetCurrentProblem(12)
	if err := m.SetState(models.StateRunning, ""); err != nil {
		t.Fatalf("SetState failed: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	cp, err := Load(st, testLogger())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cp == nil {
		t.Fatal("Expected a checkpoint, got nil")
	}
	if cp.SessionID != m.Checkpoint().SessionID {
		t.Error("Expected loaded session id to match")
	}
	if cp.State != models.StateRunning {
		t.Errorf("Expected running state, got %s", cp.State)
	}
	if cp.CurrentProblemID == nil || *cp.CurrentProblemID != 12 {
		t.Errorf("Expected current problem 12, got %v", cp.CurrentProblemID)
	}
	if cp.ModelID != "test-model" {
		t.Errorf("Expected model id 'test-model', got '%s'", cp.ModelID)
	}
}

func TestLoadAbsentCheckpoint(t *testing.T) {
	st := testStore(t)

	cp, err := Load(st, testLogger())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cp != nil {
		t.Errorf("Expected nil for absent checkpoint, got %+v", cp)
	}
}

func TestMarkProblemCompleteInterval(t *testing.T) {
	st := testStore(t)
	m := NewManager(st, "m", models.ModeStandard, testRunConfig(), 3, true, testLogger())

	// Two completions stay below the persistence interval
	for _, id := range []int{10, 11} {
		if err := m.MarkProblemComplete(id, 100, 1.5, models.RunningStats{}); err != nil {
			t.Fatalf("MarkProblemComplete failed: %v", err)
		}
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	cp, err := Load(st, testLogger())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cp != nil {
		t.Error("Expected no persisted checkpoint below the interval")
	}
}

func TestMarkProblemCompletePersistsAtInterval(t *testing.T) {
	st := testStore(t)
	m := NewManager(st, "m", models.ModeStandard, testRunConfig(), 3, true, testLogger())

	for _, id := range []int{10, 11, 12} {
		if err := m.MarkProblemComplete(id, 100, 0, models.RunningStats{}); err != nil {
			t.Fatalf("MarkProblemComplete failed: %v", err)
		}
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	cp, err := Load(st, testLogger())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cp == nil {
		t.Fatal("Expected a persisted checkpoint at the interval")
	}
	if cp.CompletedCount() != 3 {
		t.Errorf("Expected 3 completed problems, got %d", cp.CompletedCount())
	}
	if cp.TokensGenerated != 300 {
		t.Errorf("Expected 300 tokens, got %d", cp.TokensGenerated)
	}
	for _, id := range []int{10, 11, 12} {
		if !cp.CompletedProblemIDs[id] {
			t.Errorf("Expected problem %d to be completed", id)
		}
	}
}

func TestCheckpointCopyIsIndependent(t *testing.T) {
	st := testStore(t)
	m := NewManager(st, "m", models.ModeStandard, testRunConfig(), 5, true, testLogger())
	defer func() {
		if err := m.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	}()

	cp := m.Checkpoint()
	cp.CompletedProblemIDs[99] = true
	cp.State = models.StateFailed

	fresh := m.Checkpoint()
	if fresh.CompletedProblemIDs[99] {
		t.Error("Expected manager state to be isolated from returned copies")
	}
	if fresh.State == models.StateFailed {
		t.Error("Expected manager state unchanged")
	}
}

func TestDisabledManagerPersistsNothing(t *testing.T) {
	st := testStore(t)
	m := NewManager(st, "m", models.ModeStandard, testRunConfig(), 1, false, testLogger())

	if err := m.MarkProblemComplete(10, 50, 0, models.RunningStats{}); err != nil {
		t.Fatalf("MarkProblemComplete failed: %v", err)
	}
	if err := m.SaveSync(); err != nil {
		t.Fatalf("SaveSync failed: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	cp, err := Load(st, testLogger())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cp != nil {
		t.Error("Expected nothing persisted when checkpointing is disabled")
	}
}

func TestClear(t *testing.T) {
	st := testStore(t)
	m := NewManager(st, "m", models.ModeStandard, testRunConfig(), 5, true, testLogger())

	if err := m.SaveSync(); err != nil {
		t.Fatalf("SaveSync failed: %v", err)
	}
	if err := m.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	cp, err := Load(st, testLogger())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cp != nil {
		t.Error("Expected checkpoint to be gone after Clear")
	}
}

func TestValidate(t *testing.T) {
	runCfg := testRunConfig()
	base := func() *models.Checkpoint {
		return &models.Checkpoint{
			Version:    models.CheckpointVersion,
			SessionID:  "s",
			ModelID:    "test-model",
			Mode:       models.ModeStandard,
			Config:     runCfg,
			State:      models.StatePaused,
			ConfigHash: ComputeConfigHash("test-model", models.ModeStandard, runCfg),
		}
	}

	tests := []struct {
		name    string
		mutate  func(*models.Checkpoint)
		modelID string
		wantErr bool
	}{
		{
			name:    "valid paused checkpoint",
			mutate:  func(cp *models.Checkpoint) {},
			modelID: "test-model",
		},
		{
			name:    "different model rejected",
			mutate:  func(cp *models.Checkpoint) {},
			modelID: "other-model",
			wantErr: true,
		},
		{
			name:    "completed checkpoint rejected",
			mutate:  func(cp *models.Checkpoint) { cp.State = models.StateCompleted },
			modelID: "test-model",
			wantErr: true,
		},
		{
			name:    "failed checkpoint rejected",
			mutate:  func(cp *models.Checkpoint) { cp.State = models.StateFailed },
			modelID: "test-model",
			wantErr: true,
		},
		{
			name:    "unknown version rejected",
			mutate:  func(cp *models.Checkpoint) { cp.Version = 99 },
			modelID: "test-model",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cp := base()
			tt.mutate(cp)
			err := Validate(cp, tt.modelID, models.ModeStandard, runCfg)
			if tt.wantErr && err == nil {
				t.Error("Expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}
		})
	}
}

func TestPendingProblems(t *testing.T) {
	cp := &models.Checkpoint{
		CompletedProblemIDs: map[int]bool{11: true, 12: true, 13: true},
	}

	pending := PendingProblems(cp, []int{10, 11, 12, 13, 14, 15})
	want := []int{10, 14, 15}
	if len(pending) != len(want) {
		t.Fatalf("Expected %d pending, got %d", len(want), len(pending))
	}
	for i, id := range want {
		if pending[i] != id {
			t.Errorf("Pending[%d]: expected %d, got %d", i, id, pending[i])
		}
	}
}

func TestProgressPercentage(t *testing.T) {
	cp := &models.Checkpoint{
		CompletedProblemIDs: map[int]bool{1: true, 2: true},
	}

	if pct := ProgressPercentage(cp, 8); pct != 25.0 {
		t.Errorf("Expected 25%%, got %.1f", pct)
	}
	if pct := ProgressPercentage(cp, 0); pct != 0.0 {
		t.Errorf("Expected 0%% for empty range, got %.1f", pct)
	}
}

func TestConfigHashSensitivity(t *testing.T) {
	cfg := testRunConfig()
	base := ComputeConfigHash("m", models.ModeStandard, cfg)

	other := cfg
	other.ProblemRangeEnd = 30
	if ComputeConfigHash("m", models.ModeStandard, other) == base {
		t.Error("Expected hash to change with the problem range")
	}
	if ComputeConfigHash("m2", models.ModeStandard, cfg) == base {
		t.Error("Expected hash to change with the model")
	}
	if ComputeConfigHash("m", models.ModeToolUse, cfg) == base {
		t.Error("Expected hash to change with the mode")
	}
	if ComputeConfigHash("m", models.ModeStandard, cfg) != base {
		t.Error("Expected hash to be stable for identical inputs")
	}
}
