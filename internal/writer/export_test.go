package writer

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/edgebench/edgebench/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testSessionManager(t *testing.T) *SessionManager {
	t.Helper()
	sm, err := NewSessionManager(t.TempDir(), "", testLogger())
	if err != nil {
		t.Fatalf("NewSessionManager failed: %v", err)
	}
	return sm
}

func TestNewSessionManagerCreatesDir(t *testing.T) {
	outputDir := t.TempDir()
	sm, err := NewSessionManager(outputDir, "", testLogger())
	if err != nil {
		t.Fatalf("NewSessionManager failed: %v", err)
	}

	info, err := os.Stat(sm.GetSessionDir())
	if err != nil {
		t.Fatalf("Session dir missing: %v", err)
	}
	if !info.IsDir() {
		t.Error("Expected session dir to be a directory")
	}
	if !strings.HasPrefix(filepath.Base(sm.GetSessionDir()), "session_") {
		t.Errorf("Expected session_ prefix, got %s", filepath.Base(sm.GetSessionDir()))
	}
}

func TestNewSessionManagerResumeMissingDir(t *testing.T) {
	if _, err := NewSessionManager(t.TempDir(), "session_does-not-exist", testLogger()); err == nil {
		t.Error("Expected error for missing resume directory")
	}
}

func TestNewSessionManagerResumeExisting(t *testing.T) {
	outputDir := t.TempDir()
	first, err := NewSessionManager(outputDir, "", testLogger())
	if err != nil {
		t.Fatalf("NewSessionManager failed: %v", err)
	}

	name := filepath.Base(first.GetSessionDir())
	second, err := NewSessionManager(outputDir, name, testLogger())
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if second.GetSessionDir() != first.GetSessionDir() {
		t.Error("Expected resume to reuse the same directory")
	}
}

func TestBackupConfig(t *testing.T) {
	sm := testSessionManager(t)

	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configPath, []byte("[run]\nmodel_id = \"m\"\n"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	if err := sm.BackupConfig(configPath); err != nil {
		t.Fatalf("BackupConfig failed: %v", err)
	}

	data, err := os.ReadFile(sm.GetConfigBackupPath())
	if err != nil {
		t.Fatalf("Backup missing: %v", err)
	}
	if !strings.Contains(string(data), "model_id") {
		t.Error("Expected backup to contain the config content")
	}
}

func TestExportSessionRoundTrip(t *testing.T) {
	sm := testSessionManager(t)
	exporter := NewExporter(sm, testLogger())

	end := time.Now()
	session := &models.Session{
		ID:        "abc123",
		ModelID:   "test-model",
		Mode:      models.ModeStandard,
		StartTime: end.Add(-time.Minute),
		EndTime:   &end,
		Problems: []models.ProblemResult{
			{
				ProblemID: 10,
				Success:   true,
				Metrics: models.GenerationMetrics{
					Version:    models.GenerationMetricsVersion,
					TokenCount: 42,
					TTFTMs:     120.5,
					TTFTValid:  true,
				},
			},
			{
				ProblemID:     11,
				Success:       false,
				FailureReason: "tests failed",
			},
		},
		FailedProblemIDs: map[int]bool{11: true},
	}

	path, err := exporter.WriteSession(session)
	if err != nil {
		t.Fatalf("WriteSession failed: %v", err)
	}
	if filepath.Base(path) != "session_abc123.json" {
		t.Errorf("Unexpected export name: %s", filepath.Base(path))
	}

	loaded, err := exporter.ReadSession(path)
	if err != nil {
		t.Fatalf("ReadSession failed: %v", err)
	}
	if loaded.ID != session.ID {
		t.Errorf("Expected session id %s, got %s", session.ID, loaded.ID)
	}
	if len(loaded.Problems) != 2 {
		t.Fatalf("Expected 2 problems, got %d", len(loaded.Problems))
	}
	if loaded.Problems[0].Metrics.TokenCount != 42 {
		t.Errorf("Expected 42 tokens, got %d", loaded.Problems[0].Metrics.TokenCount)
	}
	if loaded.SuccessCount() != 1 {
		t.Errorf("Expected 1 success, got %d", loaded.SuccessCount())
	}
	if !loaded.FailedProblemIDs[11] {
		t.Error("Expected failed problem id to survive the round trip")
	}

	// No temp file may linger after a successful write
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("Expected temp file to be renamed away")
	}
}

func TestReadSessionMissingFile(t *testing.T) {
	sm := testSessionManager(t)
	exporter := NewExporter(sm, testLogger())

	if _, err := exporter.ReadSession(filepath.Join(sm.GetSessionDir(), "nope.json")); err == nil {
		t.Error("Expected error for missing export")
	}
}

func TestWriteSummary(t *testing.T) {
	sm := testSessionManager(t)
	exporter := NewExporter(sm, testLogger())

	summary := &models.JointSummary{
		ModelID:   "test-model",
		BatchSize: 10,
		Modes:     []models.Mode{models.ModeStandard, models.ModeToolUse},
		PerMode: []models.ModeAggregate{
			{Mode: models.ModeStandard, Problems: 10, Successes: 7, SuccessRate: 0.7},
		},
		Sessions: []models.SessionExportRecord{
			{SessionID: "s1", Mode: models.ModeStandard, BatchStart: 0, BatchEnd: 9, Path: "session_s1.json"},
		},
		Complete: true,
	}

	path, err := exporter.WriteSummary(summary)
	if err != nil {
		t.Fatalf("WriteSummary failed: %v", err)
	}
	if filepath.Base(path) != "joint_summary.json" {
		t.Errorf("Unexpected summary name: %s", filepath.Base(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Summary missing: %v", err)
	}
	if !strings.Contains(string(data), "\"complete\": true") {
		t.Error("Expected summary JSON to record completeness")
	}
}

func TestListSessionDirs(t *testing.T) {
	outputDir := t.TempDir()

	for _, name := range []string{"session_2026-01-01T10-00-00", "session_2026-01-02T10-00-00", "not_a_session"} {
		if err := os.MkdirAll(filepath.Join(outputDir, name), 0755); err != nil {
			t.Fatalf("Failed to create dir: %v", err)
		}
	}

	dirs, err := ListSessionDirs(outputDir)
	if err != nil {
		t.Fatalf("ListSessionDirs failed: %v", err)
	}
	if len(dirs) != 2 {
		t.Fatalf("Expected 2 session dirs, got %d", len(dirs))
	}
	// Newest first
	if dirs[0] != "session_2026-01-02T10-00-00" {
		t.Errorf("Expected newest first, got %s", dirs[0])
	}

	empty, err := ListSessionDirs(filepath.Join(outputDir, "missing"))
	if err != nil {
		t.Fatalf("ListSessionDirs on missing dir failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("Expected no dirs, got %d", len(empty))
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
