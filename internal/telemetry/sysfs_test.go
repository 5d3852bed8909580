package telemetry

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeFakeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", rel, err)
	}
}

func fakeMeminfo(t *testing.T, root string) {
	writeFakeFile(t, root, "proc/meminfo",
		"MemTotal:        8000000 kB\nMemFree:         1000000 kB\nMemAvailable:    4000000 kB\n")
}

func TestSnapshotFullTree(t *testing.T) {
	root := t.TempDir()
	writeFakeFile(t, root, "sys/class/power_supply/BAT0/type", "Battery\n")
	writeFakeFile(t, root, "sys/class/power_supply/BAT0/capacity", "85\n")
	writeFakeFile(t, root, "sys/class/power_supply/BAT0/power_now", "4500000\n")
	writeFakeFile(t, root, "sys/class/thermal/thermal_zone0/temp", "38500\n")
	writeFakeFile(t, root, "sys/class/thermal/thermal_zone1/temp", "41250\n")
	fakeMeminfo(t, root)
	writeFakeFile(t, root, "proc/stat", "cpu  100 0 100 700 100 0 0 0 0 0\n")

	src := NewSysfsSourceAt(root, testLogger())
	snap, err := src.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	if snap.BatteryPercent != 85 {
		t.Errorf("BatteryPercent = %d, want 85", snap.BatteryPercent)
	}
	// Hottest zone wins
	if snap.TemperatureC != 41.25 {
		t.Errorf("TemperatureC = %.2f, want 41.25", snap.TemperatureC)
	}
	if snap.PowerWatts != 4.5 {
		t.Errorf("PowerWatts = %.2f, want 4.5", snap.PowerWatts)
	}
	wantAvail := 4000000.0 / 1024.0
	if snap.MemoryAvailableMB != wantAvail {
		t.Errorf("MemoryAvailableMB = %.1f, want %.1f", snap.MemoryAvailableMB, wantAvail)
	}
	wantUsed := 4000000.0 / 1024.0
	if snap.MemoryUsedMB != wantUsed {
		t.Errorf("MemoryUsedMB = %.1f, want %.1f", snap.MemoryUsedMB, wantUsed)
	}
}

func TestSnapshotNoBattery(t *testing.T) {
	root := t.TempDir()
	fakeMeminfo(t, root)

	src := NewSysfsSourceAt(root, testLogger())
	snap, err := src.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	if snap.BatteryPercent != NoBattery {
		t.Errorf("BatteryPercent = %d, want sentinel %d", snap.BatteryPercent, NoBattery)
	}
	if snap.TemperatureC != 0 {
		t.Errorf("TemperatureC = %.2f, want 0 for missing zones", snap.TemperatureC)
	}
}

func TestSnapshotSkipsACAdapter(t *testing.T) {
	root := t.TempDir()
	writeFakeFile(t, root, "sys/class/power_supply/AC/type", "Mains\n")
	writeFakeFile(t, root, "sys/class/power_supply/AC/capacity", "0\n")
	writeFakeFile(t, root, "sys/class/power_supply/BAT1/type", "Battery\n")
	writeFakeFile(t, root, "sys/class/power_supply/BAT1/capacity", "42\n")
	fakeMeminfo(t, root)

	src := NewSysfsSourceAt(root, testLogger())
	snap, err := src.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	if snap.BatteryPercent != 42 {
		t.Errorf("BatteryPercent = %d, want 42 from BAT1", snap.BatteryPercent)
	}
}

func TestSnapshotMissingMeminfoFails(t *testing.T) {
	root := t.TempDir()

	src := NewSysfsSourceAt(root, testLogger())
	if _, err := src.Snapshot(context.Background()); err == nil {
		t.Error("Snapshot() expected error without proc/meminfo")
	}
}

func TestCPUDelta(t *testing.T) {
	root := t.TempDir()
	fakeMeminfo(t, root)
	writeFakeFile(t, root, "proc/stat", "cpu  100 0 100 800 0 0 0 0 0 0\n")

	src := NewSysfsSourceAt(root, testLogger())

	// First snapshot has no baseline
	snap, err := src.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.CPUPercent != 0 {
		t.Errorf("First CPUPercent = %.1f, want 0", snap.CPUPercent)
	}

	// 100 more busy jiffies out of 200 total
	writeFakeFile(t, root, "proc/stat", "cpu  150 0 150 900 0 0 0 0 0 0\n")
	snap, err = src.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.CPUPercent != 50.0 {
		t.Errorf("Second CPUPercent = %.1f, want 50.0", snap.CPUPercent)
	}
}

func TestSnapshotRespectsContext(t *testing.T) {
	root := t.TempDir()
	fakeMeminfo(t, root)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := NewSysfsSourceAt(root, testLogger())
	if _, err := src.Snapshot(ctx); err == nil {
		t.Error("Snapshot() expected error for cancelled context")
	}
}
