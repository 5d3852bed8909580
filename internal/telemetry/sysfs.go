package telemetry

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/edgebench/edgebench/pkg/models"
)

// SysfsSource reads device telemetry from the Linux sysfs and procfs trees.
// The root is injectable so tests can point it at a fabricated tree.
type SysfsSource struct {
	root   string
	logger *slog.Logger

	mu      sync.Mutex
	lastCPU cpuSample
}

type cpuSample struct {
	busy  uint64
	total uint64
	valid bool
}

// NewSysfsSource creates a source reading from the real filesystem.
func NewSysfsSource(logger *slog.Logger) *SysfsSource {
	return NewSysfsSourceAt("/", logger)
}

// NewSysfsSourceAt creates a source rooted at the given directory.
func NewSysfsSourceAt(root string, logger *slog.Logger) *SysfsSource {
	return &SysfsSource{
		root:   root,
		logger: logger.With("component", "telemetry"),
	}
}

// Snapshot reads battery, temperature, memory, CPU, and power in one pass.
// Missing battery or thermal files degrade to sentinels; an unreadable
// /proc/meminfo is a real poll failure and returns an error.
func (s *SysfsSource) Snapshot(ctx context.Context) (models.ResourceSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return models.ResourceSnapshot{}, err
	}

	snap := models.ResourceSnapshot{
		TakenAt:        time.Now(),
		BatteryPercent: NoBattery,
	}

	snap.BatteryPercent = s.readBattery()
	snap.TemperatureC = s.readTemperature()
	snap.PowerWatts = s.readPower()

	usedMB, availMB, err := s.readMemory()
	if err != nil {
		return models.ResourceSnapshot{}, fmt.Errorf("failed to read memory info: %w", err)
	}
	snap.MemoryUsedMB = usedMB
	snap.MemoryAvailableMB = availMB

	snap.CPUPercent = s.readCPU()

	return snap, nil
}

// readBattery returns the first battery capacity found, or NoBattery.
func (s *SysfsSource) readBattery() int {
	supplies, err := filepath.Glob(filepath.Join(s.root, "sys/class/power_supply/*"))
	if err != nil || len(supplies) == 0 {
		return NoBattery
	}

	for _, supply := range supplies {
		// Skip AC adapters and USB supplies
		if kind, err := readTrimmed(filepath.Join(supply, "type")); err == nil && kind != "Battery" {
			continue
		}
		if pct, err := readInt(filepath.Join(supply, "capacity")); err == nil {
			return pct
		}
	}

	return NoBattery
}

// readTemperature returns the hottest thermal zone in degrees Celsius, or 0
// when no zone is readable.
func (s *SysfsSource) readTemperature() float64 {
	zones, err := filepath.Glob(filepath.Join(s.root, "sys/class/thermal/thermal_zone*/temp"))
	if err != nil || len(zones) == 0 {
		return 0
	}

	var maxC float64
	found := false
	for _, zone := range zones {
		milli, err := readInt(zone)
		if err != nil {
			continue
		}
		c := float64(milli) / 1000.0
		if !found || c > maxC {
			maxC = c
			found = true
		}
	}
	if !found {
		s.logger.Debug("No readable thermal zones")
		return 0
	}
	return maxC
}

// readPower returns battery discharge power in watts, or 0 when unavailable.
func (s *SysfsSource) readPower() float64 {
	supplies, _ := filepath.Glob(filepath.Join(s.root, "sys/class/power_supply/*"))
	for _, supply := range supplies {
		// power_now is microwatts
		if uw, err := readInt(filepath.Join(supply, "power_now")); err == nil && uw > 0 {
			return float64(uw) / 1e6
		}
		// Fall back to current_now (uA) * voltage_now (uV)
		ua, errA := readInt(filepath.Join(supply, "current_now"))
		uv, errV := readInt(filepath.Join(supply, "voltage_now"))
		if errA == nil && errV == nil && ua > 0 && uv > 0 {
			return float64(ua) * float64(uv) / 1e12
		}
	}
	return 0
}

// readMemory parses /proc/meminfo for total and available memory in MB.
func (s *SysfsSource) readMemory() (usedMB, availMB float64, err error) {
	f, err := os.Open(filepath.Join(s.root, "proc/meminfo"))
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	var totalKB, availKB uint64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "MemTotal:"):
			totalKB = parseMeminfoKB(line)
		case strings.HasPrefix(line, "MemAvailable:"):
			availKB = parseMeminfoKB(line)
		}
		if totalKB > 0 && availKB > 0 {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, 0, err
	}
	if totalKB == 0 {
		return 0, 0, fmt.Errorf("no MemTotal entry in meminfo")
	}

	availMB = float64(availKB) / 1024.0
	usedMB = float64(totalKB-availKB) / 1024.0
	return usedMB, availMB, nil
}

// readCPU returns aggregate CPU utilization since the previous snapshot. The
// first call has no baseline and reports 0.
func (s *SysfsSource) readCPU() float64 {
	f, err := os.Open(filepath.Join(s.root, "proc/stat"))
	if err != nil {
		return 0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return 0
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) < 5 || fields[0] != "cpu" {
		return 0
	}

	var total, idle uint64
	for i, field := range fields[1:] {
		v, err := strconv.ParseUint(field, 10, 64)
		if err != nil {
			return 0
		}
		total += v
		// idle + iowait
		if i == 3 || i == 4 {
			idle += v
		}
	}
	busy := total - idle

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.lastCPU
	s.lastCPU = cpuSample{busy: busy, total: total, valid: true}

	if !prev.valid || total <= prev.total {
		return 0
	}
	dTotal := total - prev.total
	dBusy := busy - prev.busy
	return 100.0 * float64(dBusy) / float64(dTotal)
}

func parseMeminfoKB(line string) uint64 {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0
	}
	v, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func readTrimmed(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func readInt(path string) (int, error) {
	s, err := readTrimmed(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(s)
}
