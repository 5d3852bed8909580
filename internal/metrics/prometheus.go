package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/edgebench/edgebench/pkg/models"
)

var (
	// Generation latency metrics
	ttftSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "edgebench_ttft_seconds",
			Help:    "Time to first token in seconds by model and mode",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~200s
		},
		[]string{"model", "mode"},
	)

	interTokenSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "edgebench_inter_token_seconds",
			Help:    "Gap between consecutive tokens in seconds by model and mode",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~32s
		},
		[]string{"model", "mode"},
	)

	tokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgebench_tokens_total",
			Help: "Total tokens generated",
		},
		[]string{"model", "mode"},
	)

	// Run progress metrics
	problemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgebench_problems_total",
			Help: "Problems evaluated by outcome",
		},
		[]string{"model", "mode", "status"}, // status: "success"/"failure"
	)

	thermalThrottleEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "edgebench_thermal_throttle_events_total",
			Help: "Times the run cooled down or paused for temperature",
		},
	)

	batteryPauseEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "edgebench_battery_pause_events_total",
			Help: "Times the run paused for battery",
		},
	)

	// Device telemetry gauges, refreshed on every poll
	batteryPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "edgebench_battery_percent",
			Help: "Battery charge percent; -1 when no battery is present",
		},
	)

	temperatureCelsius = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "edgebench_temperature_celsius",
			Help: "Hottest thermal zone in degrees Celsius",
		},
	)

	memoryUsedMB = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "edgebench_memory_used_mb",
			Help: "Used system memory in MB",
		},
	)

	cpuPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "edgebench_cpu_percent",
			Help: "System CPU utilization percent",
		},
	)
)

// Collector provides convenience methods for recording metrics
type Collector struct {
	logger *slog.Logger
}

// NewCollector creates a new metrics collector
func NewCollector(logger *slog.Logger) *Collector {
	return &Collector{
		logger: logger,
	}
}

// RecordGeneration publishes the latency profile of one finished generation
func (c *Collector) RecordGeneration(model string, mode models.Mode, m models.GenerationMetrics) {
	if m.TTFTValid {
		ttftSeconds.WithLabelValues(model, string(mode)).Observe(m.TTFTMs / 1000.0)
	}
	for _, gap := range m.InterTokenMs {
		interTokenSeconds.WithLabelValues(model, string(mode)).Observe(gap / 1000.0)
	}
	tokensTotal.WithLabelValues(model, string(mode)).Add(float64(m.TokenCount))
}

// RecordProblem counts one evaluated problem
func (c *Collector) RecordProblem(model string, mode models.Mode, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	problemsTotal.WithLabelValues(model, string(mode), status).Inc()
}

// RecordSnapshot refreshes the device telemetry gauges
func (c *Collector) RecordSnapshot(snap models.ResourceSnapshot) {
	batteryPercent.Set(float64(snap.BatteryPercent))
	temperatureCelsius.Set(snap.TemperatureC)
	memoryUsedMB.Set(snap.MemoryUsedMB)
	cpuPercent.Set(snap.CPUPercent)
}

// IncThermalThrottle counts a cooldown or thermal pause
func (c *Collector) IncThermalThrottle() {
	thermalThrottleEvents.Inc()
}

// IncBatteryPause counts a battery pause
func (c *Collector) IncBatteryPause() {
	batteryPauseEvents.Inc()
}

// StartServer exposes /metrics on the given address in the background.
// Failures are logged rather than fatal; the benchmark runs fine without
// the listener.
func StartServer(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Metrics listener started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics listener failed", "error", err)
		}
	}()
}
