package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgebench/edgebench/internal/analysis"
	"github.com/edgebench/edgebench/internal/checkpoint"
	"github.com/edgebench/edgebench/internal/config"
	"github.com/edgebench/edgebench/internal/dataset"
	"github.com/edgebench/edgebench/internal/evaluator"
	"github.com/edgebench/edgebench/internal/inference"
	"github.com/edgebench/edgebench/internal/metrics"
	"github.com/edgebench/edgebench/internal/scheduler"
	"github.com/edgebench/edgebench/internal/store"
	"github.com/edgebench/edgebench/internal/telemetry"
	"github.com/edgebench/edgebench/internal/writer"
	"github.com/edgebench/edgebench/pkg/models"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	configPath    string
	envFile       string
	verbose       bool
	jsonOutput    bool
	sessionDir    string
	modelOverride string
	modeOverride  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "edgebench",
		Short: "EdgeBench - On-Device LLM Benchmark Runner",
		Long: `EdgeBench drives code-generation benchmarks against a local inference
engine, gating every work item on battery and thermal telemetry and
checkpointing progress so interrupted runs resume where they left off.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a single benchmark",
		Long: `Run the configured problem range in one mode:
1. Load the model on the inference engine
2. Generate and evaluate a solution for each problem
3. Checkpoint after every completed problem
4. Export the session with per-item metrics`,
		RunE: runBenchmark,
	}
	addRunFlags(runCmd)
	runCmd.Flags().StringVar(&modelOverride, "model", "", "Override the configured model ID")
	runCmd.Flags().StringVar(&modeOverride, "mode", "", "Override the configured run mode")

	jointCmd := &cobra.Command{
		Use:   "joint",
		Short: "Run a batched sweep across all configured modes",
		Long: `Split the problem range into batches and run every configured mode
against each batch before moving on. Each batch/mode pair is a full
checkpointed run; the combined summary is written at the end.`,
		RunE: runJoint,
	}
	addRunFlags(jointCmd)

	resumeCmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume the checkpointed run",
		Long:  "Load the persisted checkpoint, validate it against the current configuration and continue from the first incomplete problem.",
		RunE:  runResume,
	}
	addRunFlags(resumeCmd)

	analyzeCmd := &cobra.Command{
		Use:   "analyze <session.json>",
		Short: "Compute the statistical report for an exported session",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeSession,
	}
	analyzeCmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the report as JSON")

	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage exported sessions",
	}
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List exported sessions under the output folder",
		RunE:  listSessions,
	}
	listCmd.Flags().StringVar(&sessionDir, "output", "output", "Output directory to scan")
	sessionsCmd.AddCommand(listCmd)

	checkpointCmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Manage the persisted checkpoint",
	}
	inspectCmd := &cobra.Command{
		Use:   "inspect",
		Short: "Display the persisted checkpoint",
		RunE:  inspectCheckpoint,
	}
	inspectCmd.Flags().StringVar(&configPath, "config", "config.toml", "Path to configuration file")
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove the persisted checkpoint",
		RunE:  clearCheckpoint,
	}
	clearCmd.Flags().StringVar(&configPath, "config", "config.toml", "Path to configuration file")
	checkpointCmd.AddCommand(inspectCmd)
	checkpointCmd.AddCommand(clearCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(jointCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(checkpointCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configPath, "config", "config.toml", "Path to configuration file")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "Path to environment file")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
}

// runtime bundles everything a benchmark command needs. close releases the
// store and the log file.
type runtime struct {
	cfg        *config.Config
	sessionMgr *writer.SessionManager
	logger     *slog.Logger
	logFile    *os.File
	st         store.Store
	engine     inference.Engine
	provider   dataset.Provider
	eval       evaluator.Evaluator
	source     telemetry.Source
	collector  *metrics.Collector
	exporter   *writer.Exporter
}

func setupRuntime() (*runtime, error) {
	if envFile != "" {
		if err := loadEnvFile(envFile); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load env file: %v\n", err)
		}
	}

	cfg, secrets, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	sessionMgr, err := writer.NewSessionManager(cfg.Output.Dir, "", slog.Default())
	if err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	logLevel := writer.ParseLevel(cfg.Logging.Level)
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger, logFile, err := writer.SetupLogger(sessionMgr, logLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to setup logger: %w", err)
	}

	logger.Info("EdgeBench starting",
		"version", Version,
		"config", configPath,
		"session_dir", sessionMgr.GetSessionDir())

	if err := sessionMgr.BackupConfig(configPath); err != nil {
		logger.Warn("Failed to back up config", "error", err)
	}

	st, err := store.Open(store.Options{
		Path:     cfg.Storage.Path,
		InMemory: cfg.Storage.InMemory,
		Logger:   logger,
	})
	if err != nil {
		_ = logFile.Close()
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	engine := inference.NewClient(cfg.Engine, secrets.GetAPIKey(cfg.Engine.BaseURL), logger)

	provider, err := dataset.NewFileProvider(cfg.Dataset.Path, logger)
	if err != nil {
		_ = st.Close()
		_ = logFile.Close()
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}

	eval, err := buildEvaluator(cfg, engine, logger)
	if err != nil {
		_ = st.Close()
		_ = logFile.Close()
		return nil, err
	}

	collector := metrics.NewCollector(logger)
	if cfg.Metrics.ListenAddr != "" {
		metrics.StartServer(cfg.Metrics.ListenAddr, logger)
	}

	return &runtime{
		cfg:        cfg,
		sessionMgr: sessionMgr,
		logger:     logger,
		logFile:    logFile,
		st:         st,
		engine:     engine,
		provider:   provider,
		eval:       eval,
		source:     telemetry.NewSysfsSource(logger),
		collector:  collector,
		exporter:   writer.NewExporter(sessionMgr, logger),
	}, nil
}

func (rt *runtime) close() {
	if err := rt.st.Close(); err != nil {
		rt.logger.Error("Failed to close store", "error", err)
	}
	if rt.logFile != nil {
		_ = rt.logFile.Sync()
		_ = rt.logFile.Close()
	}
}

func (rt *runtime) newScheduler() *scheduler.Scheduler {
	return scheduler.New(rt.cfg, rt.engine, rt.provider, rt.eval, rt.source, rt.st, rt.exporter, rt.collector, rt.logger)
}

func buildEvaluator(cfg *config.Config, client *inference.Client, logger *slog.Logger) (evaluator.Evaluator, error) {
	timeout := time.Duration(cfg.Evaluator.TimeoutSeconds) * time.Second
	switch cfg.Evaluator.Kind {
	case "", "exec":
		return evaluator.NewExecEvaluator(cfg.Evaluator.Command, timeout, logger), nil
	case "judge":
		return evaluator.NewJudgeEvaluator(client, cfg.Evaluator.JudgeModel, logger), nil
	default:
		return nil, fmt.Errorf("unknown evaluator kind %q", cfg.Evaluator.Kind)
	}
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	rt, err := setupRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	if modelOverride != "" {
		rt.cfg.Run.ModelID = modelOverride
	}
	if modeOverride != "" {
		rt.cfg.Run.Mode = modeOverride
	}

	mode, ok := models.ParseMode(rt.cfg.Run.Mode)
	if !ok {
		return fmt.Errorf("invalid run mode %q", rt.cfg.Run.Mode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched := rt.newScheduler()
	watchLifecycleSignals(ctx, sched)

	if err := sched.Start(ctx, rt.cfg.Run.ModelID, mode, rt.cfg.RunConfig()); err != nil {
		return fmt.Errorf("failed to start benchmark: %w", err)
	}
	sched.Wait()

	return reportOutcome(ctx, rt, sched)
}

func runResume(cmd *cobra.Command, args []string) error {
	rt, err := setupRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched := rt.newScheduler()
	watchLifecycleSignals(ctx, sched)

	if err := sched.ResumeFromCheckpoint(ctx); err != nil {
		return err
	}
	sched.Wait()

	return reportOutcome(ctx, rt, sched)
}

func runJoint(cmd *cobra.Command, args []string) error {
	rt, err := setupRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	j := scheduler.NewJointRunner(rt.cfg, rt.engine, rt.provider, rt.eval, rt.source, rt.st, rt.exporter, rt.collector, rt.logger)
	if err := j.Run(ctx); err != nil {
		if ctx.Err() != nil {
			rt.logger.Warn("Joint run interrupted",
				"resume_command", "edgebench resume")
			return fmt.Errorf("joint run interrupted (resume the active batch with: edgebench resume)")
		}
		return err
	}

	printJointSummary(j.Summary())
	return nil
}

// watchLifecycleSignals maps SIGUSR1/SIGUSR2 to the app lifecycle: a
// backgrounded benchmark pauses at the next item boundary, a foregrounded one
// resumes once conditions allow.
func watchLifecycleSignals(ctx context.Context, sched *scheduler.Scheduler) {
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGUSR1, syscall.SIGUSR2)
	go func() {
		defer signal.Stop(ch)
		for {
			select {
			case sig := <-ch:
				switch sig {
				case syscall.SIGUSR1:
					sched.NotifyBackgrounded()
				case syscall.SIGUSR2:
					sched.NotifyForegrounded(ctx)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

func reportOutcome(ctx context.Context, rt *runtime, sched *scheduler.Scheduler) error {
	switch state := sched.State(); state {
	case models.StateCompleted:
		session := sched.Session()
		rt.logger.Info("Benchmark complete",
			"reason", sched.FinalReason(),
			"problems", len(session.Problems),
			"successes", session.SuccessCount(),
			"export", sched.ExportPath())
		printRunReport(session)
		return nil

	case models.StateFailed:
		return fmt.Errorf("benchmark failed: %s", sched.FinalReason())

	case models.StatePaused:
		reason := "paused"
		if cp := sched.Checkpoint(); cp != nil && cp.PauseReason != "" {
			reason = cp.PauseReason
		}
		rt.logger.Warn("Benchmark paused", "reason", reason, "resume_command", "edgebench resume")
		return fmt.Errorf("benchmark paused: %s (resume with: edgebench resume)", reason)

	default:
		if ctx.Err() != nil {
			rt.logger.Warn("Benchmark interrupted", "resume_command", "edgebench resume")
			return fmt.Errorf("benchmark interrupted (resume with: edgebench resume)")
		}
		return fmt.Errorf("benchmark ended in state %s", state)
	}
}

// printRunReport prints the headline numbers from the on-demand statistical
// report. The full report is available via the analyze command.
func printRunReport(session *models.Session) {
	if len(session.Problems) == 0 {
		return
	}
	report := analysis.Analyze(session)

	fmt.Println()
	fmt.Printf("Session %s (%s, %s)\n", report.SessionID, report.ModelID, report.Mode)
	fmt.Println(strings.Repeat("-", 60))
	fmt.Printf("Problems:   %d (%d passed)\n", report.ProblemCount, report.SuccessCount)
	if report.TTFT.Count > 0 {
		fmt.Printf("TTFT:       mean %.1fms  median %.1fms  p95 %.1fms\n",
			report.TTFT.MeanMs, report.TTFT.MedianMs, report.TTFT.P95Ms)
	}
	if report.TPS.Count > 0 {
		fmt.Printf("Throughput: mean %.1f tok/s  stability %.2f\n",
			report.TPS.Mean, report.TPS.Stability)
	}
	ks := make([]int, 0, len(report.PassAtK))
	for k := range report.PassAtK {
		ks = append(ks, k)
	}
	sort.Ints(ks)
	for _, k := range ks {
		fmt.Printf("pass@%d:     %.3f\n", k, report.PassAtK[k])
	}
	if len(report.Anomalies) > 0 {
		fmt.Printf("Anomalies:  %d (see analyze for details)\n", len(report.Anomalies))
	}
}

func printJointSummary(summary *models.JointSummary) {
	fmt.Println()
	fmt.Printf("Joint run for %s: %d problems, %d passed\n",
		summary.ModelID, summary.TotalProblems, summary.TotalSuccesses)
	fmt.Println(strings.Repeat("-", 72))
	fmt.Printf("%-12s %-10s %-10s %-12s %-12s %s\n", "MODE", "PROBLEMS", "PASSED", "PASS RATE", "AVG TTFT", "AVG TPS")
	for _, agg := range summary.PerMode {
		fmt.Printf("%-12s %-10d %-10d %-12.3f %-12.1f %.1f\n",
			agg.Mode, agg.Problems, agg.Successes, agg.SuccessRate, agg.AvgTTFTMs, agg.AvgTPS)
	}
	if len(summary.FailedRuns) > 0 {
		fmt.Println()
		fmt.Println("Failed runs:")
		for _, f := range summary.FailedRuns {
			fmt.Printf("  %s\n", f)
		}
	}
}

func analyzeSession(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read session file: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return fmt.Errorf("failed to parse session file: %w", err)
	}

	report := analysis.Analyze(&session)

	if jsonOutput {
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		fmt.Println(string(out))
		return nil
	}

	printFullReport(report)
	return nil
}

func printFullReport(report *models.StatisticalReport) {
	fmt.Printf("Statistical Report for session: %s\n", report.SessionID)
	fmt.Println(strings.Repeat("=", 72))
	fmt.Printf("Model:              %s\n", report.ModelID)
	fmt.Printf("Mode:               %s\n", report.Mode)
	fmt.Printf("Problems:           %d (%d passed)\n", report.ProblemCount, report.SuccessCount)
	fmt.Println()

	fmt.Println("Time to First Token:")
	fmt.Printf("  Samples:          %d\n", report.TTFT.Count)
	fmt.Printf("  Mean / Median:    %.1f ms / %.1f ms\n", report.TTFT.MeanMs, report.TTFT.MedianMs)
	fmt.Printf("  P95 / P99:        %.1f ms / %.1f ms\n", report.TTFT.P95Ms, report.TTFT.P99Ms)
	fmt.Println()

	fmt.Println("Decode Throughput:")
	fmt.Printf("  Samples:          %d\n", report.TPS.Count)
	fmt.Printf("  Mean / Median:    %.1f / %.1f tok/s\n", report.TPS.Mean, report.TPS.Median)
	fmt.Printf("  Min / Max:        %.1f / %.1f tok/s\n", report.TPS.Min, report.TPS.Max)
	fmt.Printf("  Stability:        %.3f\n", report.TPS.Stability)
	fmt.Println()

	fmt.Println("Inter-Token Latency:")
	fmt.Printf("  Samples:          %d\n", report.InterToken.Count)
	fmt.Printf("  P50 / P75 / P90:  %.1f / %.1f / %.1f ms\n", report.InterToken.P50Ms, report.InterToken.P75Ms, report.InterToken.P90Ms)
	fmt.Printf("  P95 / P99:        %.1f / %.1f ms\n", report.InterToken.P95Ms, report.InterToken.P99Ms)
	fmt.Printf("  Jitter:           %.2f ms\n", report.InterToken.JitterMs)
	fmt.Printf("  Burstiness:       %.2f\n", report.InterToken.Burstiness)
	fmt.Printf("  Consistency:      %.3f\n", report.InterToken.Consistency)
	fmt.Println()

	fmt.Println("Distribution:")
	fmt.Printf("  Mean / Median:    %.2f / %.2f ms\n", report.Distribution.Mean, report.Distribution.Median)
	fmt.Printf("  Mode:             %.2f ms (%d bins)\n", report.Distribution.Mode, report.Distribution.BinCount)
	fmt.Printf("  Std Dev:          %.2f ms\n", report.Distribution.StdDev)
	fmt.Printf("  Skew / Kurtosis:  %.2f / %.2f\n", report.Distribution.Skewness, report.Distribution.KurtosisExcess)
	fmt.Printf("  Outliers:         %d\n", len(report.Distribution.Outliers))
	fmt.Println()

	if report.Correlations.TokensVsLatencyValid {
		fmt.Printf("Tokens vs latency correlation:   %+.3f\n", report.Correlations.TokensVsLatency)
	}
	if report.Correlations.PositionVsLatencyValid {
		fmt.Printf("Position vs latency correlation: %+.3f (over %d problems)\n",
			report.Correlations.PositionVsLatency, report.Correlations.PositionProblems)
	}

	if len(report.PassAtK) > 0 {
		fmt.Println()
		fmt.Println("Pass@k:")
		ks := make([]int, 0, len(report.PassAtK))
		for k := range report.PassAtK {
			ks = append(ks, k)
		}
		sort.Ints(ks)
		for _, k := range ks {
			fmt.Printf("  pass@%-3d          %.3f\n", k, report.PassAtK[k])
		}
	}

	if len(report.Anomalies) > 0 {
		fmt.Println()
		fmt.Println("Anomalies:")
		for _, a := range report.Anomalies {
			fmt.Printf("  [%s] %s: %s\n", a.Severity, a.Type, a.Description)
		}
	}
}

func listSessions(cmd *cobra.Command, args []string) error {
	dirs, err := writer.ListSessionDirs(sessionDir)
	if err != nil {
		return err
	}

	rows := 0
	for _, name := range dirs {
		dir := filepath.Join(sessionDir, name)
		exports, _ := filepath.Glob(filepath.Join(dir, "session_*.json"))

		for _, path := range exports {
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			var session models.Session
			if err := json.Unmarshal(data, &session); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: skipping unreadable export %s: %v\n", path, err)
				continue
			}

			if rows == 0 {
				fmt.Printf("%-38s %-24s %-10s %-9s %s\n", "SESSION ID", "MODEL", "MODE", "PROBLEMS", "PASS RATE")
				fmt.Println(strings.Repeat("-", 96))
			}
			rows++

			rate := 0.0
			if len(session.Problems) > 0 {
				rate = float64(session.SuccessCount()) / float64(len(session.Problems)) * 100
			}
			fmt.Printf("%-38s %-24s %-10s %-9d %.1f%%\n",
				session.ID, session.ModelID, session.Mode, len(session.Problems), rate)
		}
	}

	if rows == 0 {
		fmt.Println("No exported sessions found. Run a benchmark first.")
	}
	return nil
}

func inspectCheckpoint(cmd *cobra.Command, args []string) error {
	st, err := openConfiguredStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	cp, err := checkpoint.Load(st, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if cp == nil {
		fmt.Println("No checkpoint found.")
		return nil
	}

	total := cp.Config.ProblemRangeEnd - cp.Config.ProblemRangeStart + 1

	fmt.Println("Checkpoint Information")
	fmt.Println(strings.Repeat("=", 72))
	fmt.Printf("Session ID:      %s\n", cp.SessionID)
	fmt.Printf("Model:           %s\n", cp.ModelID)
	fmt.Printf("Mode:            %s\n", cp.Mode)
	fmt.Printf("State:           %s\n", cp.State)
	if cp.PauseReason != "" {
		fmt.Printf("Pause Reason:    %s\n", cp.PauseReason)
	}
	fmt.Printf("Created At:      %s\n", cp.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Last Saved At:   %s\n", cp.LastSavedAt.Format("2006-01-02 15:04:05"))
	fmt.Println()

	fmt.Println("Progress:")
	fmt.Printf("  Range:         %d - %d\n", cp.Config.ProblemRangeStart, cp.Config.ProblemRangeEnd)
	fmt.Printf("  Completed:     %d / %d (%.1f%%)\n",
		cp.CompletedCount(), total, checkpoint.ProgressPercentage(cp, total))
	if cp.CurrentProblemID != nil {
		fmt.Printf("  In Progress:   problem %d\n", *cp.CurrentProblemID)
	}
	fmt.Println()

	fmt.Println("Statistics:")
	fmt.Printf("  Tokens:        %d\n", cp.TokensGenerated)
	if cp.EnergyConsumedJoules > 0 {
		fmt.Printf("  Energy:        %.1f J\n", cp.EnergyConsumedJoules)
	}
	fmt.Printf("  Avg TTFT:      %.1f ms\n", cp.Stats.AvgTTFTMs)
	fmt.Printf("  Avg TPS:       %.1f\n", cp.Stats.AvgTPS)
	fmt.Printf("  Thermal Events: %d\n", cp.Stats.ThermalThrottleEvents)
	fmt.Printf("  Battery Events: %d\n", cp.Stats.BatteryPauseEvents)
	fmt.Println()

	if cp.State.Terminal() {
		fmt.Println("This run is finished.")
	} else {
		fmt.Println("To resume this run:")
		fmt.Println("  edgebench resume")
	}
	return nil
}

func clearCheckpoint(cmd *cobra.Command, args []string) error {
	st, err := openConfiguredStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	if err := st.Remove(checkpoint.CheckpointKey); err != nil {
		return fmt.Errorf("failed to remove checkpoint: %w", err)
	}
	fmt.Println("Checkpoint cleared.")
	return nil
}

func openConfiguredStore() (store.Store, error) {
	cfg, _, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	st, err := store.Open(store.Options{
		Path:     cfg.Storage.Path,
		InMemory: cfg.Storage.InMemory,
		Logger:   slog.Default(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return st, nil
}

// loadEnvFile sets environment variables from KEY=VALUE lines. Comments and
// blank lines are skipped; quoted values are unwrapped.
func loadEnvFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') || (value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}
		if err := os.Setenv(key, value); err != nil {
			return err
		}
	}
	return nil
}
