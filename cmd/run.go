package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"vmtag/perm-engine/internal/api"
	"vmtag/perm-engine/internal/config"
	"vmtag/perm-engine/internal/executor"
	"vmtag/perm-engine/internal/export"
	"vmtag/perm-engine/internal/opsource"
	"vmtag/perm-engine/internal/partition"
	"vmtag/perm-engine/internal/progress"
	"vmtag/perm-engine/internal/runlog"
	"vmtag/perm-engine/pkg/engine"
	"vmtag/perm-engine/pkg/logger"
	"vmtag/perm-engine/pkg/types"
)

var (
	// run command flags.
	runThreads          int
	runStrategy         string
	runMaxRetries       int
	runRetryDelay       time.Duration
	runProgressInterval time.Duration
	runDryRun           bool
	runTarget           string
	runErrorsCSV        string
	runOutJSON          string
	runStatusAddr       string
	runLogPath          string
	runFailOnErrors     bool
)

// runCmd executes an operation plan.
var runCmd = &cobra.Command{
	Use:   "run <plan.yaml>",
	Short: "Execute an operation plan",
	Long: `Execute the operations of a plan file across a bounded worker
pool. A run that completes with failed or skipped operations is still a
successful run at the engine level; use --fail-on-errors to turn failed
operations into a non-zero exit code.`,
	Example: `  # Dry run with the default 4 workers
  perm-engine run --dry-run plan.yaml

  # 8 workers, complexity-balanced batches, against a live endpoint
  perm-engine run -t 8 --strategy complexity --target https://vc-proxy.local plan.yaml

  # Persist the error report and the summary
  perm-engine run --errors-csv errors.csv --out-json summary.json plan.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntVarP(&runThreads, "threads", "t", 0, "worker count, 1-10 (overrides config)")
	runCmd.Flags().StringVar(&runStrategy, "strategy", "", "batch strategy: round-robin, power-state, complexity")
	runCmd.Flags().IntVar(&runMaxRetries, "max-retries", -1, "max additional attempts for transient failures")
	runCmd.Flags().DurationVar(&runRetryDelay, "retry-delay", 0, "backoff base delay")
	runCmd.Flags().DurationVar(&runProgressInterval, "progress-interval", 0, "progress reporting interval")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "simulate execution without touching the target")
	runCmd.Flags().StringVar(&runTarget, "target", "", "management-plane base URL")
	runCmd.Flags().StringVar(&runErrorsCSV, "errors-csv", "", "write the error report CSV to this path")
	runCmd.Flags().StringVar(&runOutJSON, "out-json", "", "write the run summary JSON to this path")
	runCmd.Flags().StringVar(&runStatusAddr, "status-addr", "", "serve live run status on this address")
	runCmd.Flags().StringVar(&runLogPath, "run-log", "", "write the per-operation run log to this file")
	runCmd.Flags().BoolVar(&runFailOnErrors, "fail-on-errors", false, "exit non-zero when any operation failed")
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig()
	if err != nil {
		return err
	}
	applyLogLevel(cfg)

	plan, err := opsource.ParseFile(args[0])
	if err != nil {
		return err
	}

	strategy, err := partition.ParseStrategy(cfg.Engine.BatchStrategy)
	if err != nil {
		return err
	}

	log, err := openRunLog(cfg.Logging.RunLogPath)
	if err != nil {
		return err
	}
	defer log.Close()

	printer := newProgressPrinter(quiet)

	eng := engine.New(engine.Options{
		ThreadCount:         cfg.Engine.ThreadCount,
		Strategy:            strategy,
		MaxOperationRetries: cfg.Engine.MaxOperationRetries,
		RetryDelay:          cfg.Engine.RetryDelay.Std(),
		ProgressInterval:    cfg.Engine.ProgressInterval.Std(),
		RunLog:              log,
		OnProgress:          printer.update,
	})

	if cfg.Status.Address != "" {
		statusSrv := api.NewServer(cfg.Status, eng.Snapshot)
		statusSrv.Start()
		defer statusSrv.Shutdown()
	}

	exec, err := buildExecutor(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\naborting run...")
		cancel()
	}()

	if !quiet {
		printRunInfo(plan, cfg)
	}

	summary, runErr := eng.Run(ctx, plan.Operations, exec)
	printer.clear()

	if summary != nil {
		if !quiet {
			printSummary(summary)
		}
		if runErrWrite := writeOutputs(summary); runErrWrite != nil {
			return runErrWrite
		}
	}

	if runErr != nil {
		return fmt.Errorf("run aborted: %w", runErr)
	}
	if runFailOnErrors && summary.Failed > 0 {
		return fmt.Errorf("%d of %d operations failed", summary.Failed, summary.Total)
	}
	return nil
}

// loadRunConfig loads the config file and layers the run flags on top.
func loadRunConfig() (*config.Config, error) {
	loader := config.NewLoader().WithConfigPath(cfgFile)

	if runThreads > 0 {
		loader.WithOverride("engine.thread_count", strconv.Itoa(runThreads))
	}
	if runStrategy != "" {
		loader.WithOverride("engine.batch_strategy", runStrategy)
	}
	if runMaxRetries >= 0 {
		loader.WithOverride("engine.max_operation_retries", strconv.Itoa(runMaxRetries))
	}
	if runRetryDelay > 0 {
		loader.WithOverride("engine.retry_delay", runRetryDelay.String())
	}
	if runProgressInterval > 0 {
		loader.WithOverride("engine.progress_interval", runProgressInterval.String())
	}
	if runTarget != "" {
		loader.WithOverride("target.base_url", runTarget)
	}
	if runStatusAddr != "" {
		loader.WithOverride("status.address", runStatusAddr)
	}
	if runLogPath != "" {
		loader.WithOverride("logging.run_log_path", runLogPath)
	}

	return loader.Load()
}

// applyLogLevel applies the configured level unless a flag already
// forced one.
func applyLogLevel(cfg *config.Config) {
	if debug || quiet {
		return
	}
	logger.SetLevelFromString(cfg.Logging.Level)
}

func openRunLog(path string) (*runlog.Writer, error) {
	if path == "" {
		return runlog.Discard(), nil
	}
	return runlog.OpenFile(path)
}

func buildExecutor(cfg *config.Config) (types.Executor, error) {
	if runDryRun {
		return executor.NewSimExecutor(), nil
	}
	if cfg.Target.BaseURL == "" {
		return nil, fmt.Errorf("no target configured: set --target, target.base_url or use --dry-run")
	}
	return executor.NewHTTPExecutor(cfg.Target), nil
}

func writeOutputs(summary *types.RunSummary) error {
	if runErrorsCSV != "" {
		if err := export.WriteErrorCSV(runErrorsCSV, summary.Errors, export.DefaultCSVConfig()); err != nil {
			return err
		}
		if !quiet {
			fmt.Printf("error report written to %s\n", runErrorsCSV)
		}
	}
	if runOutJSON != "" {
		if err := export.WriteSummaryJSON(runOutJSON, summary); err != nil {
			return err
		}
		if !quiet {
			fmt.Printf("summary written to %s\n", runOutJSON)
		}
	}
	return nil
}

func printRunInfo(plan *opsource.Plan, cfg *config.Config) {
	name := plan.Name
	if name == "" {
		name = "(unnamed plan)"
	}
	fmt.Printf("perm-engine %s\n\n", Version)
	fmt.Printf("  plan:       %s\n", name)
	fmt.Printf("  operations: %d\n", len(plan.Operations))
	fmt.Printf("  workers:    %d\n", cfg.Engine.ThreadCount)
	fmt.Printf("  strategy:   %s\n", cfg.Engine.BatchStrategy)
	if runDryRun {
		fmt.Printf("  mode:       dry run\n")
	} else {
		fmt.Printf("  target:     %s\n", cfg.Target.BaseURL)
	}
	fmt.Println()
}

func printSummary(summary *types.RunSummary) {
	fmt.Println()
	fmt.Println("  run results:")
	fmt.Println()
	fmt.Printf("    run id ..........: %s\n", summary.RunID)
	fmt.Printf("    elapsed .........: %s\n", summary.Elapsed.Round(time.Millisecond))
	fmt.Printf("    operations ......: %d\n", summary.Total)
	fmt.Printf("    created .........: %d\n", summary.Created)
	fmt.Printf("    skipped .........: %d\n", summary.Skipped)
	fmt.Printf("    failed ..........: %d\n", summary.Failed)
	fmt.Printf("    retries .........: %d\n", summary.TotalRetries)
	if summary.Latency != nil {
		fmt.Printf("    avg latency .....: %.1fms\n", summary.Latency.AvgMs)
		fmt.Printf("    p95 latency .....: %.1fms\n", summary.Latency.P95Ms)
		fmt.Printf("    p99 latency .....: %.1fms\n", summary.Latency.P99Ms)
	}

	if len(summary.Errors) > 0 {
		fmt.Println()
		fmt.Println("  errors:")
		max := len(summary.Errors)
		if max > 10 {
			max = 10
		}
		for _, rec := range summary.Errors[:max] {
			fmt.Printf("    - %s %s [%s]: %s\n", rec.Operation, rec.TargetName, rec.Category, rec.Message)
		}
		if len(summary.Errors) > max {
			fmt.Printf("    ... and %d more\n", len(summary.Errors)-max)
		}
	}
	fmt.Println()
}

// progressPrinter renders a single-line progress bar, redrawn in place.
type progressPrinter struct {
	quiet bool
	drawn bool
}

func newProgressPrinter(quiet bool) *progressPrinter {
	return &progressPrinter{quiet: quiet}
}

func (p *progressPrinter) update(u progress.Update) {
	if p.quiet || u.Total == 0 {
		return
	}

	ratio := float64(u.Processed) / float64(u.Total)
	barWidth := 30
	filled := int(ratio * float64(barWidth))

	bar := make([]rune, barWidth)
	for i := range bar {
		if i < filled {
			bar[i] = '#'
		} else {
			bar[i] = '-'
		}
	}

	eta := ""
	if u.ETA > 0 {
		eta = fmt.Sprintf("  eta %s", u.ETA)
	}

	fmt.Printf("\r  [%s] %d/%d  %.1f op/s%s   ", string(bar), u.Processed, u.Total, u.Rate, eta)
	p.drawn = true
}

func (p *progressPrinter) clear() {
	if p.drawn {
		fmt.Print("\r\033[K")
		p.drawn = false
	}
}
