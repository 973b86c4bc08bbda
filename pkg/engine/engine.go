// Package engine provides the public API of the permission batch
// engine: partition a resolved operation list, run it across a bounded
// worker pool with retry and backoff, and return the aggregated
// summary.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"vmtag/perm-engine/internal/aggregate"
	"vmtag/perm-engine/internal/dispatch"
	"vmtag/perm-engine/internal/partition"
	"vmtag/perm-engine/internal/progress"
	"vmtag/perm-engine/internal/retry"
	"vmtag/perm-engine/internal/runlog"
	"vmtag/perm-engine/pkg/logger"
	"vmtag/perm-engine/pkg/types"
)

// Options configures one engine instance. Zero values fall back to the
// documented defaults.
type Options struct {
	// ThreadCount is the worker pool size (1-10, default 4). The batch
	// count always equals the thread count.
	ThreadCount int

	// Strategy selects the partition strategy (default round-robin).
	Strategy partition.Strategy

	// MaxOperationRetries bounds additional attempts after a transient
	// failure. Zero means a single attempt with no retries; negative
	// selects the default (3).
	MaxOperationRetries int

	// RetryDelay is the backoff base delay (default 2s).
	RetryDelay time.Duration

	// ProgressInterval is the reporter polling interval (default 5s).
	ProgressInterval time.Duration

	// RunLog receives one line per worker event. Nil discards.
	RunLog *runlog.Writer

	// OnProgress receives periodic progress updates. Nil logs them.
	OnProgress progress.EmitFunc
}

// DefaultOptions returns the engine defaults.
func DefaultOptions() Options {
	return Options{
		ThreadCount:         4,
		Strategy:            partition.StrategyRoundRobin,
		MaxOperationRetries: retry.DefaultMaxRetries,
		RetryDelay:          retry.DefaultBaseDelay,
		ProgressInterval:    progress.DefaultInterval,
	}
}

// Engine runs operation sets. Each Run call is a fresh, bounded
// pipeline; the engine keeps no state between runs beyond the snapshot
// of the run currently in flight.
type Engine struct {
	opts Options

	mu      sync.RWMutex
	current *aggregate.Aggregator
}

// New creates an engine, filling unset options with defaults.
func New(opts Options) *Engine {
	def := DefaultOptions()
	if opts.ThreadCount == 0 {
		opts.ThreadCount = def.ThreadCount
	}
	if opts.Strategy == "" {
		opts.Strategy = def.Strategy
	}
	if opts.MaxOperationRetries < 0 {
		opts.MaxOperationRetries = def.MaxOperationRetries
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = def.RetryDelay
	}
	if opts.ProgressInterval == 0 {
		opts.ProgressInterval = def.ProgressInterval
	}
	if opts.RunLog == nil {
		opts.RunLog = runlog.Discard()
	}
	return &Engine{opts: opts}
}

// Run partitions the operations, executes them across the worker pool
// and returns the final summary. Setup errors (invalid thread count)
// abort before any worker starts. Per-operation failures never abort
// the run; a completed run with failed operations still returns a nil
// error. Cancelling ctx stops workers at their next operation boundary
// and returns the partial summary together with the context error.
func (e *Engine) Run(ctx context.Context, ops []types.Operation, exec types.Executor) (*types.RunSummary, error) {
	batches, err := partition.Partition(ops, e.opts.ThreadCount, e.opts.Strategy)
	if err != nil {
		return nil, fmt.Errorf("partition operations: %w", err)
	}

	agg := aggregate.New(len(ops))
	e.setCurrent(agg)
	defer e.setCurrent(nil)

	retrier := retry.NewController(e.opts.MaxOperationRetries, e.opts.RetryDelay)
	dispatcher := dispatch.New(retrier, agg, e.opts.RunLog)

	reporter := progress.NewReporter(e.opts.ProgressInterval, agg.Snapshot, e.opts.OnProgress)
	reporter.Start()
	defer reporter.Stop()

	logger.Info("run %s: %d operations across %d workers (%s)",
		agg.RunID(), len(ops), len(batches), e.opts.Strategy)

	runErr := dispatcher.Run(ctx, batches, exec)

	summary := agg.Snapshot()
	logger.Info("run %s: created=%d skipped=%d failed=%d retries=%d in %s",
		summary.RunID, summary.Created, summary.Skipped, summary.Failed,
		summary.TotalRetries, summary.Elapsed.Round(time.Millisecond))

	return summary, runErr
}

// Snapshot returns a point-in-time summary of the run in flight, or nil
// when no run is active. Serves the status surface.
func (e *Engine) Snapshot() *types.RunSummary {
	e.mu.RLock()
	agg := e.current
	e.mu.RUnlock()

	if agg == nil {
		return nil
	}
	return agg.Snapshot()
}

func (e *Engine) setCurrent(agg *aggregate.Aggregator) {
	e.mu.Lock()
	e.current = agg
	e.mu.Unlock()
}
