package types

import (
	"context"
	"time"
)

// ExecResult is what the injected executor reports for one attempt.
// Err must be nil when Success is true.
type ExecResult struct {
	Success bool
	Err     *ExecError
}

// Executor is the permission-operation capability the surrounding
// system injects. The engine never calls a management plane directly;
// every vendor interaction goes through this interface.
type Executor interface {
	Execute(ctx context.Context, op Operation) ExecResult
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, op Operation) ExecResult

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, op Operation) ExecResult {
	return f(ctx, op)
}

// LatencySummary holds per-operation elapsed-time statistics in
// milliseconds, derived from the aggregator's histogram.
type LatencySummary struct {
	MinMs float64 `json:"min_ms"`
	MaxMs float64 `json:"max_ms"`
	AvgMs float64 `json:"avg_ms"`
	P50Ms float64 `json:"p50_ms"`
	P90Ms float64 `json:"p90_ms"`
	P95Ms float64 `json:"p95_ms"`
	P99Ms float64 `json:"p99_ms"`
}

// RunSummary is the aggregate result of one engine run. It is built
// incrementally by the aggregator and immutable once the run completes;
// snapshots taken mid-run are point-in-time copies.
type RunSummary struct {
	RunID        string          `json:"run_id"`
	Total        int             `json:"total"`
	Created      int             `json:"created"`
	Skipped      int             `json:"skipped"`
	Failed       int             `json:"failed"`
	TotalRetries int             `json:"total_retries"`
	StartTime    time.Time       `json:"start_time"`
	Elapsed      time.Duration   `json:"elapsed"`
	Latency      *LatencySummary `json:"latency,omitempty"`
	Errors       []ErrorRecord   `json:"errors,omitempty"`
}

// Processed returns how many operations have reached a terminal
// outcome so far.
func (s *RunSummary) Processed() int {
	return s.Created + s.Skipped + s.Failed
}

// Done reports whether every input operation has an outcome.
func (s *RunSummary) Done() bool {
	return s.Processed() >= s.Total
}
