// Package aggregate holds the shared, mutex-guarded result collections
// the workers report into. A single lock guards all counters and the
// error list; every access is treated as a write, and snapshots are
// point-in-time copies that are safe to take mid-run.
package aggregate

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/google/uuid"

	"vmtag/perm-engine/pkg/types"
)

// Elapsed-time histogram bounds, in microseconds. One hour caps a
// single operation including its full backoff envelope.
const (
	histMinMicros = 1
	histMaxMicros = int64(time.Hour / time.Microsecond)
	histSigFigs   = 3
)

// Aggregator accumulates per-operation outcomes, error records and
// retry counts across all workers.
type Aggregator struct {
	mu sync.Mutex

	runID     string
	total     int
	startTime time.Time

	created      int
	skipped      int
	failed       int
	totalRetries int

	errors []types.ErrorRecord
	hist   *hdrhistogram.Histogram

	finished bool
	elapsed  time.Duration
}

// New creates an aggregator for a run over total operations.
func New(total int) *Aggregator {
	return &Aggregator{
		runID:     uuid.NewString(),
		total:     total,
		startTime: time.Now(),
		errors:    make([]types.ErrorRecord, 0),
		hist:      hdrhistogram.New(histMinMicros, histMaxMicros, histSigFigs),
	}
}

// RunID returns the identifier assigned to this run.
func (a *Aggregator) RunID() string {
	return a.runID
}

// Record stores one operation outcome. Called concurrently by all
// workers; each outcome is counted exactly once.
func (a *Aggregator) Record(outcome types.ExecutionOutcome) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch outcome.Status {
	case types.OutcomeCreated:
		a.created++
	case types.OutcomeSkipped:
		a.skipped++
	case types.OutcomeFailed:
		a.failed++
	}
	a.totalRetries += outcome.RetryCount

	micros := outcome.Elapsed.Microseconds()
	if micros < histMinMicros {
		micros = histMinMicros
	} else if micros > histMaxMicros {
		micros = histMaxMicros
	}
	// RecordValue only fails outside the configured bounds.
	_ = a.hist.RecordValue(micros)
}

// RecordError appends one error record. At most one record per failed
// operation is expected from the dispatcher.
func (a *Aggregator) RecordError(rec types.ErrorRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.errors = append(a.errors, rec)
}

// Finish freezes the run's elapsed time. Later snapshots report the
// frozen value instead of a still-growing one.
func (a *Aggregator) Finish() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.finished {
		a.finished = true
		a.elapsed = time.Since(a.startTime)
	}
}

// Snapshot returns a consistent point-in-time copy of the run state.
// Safe to call mid-run; the returned value shares nothing mutable with
// the aggregator.
func (a *Aggregator) Snapshot() *types.RunSummary {
	a.mu.Lock()
	defer a.mu.Unlock()

	elapsed := a.elapsed
	if !a.finished {
		elapsed = time.Since(a.startTime)
	}

	summary := &types.RunSummary{
		RunID:        a.runID,
		Total:        a.total,
		Created:      a.created,
		Skipped:      a.skipped,
		Failed:       a.failed,
		TotalRetries: a.totalRetries,
		StartTime:    a.startTime,
		Elapsed:      elapsed,
		Errors:       make([]types.ErrorRecord, len(a.errors)),
	}
	copy(summary.Errors, a.errors)

	if a.hist.TotalCount() > 0 {
		summary.Latency = &types.LatencySummary{
			MinMs: float64(a.hist.Min()) / 1000.0,
			MaxMs: float64(a.hist.Max()) / 1000.0,
			AvgMs: a.hist.Mean() / 1000.0,
			P50Ms: float64(a.hist.ValueAtQuantile(50)) / 1000.0,
			P90Ms: float64(a.hist.ValueAtQuantile(90)) / 1000.0,
			P95Ms: float64(a.hist.ValueAtQuantile(95)) / 1000.0,
			P99Ms: float64(a.hist.ValueAtQuantile(99)) / 1000.0,
		}
	}

	return summary
}
