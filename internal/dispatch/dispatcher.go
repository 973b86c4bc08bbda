// Package dispatch owns the worker pool. One worker runs one batch,
// sequentially and in batch order; only the aggregator and the run-log
// writer are shared between workers.
package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"vmtag/perm-engine/internal/aggregate"
	"vmtag/perm-engine/internal/retry"
	"vmtag/perm-engine/internal/runlog"
	"vmtag/perm-engine/pkg/logger"
	"vmtag/perm-engine/pkg/types"
)

// Dispatcher fans a set of batches out to one worker each and joins
// them. Construct one per run; it carries no cross-run state.
type Dispatcher struct {
	retrier *retry.Controller
	agg     *aggregate.Aggregator
	log     *runlog.Writer

	activeWorkers atomic.Int32
}

// New creates a dispatcher reporting into the given aggregator and run
// log.
func New(retrier *retry.Controller, agg *aggregate.Aggregator, log *runlog.Writer) *Dispatcher {
	return &Dispatcher{
		retrier: retrier,
		agg:     agg,
		log:     log,
	}
}

// Run spawns exactly len(batches) workers, waits for all of them, and
// freezes the aggregator. An individual operation failure never aborts
// its worker or the run; cancelling ctx stops each worker at its next
// operation boundary, and Run reports the cancellation after the join.
func (d *Dispatcher) Run(ctx context.Context, batches []types.Batch, exec types.Executor) error {
	var wg sync.WaitGroup

	for i := range batches {
		wg.Add(1)
		go func(workerID int, batch types.Batch) {
			defer wg.Done()
			d.runWorker(ctx, workerID, batch, exec)
		}(i, batches[i])
	}

	wg.Wait()
	d.agg.Finish()

	return ctx.Err()
}

// ActiveWorkers returns how many workers are currently running.
func (d *Dispatcher) ActiveWorkers() int {
	return int(d.activeWorkers.Load())
}

// runWorker processes one batch, operation by operation.
func (d *Dispatcher) runWorker(ctx context.Context, workerID int, batch types.Batch, exec types.Executor) {
	d.activeWorkers.Add(1)
	defer d.activeWorkers.Add(-1)

	d.log.WriteLine("worker %d: starting batch %d (%d operations)", workerID, batch.Index, batch.Size())

	for _, op := range batch.Operations {
		select {
		case <-ctx.Done():
			d.log.WriteLine("worker %d: run cancelled, %s", workerID, ctx.Err())
			return
		default:
		}

		outcome := d.retrier.Execute(ctx, op, exec)
		d.agg.Record(outcome)

		switch outcome.Status {
		case types.OutcomeCreated:
			d.log.WriteLine("worker %d: %s %s: created (retries=%d, elapsed=%s)",
				workerID, op.Action, op.TargetName, outcome.RetryCount, outcome.Elapsed.Round(time.Millisecond))

		case types.OutcomeSkipped:
			d.log.WriteLine("worker %d: %s %s: skipped: %s",
				workerID, op.Action, op.TargetName, outcome.Reason)

		case types.OutcomeFailed:
			d.log.WriteLine("worker %d: %s %s: failed (%s, retries=%d): %s",
				workerID, op.Action, op.TargetName, outcome.Category, outcome.RetryCount, outcome.Reason)
			logger.Warn("%s %s failed: %s", op.Action, op.TargetName, outcome.Reason)
			d.agg.RecordError(types.ErrorRecord{
				Timestamp:  time.Now(),
				TargetName: op.TargetName,
				Operation:  op.Action,
				WorkerID:   workerID,
				Message:    outcome.Reason,
				Category:   outcome.Category,
				RetryCount: outcome.RetryCount,
			})
		}
	}

	d.log.WriteLine("worker %d: batch %d complete", workerID, batch.Index)
}
