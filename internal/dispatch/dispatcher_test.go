package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vmtag/perm-engine/internal/aggregate"
	"vmtag/perm-engine/internal/retry"
	"vmtag/perm-engine/internal/runlog"
	"vmtag/perm-engine/pkg/types"
)

func makeBatches(batchCount, perBatch int) []types.Batch {
	batches := make([]types.Batch, batchCount)
	for i := range batches {
		batches[i].Index = i
		for j := 0; j < perBatch; j++ {
			batches[i].Operations = append(batches[i].Operations, types.Operation{
				ID:         fmt.Sprintf("op-%d-%d", i, j),
				TargetName: fmt.Sprintf("vm-%d-%d", i, j),
				Action:     types.ActionApplyTag,
			})
		}
	}
	return batches
}

func noWaitController(maxRetries int) *retry.Controller {
	return retry.NewController(maxRetries, time.Millisecond).
		WithSleep(func(ctx context.Context, d time.Duration) error { return ctx.Err() })
}

func TestDispatcher_AllOperationsProcessed(t *testing.T) {
	batches := makeBatches(4, 25)
	agg := aggregate.New(100)
	d := New(noWaitController(3), agg, runlog.Discard())

	var calls atomic.Int32
	exec := types.ExecutorFunc(func(ctx context.Context, op types.Operation) types.ExecResult {
		calls.Add(1)
		return types.ExecResult{Success: true}
	})

	err := d.Run(context.Background(), batches, exec)
	require.NoError(t, err)

	assert.Equal(t, int32(100), calls.Load())
	s := agg.Snapshot()
	assert.Equal(t, 100, s.Created)
	assert.Equal(t, 100, s.Processed())
	assert.True(t, s.Done())
	assert.Equal(t, 0, d.ActiveWorkers())
}

func TestDispatcher_OneWorkerPerBatch(t *testing.T) {
	const batchCount = 6

	batches := makeBatches(batchCount, 1)
	agg := aggregate.New(batchCount)
	d := New(noWaitController(0), agg, runlog.Discard())

	// Every worker blocks until all of them have checked in, proving
	// the batches run on distinct goroutines.
	var entered sync.WaitGroup
	entered.Add(batchCount)
	release := make(chan struct{})

	exec := types.ExecutorFunc(func(ctx context.Context, op types.Operation) types.ExecResult {
		entered.Done()
		<-release
		return types.ExecResult{Success: true}
	})

	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background(), batches, exec) }()

	entered.Wait()
	assert.Equal(t, batchCount, d.ActiveWorkers())
	close(release)

	require.NoError(t, <-done)
	assert.Equal(t, batchCount, agg.Snapshot().Created)
}

func TestDispatcher_FailureDoesNotAbortBatch(t *testing.T) {
	// Batch of 5 where the middle operation fails permanently; the
	// remaining operations still run.
	batches := makeBatches(1, 5)
	agg := aggregate.New(5)
	d := New(noWaitController(3), agg, runlog.Discard())

	exec := types.ExecutorFunc(func(ctx context.Context, op types.Operation) types.ExecResult {
		if op.ID == "op-0-2" {
			return types.ExecResult{
				Success: false,
				Err:     types.NewExecError(types.CategoryPermanent, "vm not found"),
			}
		}
		return types.ExecResult{Success: true}
	})

	err := d.Run(context.Background(), batches, exec)
	require.NoError(t, err)

	s := agg.Snapshot()
	assert.Equal(t, 4, s.Created)
	assert.Equal(t, 1, s.Failed)
	require.Len(t, s.Errors, 1)
	assert.Equal(t, "vm-0-2", s.Errors[0].TargetName)
	assert.Equal(t, types.CategoryPermanent, s.Errors[0].Category)
	assert.Equal(t, "vm not found", s.Errors[0].Message)
}

func TestDispatcher_SequentialWithinBatch(t *testing.T) {
	batches := makeBatches(1, 20)
	agg := aggregate.New(20)
	d := New(noWaitController(0), agg, runlog.Discard())

	var order []string
	exec := types.ExecutorFunc(func(ctx context.Context, op types.Operation) types.ExecResult {
		order = append(order, op.ID)
		return types.ExecResult{Success: true}
	})

	require.NoError(t, d.Run(context.Background(), batches, exec))

	require.Len(t, order, 20)
	for j, id := range order {
		assert.Equal(t, fmt.Sprintf("op-0-%d", j), id)
	}
}

func TestDispatcher_ErrorRecordsOnlyForFailures(t *testing.T) {
	batches := makeBatches(2, 10)
	agg := aggregate.New(20)
	d := New(noWaitController(0), agg, runlog.Discard())

	exec := types.ExecutorFunc(func(ctx context.Context, op types.Operation) types.ExecResult {
		return types.ExecResult{
			Success: false,
			Err:     types.NewExecError(types.CategoryConflict, "tag already applied"),
		}
	})

	require.NoError(t, d.Run(context.Background(), batches, exec))

	s := agg.Snapshot()
	assert.Equal(t, 20, s.Skipped)
	assert.Equal(t, 0, s.Failed)
	assert.Empty(t, s.Errors, "skips are not error records")
}

func TestDispatcher_CancelStopsAtOperationBoundary(t *testing.T) {
	batches := makeBatches(1, 10)
	agg := aggregate.New(10)
	d := New(noWaitController(0), agg, runlog.Discard())

	ctx, cancel := context.WithCancel(context.Background())

	var calls atomic.Int32
	exec := types.ExecutorFunc(func(ctx context.Context, op types.Operation) types.ExecResult {
		if calls.Add(1) == 3 {
			cancel()
		}
		return types.ExecResult{Success: true}
	})

	err := d.Run(ctx, batches, exec)
	assert.ErrorIs(t, err, context.Canceled)

	s := agg.Snapshot()
	assert.Equal(t, 3, s.Processed(), "in-flight operation completes, the rest never start")
	assert.False(t, s.Done())
}

func TestDispatcher_WritesRunLogLines(t *testing.T) {
	var buf bytes.Buffer
	batches := makeBatches(1, 2)
	agg := aggregate.New(2)
	d := New(noWaitController(0), agg, runlog.NewWriter(&buf))

	exec := types.ExecutorFunc(func(ctx context.Context, op types.Operation) types.ExecResult {
		return types.ExecResult{Success: true}
	})

	require.NoError(t, d.Run(context.Background(), batches, exec))

	out := buf.String()
	assert.Contains(t, out, "worker 0: starting batch 0 (2 operations)")
	assert.Contains(t, out, "worker 0: batch 0 complete")
	assert.Contains(t, out, "created")
}

func TestDispatcher_EmptyBatchesFinishImmediately(t *testing.T) {
	batches := makeBatches(3, 0)
	agg := aggregate.New(0)
	d := New(noWaitController(0), agg, runlog.Discard())

	exec := types.ExecutorFunc(func(ctx context.Context, op types.Operation) types.ExecResult {
		t.Error("no operation should execute")
		return types.ExecResult{}
	})

	require.NoError(t, d.Run(context.Background(), batches, exec))
	assert.Equal(t, 0, agg.Snapshot().Processed())
}
