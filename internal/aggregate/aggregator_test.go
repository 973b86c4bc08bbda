package aggregate

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vmtag/perm-engine/pkg/types"
)

func TestAggregator_CountsByStatus(t *testing.T) {
	a := New(5)

	a.Record(types.ExecutionOutcome{Status: types.OutcomeCreated, Elapsed: 10 * time.Millisecond})
	a.Record(types.ExecutionOutcome{Status: types.OutcomeCreated, RetryCount: 2, Elapsed: 30 * time.Millisecond})
	a.Record(types.ExecutionOutcome{Status: types.OutcomeSkipped, Elapsed: 5 * time.Millisecond})
	a.Record(types.ExecutionOutcome{Status: types.OutcomeFailed, RetryCount: 3, Elapsed: 80 * time.Millisecond})

	s := a.Snapshot()
	assert.Equal(t, 5, s.Total)
	assert.Equal(t, 2, s.Created)
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 5, s.TotalRetries)
	assert.Equal(t, 4, s.Processed())
	assert.False(t, s.Done())
}

func TestAggregator_ConcurrentRecording(t *testing.T) {
	const workers = 8
	const perWorker = 1000

	a := New(workers * perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				var status types.OutcomeStatus
				switch i % 3 {
				case 0:
					status = types.OutcomeCreated
				case 1:
					status = types.OutcomeSkipped
				default:
					status = types.OutcomeFailed
				}
				a.Record(types.ExecutionOutcome{
					Status:     status,
					RetryCount: 1,
					Elapsed:    time.Duration(i%50+1) * time.Millisecond,
				})
				if status == types.OutcomeFailed {
					a.RecordError(types.ErrorRecord{
						Timestamp:  time.Now(),
						TargetName: fmt.Sprintf("vm-%d-%d", w, i),
						WorkerID:   w,
						Message:    "boom",
						Category:   types.CategoryPermanent,
					})
				}
			}
		}(w)
	}
	wg.Wait()
	a.Finish()

	s := a.Snapshot()
	require.Equal(t, workers*perWorker, s.Processed())
	// i%3 over 0..999 yields 334 created, 333 skipped, 333 failed.
	assert.Equal(t, workers*334, s.Created)
	assert.Equal(t, workers*333, s.Skipped)
	assert.Equal(t, workers*333, s.Failed)
	assert.Equal(t, workers*perWorker, s.TotalRetries)
	assert.Len(t, s.Errors, workers*333)
	assert.True(t, s.Done())
}

func TestAggregator_SnapshotIsIndependentCopy(t *testing.T) {
	a := New(2)
	a.Record(types.ExecutionOutcome{Status: types.OutcomeFailed, Elapsed: time.Millisecond})
	a.RecordError(types.ErrorRecord{TargetName: "vm-a", Message: "first"})

	s := a.Snapshot()
	require.Len(t, s.Errors, 1)

	// Mutations after the snapshot must not leak into it.
	a.RecordError(types.ErrorRecord{TargetName: "vm-b", Message: "second"})
	a.Record(types.ExecutionOutcome{Status: types.OutcomeCreated, Elapsed: time.Millisecond})

	assert.Len(t, s.Errors, 1)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 0, s.Created)

	s.Errors[0].Message = "mutated"
	assert.Equal(t, "first", a.Snapshot().Errors[0].Message)
}

func TestAggregator_LatencySummary(t *testing.T) {
	a := New(3)
	a.Record(types.ExecutionOutcome{Status: types.OutcomeCreated, Elapsed: 10 * time.Millisecond})
	a.Record(types.ExecutionOutcome{Status: types.OutcomeCreated, Elapsed: 20 * time.Millisecond})
	a.Record(types.ExecutionOutcome{Status: types.OutcomeCreated, Elapsed: 40 * time.Millisecond})

	s := a.Snapshot()
	require.NotNil(t, s.Latency)
	// The histogram keeps 3 significant figures, so bounds are loose.
	assert.InDelta(t, 10, s.Latency.MinMs, 1)
	assert.InDelta(t, 40, s.Latency.MaxMs, 1)
	assert.Greater(t, s.Latency.P99Ms, s.Latency.P50Ms-1)
}

func TestAggregator_NoLatencyBeforeFirstOutcome(t *testing.T) {
	a := New(10)
	assert.Nil(t, a.Snapshot().Latency)
	assert.NotEmpty(t, a.RunID())
}

func TestAggregator_FinishFreezesElapsed(t *testing.T) {
	a := New(1)
	a.Record(types.ExecutionOutcome{Status: types.OutcomeCreated, Elapsed: time.Millisecond})
	a.Finish()

	first := a.Snapshot().Elapsed
	time.Sleep(10 * time.Millisecond)
	second := a.Snapshot().Elapsed

	assert.Equal(t, first, second)
}
