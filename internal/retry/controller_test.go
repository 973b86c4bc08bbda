package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vmtag/perm-engine/pkg/types"
)

// recordingSleep captures backoff waits instead of sleeping.
func recordingSleep(delays *[]time.Duration) func(ctx context.Context, d time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
}

func testOp() types.Operation {
	return types.Operation{
		ID:         "op-1",
		TargetName: "vm-db-01",
		Action:     types.ActionAssignPermission,
	}
}

func alwaysFail(category types.ErrorCategory) types.Executor {
	return types.ExecutorFunc(func(ctx context.Context, op types.Operation) types.ExecResult {
		return types.ExecResult{
			Success: false,
			Err:     types.NewExecError(category, "injected failure"),
		}
	})
}

func TestClassify(t *testing.T) {
	assert.Equal(t, DecisionSkip, Classify(types.CategoryConflict, 0, 3))
	assert.Equal(t, DecisionSkip, Classify(types.CategoryConflict, 3, 3))
	assert.Equal(t, DecisionFail, Classify(types.CategoryPermanent, 0, 3))
	assert.Equal(t, DecisionRetry, Classify(types.CategoryTransient, 0, 3))
	assert.Equal(t, DecisionRetry, Classify(types.CategoryTransient, 2, 3))
	assert.Equal(t, DecisionFail, Classify(types.CategoryTransient, 3, 3))
	assert.Equal(t, DecisionFail, Classify(types.ErrorCategory("bogus"), 0, 3))
}

func TestBackoffDelay_Doubles(t *testing.T) {
	base := 2 * time.Second
	assert.Equal(t, 2*time.Second, BackoffDelay(base, 1))
	assert.Equal(t, 4*time.Second, BackoffDelay(base, 2))
	assert.Equal(t, 8*time.Second, BackoffDelay(base, 3))
	assert.Equal(t, 16*time.Second, BackoffDelay(base, 4))
}

func TestController_SuccessFirstAttempt(t *testing.T) {
	attempts := 0
	exec := types.ExecutorFunc(func(ctx context.Context, op types.Operation) types.ExecResult {
		attempts++
		return types.ExecResult{Success: true}
	})

	c := NewController(3, 2*time.Second)
	outcome := c.Execute(context.Background(), testOp(), exec)

	assert.Equal(t, types.OutcomeCreated, outcome.Status)
	assert.Equal(t, 0, outcome.RetryCount)
	assert.Equal(t, 1, attempts)
}

func TestController_TransientExhaustsRetries(t *testing.T) {
	// maxRetries=3, delay base 2s: exactly 4 attempts with waits of
	// 2s, 4s, 8s between them, then a transient failure.
	attempts := 0
	exec := types.ExecutorFunc(func(ctx context.Context, op types.Operation) types.ExecResult {
		attempts++
		return types.ExecResult{
			Success: false,
			Err:     types.NewExecError(types.CategoryTransient, "connection reset"),
		}
	})

	var delays []time.Duration
	c := NewController(3, 2*time.Second).WithSleep(recordingSleep(&delays))

	outcome := c.Execute(context.Background(), testOp(), exec)

	assert.Equal(t, 4, attempts)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, delays)
	assert.Equal(t, types.OutcomeFailed, outcome.Status)
	assert.Equal(t, types.CategoryTransient, outcome.Category)
	assert.Equal(t, 3, outcome.RetryCount)
	assert.Equal(t, "connection reset", outcome.Reason)
}

func TestController_TransientThenSuccess(t *testing.T) {
	attempts := 0
	exec := types.ExecutorFunc(func(ctx context.Context, op types.Operation) types.ExecResult {
		attempts++
		if attempts < 3 {
			return types.ExecResult{
				Success: false,
				Err:     types.NewExecError(types.CategoryTransient, "timeout"),
			}
		}
		return types.ExecResult{Success: true}
	})

	var delays []time.Duration
	c := NewController(3, time.Second).WithSleep(recordingSleep(&delays))

	outcome := c.Execute(context.Background(), testOp(), exec)

	assert.Equal(t, types.OutcomeCreated, outcome.Status)
	assert.Equal(t, 2, outcome.RetryCount)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays)
}

func TestController_ConflictNeverRetries(t *testing.T) {
	attempts := 0
	exec := types.ExecutorFunc(func(ctx context.Context, op types.Operation) types.ExecResult {
		attempts++
		return types.ExecResult{
			Success: false,
			Err:     types.NewExecError(types.CategoryConflict, "permission already present"),
		}
	})

	var delays []time.Duration
	c := NewController(3, 2*time.Second).WithSleep(recordingSleep(&delays))

	outcome := c.Execute(context.Background(), testOp(), exec)

	assert.Equal(t, types.OutcomeSkipped, outcome.Status)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, delays)
	assert.Equal(t, 0, outcome.RetryCount)
	assert.Equal(t, "permission already present", outcome.Reason)
}

func TestController_PermanentFailsImmediately(t *testing.T) {
	var delays []time.Duration
	c := NewController(3, 2*time.Second).WithSleep(recordingSleep(&delays))

	outcome := c.Execute(context.Background(), testOp(), alwaysFail(types.CategoryPermanent))

	assert.Equal(t, types.OutcomeFailed, outcome.Status)
	assert.Equal(t, types.CategoryPermanent, outcome.Category)
	assert.Equal(t, 0, outcome.RetryCount)
	assert.Empty(t, delays)
}

func TestController_MissingErrorTreatedAsPermanent(t *testing.T) {
	exec := types.ExecutorFunc(func(ctx context.Context, op types.Operation) types.ExecResult {
		return types.ExecResult{Success: false}
	})

	c := NewController(3, time.Second)
	outcome := c.Execute(context.Background(), testOp(), exec)

	assert.Equal(t, types.OutcomeFailed, outcome.Status)
	assert.Equal(t, types.CategoryPermanent, outcome.Category)
	assert.Equal(t, 0, outcome.RetryCount)
}

func TestController_CancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewController(3, time.Hour)
	outcome := c.Execute(ctx, testOp(), alwaysFail(types.CategoryTransient))

	// The cancelled backoff turns the pending transient failure
	// terminal without waiting out the delay.
	require.Equal(t, types.OutcomeFailed, outcome.Status)
	assert.Equal(t, types.CategoryTransient, outcome.Category)
	assert.Equal(t, 1, outcome.RetryCount)
}

func TestController_ZeroRetriesFailsOnFirstTransient(t *testing.T) {
	attempts := 0
	exec := types.ExecutorFunc(func(ctx context.Context, op types.Operation) types.ExecResult {
		attempts++
		return types.ExecResult{
			Success: false,
			Err:     types.NewExecError(types.CategoryTransient, "timeout"),
		}
	})

	c := NewController(0, time.Second)
	outcome := c.Execute(context.Background(), testOp(), exec)

	assert.Equal(t, types.OutcomeFailed, outcome.Status)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 0, outcome.RetryCount)
}
