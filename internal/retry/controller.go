// Package retry wraps the execution of a single operation with bounded
// retry and exponential backoff. Classification of a failure and the
// retry policy applied to it are kept as separate pure functions so
// both can be tested on their own.
package retry

import (
	"context"
	"math"
	"time"

	"vmtag/perm-engine/pkg/logger"
	"vmtag/perm-engine/pkg/types"
)

const (
	// DefaultMaxRetries is the default number of additional attempts
	// after the first failure.
	DefaultMaxRetries = 3

	// DefaultBaseDelay is the default backoff base delay.
	DefaultBaseDelay = 2 * time.Second
)

// Decision is what the policy says to do after a failed attempt.
type Decision int

const (
	// DecisionRetry waits and tries again.
	DecisionRetry Decision = iota
	// DecisionSkip records the operation as skipped (conflict).
	DecisionSkip
	// DecisionFail records the operation as failed.
	DecisionFail
)

// Classify decides the fate of a failed attempt from its category and
// the number of retries already made. Pure function.
func Classify(category types.ErrorCategory, retriesMade, maxRetries int) Decision {
	switch category {
	case types.CategoryConflict:
		return DecisionSkip
	case types.CategoryTransient:
		if retriesMade < maxRetries {
			return DecisionRetry
		}
		return DecisionFail
	default:
		// Permanent and anything unrecognized: fail without retry.
		return DecisionFail
	}
}

// BackoffDelay returns the wait before retry attemptIndex (1-based):
// base * 2^(attemptIndex-1).
func BackoffDelay(base time.Duration, attemptIndex int) time.Duration {
	if attemptIndex < 1 {
		attemptIndex = 1
	}
	return base * time.Duration(math.Pow(2, float64(attemptIndex-1)))
}

// Controller executes one operation at a time against an injected
// executor, applying the retry policy. It holds no per-operation state
// beyond the attempt counter local to each Execute call.
type Controller struct {
	maxRetries int
	baseDelay  time.Duration

	// sleep is swappable for tests; the default waits on a timer while
	// honoring context cancellation.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewController creates a retry controller. Non-positive arguments fall
// back to the defaults.
func NewController(maxRetries int, baseDelay time.Duration) *Controller {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	return &Controller{
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		sleep:      sleepCtx,
	}
}

// WithSleep replaces the backoff wait function. Used by tests to avoid
// real delays.
func (c *Controller) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Controller {
	c.sleep = sleep
	return c
}

// Execute runs the operation until it reaches a terminal outcome:
// success on any attempt yields Created; a conflict yields Skipped
// without retry; a permanent error yields Failed without retry; a
// transient error is retried up to maxRetries times with exponential
// backoff. The backoff wait blocks only the calling worker.
func (c *Controller) Execute(ctx context.Context, op types.Operation, exec types.Executor) types.ExecutionOutcome {
	start := time.Now()
	outcome := types.ExecutionOutcome{
		OperationID: op.ID,
		TargetName:  op.TargetName,
	}

	retriesMade := 0
	for {
		result := exec.Execute(ctx, op)
		if result.Success {
			outcome.Status = types.OutcomeCreated
			outcome.RetryCount = retriesMade
			outcome.Elapsed = time.Since(start)
			return outcome
		}

		execErr := result.Err
		if execErr == nil {
			execErr = types.NewExecError(types.CategoryPermanent, "executor reported failure without error")
		}

		switch Classify(execErr.Category, retriesMade, c.maxRetries) {
		case DecisionSkip:
			outcome.Status = types.OutcomeSkipped
			outcome.Reason = execErr.Message
			outcome.Category = execErr.Category
			outcome.RetryCount = retriesMade
			outcome.Elapsed = time.Since(start)
			return outcome

		case DecisionFail:
			outcome.Status = types.OutcomeFailed
			outcome.Reason = execErr.Message
			outcome.Category = execErr.Category
			outcome.RetryCount = retriesMade
			outcome.Elapsed = time.Since(start)
			return outcome

		case DecisionRetry:
			retriesMade++
			delay := BackoffDelay(c.baseDelay, retriesMade)
			logger.Debug("retry %d/%d for %s after transient failure, waiting %s",
				retriesMade, c.maxRetries, op.TargetName, delay)
			if err := c.sleep(ctx, delay); err != nil {
				// Run cancelled during backoff; the last transient
				// error stands as the terminal reason.
				outcome.Status = types.OutcomeFailed
				outcome.Reason = execErr.Message
				outcome.Category = execErr.Category
				outcome.RetryCount = retriesMade
				outcome.Elapsed = time.Since(start)
				return outcome
			}
		}
	}
}

// sleepCtx waits for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
