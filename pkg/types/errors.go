package types

import "time"

// ErrorCategory classifies a failed executor call and governs retry
// eligibility.
type ErrorCategory string

const (
	// CategoryTransient marks retryable failures such as timeouts or
	// transient connectivity loss.
	CategoryTransient ErrorCategory = "transient"
	// CategoryConflict marks pre-existing or inherited state at the
	// target. Never retried; the operation is recorded as skipped.
	CategoryConflict ErrorCategory = "conflict"
	// CategoryPermanent marks validation or programming errors. Never
	// retried; the operation is recorded as failed.
	CategoryPermanent ErrorCategory = "permanent"
)

// ExecError is the categorized error an executor reports back to the
// retry controller.
type ExecError struct {
	Message  string
	Category ErrorCategory
}

// Error implements the error interface.
func (e *ExecError) Error() string {
	return string(e.Category) + ": " + e.Message
}

// NewExecError builds a categorized executor error.
func NewExecError(category ErrorCategory, message string) *ExecError {
	return &ExecError{Message: message, Category: category}
}

// ErrorRecord is appended at most once per failed operation: the final
// failure after retries are exhausted, or the first non-retryable one.
type ErrorRecord struct {
	Timestamp  time.Time     `json:"timestamp"`
	TargetName string        `json:"target"`
	Operation  ActionKind    `json:"operation"`
	WorkerID   int           `json:"worker_id"`
	Message    string        `json:"message"`
	Category   ErrorCategory `json:"category"`
	RetryCount int           `json:"retry_count"`
}
