package config

import (
	"fmt"
	"strings"
)

// ValidationError is one configuration validation failure. Validation
// errors are fatal: they abort the run before any worker starts.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validate checks the configuration against the engine's bounds.
func (c *Config) Validate() error {
	var errs ValidationErrors

	if c.Engine.ThreadCount < 1 || c.Engine.ThreadCount > 10 {
		errs = append(errs, ValidationError{
			Field:   "engine.thread_count",
			Message: fmt.Sprintf("must be between 1 and 10, got %d", c.Engine.ThreadCount),
		})
	}

	switch c.Engine.BatchStrategy {
	case "round-robin", "power-state", "complexity", "":
	default:
		errs = append(errs, ValidationError{
			Field:   "engine.batch_strategy",
			Message: fmt.Sprintf("unknown strategy %q", c.Engine.BatchStrategy),
		})
	}

	if c.Engine.MaxOperationRetries < 0 {
		errs = append(errs, ValidationError{
			Field:   "engine.max_operation_retries",
			Message: "must not be negative",
		})
	}

	if c.Engine.RetryDelay < 0 {
		errs = append(errs, ValidationError{
			Field:   "engine.retry_delay",
			Message: "must not be negative",
		})
	}

	if c.Engine.ProgressInterval < 0 {
		errs = append(errs, ValidationError{
			Field:   "engine.progress_interval",
			Message: "must not be negative",
		})
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
