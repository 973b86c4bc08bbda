// Package types defines the shared data model of the permission engine:
// operations, batches, outcomes, error records and the run summary.
package types

import "time"

// ActionKind identifies what a single operation does to its target.
type ActionKind string

const (
	// ActionAssignPermission grants a role to a principal on the target.
	ActionAssignPermission ActionKind = "assign-permission"
	// ActionRemovePermission revokes a role from a principal on the target.
	ActionRemovePermission ActionKind = "remove-permission"
	// ActionApplyTag attaches a tag to the target.
	ActionApplyTag ActionKind = "apply-tag"
	// ActionRemoveTag detaches a tag from the target.
	ActionRemoveTag ActionKind = "remove-tag"
)

// Operation is one immutable unit of work submitted to the engine.
// Complexity is a caller-supplied weight used only for batching; Active
// is a caller-derived power-state flag used only by the
// power-state-balanced partition strategy. Neither affects correctness.
type Operation struct {
	ID         string            `yaml:"id,omitempty" json:"id"`
	TargetName string            `yaml:"target" json:"target"`
	Action     ActionKind        `yaml:"action" json:"action"`
	Payload    map[string]string `yaml:"payload,omitempty" json:"payload,omitempty"`
	Complexity int               `yaml:"complexity,omitempty" json:"complexity,omitempty"`
	Active     bool              `yaml:"active,omitempty" json:"active,omitempty"`
}

// Batch is an ordered slice of operations assigned to exactly one
// worker. Membership is fixed at partition time.
type Batch struct {
	Index      int
	Operations []Operation
}

// Size returns the number of operations in the batch.
func (b *Batch) Size() int {
	return len(b.Operations)
}

// ComplexitySum returns the cumulative complexity of the batch.
func (b *Batch) ComplexitySum() int {
	sum := 0
	for _, op := range b.Operations {
		sum += op.Complexity
	}
	return sum
}

// OutcomeStatus is the terminal status of one executed operation.
type OutcomeStatus string

const (
	// OutcomeCreated indicates the operation was applied.
	OutcomeCreated OutcomeStatus = "created"
	// OutcomeSkipped indicates the target already carried the state
	// (conflict), so nothing was changed.
	OutcomeSkipped OutcomeStatus = "skipped"
	// OutcomeFailed indicates the operation failed terminally.
	OutcomeFailed OutcomeStatus = "failed"
)

// ExecutionOutcome is produced exactly once per operation; retries are
// internal to producing this single value.
type ExecutionOutcome struct {
	OperationID string
	TargetName  string
	Status      OutcomeStatus
	Reason      string
	// Category carries the classification of the terminal failure;
	// empty for created outcomes.
	Category   ErrorCategory
	RetryCount int
	Elapsed    time.Duration
}
