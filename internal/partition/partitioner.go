// Package partition splits a finite operation list into ordered
// batches, one per worker. All strategies are pure functions of the
// input and the batch count: re-partitioning the same input always
// yields identical batches.
package partition

import (
	"errors"
	"fmt"
	"sort"

	"vmtag/perm-engine/pkg/types"
)

// MaxBatchCount bounds the batch count, and with it the worker pool.
const MaxBatchCount = 10

// Strategy selects how operations are distributed across batches.
type Strategy string

const (
	// StrategyRoundRobin assigns operation i to batch i mod batchCount,
	// preserving input order within each batch.
	StrategyRoundRobin Strategy = "round-robin"
	// StrategyPowerState round-robins powered-on operations first, then
	// powered-off ones, so both populations stay balanced per batch.
	StrategyPowerState Strategy = "power-state"
	// StrategyComplexity greedily packs operations, highest complexity
	// first, into the batch with the lowest cumulative complexity.
	StrategyComplexity Strategy = "complexity"
)

var (
	// ErrInvalidBatchCount is returned when the batch count is outside 1..MaxBatchCount.
	ErrInvalidBatchCount = errors.New("batch count must be between 1 and 10")

	// ErrUnknownStrategy is returned for an unrecognized strategy name.
	ErrUnknownStrategy = errors.New("unknown partition strategy")
)

// ParseStrategy maps a strategy name to a Strategy, defaulting to
// round-robin for the empty string.
func ParseStrategy(name string) (Strategy, error) {
	switch Strategy(name) {
	case StrategyRoundRobin, StrategyPowerState, StrategyComplexity:
		return Strategy(name), nil
	case "":
		return StrategyRoundRobin, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}

// Partition splits the operations into batchCount ordered batches.
// An empty input yields batchCount empty batches, not an error.
func Partition(ops []types.Operation, batchCount int, strategy Strategy) ([]types.Batch, error) {
	if batchCount < 1 || batchCount > MaxBatchCount {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBatchCount, batchCount)
	}

	batches := make([]types.Batch, batchCount)
	for i := range batches {
		batches[i] = types.Batch{Index: i, Operations: make([]types.Operation, 0)}
	}

	switch strategy {
	case StrategyRoundRobin, "":
		assignRoundRobin(batches, ops)
	case StrategyPowerState:
		assignPowerStateBalanced(batches, ops)
	case StrategyComplexity:
		assignComplexityBalanced(batches, ops)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}

	return batches, nil
}

// assignRoundRobin places operation i into batch i mod len(batches).
func assignRoundRobin(batches []types.Batch, ops []types.Operation) {
	for i, op := range ops {
		b := i % len(batches)
		batches[b].Operations = append(batches[b].Operations, op)
	}
}

// assignPowerStateBalanced round-robins the active operations across
// all batches, then the inactive ones, so for any two batches the
// active counts differ by at most one and likewise the inactive counts.
func assignPowerStateBalanced(batches []types.Batch, ops []types.Operation) {
	active := make([]types.Operation, 0, len(ops))
	inactive := make([]types.Operation, 0)

	for _, op := range ops {
		if op.Active {
			active = append(active, op)
		} else {
			inactive = append(inactive, op)
		}
	}

	assignRoundRobin(batches, active)
	assignRoundRobin(batches, inactive)
}

// assignComplexityBalanced sorts descending by complexity (stable, ties
// keep input order) and greedily places each operation into the batch
// with the lowest cumulative complexity, lowest index winning ties.
// The maximum pairwise difference between batch sums is bounded by the
// largest single operation's score.
func assignComplexityBalanced(batches []types.Batch, ops []types.Operation) {
	sorted := make([]types.Operation, len(ops))
	copy(sorted, ops)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Complexity > sorted[j].Complexity
	})

	sums := make([]int, len(batches))
	for _, op := range sorted {
		target := 0
		for b := 1; b < len(sums); b++ {
			if sums[b] < sums[target] {
				target = b
			}
		}
		batches[target].Operations = append(batches[target].Operations, op)
		sums[target] += op.Complexity
	}
}
