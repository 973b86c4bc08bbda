package executor

import (
	"context"
	"sync"

	"vmtag/perm-engine/pkg/types"
)

// SimExecutor is a deterministic in-process executor used by the CLI
// dry-run mode and by tests. Every target succeeds unless a script is
// installed for it; scripted results are consumed attempt by attempt,
// then the remainder rule applies.
type SimExecutor struct {
	mu      sync.Mutex
	scripts map[string][]types.ExecResult
	// attempts counts executor calls per operation ID.
	attempts map[string]int
}

// NewSimExecutor creates a simulated executor with no scripts.
func NewSimExecutor() *SimExecutor {
	return &SimExecutor{
		scripts:  make(map[string][]types.ExecResult),
		attempts: make(map[string]int),
	}
}

// Script installs the attempt-by-attempt results for a target. Once
// the script is exhausted further attempts succeed.
func (s *SimExecutor) Script(target string, results ...types.ExecResult) *SimExecutor {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[target] = results
	return s
}

// FailWith scripts n failing attempts of the given category for a
// target.
func (s *SimExecutor) FailWith(target string, category types.ErrorCategory, message string, n int) *SimExecutor {
	results := make([]types.ExecResult, n)
	for i := range results {
		results[i] = types.ExecResult{
			Success: false,
			Err:     types.NewExecError(category, message),
		}
	}
	return s.Script(target, results...)
}

// Attempts returns how many times the given operation was attempted.
func (s *SimExecutor) Attempts(operationID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[operationID]
}

// Execute implements types.Executor.
func (s *SimExecutor) Execute(ctx context.Context, op types.Operation) types.ExecResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts[op.ID]++

	script := s.scripts[op.TargetName]
	if len(script) == 0 {
		return types.ExecResult{Success: true}
	}

	result := script[0]
	s.scripts[op.TargetName] = script[1:]
	return result
}
