// Package opsource loads operation plans: the finite, ordered list of
// operations a run processes. Plans are produced upstream from rule
// evaluation; this package only parses and validates them.
package opsource

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"vmtag/perm-engine/pkg/types"
)

// ErrNoOperations is returned for a plan without any operations.
var ErrNoOperations = errors.New("plan contains no operations")

// Plan is a parsed operation plan.
type Plan struct {
	Name        string            `yaml:"name,omitempty"`
	Description string            `yaml:"description,omitempty"`
	Operations  []types.Operation `yaml:"operations"`
}

// Parse decodes a plan from YAML bytes. Decoding is strict: unknown
// fields are an error, so a typo in a plan fails loudly instead of
// silently dropping the field.
func Parse(data []byte) (*Plan, error) {
	var plan Plan

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(&plan); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}

	if err := validate(&plan); err != nil {
		return nil, err
	}

	// Operations may omit an ID; assign one so outcomes stay
	// addressable.
	for i := range plan.Operations {
		if plan.Operations[i].ID == "" {
			plan.Operations[i].ID = uuid.NewString()
		}
	}

	return &plan, nil
}

// ParseFile decodes a plan from a YAML file.
func ParseFile(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan file: %w", err)
	}
	return Parse(data)
}

// validate checks structural requirements of a plan.
func validate(plan *Plan) error {
	if len(plan.Operations) == 0 {
		return ErrNoOperations
	}

	seen := make(map[string]int, len(plan.Operations))
	for i, op := range plan.Operations {
		if op.TargetName == "" {
			return fmt.Errorf("operation %d: target is required", i)
		}
		switch op.Action {
		case types.ActionAssignPermission, types.ActionRemovePermission,
			types.ActionApplyTag, types.ActionRemoveTag:
		case "":
			return fmt.Errorf("operation %d (%s): action is required", i, op.TargetName)
		default:
			return fmt.Errorf("operation %d (%s): unknown action %q", i, op.TargetName, op.Action)
		}
		if op.Complexity < 0 {
			return fmt.Errorf("operation %d (%s): complexity must not be negative", i, op.TargetName)
		}
		if op.ID != "" {
			if prev, dup := seen[op.ID]; dup {
				return fmt.Errorf("operation %d: duplicate id %q (also operation %d)", i, op.ID, prev)
			}
			seen[op.ID] = i
		}
	}

	return nil
}
