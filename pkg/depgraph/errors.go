package depgraph

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels for errors.Is. Each typed error below matches its sentinel.
var (
	ErrDuplicateNode     = errors.New("duplicate node")
	ErrMissingDependency = errors.New("missing dependency")
	ErrCycle             = errors.New("dependency cycle")
	ErrResourceExhausted = errors.New("graph resource exhaustion")
)

// DuplicateNodeError means the same ID appears more than once in one input.
type DuplicateNodeError struct {
	ID string
}

func (e DuplicateNodeError) Error() string {
	return fmt.Sprintf("duplicate node: %s", e.ID)
}

func (e DuplicateNodeError) Is(target error) bool { return target == ErrDuplicateNode }

// MissingDependencyError means Dependent declares an edge to an ID that is
// not part of the node set.
type MissingDependencyError struct {
	Dependent string
	Missing   string
}

func (e MissingDependencyError) Error() string {
	return fmt.Sprintf("missing dependency: %s -> %s", e.Dependent, e.Missing)
}

func (e MissingDependencyError) Is(target error) bool { return target == ErrMissingDependency }

// DependencyCycleError carries a closed walk: Cycle[0] == Cycle[len-1], and
// each element depends on the next.
type DependencyCycleError struct {
	Cycle []string
	// Reason qualifies cycles that are not plain edge loops, e.g. "phase"
	// for an ordering violation between execution phases.
	Reason string
}

func (e DependencyCycleError) Error() string {
	msg := "dependency cycle detected"
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	if len(e.Cycle) == 0 {
		return msg
	}
	return msg + ": " + strings.Join(e.Cycle, " -> ")
}

func (e DependencyCycleError) Is(target error) bool { return target == ErrCycle }

// Contains reports whether id participates in the cycle.
func (e DependencyCycleError) Contains(id string) bool {
	for _, c := range e.Cycle {
		if c == id {
			return true
		}
	}
	return false
}

// GraphResourceExhaustionError means a bounded search gave up, either because
// it hit its iteration cap or because the caller's context ended.
type GraphResourceExhaustionError struct {
	Iterations int
	Limit      int
	Cause      error
}

func (e GraphResourceExhaustionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("graph resolution aborted after %d iterations: %v", e.Iterations, e.Cause)
	}
	return fmt.Sprintf("graph resolution exceeded %d iterations", e.Limit)
}

func (e GraphResourceExhaustionError) Is(target error) bool { return target == ErrResourceExhausted }

func (e GraphResourceExhaustionError) Unwrap() error { return e.Cause }
