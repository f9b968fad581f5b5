package merge

import (
	"errors"
	"fmt"
	"strings"
)

// Phase names a stage of the merge pipeline.
type Phase string

const (
	PhasePatch    Phase = "PATCH"
	PhaseMerge    Phase = "MERGE"
	PhaseExpanded Phase = "EXPANDED"
)

var (
	ErrPatchInvalid    = errors.New("patch invalid")
	ErrMergeConflict   = errors.New("merge conflict")
	ErrExpandedInvalid = errors.New("expanded contract invalid")
)

// PhaseError records which pipeline phase failed. Unwrap exposes the typed
// cause (depgraph errors, PatchInvalidError, MergeConflictError,
// ExpandedContractInvalidError).
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("merge: %s phase: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// PatchInvalidError means a single patch is malformed on its own.
type PatchInvalidError struct {
	Patch  string
	Reason string
}

func (e PatchInvalidError) Error() string {
	if e.Patch == "" {
		return "invalid patch: " + e.Reason
	}
	return fmt.Sprintf("invalid patch %s: %s", e.Patch, e.Reason)
}

func (e PatchInvalidError) Is(target error) bool { return target == ErrPatchInvalid }

// MergeConflictError means patches with no ordering between them disagree
// about the same item.
type MergeConflictError struct {
	Section string
	Path    string
	Patches []string
}

func (e MergeConflictError) Error() string {
	return fmt.Sprintf("merge conflict on %s %q between unordered patches %s",
		e.Section, e.Path, strings.Join(e.Patches, ", "))
}

func (e MergeConflictError) Is(target error) bool { return target == ErrMergeConflict }

// ExpandedContractInvalidError names the structural rule the merged
// contract violates.
type ExpandedContractInvalidError struct {
	Rule   string
	Detail string
	Err    error
}

func (e ExpandedContractInvalidError) Error() string {
	return fmt.Sprintf("expanded contract violates %s: %s", e.Rule, e.Detail)
}

func (e ExpandedContractInvalidError) Is(target error) bool { return target == ErrExpandedInvalid }

func (e ExpandedContractInvalidError) Unwrap() error { return e.Err }
