package hooks

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrDuplicateHook = errors.New("duplicate hook")
	ErrFrozen        = errors.New("hook registry frozen")
	ErrHookTimeout   = errors.New("hook timeout")
	ErrUnknownHook   = errors.New("unknown hook")
	ErrNotFrozen     = errors.New("hook registry not frozen")
)

// DuplicateHookError means a hook id was registered twice.
type DuplicateHookError struct {
	ID string
}

func (e DuplicateHookError) Error() string { return fmt.Sprintf("duplicate hook: %s", e.ID) }

func (e DuplicateHookError) Is(target error) bool { return target == ErrDuplicateHook }

// HookRegistryFrozenError means a mutation was attempted after Freeze.
type HookRegistryFrozenError struct {
	Op string
}

func (e HookRegistryFrozenError) Error() string {
	return fmt.Sprintf("hook registry is frozen: %s rejected", e.Op)
}

func (e HookRegistryFrozenError) Is(target error) bool { return target == ErrFrozen }

// HookTimeoutError means one invocation exceeded its configured timeout.
// Retrying is the caller's decision.
type HookTimeoutError struct {
	HookID  string
	Timeout time.Duration
}

func (e HookTimeoutError) Error() string {
	return fmt.Sprintf("hook %s exceeded timeout %s", e.HookID, e.Timeout)
}

func (e HookTimeoutError) Is(target error) bool { return target == ErrHookTimeout }
