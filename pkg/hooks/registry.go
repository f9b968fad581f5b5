// Package hooks holds pipeline hooks in a registry that is written once
// during setup and then frozen for concurrent, lock-free reads.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/contracts"
	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/depgraph"
)

// DefaultTimeout applies to hooks registered with a zero timeout.
const DefaultTimeout = 30 * time.Second

// State is the registry lifecycle state.
type State int32

const (
	StateBuilding State = iota
	StateFrozen
)

func (s State) String() string {
	if s == StateFrozen {
		return "FROZEN"
	}
	return "BUILDING"
}

// Func is a hook body. It must honour ctx cancellation.
type Func func(ctx context.Context, payload any) error

// HookRegistration declares one hook.
type HookRegistration struct {
	ID        string
	Phase     contracts.Phase
	DependsOn []string
	Timeout   time.Duration
	Fn        Func
}

// Registry is BUILDING until Freeze succeeds, then FROZEN for good.
//
// Registration is single-writer: setup code must not call Register from
// several goroutines. After Freeze every read method is safe for concurrent
// use without locking because nothing is written again.
type Registry struct {
	graph  *depgraph.Resolver
	logger *slog.Logger
	state  atomic.Int32

	hooks map[string]HookRegistration
	ids   []string // registration order

	order   []string
	byPhase map[contracts.Phase][]string
}

func NewRegistry(graph *depgraph.Resolver) *Registry {
	if graph == nil {
		graph = depgraph.NewResolver()
	}
	return &Registry{
		graph:  graph,
		logger: slog.Default().With("component", "hooks"),
		hooks:  map[string]HookRegistration{},
	}
}

func (r *Registry) State() State { return State(r.state.Load()) }

// Register adds a hook. Dependencies are not checked until Freeze, so
// registration order does not matter.
func (r *Registry) Register(h HookRegistration) error {
	if r.State() == StateFrozen {
		return HookRegistryFrozenError{Op: "register " + h.ID}
	}
	if h.ID == "" {
		return fmt.Errorf("hooks: registration without id")
	}
	if !h.Phase.Valid() {
		return fmt.Errorf("hooks: hook %s has invalid phase %q", h.ID, h.Phase)
	}
	if h.Timeout < 0 {
		return fmt.Errorf("hooks: hook %s has negative timeout", h.ID)
	}
	if _, dup := r.hooks[h.ID]; dup {
		return DuplicateHookError{ID: h.ID}
	}
	if h.Timeout == 0 {
		h.Timeout = DefaultTimeout
	}
	h.DependsOn = append([]string(nil), h.DependsOn...)
	r.hooks[h.ID] = h
	r.ids = append(r.ids, h.ID)
	return nil
}

// Freeze validates the hook graph and moves the registry to FROZEN. On
// failure the registry stays BUILDING so the caller can fix registrations
// and retry.
func (r *Registry) Freeze(ctx context.Context) error {
	if r.State() == StateFrozen {
		return HookRegistryFrozenError{Op: "freeze"}
	}

	nodes := make([]depgraph.Node, 0, len(r.ids))
	for _, id := range r.ids {
		nodes = append(nodes, depgraph.Node{ID: id, DependsOn: r.hooks[id].DependsOn})
	}
	g, err := r.graph.Resolve(ctx, nodes)
	if err != nil {
		return fmt.Errorf("hooks: freeze: %w", err)
	}

	byPhase := make(map[contracts.Phase][]string)
	for _, id := range g.ResolutionOrder {
		p := r.hooks[id].Phase
		byPhase[p] = append(byPhase[p], id)
	}
	for _, n := range g.Nodes {
		for _, dep := range n.DependsOn {
			if r.hooks[dep].Phase.Rank() > r.hooks[n.ID].Phase.Rank() {
				return fmt.Errorf("hooks: freeze: %w", depgraph.DependencyCycleError{
					Cycle:  []string{n.ID, dep, n.ID},
					Reason: "phase",
				})
			}
		}
	}

	r.order = g.ResolutionOrder
	r.byPhase = byPhase
	r.state.Store(int32(StateFrozen))
	r.logger.InfoContext(ctx, "hook registry frozen", "hooks", len(r.order))
	return nil
}

// Order returns hook ids in dependency order. Nil before Freeze.
func (r *Registry) Order() []string {
	if r.State() != StateFrozen {
		return nil
	}
	return append([]string(nil), r.order...)
}

// PhaseHooks returns the ordered hook ids of one phase. Nil before Freeze.
func (r *Registry) PhaseHooks(p contracts.Phase) []string {
	if r.State() != StateFrozen {
		return nil
	}
	return append([]string(nil), r.byPhase[p]...)
}

// Hook returns a registration by id.
func (r *Registry) Hook(id string) (HookRegistration, bool) {
	h, ok := r.hooks[id]
	if ok {
		h.DependsOn = append([]string(nil), h.DependsOn...)
	}
	return h, ok
}

// Invoke runs one hook under its timeout. A hook that outlives the timeout
// yields HookTimeoutError; cancellation of ctx itself yields ctx.Err().
// Invoke requires a frozen registry.
func (r *Registry) Invoke(ctx context.Context, id string, payload any) error {
	if r.State() != StateFrozen {
		return ErrNotFrozen
	}
	h, ok := r.hooks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHook, id)
	}
	if h.Fn == nil {
		return nil
	}

	hctx, cancel := context.WithTimeout(ctx, h.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- fmt.Errorf("hook %s panicked: %v", id, p)
			}
		}()
		done <- h.Fn(hctx, payload)
	}()

	select {
	case err := <-done:
		if err != nil && ctx.Err() == nil && errors.Is(hctx.Err(), context.DeadlineExceeded) {
			return r.timedOut(ctx, h)
		}
		return err
	case <-hctx.Done():
		if err := ctx.Err(); err != nil {
			return err
		}
		return r.timedOut(ctx, h)
	}
}

func (r *Registry) timedOut(ctx context.Context, h HookRegistration) error {
	r.logger.WarnContext(ctx, "hook timed out", "hook", h.ID, "timeout", h.Timeout)
	return HookTimeoutError{HookID: h.ID, Timeout: h.Timeout}
}

// RunPhase invokes the hooks of one phase in order and stops at the first
// error.
func (r *Registry) RunPhase(ctx context.Context, p contracts.Phase, payload any) error {
	if r.State() != StateFrozen {
		return ErrNotFrozen
	}
	for _, id := range r.byPhase[p] {
		if err := r.Invoke(ctx, id, payload); err != nil {
			return fmt.Errorf("phase %s: %w", p, err)
		}
	}
	return nil
}
