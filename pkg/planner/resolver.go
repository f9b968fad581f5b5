// Package planner compiles execution constraints into a phase-grouped
// execution plan.
package planner

import (
	"context"
	"fmt"
	"sort"

	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/canonicalize"
	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/contracts"
	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/depgraph"
)

// PhaseOrderReason marks a DependencyCycleError raised because a handler
// depends on a handler scheduled in a later phase.
const PhaseOrderReason = "phase"

// Resolver turns constraints into plans. It is a thin transform over the
// dependency graph resolver: graph errors propagate unchanged.
type Resolver struct {
	graph *depgraph.Resolver
}

func NewResolver(graph *depgraph.Resolver) *Resolver {
	if graph == nil {
		graph = depgraph.NewResolver()
	}
	return &Resolver{graph: graph}
}

// Resolve builds the plan. The result depends only on the constraint set,
// not on the order of the input slice.
func (r *Resolver) Resolve(ctx context.Context, constraints []contracts.ExecutionConstraint) (*contracts.ExecutionPlan, error) {
	nodes := make([]depgraph.Node, len(constraints))
	phases := make(map[string]contracts.Phase, len(constraints))
	for i, c := range constraints {
		nodes[i] = depgraph.Node{ID: c.HandlerID, DependsOn: c.DependsOn}
		phases[c.HandlerID] = c.Phase
	}

	g, err := r.graph.Resolve(ctx, nodes)
	if err != nil {
		return nil, err
	}

	for _, c := range constraints {
		if !c.Phase.Valid() {
			return nil, fmt.Errorf("planner: handler %s has invalid phase %q", c.HandlerID, c.Phase)
		}
	}

	// A dependency scheduled in a later phase would run after its
	// dependent. Report it as a two-node ordering cycle.
	for _, n := range g.Nodes {
		for _, dep := range n.DependsOn {
			if phases[dep].Rank() > phases[n.ID].Rank() {
				return nil, depgraph.DependencyCycleError{
					Cycle:  []string{n.ID, dep, n.ID},
					Reason: PhaseOrderReason,
				}
			}
		}
	}

	buckets := make(map[contracts.Phase][]string, len(contracts.Phases))
	for _, id := range g.ResolutionOrder {
		buckets[phases[id]] = append(buckets[phases[id]], id)
	}
	plan := &contracts.ExecutionPlan{Steps: []contracts.PhaseStep{}}
	for _, p := range contracts.Phases {
		if ids := buckets[p]; len(ids) > 0 {
			plan.Steps = append(plan.Steps, contracts.PhaseStep{Phase: p, HandlerIDs: ids})
		}
	}

	if len(nodes) > 1 {
		for _, id := range depgraph.FindIsolated(nodes) {
			plan.Warnings = append(plan.Warnings, fmt.Sprintf("handler %s has no dependencies and no dependents", id))
		}
	}

	digest, err := canonicalize.Digest(plan)
	if err != nil {
		return nil, fmt.Errorf("planner: digest: %w", err)
	}
	plan.Digest = digest
	return plan, nil
}

// ConstraintsFromContract derives one constraint per handler, sorted by
// handler id.
func ConstraintsFromContract(c *contracts.ContractProfile) []contracts.ExecutionConstraint {
	out := make([]contracts.ExecutionConstraint, 0, len(c.Handlers))
	for _, h := range c.Handlers {
		out = append(out, contracts.ExecutionConstraint{
			HandlerID:  h.ID,
			Phase:      h.Phase,
			DependsOn:  append([]string(nil), h.DependsOn...),
			ProfileRef: h.ProfileRef,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HandlerID < out[j].HandlerID })
	return out
}
