package merge

import (
	"context"
	"errors"
	"fmt"

	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/contracts"
	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/depgraph"
)

// expandedPhase enforces post-merge structural rules in a fixed order and
// reports the first violation.
func (e *Engine) expandedPhase(ctx context.Context, c *contracts.ContractProfile, applied []contracts.ContractPatch) error {
	violation := func(rule, format string, args ...any) error {
		return ExpandedContractInvalidError{Rule: rule, Detail: fmt.Sprintf(format, args...)}
	}

	if err := c.Validate(); err != nil {
		return ExpandedContractInvalidError{Rule: RuleProfileValid, Detail: err.Error(), Err: err}
	}

	handlerIDs := make(map[string]bool, len(c.Handlers))
	for _, h := range c.Handlers {
		if handlerIDs[h.ID] {
			return ExpandedContractInvalidError{
				Rule:   RuleHandlerIDsUnique,
				Detail: fmt.Sprintf("handler %s is declared more than once", h.ID),
				Err:    depgraph.DuplicateNodeError{ID: h.ID},
			}
		}
		handlerIDs[h.ID] = true
	}
	for _, h := range c.Handlers {
		for _, dep := range h.DependsOn {
			if !handlerIDs[dep] {
				return ExpandedContractInvalidError{
					Rule:   RuleHandlerDependencyExists,
					Detail: fmt.Sprintf("handler %s depends on undeclared handler %s", h.ID, dep),
					Err:    depgraph.MissingDependencyError{Dependent: h.ID, Missing: dep},
				}
			}
		}
	}

	nodes := make([]depgraph.Node, len(c.Handlers))
	for i, h := range c.Handlers {
		nodes[i] = depgraph.Node{ID: h.ID, DependsOn: h.DependsOn}
	}
	if _, err := e.graph.Resolve(ctx, nodes); err != nil {
		var exhausted depgraph.GraphResourceExhaustionError
		if errors.As(err, &exhausted) {
			return err
		}
		return ExpandedContractInvalidError{Rule: RuleHandlerGraphAcyclic, Detail: err.Error(), Err: err}
	}

	capNames := make(map[string]bool, len(c.Capabilities))
	for _, decl := range c.Capabilities {
		if capNames[decl.Name] {
			return violation(RuleCapabilityNamesUnique, "capability %s is declared more than once", decl.Name)
		}
		capNames[decl.Name] = true
	}
	for _, h := range c.Handlers {
		for _, req := range h.Requires {
			if !capNames[req] {
				return violation(RuleHandlerCapabilityDeclared, "handler %s requires undeclared capability %s", h.ID, req)
			}
		}
	}
	for _, decl := range c.Capabilities {
		for _, dep := range decl.DependsOn {
			if !capNames[dep] {
				return violation(RuleCapabilityDependencyResolves, "capability %s depends on undeclared capability %s", decl.Name, dep)
			}
		}
	}

	seen := make(map[string]bool, len(applied))
	for _, p := range applied {
		for _, after := range p.AppliesAfter {
			if !seen[after] {
				return violation(RuleAppliesAfterResolves, "patch %s applies after %s, which was not applied before it", p.Name, after)
			}
		}
		seen[p.Name] = true
	}

	for _, h := range c.Handlers {
		if h.Guard == "" {
			continue
		}
		if err := e.guards.Compile(h.Guard); err != nil {
			return ExpandedContractInvalidError{
				Rule:   RuleGuardCompiles,
				Detail: fmt.Sprintf("handler %s guard: %v", h.ID, err),
				Err:    err,
			}
		}
	}

	if c.Kind == contracts.NodeCompute {
		for _, decl := range c.Capabilities {
			if decl.Effect {
				return violation(RuleComputeHasNoEffects, "COMPUTE node declares effect capability %s", decl.Name)
			}
		}
	}
	return nil
}
