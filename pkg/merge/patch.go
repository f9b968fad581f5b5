package merge

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"github.com/Masterminds/semver/v3"

	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/contracts"
	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/depgraph"
)

// patchPhase validates the base and every patch, then resolves the patch
// application order.
func (e *Engine) patchPhase(ctx context.Context, base *contracts.ContractProfile, patches []contracts.ContractPatch) (*depgraph.Graph, error) {
	if err := base.Validate(); err != nil {
		return nil, fmt.Errorf("base profile: %w", err)
	}
	baseVersion, err := semver.NewVersion(base.Version)
	if err != nil {
		return nil, fmt.Errorf("base profile: %w", err)
	}
	for i := range patches {
		if err := validatePatch(&patches[i], baseVersion); err != nil {
			return nil, err
		}
	}
	return e.Order(ctx, patches)
}

// Order resolves the patch application order. Applies-after references
// become edges; explicit precedence levels chain every patch of one level
// after every patch of the next lower level. Ties break by name.
func (e *Engine) Order(ctx context.Context, patches []contracts.ContractPatch) (*depgraph.Graph, error) {
	return e.graph.Resolve(ctx, orderingNodes(patches))
}

func orderingNodes(patches []contracts.ContractPatch) []depgraph.Node {
	levels := map[int][]string{}
	for _, p := range patches {
		if p.Precedence != nil {
			levels[*p.Precedence] = append(levels[*p.Precedence], p.Name)
		}
	}
	keys := make([]int, 0, len(levels))
	for k := range levels {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	previous := map[int][]string{}
	for i := 1; i < len(keys); i++ {
		previous[keys[i]] = levels[keys[i-1]]
	}

	nodes := make([]depgraph.Node, len(patches))
	for i, p := range patches {
		deps := append([]string(nil), p.AppliesAfter...)
		if p.Precedence != nil {
			deps = append(deps, previous[*p.Precedence]...)
		}
		nodes[i] = depgraph.Node{ID: p.Name, DependsOn: deps}
	}
	return nodes
}

func validatePatch(p *contracts.ContractPatch, baseVersion *semver.Version) error {
	invalid := func(format string, args ...any) error {
		return PatchInvalidError{Patch: p.Name, Reason: fmt.Sprintf(format, args...)}
	}

	if p.Name == "" {
		return invalid("patch name is required")
	}
	if p.Len() == 0 {
		return invalid("patch has no operations")
	}
	if p.RequiresBase != "" {
		c, err := semver.NewConstraint(p.RequiresBase)
		if err != nil {
			return invalid("requires_base %q: %v", p.RequiresBase, err)
		}
		if !c.Check(baseVersion) {
			return invalid("base version %s does not satisfy %q", baseVersion, p.RequiresBase)
		}
	}

	fields := map[contracts.FieldPath]contracts.PatchOp{}
	for _, op := range p.Operations {
		if op.Op != contracts.OpSet && op.Op != contracts.OpDelete {
			return invalid("field operation %q on %s: want set or delete", op.Op, op.Path)
		}
		if err := op.Path.Validate(); err != nil {
			return invalid("%v", err)
		}
		if op.Op == contracts.OpSet {
			if _, err := op.Value.MarshalJSON(); err != nil {
				return invalid("value for %s: %v", op.Path, err)
			}
		}
		if prev, seen := fields[op.Path]; seen {
			if prev.Op != op.Op {
				return invalid("path %s is both set and deleted", op.Path)
			}
			if op.Op == contracts.OpSet && !prev.Value.Equal(op.Value) {
				return invalid("path %s is set to different values", op.Path)
			}
		}
		fields[op.Path] = op
	}

	handlers := map[string]contracts.HandlerOp{}
	for _, op := range p.Handlers {
		id := op.Handler.ID
		if id == "" {
			return invalid("handler operation without id")
		}
		switch op.Op {
		case contracts.OpUpsert:
			if !op.Handler.Phase.Valid() {
				return invalid("handler %s has invalid phase %q", id, op.Handler.Phase)
			}
		case contracts.OpRemove:
		default:
			return invalid("handler operation %q on %s: want upsert or remove", op.Op, id)
		}
		if prev, seen := handlers[id]; seen && !reflect.DeepEqual(prev, op) {
			return invalid("handler %s has conflicting operations", id)
		}
		handlers[id] = op
	}

	caps := map[string]contracts.CapabilityOp{}
	for _, op := range p.Capabilities {
		name := op.Capability.Name
		if name == "" {
			return invalid("capability operation without name")
		}
		if op.Op != contracts.OpUpsert && op.Op != contracts.OpRemove {
			return invalid("capability operation %q on %s: want upsert or remove", op.Op, name)
		}
		if prev, seen := caps[name]; seen && !reflect.DeepEqual(prev, op) {
			return invalid("capability %s has conflicting operations", name)
		}
		caps[name] = op
	}

	fixtures := map[string]contracts.FixtureRef{}
	for _, f := range p.Fixtures {
		if f.Path == "" {
			return invalid("fixture without path")
		}
		if prev, seen := fixtures[f.Path]; seen && prev != f {
			return invalid("fixture %s declared twice with different digests", f.Path)
		}
		fixtures[f.Path] = f
	}
	return nil
}
