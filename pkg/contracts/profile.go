package contracts

import (
	"fmt"
	"sort"

	"github.com/Masterminds/semver/v3"
)

// ContractProfile is a named, versioned contract document. Profiles are
// treated as immutable: the merge engine never writes to its inputs and
// produces a fresh profile for every result.
type ContractProfile struct {
	Name         string                  `json:"name" yaml:"name"`
	Version      string                  `json:"version" yaml:"version"`
	Kind         NodeKind                `json:"kind" yaml:"kind"`
	Fields       map[FieldPath]Value     `json:"fields,omitempty" yaml:"fields,omitempty"`
	Capabilities []CapabilityDeclaration `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
	Handlers     []HandlerDefinition     `json:"handlers,omitempty" yaml:"handlers,omitempty"`
	Fixtures     []FixtureRef            `json:"fixtures,omitempty" yaml:"fixtures,omitempty"`
	// Extensions carries open, primitive-valued metadata.
	Extensions map[string]Value `json:"extensions,omitempty" yaml:"extensions,omitempty"`
}

// CapabilityDeclaration names a capability the node needs at runtime.
type CapabilityDeclaration struct {
	Name string `json:"name" yaml:"name"`
	// Version is a semver constraint, e.g. ">=1.2, <2".
	Version          string   `json:"version,omitempty" yaml:"version,omitempty"`
	DependsOn        []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Effect           bool     `json:"effect,omitempty" yaml:"effect,omitempty"`
	Nondeterministic bool     `json:"nondeterministic,omitempty" yaml:"nondeterministic,omitempty"`
}

// HandlerDefinition declares one handler and its place in the plan.
type HandlerDefinition struct {
	ID         string   `json:"id" yaml:"id"`
	Phase      Phase    `json:"phase" yaml:"phase"`
	DependsOn  []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	ProfileRef string   `json:"profile_ref,omitempty" yaml:"profile_ref,omitempty"`
	Requires   []string `json:"requires,omitempty" yaml:"requires,omitempty"`
	// Guard is an optional CEL expression gating invocation.
	Guard   string   `json:"guard,omitempty" yaml:"guard,omitempty"`
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// FixtureRef points at a test fixture the contract ships with.
type FixtureRef struct {
	Path   string `json:"path" yaml:"path"`
	Digest string `json:"digest,omitempty" yaml:"digest,omitempty"`
}

// Validate checks the document shape. Graph-level rules (dangling handler
// dependencies, cycles) are enforced by the merge engine after expansion.
func (p *ContractProfile) Validate() error {
	if p == nil {
		return fmt.Errorf("profile is nil")
	}
	if p.Name == "" {
		return fmt.Errorf("profile name is required")
	}
	if _, err := semver.NewVersion(p.Version); err != nil {
		return fmt.Errorf("profile %s: invalid version %q: %w", p.Name, p.Version, err)
	}
	if !p.Kind.Valid() {
		return fmt.Errorf("profile %s: invalid node kind %q", p.Name, p.Kind)
	}
	for path := range p.Fields {
		if err := path.Validate(); err != nil {
			return fmt.Errorf("profile %s: %w", p.Name, err)
		}
	}
	for k, v := range p.Extensions {
		if !v.IsPrimitive() {
			return fmt.Errorf("profile %s: extension %q must be a primitive, got %s", p.Name, k, v.Kind())
		}
	}
	for i, c := range p.Capabilities {
		if c.Name == "" {
			return fmt.Errorf("profile %s: capability %d has no name", p.Name, i)
		}
	}
	for i, h := range p.Handlers {
		if h.ID == "" {
			return fmt.Errorf("profile %s: handler %d has no id", p.Name, i)
		}
		if !h.Phase.Valid() {
			return fmt.Errorf("profile %s: handler %s has invalid phase %q", p.Name, h.ID, h.Phase)
		}
	}
	for i, f := range p.Fixtures {
		if f.Path == "" {
			return fmt.Errorf("profile %s: fixture %d has no path", p.Name, i)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (p ContractProfile) Clone() ContractProfile {
	out := p
	if p.Fields != nil {
		out.Fields = make(map[FieldPath]Value, len(p.Fields))
		for k, v := range p.Fields {
			out.Fields[k] = v
		}
	}
	if p.Extensions != nil {
		out.Extensions = make(map[string]Value, len(p.Extensions))
		for k, v := range p.Extensions {
			out.Extensions[k] = v
		}
	}
	if p.Capabilities != nil {
		out.Capabilities = make([]CapabilityDeclaration, len(p.Capabilities))
		for i, c := range p.Capabilities {
			out.Capabilities[i] = c.Clone()
		}
	}
	if p.Handlers != nil {
		out.Handlers = make([]HandlerDefinition, len(p.Handlers))
		for i, h := range p.Handlers {
			out.Handlers[i] = h.Clone()
		}
	}
	if p.Fixtures != nil {
		out.Fixtures = append([]FixtureRef(nil), p.Fixtures...)
	}
	return out
}

// SortedFieldPaths returns the field paths in ascending order.
func (p *ContractProfile) SortedFieldPaths() []FieldPath {
	out := make([]FieldPath, 0, len(p.Fields))
	for k := range p.Fields {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Handler looks up a handler by id.
func (p *ContractProfile) Handler(id string) (HandlerDefinition, bool) {
	for _, h := range p.Handlers {
		if h.ID == id {
			return h, true
		}
	}
	return HandlerDefinition{}, false
}

// Capability looks up a capability by name.
func (p *ContractProfile) Capability(name string) (CapabilityDeclaration, bool) {
	for _, c := range p.Capabilities {
		if c.Name == name {
			return c, true
		}
	}
	return CapabilityDeclaration{}, false
}

func (c CapabilityDeclaration) Clone() CapabilityDeclaration {
	c.DependsOn = cloneStrings(c.DependsOn)
	return c
}

func (h HandlerDefinition) Clone() HandlerDefinition {
	h.DependsOn = cloneStrings(h.DependsOn)
	h.Requires = cloneStrings(h.Requires)
	return h
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}
