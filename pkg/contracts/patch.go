package contracts

import (
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// OpKind is the verb of a patch operation.
type OpKind string

const (
	OpSet    OpKind = "set"
	OpDelete OpKind = "delete"
	OpUpsert OpKind = "upsert"
	OpRemove OpKind = "remove"
)

// ContractPatch is a named overlay applied on top of a base profile.
type ContractPatch struct {
	Name string `json:"name" yaml:"name"`
	// Precedence is an optional explicit application-order key. Lower
	// values apply first.
	Precedence   *int     `json:"precedence,omitempty" yaml:"precedence,omitempty"`
	AppliesAfter []string `json:"applies_after,omitempty" yaml:"applies_after,omitempty"`
	// RequiresBase is a semver constraint the base version must satisfy.
	RequiresBase string         `json:"requires_base,omitempty" yaml:"requires_base,omitempty"`
	Operations   []PatchOp      `json:"operations,omitempty" yaml:"operations,omitempty"`
	Handlers     []HandlerOp    `json:"handlers,omitempty" yaml:"handlers,omitempty"`
	Capabilities []CapabilityOp `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
	Fixtures     []FixtureRef   `json:"fixtures,omitempty" yaml:"fixtures,omitempty"`
}

// PatchOp sets or deletes one field path.
type PatchOp struct {
	Op    OpKind    `json:"op" yaml:"op"`
	Path  FieldPath `json:"path" yaml:"path"`
	Value Value     `json:"value,omitempty" yaml:"value,omitempty"`
}

// HandlerOp upserts or removes a handler. Remove only reads Handler.ID.
type HandlerOp struct {
	Op      OpKind            `json:"op" yaml:"op"`
	Handler HandlerDefinition `json:"handler" yaml:"handler"`
}

// CapabilityOp upserts or removes a capability. Remove only reads
// Capability.Name.
type CapabilityOp struct {
	Op         OpKind                `json:"op" yaml:"op"`
	Capability CapabilityDeclaration `json:"capability" yaml:"capability"`
}

// Len counts every operation the patch carries.
func (p *ContractPatch) Len() int {
	return len(p.Operations) + len(p.Handlers) + len(p.Capabilities) + len(p.Fixtures)
}

// Clone returns a deep copy.
func (p ContractPatch) Clone() ContractPatch {
	out := p
	if p.Precedence != nil {
		v := *p.Precedence
		out.Precedence = &v
	}
	out.AppliesAfter = cloneStrings(p.AppliesAfter)
	if p.Operations != nil {
		out.Operations = append([]PatchOp(nil), p.Operations...)
	}
	if p.Handlers != nil {
		out.Handlers = make([]HandlerOp, len(p.Handlers))
		for i, h := range p.Handlers {
			out.Handlers[i] = HandlerOp{Op: h.Op, Handler: h.Handler.Clone()}
		}
	}
	if p.Capabilities != nil {
		out.Capabilities = make([]CapabilityOp, len(p.Capabilities))
		for i, c := range p.Capabilities {
			out.Capabilities[i] = CapabilityOp{Op: c.Op, Capability: c.Capability.Clone()}
		}
	}
	if p.Fixtures != nil {
		out.Fixtures = append([]FixtureRef(nil), p.Fixtures...)
	}
	return out
}

// MarshalJSON omits the value of delete operations.
func (o PatchOp) MarshalJSON() ([]byte, error) {
	type wire struct {
		Op    OpKind    `json:"op"`
		Path  FieldPath `json:"path"`
		Value *Value    `json:"value,omitempty"`
	}
	w := wire{Op: o.Op, Path: o.Path}
	if o.Op != OpDelete {
		v := o.Value
		w.Value = &v
	}
	return json.Marshal(w)
}

// UnmarshalYAML decodes the op. Syntax is checked when the patch is
// merged.
func (o *PatchOp) UnmarshalYAML(node *yaml.Node) error {
	var w struct {
		Op    OpKind `yaml:"op"`
		Path  string `yaml:"path"`
		Value Value  `yaml:"value"`
	}
	if err := node.Decode(&w); err != nil {
		return err
	}
	*o = PatchOp{Op: w.Op, Path: FieldPath(w.Path), Value: w.Value}
	return nil
}
