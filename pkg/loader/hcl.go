package loader

import (
	"fmt"
	"math/big"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/contracts"
)

type hclProfile struct {
	Name         string          `hcl:"name"`
	Version      string          `hcl:"version"`
	Kind         string          `hcl:"kind"`
	Fields       hcl.Expression  `hcl:"fields,optional"`
	Extensions   hcl.Expression  `hcl:"extensions,optional"`
	Capabilities []hclCapability `hcl:"capability,block"`
	Handlers     []hclHandler    `hcl:"handler,block"`
	Fixtures     []hclFixture    `hcl:"fixture,block"`
}

type hclCapability struct {
	Name             string   `hcl:"name,label"`
	Version          string   `hcl:"version,optional"`
	DependsOn        []string `hcl:"depends_on,optional"`
	Effect           bool     `hcl:"effect,optional"`
	Nondeterministic bool     `hcl:"nondeterministic,optional"`
}

type hclHandler struct {
	ID         string   `hcl:"id,label"`
	Phase      string   `hcl:"phase,optional"`
	DependsOn  []string `hcl:"depends_on,optional"`
	ProfileRef string   `hcl:"profile_ref,optional"`
	Requires   []string `hcl:"requires,optional"`
	Guard      string   `hcl:"guard,optional"`
	Timeout    string   `hcl:"timeout,optional"`
}

type hclFixture struct {
	Path   string `hcl:"path,label"`
	Digest string `hcl:"digest,optional"`
}

type hclPatch struct {
	Name               string          `hcl:"name"`
	Precedence         *int            `hcl:"precedence,optional"`
	AppliesAfter       []string        `hcl:"applies_after,optional"`
	RequiresBase       string          `hcl:"requires_base,optional"`
	Sets               []hclSet        `hcl:"set,block"`
	Deletes            []hclDelete     `hcl:"delete,block"`
	UpsertHandlers     []hclHandler    `hcl:"upsert_handler,block"`
	RemoveHandlers     []hclRemove     `hcl:"remove_handler,block"`
	UpsertCapabilities []hclCapability `hcl:"upsert_capability,block"`
	RemoveCapabilities []hclRemove     `hcl:"remove_capability,block"`
	Fixtures           []hclFixture    `hcl:"fixture,block"`
}

type hclSet struct {
	Path  string         `hcl:"path,label"`
	Value hcl.Expression `hcl:"value"`
}

type hclDelete struct {
	Path string `hcl:"path,label"`
}

type hclRemove struct {
	Name string `hcl:"name,label"`
}

func parseHCL(data []byte, filename string, out any) error {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return fmt.Errorf("failed to parse HCL: %w", diags)
	}
	if diags := gohcl.DecodeBody(file.Body, nil, out); diags.HasErrors() {
		return fmt.Errorf("failed to decode HCL: %w", diags)
	}
	return nil
}

func decodeHCLProfile(data []byte, filename string, out *contracts.ContractProfile) error {
	var doc hclProfile
	if err := parseHCL(data, filename, &doc); err != nil {
		return err
	}

	fields, err := exprMap(doc.Fields)
	if err != nil {
		return fmt.Errorf("fields: %w", err)
	}
	ext, err := exprMap(doc.Extensions)
	if err != nil {
		return fmt.Errorf("extensions: %w", err)
	}

	*out = contracts.ContractProfile{
		Name:    doc.Name,
		Version: doc.Version,
		Kind:    contracts.NodeKind(doc.Kind),
	}
	if len(fields) > 0 {
		out.Fields = make(map[contracts.FieldPath]contracts.Value, len(fields))
		for k, v := range fields {
			out.Fields[contracts.FieldPath(k)] = v
		}
	}
	if len(ext) > 0 {
		out.Extensions = ext
	}
	for _, c := range doc.Capabilities {
		out.Capabilities = append(out.Capabilities, c.decl())
	}
	for _, h := range doc.Handlers {
		def, err := h.def()
		if err != nil {
			return err
		}
		out.Handlers = append(out.Handlers, def)
	}
	for _, f := range doc.Fixtures {
		out.Fixtures = append(out.Fixtures, contracts.FixtureRef{Path: f.Path, Digest: f.Digest})
	}
	return nil
}

func decodeHCLPatch(data []byte, filename string, out *contracts.ContractPatch) error {
	var doc hclPatch
	if err := parseHCL(data, filename, &doc); err != nil {
		return err
	}

	*out = contracts.ContractPatch{
		Name:         doc.Name,
		Precedence:   doc.Precedence,
		AppliesAfter: doc.AppliesAfter,
		RequiresBase: doc.RequiresBase,
	}
	for _, s := range doc.Sets {
		v, err := exprValue(s.Value)
		if err != nil {
			return fmt.Errorf("set %s: %w", s.Path, err)
		}
		out.Operations = append(out.Operations, contracts.PatchOp{Op: contracts.OpSet, Path: contracts.FieldPath(s.Path), Value: v})
	}
	for _, d := range doc.Deletes {
		out.Operations = append(out.Operations, contracts.PatchOp{Op: contracts.OpDelete, Path: contracts.FieldPath(d.Path)})
	}
	for _, h := range doc.UpsertHandlers {
		def, err := h.def()
		if err != nil {
			return err
		}
		out.Handlers = append(out.Handlers, contracts.HandlerOp{Op: contracts.OpUpsert, Handler: def})
	}
	for _, r := range doc.RemoveHandlers {
		out.Handlers = append(out.Handlers, contracts.HandlerOp{Op: contracts.OpRemove, Handler: contracts.HandlerDefinition{ID: r.Name}})
	}
	for _, c := range doc.UpsertCapabilities {
		out.Capabilities = append(out.Capabilities, contracts.CapabilityOp{Op: contracts.OpUpsert, Capability: c.decl()})
	}
	for _, r := range doc.RemoveCapabilities {
		out.Capabilities = append(out.Capabilities, contracts.CapabilityOp{Op: contracts.OpRemove, Capability: contracts.CapabilityDeclaration{Name: r.Name}})
	}
	for _, f := range doc.Fixtures {
		out.Fixtures = append(out.Fixtures, contracts.FixtureRef{Path: f.Path, Digest: f.Digest})
	}
	return nil
}

func (c hclCapability) decl() contracts.CapabilityDeclaration {
	return contracts.CapabilityDeclaration{
		Name:             c.Name,
		Version:          c.Version,
		DependsOn:        c.DependsOn,
		Effect:           c.Effect,
		Nondeterministic: c.Nondeterministic,
	}
}

func (h hclHandler) def() (contracts.HandlerDefinition, error) {
	def := contracts.HandlerDefinition{
		ID:         h.ID,
		DependsOn:  h.DependsOn,
		ProfileRef: h.ProfileRef,
		Requires:   h.Requires,
		Guard:      h.Guard,
	}
	if h.Phase != "" {
		phase, err := contracts.ParsePhase(h.Phase)
		if err != nil {
			return def, fmt.Errorf("handler %s: %w", h.ID, err)
		}
		def.Phase = phase
	}
	if h.Timeout != "" {
		d, err := time.ParseDuration(h.Timeout)
		if err != nil || d < 0 {
			return def, fmt.Errorf("handler %s: invalid timeout %q", h.ID, h.Timeout)
		}
		def.Timeout = contracts.Duration(d)
	}
	return def, nil
}

// exprMap evaluates an optional object-valued attribute.
func exprMap(expr hcl.Expression) (map[string]contracts.Value, error) {
	if expr == nil {
		return nil, nil
	}
	v, err := exprValue(expr)
	if err != nil {
		return nil, err
	}
	if v.IsNull() {
		return nil, nil
	}
	m, ok := v.AsMap()
	if !ok {
		return nil, fmt.Errorf("expected an object, got %s", v.Kind())
	}
	return m, nil
}

func exprValue(expr hcl.Expression) (contracts.Value, error) {
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return contracts.Value{}, diags
	}
	return fromCty(val)
}

// fromCty converts a cty value to a contract value. Whole numbers that fit
// in int64 become Int; other numbers become Float.
func fromCty(v cty.Value) (contracts.Value, error) {
	if v.IsNull() {
		return contracts.Null(), nil
	}
	if !v.IsKnown() {
		return contracts.Value{}, fmt.Errorf("value is not known statically")
	}

	ty := v.Type()
	switch {
	case ty == cty.String:
		return contracts.String(v.AsString()), nil

	case ty == cty.Bool:
		return contracts.Bool(v.True()), nil

	case ty == cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInt() {
			if i, acc := bf.Int64(); acc == big.Exact {
				return contracts.Int(i), nil
			}
		}
		f, _ := bf.Float64()
		return contracts.Float(f), nil

	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		elems := make([]contracts.Value, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, el := it.Element()
			cv, err := fromCty(el)
			if err != nil {
				return contracts.Value{}, err
			}
			elems = append(elems, cv)
		}
		return contracts.List(elems...), nil

	case ty.IsMapType() || ty.IsObjectType():
		entries := make(map[string]contracts.Value, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			k, el := it.Element()
			cv, err := fromCty(el)
			if err != nil {
				return contracts.Value{}, fmt.Errorf("in attribute '%s': %w", k.AsString(), err)
			}
			entries[k.AsString()] = cv
		}
		return contracts.Map(entries), nil

	default:
		return contracts.Value{}, fmt.Errorf("unsupported value type: %s", ty.FriendlyName())
	}
}
