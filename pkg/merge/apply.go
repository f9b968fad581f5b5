package merge

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/contracts"
	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/depgraph"
)

// write is one patch's intended outcome for one item. Outcomes are compared
// by their canonical encoding, so identical writes never conflict.
type write struct {
	patch   string
	outcome string
}

type writeSet map[string]map[string][]write

func (w writeSet) add(section, key, patch, outcome string) {
	if w[section] == nil {
		w[section] = map[string][]write{}
	}
	w[section][key] = append(w[section][key], write{patch: patch, outcome: outcome})
}

// conflict returns the first pair of unordered patches that disagree,
// scanning sections and keys in sorted order.
func (w writeSet) conflict(order *depgraph.Graph) error {
	sections := make([]string, 0, len(w))
	for s := range w {
		sections = append(sections, s)
	}
	sort.Strings(sections)
	for _, section := range sections {
		keys := make([]string, 0, len(w[section]))
		for k := range w[section] {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, key := range keys {
			writes := w[section][key]
			for i := 0; i < len(writes); i++ {
				for j := i + 1; j < len(writes); j++ {
					a, b := writes[i], writes[j]
					if a.outcome == b.outcome || order.Ordered(a.patch, b.patch) {
						continue
					}
					names := []string{a.patch, b.patch}
					sort.Strings(names)
					return MergeConflictError{Section: section, Path: key, Patches: names}
				}
			}
		}
	}
	return nil
}

func collectWrites(patches []contracts.ContractPatch) (writeSet, error) {
	w := writeSet{}
	for _, p := range patches {
		for _, op := range p.Operations {
			outcome := string(contracts.OpDelete)
			if op.Op == contracts.OpSet {
				b, err := op.Value.MarshalJSON()
				if err != nil {
					return nil, err
				}
				outcome = "set:" + string(b)
			}
			w.add(contracts.SectionFields, string(op.Path), p.Name, outcome)
		}
		for _, op := range p.Handlers {
			outcome, err := opOutcome(op.Op, op.Handler)
			if err != nil {
				return nil, err
			}
			w.add(contracts.SectionHandlers, op.Handler.ID, p.Name, outcome)
		}
		for _, op := range p.Capabilities {
			outcome, err := opOutcome(op.Op, op.Capability)
			if err != nil {
				return nil, err
			}
			w.add(contracts.SectionCapabilities, op.Capability.Name, p.Name, outcome)
		}
		for _, f := range p.Fixtures {
			w.add(contracts.SectionFixtures, f.Path, p.Name, "upsert:"+f.Digest)
		}
	}
	return w, nil
}

func opOutcome(op contracts.OpKind, item any) (string, error) {
	if op == contracts.OpRemove {
		return string(op), nil
	}
	b, err := json.Marshal(item)
	if err != nil {
		return "", err
	}
	return string(op) + ":" + string(b), nil
}

// mergePhase checks for unordered conflicts and applies patches in order.
func mergePhase(base *contracts.ContractProfile, ordered []contracts.ContractPatch, order *depgraph.Graph) (contracts.ContractProfile, error) {
	writes, err := collectWrites(ordered)
	if err != nil {
		return contracts.ContractProfile{}, fmt.Errorf("encode patch outcome: %w", err)
	}
	if err := writes.conflict(order); err != nil {
		return contracts.ContractProfile{}, err
	}

	out := base.Clone()
	if out.Fields == nil {
		out.Fields = map[contracts.FieldPath]contracts.Value{}
	}
	for _, p := range ordered {
		applyPatch(&out, p)
	}
	if len(out.Fields) == 0 {
		out.Fields = nil
	}
	return out, nil
}

func applyPatch(c *contracts.ContractProfile, p contracts.ContractPatch) {
	for _, op := range p.Operations {
		switch op.Op {
		case contracts.OpSet:
			c.Fields[op.Path] = op.Value
		case contracts.OpDelete:
			delete(c.Fields, op.Path)
		}
	}

	for _, op := range p.Handlers {
		idx := -1
		for i, h := range c.Handlers {
			if h.ID == op.Handler.ID {
				idx = i
				break
			}
		}
		switch {
		case op.Op == contracts.OpUpsert && idx >= 0:
			c.Handlers[idx] = op.Handler.Clone()
		case op.Op == contracts.OpUpsert:
			c.Handlers = append(c.Handlers, op.Handler.Clone())
		case op.Op == contracts.OpRemove && idx >= 0:
			c.Handlers = append(c.Handlers[:idx:idx], c.Handlers[idx+1:]...)
		}
	}

	for _, op := range p.Capabilities {
		idx := -1
		for i, decl := range c.Capabilities {
			if decl.Name == op.Capability.Name {
				idx = i
				break
			}
		}
		switch {
		case op.Op == contracts.OpUpsert && idx >= 0:
			c.Capabilities[idx] = op.Capability.Clone()
		case op.Op == contracts.OpUpsert:
			c.Capabilities = append(c.Capabilities, op.Capability.Clone())
		case op.Op == contracts.OpRemove && idx >= 0:
			c.Capabilities = append(c.Capabilities[:idx:idx], c.Capabilities[idx+1:]...)
		}
	}

	for _, f := range p.Fixtures {
		replaced := false
		for i := range c.Fixtures {
			if c.Fixtures[i].Path == f.Path {
				c.Fixtures[i] = f
				replaced = true
				break
			}
		}
		if !replaced {
			c.Fixtures = append(c.Fixtures, f)
		}
	}
}
