package merge

import (
	"encoding/json"
	"sort"

	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/contracts"
)

// Diff compares two profiles item by item: fields by path, capabilities by
// name, handlers by id and fixtures by path. Entries are sorted by section
// then path.
func Diff(before, after *contracts.ContractProfile) (*contracts.ContractDiff, error) {
	d := &contracts.ContractDiff{Entries: []contracts.DiffEntry{}}

	bf := make(map[string]contracts.Value, len(before.Fields))
	for k, v := range before.Fields {
		bf[string(k)] = v
	}
	af := make(map[string]contracts.Value, len(after.Fields))
	for k, v := range after.Fields {
		af[string(k)] = v
	}
	diffSection(d, contracts.SectionFields, bf, af)

	for _, s := range []struct {
		name          string
		before, after map[string]any
	}{
		{contracts.SectionCapabilities, keyed(before.Capabilities, func(c contracts.CapabilityDeclaration) string { return c.Name }), keyed(after.Capabilities, func(c contracts.CapabilityDeclaration) string { return c.Name })},
		{contracts.SectionHandlers, keyed(before.Handlers, func(h contracts.HandlerDefinition) string { return h.ID }), keyed(after.Handlers, func(h contracts.HandlerDefinition) string { return h.ID })},
		{contracts.SectionFixtures, keyed(before.Fixtures, func(f contracts.FixtureRef) string { return f.Path }), keyed(after.Fixtures, func(f contracts.FixtureRef) string { return f.Path })},
	} {
		bv, err := toValues(s.before)
		if err != nil {
			return nil, err
		}
		av, err := toValues(s.after)
		if err != nil {
			return nil, err
		}
		diffSection(d, s.name, bv, av)
	}

	d.Sort()
	return d, nil
}

func diffSection(d *contracts.ContractDiff, section string, before, after map[string]contracts.Value) {
	keys := make([]string, 0, len(before)+len(after))
	for k := range before {
		keys = append(keys, k)
	}
	for k := range after {
		if _, ok := before[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		b, hadBefore := before[k]
		a, hasAfter := after[k]
		switch {
		case hadBefore && !hasAfter:
			d.Entries = append(d.Entries, contracts.DiffEntry{Section: section, Path: k, Kind: contracts.DiffRemoved, Before: b})
		case !hadBefore && hasAfter:
			d.Entries = append(d.Entries, contracts.DiffEntry{Section: section, Path: k, Kind: contracts.DiffAdded, After: a})
		case !b.Equal(a):
			d.Entries = append(d.Entries, contracts.DiffEntry{Section: section, Path: k, Kind: contracts.DiffModified, Before: b, After: a})
		}
	}
}

func keyed[T any](items []T, key func(T) string) map[string]any {
	out := make(map[string]any, len(items))
	for _, it := range items {
		out[key(it)] = it
	}
	return out
}

// toValues converts declarations to contract values through their JSON form.
func toValues(in map[string]any) (map[string]contracts.Value, error) {
	out := make(map[string]contracts.Value, len(in))
	for k, item := range in {
		b, err := json.Marshal(item)
		if err != nil {
			return nil, err
		}
		var v contracts.Value
		if err := json.Unmarshal(b, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}
