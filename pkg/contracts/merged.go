package contracts

import "sort"

// MergedContract is a fully expanded contract plus the provenance needed to
// re-derive it.
type MergedContract struct {
	Contract ContractProfile `json:"contract"`
	Base     ContractProfile `json:"base"`
	Patches  []ContractPatch `json:"patches,omitempty"`
	// AppliedOrder lists patch names in the order they were applied.
	AppliedOrder []string `json:"applied_order,omitempty"`
	// Digest is the canonical sha256 digest of Contract.
	Digest string `json:"digest"`
}

// DiffKind classifies a change between base and merged contract.
type DiffKind string

const (
	DiffAdded    DiffKind = "added"
	DiffModified DiffKind = "modified"
	DiffRemoved  DiffKind = "removed"
)

// Diff sections.
const (
	SectionFields       = "fields"
	SectionCapabilities = "capabilities"
	SectionHandlers     = "handlers"
	SectionFixtures     = "fixtures"
)

// DiffEntry is one changed item. Before is null for additions and After is
// null for removals.
type DiffEntry struct {
	Section string   `json:"section"`
	Path    string   `json:"path"`
	Kind    DiffKind `json:"kind"`
	Before  Value    `json:"before"`
	After   Value    `json:"after"`
}

// ContractDiff lists changes sorted by section then path.
type ContractDiff struct {
	Entries []DiffEntry `json:"entries"`
}

// DiffSummary counts entries per kind.
type DiffSummary struct {
	Added    int `json:"added"`
	Modified int `json:"modified"`
	Removed  int `json:"removed"`
}

func (d *ContractDiff) Summary() DiffSummary {
	var s DiffSummary
	if d == nil {
		return s
	}
	for _, e := range d.Entries {
		switch e.Kind {
		case DiffAdded:
			s.Added++
		case DiffModified:
			s.Modified++
		case DiffRemoved:
			s.Removed++
		}
	}
	return s
}

func (d *ContractDiff) Empty() bool { return d == nil || len(d.Entries) == 0 }

// Sort orders entries by section then path.
func (d *ContractDiff) Sort() {
	sort.Slice(d.Entries, func(i, j int) bool {
		if d.Entries[i].Section != d.Entries[j].Section {
			return d.Entries[i].Section < d.Entries[j].Section
		}
		return d.Entries[i].Path < d.Entries[j].Path
	})
}

// Find returns the entry for section and path.
func (d *ContractDiff) Find(section, path string) (DiffEntry, bool) {
	if d == nil {
		return DiffEntry{}, false
	}
	for _, e := range d.Entries {
		if e.Section == section && e.Path == path {
			return e, true
		}
	}
	return DiffEntry{}, false
}
