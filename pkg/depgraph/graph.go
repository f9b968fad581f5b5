package depgraph

import (
	"fmt"
	"sort"
	"strings"
)

// Node is one vertex. DependsOn lists the IDs that must come before it.
type Node struct {
	ID        string   `json:"id"`
	DependsOn []string `json:"depends_on,omitempty"`
}

// Graph is the immutable result of a successful resolution.
type Graph struct {
	// Nodes is sorted by ID with deduplicated, sorted dependency lists.
	Nodes []Node `json:"nodes"`
	// ResolutionOrder is a topological order: dependencies come first.
	ResolutionOrder []string `json:"resolution_order"`
	// Waves groups ResolutionOrder by Kahn round. Nodes within a wave have
	// no ordering constraint between them.
	Waves [][]string `json:"waves"`
	// CircularReferences is always empty on a returned graph; cycles are
	// reported through DependencyCycleError.
	CircularReferences []string `json:"circular_references"`

	index map[string]int
}

// Unique reports whether the resolution order is the only valid one.
func (g *Graph) Unique() bool {
	for _, w := range g.Waves {
		if len(w) > 1 {
			return false
		}
	}
	return true
}

// Node returns the node with the given ID.
func (g *Graph) Node(id string) (Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	return g.Nodes[i], true
}

// Position returns the index of id in ResolutionOrder, or -1.
func (g *Graph) Position(id string) int {
	for i, n := range g.ResolutionOrder {
		if n == id {
			return i
		}
	}
	return -1
}

// DependsOn reports whether from depends on to, directly or transitively.
func (g *Graph) DependsOn(from, to string) bool {
	if from == to {
		return false
	}
	seen := map[string]bool{from: true}
	stack := []string{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n, ok := g.Node(cur)
		if !ok {
			continue
		}
		for _, dep := range n.DependsOn {
			if dep == to {
				return true
			}
			if !seen[dep] {
				seen[dep] = true
				stack = append(stack, dep)
			}
		}
	}
	return false
}

// Ordered reports whether a and b are related by the dependency order in
// either direction.
func (g *Graph) Ordered(a, b string) bool {
	return g.DependsOn(a, b) || g.DependsOn(b, a)
}

// DOT exports Graphviz DOT text. Edges point from dependent to dependency.
func (g *Graph) DOT() string {
	var b strings.Builder
	b.WriteString("digraph depgraph {\n")
	b.WriteString("  rankdir=LR;\n")
	for _, n := range g.Nodes {
		b.WriteString(fmt.Sprintf("  %q;\n", n.ID))
	}
	for _, n := range g.Nodes {
		for _, dep := range n.DependsOn {
			b.WriteString(fmt.Sprintf("  %q -> %q;\n", n.ID, dep))
		}
	}
	b.WriteString("}\n")
	return b.String()
}

// Mermaid exports Mermaid flowchart text.
func (g *Graph) Mermaid() string {
	var b strings.Builder
	b.WriteString("graph TD\n")
	alias := make(map[string]string, len(g.Nodes))
	for i, n := range g.Nodes {
		alias[n.ID] = fmt.Sprintf("n%d", i)
		b.WriteString(fmt.Sprintf("    %s[\"%s\"]\n", alias[n.ID], strings.ReplaceAll(n.ID, "\"", "\\\"")))
	}
	for _, n := range g.Nodes {
		for _, dep := range n.DependsOn {
			b.WriteString(fmt.Sprintf("    %s --> %s\n", alias[n.ID], alias[dep]))
		}
	}
	return b.String()
}

// FindIsolated returns, sorted, the IDs of nodes with no incoming and no
// outgoing edges. Edges that reference unknown IDs are ignored. The result
// is advisory and never an error.
func FindIsolated(nodes []Node) []string {
	known := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		known[n.ID] = true
	}
	linked := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		for _, dep := range n.DependsOn {
			if !known[dep] {
				continue
			}
			linked[n.ID] = true
			linked[dep] = true
		}
	}
	var out []string
	seen := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		if !linked[n.ID] && !seen[n.ID] {
			seen[n.ID] = true
			out = append(out, n.ID)
		}
	}
	sort.Strings(out)
	return out
}
