// Package depgraph resolves named nodes with dependency edges into a
// deterministic topological order, reporting duplicates, dangling edges and
// cycles as typed errors.
package depgraph

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// DefaultMaxDFSIterations caps the cycle-reporting walk.
const DefaultMaxDFSIterations = 10000

// Resolver is stateless; one instance may serve concurrent callers.
type Resolver struct {
	maxIterations int
	logger        *slog.Logger
}

type Option func(*Resolver)

// WithMaxDFSIterations overrides the walk bound. Non-positive values keep
// the default.
func WithMaxDFSIterations(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxIterations = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		maxIterations: DefaultMaxDFSIterations,
		logger:        slog.Default().With("component", "depgraph"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MaxIterations returns the configured walk bound.
func (r *Resolver) MaxIterations() int { return r.maxIterations }

// Resolve validates nodes and returns their graph.
//
// Duplicate IDs are rejected before anything else. Ordering uses Kahn's
// algorithm in waves: every node whose dependencies are all emitted is
// released in the same wave, ascending by ID. If nodes remain, a bounded
// walk over the residual set produces the cycle witness.
func (r *Resolver) Resolve(ctx context.Context, nodes []Node) (*Graph, error) {
	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		if _, dup := index[n.ID]; dup {
			return nil, DuplicateNodeError{ID: n.ID}
		}
		index[n.ID] = i
	}

	normalized := make([]Node, len(nodes))
	for i, n := range nodes {
		normalized[i] = Node{ID: n.ID, DependsOn: sortedUnique(n.DependsOn)}
	}
	sort.Slice(normalized, func(i, j int) bool { return normalized[i].ID < normalized[j].ID })
	for i, n := range normalized {
		index[n.ID] = i
	}

	for _, n := range normalized {
		for _, dep := range n.DependsOn {
			if _, ok := index[dep]; !ok {
				return nil, MissingDependencyError{Dependent: n.ID, Missing: dep}
			}
		}
	}

	pending := make(map[string]int, len(normalized))
	dependents := make(map[string][]string, len(normalized))
	var wave []string
	for _, n := range normalized {
		pending[n.ID] = len(n.DependsOn)
		for _, dep := range n.DependsOn {
			dependents[dep] = append(dependents[dep], n.ID)
		}
		if len(n.DependsOn) == 0 {
			wave = append(wave, n.ID)
		}
	}

	order := make([]string, 0, len(normalized))
	var waves [][]string
	for len(wave) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, GraphResourceExhaustionError{Iterations: len(order), Limit: r.maxIterations, Cause: err}
		}
		sort.Strings(wave)
		waves = append(waves, wave)
		order = append(order, wave...)
		var next []string
		for _, id := range wave {
			for _, d := range dependents[id] {
				pending[d]--
				if pending[d] == 0 {
					next = append(next, d)
				}
			}
		}
		wave = next
	}

	if len(order) < len(normalized) {
		residual := make(map[string]bool, len(normalized)-len(order))
		for id, left := range pending {
			if left > 0 {
				residual[id] = true
			}
		}
		return nil, r.cycleWitness(ctx, normalized, index, residual)
	}

	return &Graph{
		Nodes:              normalized,
		ResolutionOrder:    order,
		Waves:              waves,
		CircularReferences: []string{},
		index:              index,
	}, nil
}

// cycleWitness walks from the smallest residual ID, always following the
// smallest residual dependency, until an ID repeats. Every residual node has
// at least one residual dependency, so the walk closes within len(residual)
// steps unless the bound or the context stops it first.
func (r *Resolver) cycleWitness(ctx context.Context, nodes []Node, index map[string]int, residual map[string]bool) error {
	var start string
	for _, n := range nodes {
		if residual[n.ID] {
			start = n.ID
			break
		}
	}

	pos := make(map[string]int)
	var path []string
	cur := start
	for iterations := 1; ; iterations++ {
		if iterations > r.maxIterations {
			r.logger.Warn("cycle search exceeded iteration bound", "limit", r.maxIterations, "residual", len(residual))
			return GraphResourceExhaustionError{Iterations: iterations - 1, Limit: r.maxIterations}
		}
		if err := ctx.Err(); err != nil {
			return GraphResourceExhaustionError{Iterations: iterations - 1, Limit: r.maxIterations, Cause: err}
		}
		if p, seen := pos[cur]; seen {
			cycle := append(append([]string(nil), path[p:]...), cur)
			r.logger.Debug("dependency cycle detected", "cycle", cycle)
			return DependencyCycleError{Cycle: cycle}
		}
		pos[cur] = len(path)
		path = append(path, cur)

		var next string
		found := false
		for _, dep := range nodes[index[cur]].DependsOn {
			if residual[dep] {
				next, found = dep, true
				break
			}
		}
		if !found {
			return fmt.Errorf("depgraph: residual node %q has no residual dependency", cur)
		}
		cur = next
	}
}

func sortedUnique(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := append([]string(nil), in...)
	sort.Strings(out)
	j := 0
	for i := range out {
		if i == 0 || out[i] != out[j-1] {
			out[j] = out[i]
			j++
		}
	}
	return out[:j]
}
