package planner

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/contracts"
	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/depgraph"
)

func c(id string, phase contracts.Phase, deps ...string) contracts.ExecutionConstraint {
	return contracts.ExecutionConstraint{HandlerID: id, Phase: phase, DependsOn: deps}
}

func TestResolveChain(t *testing.T) {
	plan, err := NewResolver(nil).Resolve(context.Background(), []contracts.ExecutionConstraint{
		c("C", contracts.PhaseExecute, "A", "B"),
		c("A", contracts.PhaseExecute),
		c("B", contracts.PhaseExecute, "A"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, plan.HandlerOrder())
	require.Len(t, plan.Steps, 1)
	assert.Empty(t, plan.Warnings)
	assert.Regexp(t, `^sha256:`, plan.Digest)
}

func TestResolveCycle(t *testing.T) {
	_, err := NewResolver(nil).Resolve(context.Background(), []contracts.ExecutionConstraint{
		c("A", contracts.PhaseExecute, "B"),
		c("B", contracts.PhaseExecute, "A"),
	})
	var cycle depgraph.DependencyCycleError
	require.ErrorAs(t, err, &cycle)
	assert.True(t, cycle.Contains("A"))
	assert.True(t, cycle.Contains("B"))
	assert.Empty(t, cycle.Reason)
}

func TestResolveSelfLoops(t *testing.T) {
	for _, id := range []string{"", "audit"} {
		_, err := NewResolver(nil).Resolve(context.Background(), []contracts.ExecutionConstraint{
			c(id, contracts.PhaseExecute, id),
		})
		var cycle depgraph.DependencyCycleError
		require.ErrorAs(t, err, &cycle, "id %q", id)
		assert.Equal(t, []string{id, id}, cycle.Cycle)
	}
}

func TestResolveGraphErrorsPropagate(t *testing.T) {
	_, err := NewResolver(nil).Resolve(context.Background(), []contracts.ExecutionConstraint{
		c("A", contracts.PhaseExecute, "ghost"),
	})
	var missing depgraph.MissingDependencyError
	require.ErrorAs(t, err, &missing)

	_, err = NewResolver(nil).Resolve(context.Background(), []contracts.ExecutionConstraint{
		c("A", contracts.PhaseExecute),
		c("A", contracts.PhaseAfter),
	})
	var dup depgraph.DuplicateNodeError
	require.ErrorAs(t, err, &dup)
}

func TestResolvePartitionsByPhase(t *testing.T) {
	plan, err := NewResolver(nil).Resolve(context.Background(), []contracts.ExecutionConstraint{
		c("emit", contracts.PhaseEmit, "write"),
		c("write", contracts.PhaseExecute, "validate", "load"),
		c("load", contracts.PhaseBefore, "validate"),
		c("validate", contracts.PhasePreflight),
		c("audit", contracts.PhaseExecute, "validate"),
	})
	require.NoError(t, err)
	assert.Equal(t, []contracts.PhaseStep{
		{Phase: contracts.PhasePreflight, HandlerIDs: []string{"validate"}},
		{Phase: contracts.PhaseBefore, HandlerIDs: []string{"load"}},
		{Phase: contracts.PhaseExecute, HandlerIDs: []string{"audit", "write"}},
		{Phase: contracts.PhaseEmit, HandlerIDs: []string{"emit"}},
	}, plan.Steps)

	phase, ok := plan.PhaseOf("write")
	require.True(t, ok)
	assert.Equal(t, contracts.PhaseExecute, phase)
}

func TestResolveRejectsDependencyOnLaterPhase(t *testing.T) {
	_, err := NewResolver(nil).Resolve(context.Background(), []contracts.ExecutionConstraint{
		c("check", contracts.PhasePreflight, "persist"),
		c("persist", contracts.PhaseExecute),
	})
	var cycle depgraph.DependencyCycleError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, PhaseOrderReason, cycle.Reason)
	assert.Equal(t, []string{"check", "persist", "check"}, cycle.Cycle)
}

func TestResolveRejectsUnknownPhase(t *testing.T) {
	_, err := NewResolver(nil).Resolve(context.Background(), []contracts.ExecutionConstraint{
		c("a", "LATER"),
	})
	require.Error(t, err)
}

func TestResolveIsolatedWarnings(t *testing.T) {
	plan, err := NewResolver(nil).Resolve(context.Background(), []contracts.ExecutionConstraint{
		c("a", contracts.PhaseExecute),
		c("b", contracts.PhaseExecute, "a"),
		c("stray", contracts.PhaseAfter),
	})
	require.NoError(t, err)
	require.Len(t, plan.Warnings, 1)
	assert.Contains(t, plan.Warnings[0], "stray")

	single, err := NewResolver(nil).Resolve(context.Background(), []contracts.ExecutionConstraint{c("only", contracts.PhaseExecute)})
	require.NoError(t, err)
	assert.Empty(t, single.Warnings)
}

func TestResolveIgnoresInputOrder(t *testing.T) {
	in := []contracts.ExecutionConstraint{
		c("d", contracts.PhaseAfter, "b", "c"),
		c("c", contracts.PhaseExecute, "a"),
		c("b", contracts.PhaseExecute, "a"),
		c("a", contracts.PhaseBefore),
	}
	r := NewResolver(nil)
	p1, err := r.Resolve(context.Background(), in)
	require.NoError(t, err)
	p2, err := r.Resolve(context.Background(), []contracts.ExecutionConstraint{in[3], in[1], in[0], in[2]})
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
}

func TestResolveConcurrent(t *testing.T) {
	r := NewResolver(depgraph.NewResolver())
	in := []contracts.ExecutionConstraint{
		c("a", contracts.PhaseBefore),
		c("b", contracts.PhaseExecute, "a"),
	}
	want, err := r.Resolve(context.Background(), in)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := r.Resolve(context.Background(), in)
			if err == nil && got.Digest != want.Digest {
				err = assert.AnError
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

func TestConstraintsFromContract(t *testing.T) {
	profile := &contracts.ContractProfile{
		Handlers: []contracts.HandlerDefinition{
			{ID: "write", Phase: contracts.PhaseExecute, DependsOn: []string{"validate"}, ProfileRef: "storage"},
			{ID: "validate", Phase: contracts.PhasePreflight},
		},
	}
	got := ConstraintsFromContract(profile)
	require.Len(t, got, 2)
	assert.Equal(t, "validate", got[0].HandlerID)
	assert.Equal(t, "storage", got[1].ProfileRef)
	got[1].DependsOn[0] = "mutated"
	assert.Equal(t, "validate", profile.Handlers[0].DependsOn[0])
}
