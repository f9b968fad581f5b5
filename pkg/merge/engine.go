// Package merge applies ordered overlay patches to a base contract profile
// through a PATCH, MERGE and EXPANDED validation pipeline.
package merge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/canonicalize"
	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/contracts"
	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/depgraph"
	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/guard"
	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/observability"
)

// Engine merges contracts. It holds no per-call state and is safe for
// concurrent use.
type Engine struct {
	graph     *depgraph.Resolver
	guards    *guard.Env
	sink      observability.EventSink
	telemetry *observability.Provider
	clock     func() time.Time
	logger    *slog.Logger
}

type Option func(*Engine)

func WithSink(s observability.EventSink) Option {
	return func(e *Engine) {
		if s != nil {
			e.sink = s
		}
	}
}

func WithGraphResolver(r *depgraph.Resolver) Option {
	return func(e *Engine) {
		if r != nil {
			e.graph = r
		}
	}
}

// WithClock overrides the clock used for merge_completed durations.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.clock = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithTelemetry(p *observability.Provider) Option {
	return func(e *Engine) { e.telemetry = p }
}

func WithGuardEnv(g *guard.Env) Option {
	return func(e *Engine) {
		if g != nil {
			e.guards = g
		}
	}
}

func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		sink:   observability.NopSink{},
		clock:  time.Now,
		logger: slog.Default().With("component", "merge"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.graph == nil {
		e.graph = depgraph.NewResolver(depgraph.WithLogger(e.logger))
	}
	if e.guards == nil {
		g, err := guard.NewEnv()
		if err != nil {
			return nil, err
		}
		e.guards = g
	}
	return e, nil
}

type mergeOptions struct {
	correlationID string
	silent        bool
}

type MergeOption func(*mergeOptions)

// WithCorrelationID tags the merge events. A random UUID is used otherwise.
func WithCorrelationID(id string) MergeOption {
	return func(o *mergeOptions) { o.correlationID = id }
}

// Silent runs the merge without emitting events, recording telemetry or
// logging above DEBUG. Re-derivations such as verification use it.
func Silent() MergeOption {
	return func(o *mergeOptions) { o.silent = true }
}

// Merge applies patches to base and returns the expanded contract and its
// diff against base. The result depends only on base and the patch set:
// repeated calls produce byte-identical output. Inputs are never modified.
//
// merge_started is emitted on entry; merge_completed only on success.
func (e *Engine) Merge(ctx context.Context, base *contracts.ContractProfile, patches []contracts.ContractPatch, opts ...MergeOption) (_ *contracts.MergedContract, _ *contracts.ContractDiff, err error) {
	mo := mergeOptions{}
	for _, opt := range opts {
		opt(&mo)
	}
	if mo.correlationID == "" {
		mo.correlationID = uuid.NewString()
	}
	if base == nil {
		return nil, nil, &PhaseError{Phase: PhasePatch, Err: fmt.Errorf("base profile is nil")}
	}

	sink := e.sink
	if mo.silent {
		sink = observability.NopSink{}
	}

	if e.telemetry != nil && !mo.silent {
		var done func(error)
		ctx, done = e.telemetry.TrackOperation(ctx, "contract.merge",
			attribute.String("contract", base.Name),
			attribute.Int("patches", len(patches)),
		)
		defer func() { done(err) }()
	}

	start := e.clock()
	logger := e.logger.With("correlation_id", mo.correlationID, "contract", base.Name)
	sink.Emit(ctx, observability.Event{
		Type:          observability.EventMergeStarted,
		CorrelationID: mo.correlationID,
		Contract:      base.Name,
		PatchCount:    len(patches),
	})

	order, err := e.patchPhase(ctx, base, patches)
	if err != nil {
		logger.DebugContext(ctx, "patch phase failed", "error", err)
		return nil, nil, &PhaseError{Phase: PhasePatch, Err: err}
	}
	logger.DebugContext(ctx, "patch phase passed", "order", order.ResolutionOrder)

	byName := make(map[string]contracts.ContractPatch, len(patches))
	for _, p := range patches {
		byName[p.Name] = p
	}
	ordered := make([]contracts.ContractPatch, 0, len(patches))
	for _, name := range order.ResolutionOrder {
		ordered = append(ordered, byName[name].Clone())
	}

	merged, err := mergePhase(base, ordered, order)
	if err != nil {
		logger.DebugContext(ctx, "merge phase failed", "error", err)
		return nil, nil, &PhaseError{Phase: PhaseMerge, Err: err}
	}

	if err := e.expandedPhase(ctx, &merged, ordered); err != nil {
		logger.DebugContext(ctx, "expanded phase failed", "error", err)
		return nil, nil, &PhaseError{Phase: PhaseExpanded, Err: err}
	}

	digest, err := canonicalize.Digest(merged)
	if err != nil {
		return nil, nil, &PhaseError{Phase: PhaseExpanded, Err: fmt.Errorf("digest: %w", err)}
	}

	diff, err := Diff(base, &merged)
	if err != nil {
		return nil, nil, &PhaseError{Phase: PhaseExpanded, Err: fmt.Errorf("diff: %w", err)}
	}

	result := &contracts.MergedContract{
		Contract:     merged,
		Base:         base.Clone(),
		Patches:      ordered,
		AppliedOrder: append([]string(nil), order.ResolutionOrder...),
		Digest:       digest,
	}

	elapsed := e.clock().Sub(start)
	sink.Emit(ctx, observability.Event{
		Type:          observability.EventMergeCompleted,
		CorrelationID: mo.correlationID,
		Contract:      base.Name,
		PatchCount:    len(patches),
		Diff:          diff,
		Duration:      elapsed,
		Digest:        digest,
	})
	sum := diff.Summary()
	level := slog.LevelInfo
	if mo.silent {
		level = slog.LevelDebug
	}
	logger.Log(ctx, level, "contract merged",
		"digest", digest,
		"applied", result.AppliedOrder,
		"added", sum.Added,
		"modified", sum.Modified,
		"removed", sum.Removed,
		"duration_ms", elapsed.Milliseconds(),
	)
	return result, diff, nil
}
