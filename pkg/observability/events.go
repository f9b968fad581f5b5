package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/contracts"
)

// EventType names a pipeline lifecycle event.
type EventType string

const (
	EventMergeStarted   EventType = "merge_started"
	EventMergeCompleted EventType = "merge_completed"
)

// Event is emitted by the merge engine. Diff, Duration and Digest are set
// only on merge_completed.
type Event struct {
	Type          EventType
	CorrelationID string
	Contract      string
	PatchCount    int
	Diff          *contracts.ContractDiff
	Duration      time.Duration
	Digest        string
}

// EventSink receives lifecycle events. Implementations must be safe for
// concurrent use and must not block the emitter for long.
type EventSink interface {
	Emit(ctx context.Context, ev Event)
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) Emit(context.Context, Event) {}

// LogSink writes events as structured log records.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger.With("component", "events")}
}

func (s *LogSink) Emit(ctx context.Context, ev Event) {
	attrs := []any{
		"event", string(ev.Type),
		"correlation_id", ev.CorrelationID,
		"contract", ev.Contract,
		"patches", ev.PatchCount,
	}
	if ev.Type == EventMergeCompleted {
		sum := ev.Diff.Summary()
		attrs = append(attrs,
			"duration_ms", ev.Duration.Milliseconds(),
			"digest", ev.Digest,
			"added", sum.Added,
			"modified", sum.Modified,
			"removed", sum.Removed,
		)
	}
	s.logger.InfoContext(ctx, "merge event", attrs...)
}

// OTelSink records events on the active span and as metrics.
type OTelSink struct {
	events   metric.Int64Counter
	changes  metric.Int64Counter
	duration metric.Float64Histogram
}

func NewOTelSink(p *Provider) (*OTelSink, error) {
	m := p.Meter()
	events, err := m.Int64Counter("omnibase.merge.events",
		metric.WithDescription("Merge lifecycle events"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}
	changes, err := m.Int64Counter("omnibase.merge.diff_entries",
		metric.WithDescription("Contract diff entries produced by merges"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}
	duration, err := m.Float64Histogram("omnibase.merge.duration",
		metric.WithDescription("Merge duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	return &OTelSink{events: events, changes: changes, duration: duration}, nil
}

func (s *OTelSink) Emit(ctx context.Context, ev Event) {
	attrs := []attribute.KeyValue{
		attribute.String("event", string(ev.Type)),
		attribute.String("contract", ev.Contract),
	}
	span := trace.SpanFromContext(ctx)
	span.AddEvent(string(ev.Type), trace.WithAttributes(
		append(attrs,
			attribute.String("correlation_id", ev.CorrelationID),
			attribute.Int("patch_count", ev.PatchCount),
		)...,
	))
	s.events.Add(ctx, 1, metric.WithAttributes(attrs...))
	if ev.Type != EventMergeCompleted {
		return
	}
	sum := ev.Diff.Summary()
	for kind, n := range map[contracts.DiffKind]int{
		contracts.DiffAdded:    sum.Added,
		contracts.DiffModified: sum.Modified,
		contracts.DiffRemoved:  sum.Removed,
	} {
		if n > 0 {
			s.changes.Add(ctx, int64(n), metric.WithAttributes(attribute.String("kind", string(kind))))
		}
	}
	s.duration.Record(ctx, ev.Duration.Seconds(), metric.WithAttributes(attrs...))
}

// MultiSink fans an event out to every sink in order.
type MultiSink []EventSink

func (m MultiSink) Emit(ctx context.Context, ev Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, ev)
		}
	}
}

// RecordingSink keeps every event in memory.
type RecordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *RecordingSink) Emit(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a snapshot of recorded events.
func (r *RecordingSink) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns recorded events with the given type.
func (r *RecordingSink) OfType(t EventType) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
