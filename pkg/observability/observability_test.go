package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"

	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/contracts"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	require.Equal(t, "omnibase-core", config.ServiceName)
	require.Equal(t, "localhost:4317", config.OTLPEndpoint)
	require.Equal(t, 1.0, config.SampleRate)
	require.False(t, config.Enabled)
}

func TestNewProviderDisabled(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, p.Tracer())
	require.NotNil(t, p.Meter())

	_, done := p.TrackOperation(context.Background(), "merge", attribute.String("contract", "c"))
	done(errors.New("boom"))

	_, done = p.TrackOperation(context.Background(), "plan")
	done(nil)

	require.NoError(t, p.Shutdown(context.Background()))
}

func TestOTelSinkWithNoopProvider(t *testing.T) {
	p, err := New(context.Background(), nil)
	require.NoError(t, err)
	sink, err := NewOTelSink(p)
	require.NoError(t, err)

	sink.Emit(context.Background(), Event{Type: EventMergeStarted, Contract: "c"})
	sink.Emit(context.Background(), Event{
		Type:     EventMergeCompleted,
		Contract: "c",
		Diff:     &contracts.ContractDiff{Entries: []contracts.DiffEntry{{Kind: contracts.DiffAdded}}},
		Duration: time.Millisecond,
	})
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(slog.New(slog.NewJSONHandler(&buf, nil)))
	sink.Emit(context.Background(), Event{
		Type:          EventMergeCompleted,
		CorrelationID: "corr-1",
		Contract:      "ingest",
		Diff: &contracts.ContractDiff{Entries: []contracts.DiffEntry{
			{Kind: contracts.DiffModified},
			{Kind: contracts.DiffAdded},
		}},
		Digest: "sha256:abc",
	})
	out := buf.String()
	require.Contains(t, out, `"event":"merge_completed"`)
	require.Contains(t, out, `"correlation_id":"corr-1"`)
	require.Contains(t, out, `"modified":1`)
}

func TestMultiAndRecordingSink(t *testing.T) {
	a, b := &RecordingSink{}, &RecordingSink{}
	m := MultiSink{a, nil, b, NopSink{}}
	m.Emit(context.Background(), Event{Type: EventMergeStarted})
	m.Emit(context.Background(), Event{Type: EventMergeCompleted})

	require.Len(t, a.Events(), 2)
	require.Len(t, b.OfType(EventMergeCompleted), 1)
}
