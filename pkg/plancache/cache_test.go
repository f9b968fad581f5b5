package plancache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/contracts"
	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/planner"
)

func constraints() []contracts.ExecutionConstraint {
	return []contracts.ExecutionConstraint{
		{HandlerID: "validate", Phase: contracts.PhasePreflight},
		{HandlerID: "write", Phase: contracts.PhaseExecute, DependsOn: []string{"validate"}},
		{HandlerID: "notify", Phase: contracts.PhaseEmit, DependsOn: []string{"write", "validate"}},
	}
}

type countingResolver struct {
	calls   atomic.Int32
	release chan struct{}
	next    PlanResolver
	err     error
}

func (c *countingResolver) Resolve(ctx context.Context, cs []contracts.ExecutionConstraint) (*contracts.ExecutionPlan, error) {
	c.calls.Add(1)
	if c.release != nil {
		<-c.release
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.err != nil {
		return nil, c.err
	}
	return c.next.Resolve(ctx, cs)
}

func TestKey_OrderIndependent(t *testing.T) {
	a := constraints()
	b := []contracts.ExecutionConstraint{
		{HandlerID: "notify", Phase: contracts.PhaseEmit, DependsOn: []string{"validate", "write", "write"}},
		a[1], a[0],
	}
	ka, err := Key(a)
	require.NoError(t, err)
	kb, err := Key(b)
	require.NoError(t, err)
	assert.Equal(t, ka, kb)

	a[0].Phase = contracts.PhaseBefore
	kc, err := Key(a)
	require.NoError(t, err)
	assert.NotEqual(t, ka, kc)
}

func TestMemoryCache_EvictsOldest(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(2)
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, c.Put(ctx, k, &contracts.ExecutionPlan{Digest: k}))
	}
	assert.Equal(t, 2, c.Len())
	_, ok, _ := c.Get(ctx, "a")
	assert.False(t, ok)
	p, ok, _ := c.Get(ctx, "c")
	require.True(t, ok)
	assert.Equal(t, "c", p.Digest)
}

func TestMemoryCache_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(0)
	require.NoError(t, c.Put(ctx, "k", &contracts.ExecutionPlan{Steps: []contracts.PhaseStep{{Phase: contracts.PhaseExecute, HandlerIDs: []string{"a"}}}}))

	p, _, _ := c.Get(ctx, "k")
	p.Steps[0].HandlerIDs[0] = "mutated"
	again, _, _ := c.Get(ctx, "k")
	assert.Equal(t, "a", again.Steps[0].HandlerIDs[0])
}

func TestCachingResolver_HitsCache(t *testing.T) {
	inner := &countingResolver{next: planner.NewResolver(nil)}
	r := NewCachingResolver(inner, NewMemoryCache(0))
	ctx := context.Background()

	first, err := r.Resolve(ctx, constraints())
	require.NoError(t, err)
	second, err := r.Resolve(ctx, constraints())
	require.NoError(t, err)

	assert.Equal(t, int32(1), inner.calls.Load())
	assert.Equal(t, first.Digest, second.Digest)
	assert.Equal(t, []string{"validate", "write", "notify"}, second.HandlerOrder())
}

func TestCachingResolver_CollapsesConcurrentCalls(t *testing.T) {
	inner := &countingResolver{next: planner.NewResolver(nil), release: make(chan struct{})}
	r := NewCachingResolver(inner, NewMemoryCache(0))

	var wg sync.WaitGroup
	digests := make([]string, 8)
	for i := range digests {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := r.Resolve(context.Background(), constraints())
			if assert.NoError(t, err) {
				digests[i] = p.Digest
			}
		}()
	}
	require.Eventually(t, func() bool { return inner.calls.Load() >= 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(inner.release)
	wg.Wait()

	assert.Equal(t, int32(1), inner.calls.Load())
	for _, d := range digests {
		assert.Equal(t, digests[0], d)
	}
}

func TestCachingResolver_CancelledCallerDoesNotFailOthers(t *testing.T) {
	inner := &countingResolver{next: planner.NewResolver(nil), release: make(chan struct{})}
	r := NewCachingResolver(inner, NewMemoryCache(0))

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := r.Resolve(ctx, constraints())
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return inner.calls.Load() >= 1 }, time.Second, time.Millisecond)

	type result struct {
		plan *contracts.ExecutionPlan
		err  error
	}
	second := make(chan result, 1)
	go func() {
		p, err := r.Resolve(context.Background(), constraints())
		second <- result{p, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(inner.release)
	got := <-second
	require.NoError(t, got.err)
	assert.Len(t, got.plan.HandlerOrder(), 3)
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestCachingResolver_DoesNotCacheErrors(t *testing.T) {
	boom := errors.New("boom")
	inner := &countingResolver{err: boom}
	cache := NewMemoryCache(0)
	r := NewCachingResolver(inner, cache)

	_, err := r.Resolve(context.Background(), constraints())
	require.ErrorIs(t, err, boom)
	_, err = r.Resolve(context.Background(), constraints())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, int32(2), inner.calls.Load())
	assert.Equal(t, 0, cache.Len())
}

func TestCachingResolver_RedisUnavailableFallsThrough(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	cache := NewRedisCacheFromClient(client, time.Minute)
	defer func() { _ = cache.Close() }()

	_, _, err := cache.Get(context.Background(), "k")
	require.Error(t, err)

	inner := &countingResolver{next: planner.NewResolver(nil)}
	plan, err := NewCachingResolver(inner, cache).Resolve(context.Background(), constraints())
	require.NoError(t, err)
	assert.Len(t, plan.HandlerOrder(), 3)
}
