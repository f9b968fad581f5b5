// Package plancache caches execution plans by the digest of their
// constraint set.
package plancache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/canonicalize"
	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/contracts"
)

// Cache stores plans by key. A miss is (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) (*contracts.ExecutionPlan, bool, error)
	Put(ctx context.Context, key string, plan *contracts.ExecutionPlan) error
}

// Key digests a constraint set. Input order does not affect the key.
func Key(constraints []contracts.ExecutionConstraint) (string, error) {
	norm := make([]contracts.ExecutionConstraint, len(constraints))
	for i, c := range constraints {
		c.DependsOn = slices.Clone(c.DependsOn)
		sort.Strings(c.DependsOn)
		c.DependsOn = slices.Compact(c.DependsOn)
		norm[i] = c
	}
	sort.Slice(norm, func(i, j int) bool { return norm[i].HandlerID < norm[j].HandlerID })
	return canonicalize.Digest(norm)
}

func clonePlan(p *contracts.ExecutionPlan) *contracts.ExecutionPlan {
	out := &contracts.ExecutionPlan{
		Steps:    make([]contracts.PhaseStep, len(p.Steps)),
		Warnings: slices.Clone(p.Warnings),
		Digest:   p.Digest,
	}
	for i, s := range p.Steps {
		out.Steps[i] = contracts.PhaseStep{Phase: s.Phase, HandlerIDs: slices.Clone(s.HandlerIDs)}
	}
	return out
}

// MemoryCache is a bounded in-process cache. The oldest entry is evicted
// first.
type MemoryCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*contracts.ExecutionPlan
	order    []string
}

// NewMemoryCache holds at most capacity plans; capacity <= 0 means
// unbounded.
func NewMemoryCache(capacity int) *MemoryCache {
	return &MemoryCache{capacity: capacity, entries: map[string]*contracts.ExecutionPlan{}}
}

func (c *MemoryCache) Get(_ context.Context, key string) (*contracts.ExecutionPlan, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	return clonePlan(p), true, nil
}

func (c *MemoryCache) Put(_ context.Context, key string, plan *contracts.ExecutionPlan) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		c.order = append(c.order, key)
	}
	c.entries[key] = clonePlan(plan)
	for c.capacity > 0 && len(c.order) > c.capacity {
		delete(c.entries, c.order[0])
		c.order = c.order[1:]
	}
	return nil
}

func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// RedisCache shares plans between processes.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisCache connects to addr. A zero ttl keeps entries until evicted.
func NewRedisCache(addr string, ttl time.Duration) *RedisCache {
	return NewRedisCacheFromClient(redis.NewClient(&redis.Options{Addr: addr}), ttl)
}

func NewRedisCacheFromClient(client redis.UniversalClient, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: "omnibase:plan:", ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) (*contracts.ExecutionPlan, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("plan cache get: %w", err)
	}
	var plan contracts.ExecutionPlan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, false, fmt.Errorf("plan cache decode: %w", err)
	}
	return &plan, true, nil
}

func (c *RedisCache) Put(ctx context.Context, key string, plan *contracts.ExecutionPlan) error {
	raw, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("plan cache encode: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("plan cache set: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
