package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/artifacts"
	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/config"
	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/depgraph"
	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/guard"
	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/merge"
	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/observability"
	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/plancache"
	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/planner"
	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/store"
	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/verifier"
)

// Remote fixture lookups are rate limited to this many requests per second.
const (
	fixtureStoreRPS   = 50
	fixtureStoreBurst = 10
	planCacheSize     = 256
	planCacheTTL      = time.Hour
)

// Services holds every collaborator a command needs. Nothing is global:
// commands receive a Services and tests build one directly.
type Services struct {
	Config    *config.Config
	Logger    *slog.Logger
	Graph     *depgraph.Resolver
	Guards    *guard.Env
	Telemetry *observability.Provider
	Engine    *merge.Engine
	Planner   plancache.PlanResolver
	Verifier  *verifier.Verifier
	// Ledger is nil when LEDGER_DRIVER is none.
	Ledger store.Ledger

	artifactsOnce sync.Once
	artifacts     artifacts.Store
	artifactsErr  error

	closers []func(context.Context) error
}

// loadConfig reads OMNIBASE_CONFIG when set, otherwise the environment.
func loadConfig() (*config.Config, error) {
	if path := os.Getenv("OMNIBASE_CONFIG"); path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// NewServices wires the pipeline from cfg. Logs go to logOut.
func NewServices(ctx context.Context, cfg *config.Config, logOut io.Writer) (*Services, error) {
	s := &Services{Config: cfg, Logger: config.NewLogger(cfg, logOut)}

	s.Graph = depgraph.NewResolver(
		depgraph.WithMaxDFSIterations(cfg.GraphMaxDFSIterations),
		depgraph.WithLogger(s.Logger.With("component", "depgraph")),
	)

	guards, err := guard.NewEnv()
	if err != nil {
		return nil, fmt.Errorf("guard environment: %w", err)
	}
	s.Guards = guards

	otelCfg := observability.DefaultConfig()
	otelCfg.ServiceName = cfg.ServiceName
	otelCfg.OTLPEndpoint = cfg.OTelEndpoint
	otelCfg.Enabled = cfg.OTelEnabled
	tel, err := observability.New(ctx, otelCfg)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	s.Telemetry = tel
	s.closers = append(s.closers, tel.Shutdown)

	sinks := observability.MultiSink{observability.NewLogSink(s.Logger)}
	if cfg.OTelEnabled {
		otelSink, err := observability.NewOTelSink(tel)
		if err != nil {
			s.Close(ctx)
			return nil, fmt.Errorf("telemetry sink: %w", err)
		}
		sinks = append(sinks, otelSink)
	}

	s.Engine, err = merge.NewEngine(
		merge.WithSink(sinks),
		merge.WithGraphResolver(s.Graph),
		merge.WithGuardEnv(s.Guards),
		merge.WithLogger(s.Logger.With("component", "merge")),
		merge.WithTelemetry(tel),
	)
	if err != nil {
		s.Close(ctx)
		return nil, err
	}

	var cache plancache.Cache = plancache.NewMemoryCache(planCacheSize)
	if cfg.RedisAddr != "" {
		rc := plancache.NewRedisCache(cfg.RedisAddr, planCacheTTL)
		s.closers = append(s.closers, func(context.Context) error { return rc.Close() })
		cache = rc
	}
	s.Planner = plancache.NewCachingResolver(planner.NewResolver(s.Graph), cache)

	s.Verifier, err = verifier.NewVerifier(
		verifier.WithEngine(s.Engine),
		verifier.WithGraphResolver(s.Graph),
		verifier.WithGuardEnv(s.Guards),
		verifier.WithLogger(s.Logger.With("component", "verifier")),
	)
	if err != nil {
		s.Close(ctx)
		return nil, err
	}

	if cfg.LedgerDriver != "none" {
		l, err := store.Open(ctx, store.Driver(cfg.LedgerDriver), cfg.LedgerDSN)
		if err != nil {
			s.Close(ctx)
			return nil, err
		}
		s.Ledger = l
		s.closers = append(s.closers, func(context.Context) error { return l.Close() })
	}
	return s, nil
}

// Artifacts returns the content-addressed store selected by
// ARTIFACT_STORAGE_TYPE. It is opened on first use.
func (s *Services) Artifacts(ctx context.Context) (artifacts.Store, error) {
	s.artifactsOnce.Do(func() {
		s.artifacts, s.artifactsErr = artifacts.NewStoreFromEnv(ctx)
	})
	return s.artifacts, s.artifactsErr
}

// FixtureStore wraps the artifact store for digest-addressed fixture
// lookups.
func (s *Services) FixtureStore(ctx context.Context) (verifier.FixtureSource, error) {
	st, err := s.Artifacts(ctx)
	if err != nil {
		return nil, err
	}
	return verifier.StoreFixtures(artifacts.NewThrottledStore(st, fixtureStoreRPS, fixtureStoreBurst)), nil
}

// Close releases collaborators in reverse order of construction.
func (s *Services) Close(ctx context.Context) {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	if err := errors.Join(errs...); err != nil && s.Logger != nil {
		s.Logger.WarnContext(ctx, "shutdown incomplete", "error", err)
	}
}
