// Package verifier runs the static verification tier: a fixed battery of
// independent, side-effect-free checks over a merged contract, aggregated
// into one report.
package verifier

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/sync/errgroup"

	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/canonicalize"
	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/contracts"
	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/depgraph"
	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/guard"
	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/merge"
)

// DefaultCheckTimeout bounds each check when VerifyOptions leaves it unset.
const DefaultCheckTimeout = 5 * time.Second

const schemaURL = "https://omnibase.schemas.local/contract-profile.schema.json"

//go:embed contract.schema.json
var profileSchema string

// VerifyOptions tunes one verification run.
type VerifyOptions struct {
	// SkipDigestCheck re-derives the merge without comparing digests.
	SkipDigestCheck bool
	// StrictOverlayOrdering fails overlays whose order is not forced by
	// applies-after or precedence.
	StrictOverlayOrdering bool
	CheckTimeout          time.Duration
	Fixtures              FixtureSource
}

// HarnessError is returned when the run itself could not complete. The
// accompanying report has Overall ERROR.
type HarnessError struct {
	Err error
}

func (e *HarnessError) Error() string {
	return fmt.Sprintf("verification harness: %v", e.Err)
}

func (e *HarnessError) Unwrap() error { return e.Err }

// Verifier is immutable after construction and safe for concurrent use.
type Verifier struct {
	engine *merge.Engine
	graph  *depgraph.Resolver
	guards *guard.Env
	schema *jsonschema.Schema
	logger *slog.Logger
	checks []check
}

type Option func(*Verifier)

// WithEngine sets the engine used to re-derive overlay merges.
func WithEngine(e *merge.Engine) Option {
	return func(v *Verifier) { v.engine = e }
}

func WithGraphResolver(r *depgraph.Resolver) Option {
	return func(v *Verifier) { v.graph = r }
}

func WithGuardEnv(g *guard.Env) Option {
	return func(v *Verifier) { v.guards = g }
}

func WithLogger(l *slog.Logger) Option {
	return func(v *Verifier) {
		if l != nil {
			v.logger = l
		}
	}
}

func NewVerifier(opts ...Option) (*Verifier, error) {
	v := &Verifier{logger: slog.Default().With("component", "verifier")}
	for _, opt := range opts {
		opt(v)
	}
	if v.graph == nil {
		v.graph = depgraph.NewResolver()
	}
	if v.guards == nil {
		g, err := guard.NewEnv()
		if err != nil {
			return nil, err
		}
		v.guards = g
	}
	if v.engine == nil {
		e, err := merge.NewEngine(merge.WithGraphResolver(v.graph), merge.WithGuardEnv(v.guards))
		if err != nil {
			return nil, err
		}
		v.engine = e
	}

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, strings.NewReader(profileSchema)); err != nil {
		return nil, fmt.Errorf("verifier schema load failed: %w", err)
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("verifier schema compile failed: %w", err)
	}
	v.schema = compiled
	v.checks = v.battery()
	return v, nil
}

// Verify runs every check concurrently and aggregates the results. The
// returned error is non-nil exactly when the report's Overall is ERROR.
// Check failures are FAIL results, never errors.
func (v *Verifier) Verify(ctx context.Context, artifact *contracts.MergedContract, opts VerifyOptions) (*contracts.VerificationReport, error) {
	if artifact == nil {
		return v.harnessFailure(fmt.Errorf("artifact is nil"))
	}
	if err := ctx.Err(); err != nil {
		return v.harnessFailure(err)
	}
	if opts.CheckTimeout <= 0 {
		opts.CheckTimeout = DefaultCheckTimeout
	}

	results := make([]contracts.VerificationCheckResult, len(v.checks))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range v.checks {
		i, c := i, c
		g.Go(func() error {
			results[i] = v.runCheck(gctx, c, artifact, opts)
			return nil
		})
	}
	_ = g.Wait()

	// Cancellation wins over whatever the checks managed to report.
	if err := ctx.Err(); err != nil {
		return v.harnessFailure(err)
	}

	report := &contracts.VerificationReport{
		Tier:    contracts.TierStatic,
		Overall: contracts.Aggregate(results),
		Checks:  results,
	}
	digest, err := canonicalize.Digest(report)
	if err != nil {
		return v.harnessFailure(fmt.Errorf("report digest: %w", err))
	}
	report.Digest = digest

	v.logger.InfoContext(ctx, "verification complete",
		"contract", artifact.Contract.Name,
		"overall", report.Overall,
		"digest", digest,
	)
	return report, nil
}

// runCheck bounds one check by opts.CheckTimeout and converts panics and
// timeouts into FAIL results.
func (v *Verifier) runCheck(ctx context.Context, c check, a *contracts.MergedContract, opts VerifyOptions) contracts.VerificationCheckResult {
	cctx, cancel := context.WithTimeout(ctx, opts.CheckTimeout)
	defer cancel()

	done := make(chan contracts.VerificationCheckResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fail(c.id, ReasonCheckPanic, fmt.Sprintf("check panicked: %v", r))
			}
		}()
		res := c.run(cctx, a, opts)
		res.CheckID = c.id
		done <- res
	}()

	var res contracts.VerificationCheckResult
	select {
	case res = <-done:
	case <-cctx.Done():
		res = fail(c.id, ReasonCheckTimeout, fmt.Sprintf("check timed out after %s", opts.CheckTimeout))
	}
	v.logger.DebugContext(ctx, "check finished", "check", c.id, "status", res.Status, "reason", res.Reason)
	return res
}

func (v *Verifier) harnessFailure(err error) (*contracts.VerificationReport, error) {
	herr := &HarnessError{Err: err}
	checks := make([]contracts.VerificationCheckResult, len(CheckIDs))
	for i, id := range CheckIDs {
		checks[i] = skip(id, ReasonHarnessAborted, "verification did not complete")
	}
	v.logger.Warn("verification aborted", "error", err)
	return &contracts.VerificationReport{
		Tier:    contracts.TierStatic,
		Overall: contracts.OverallError,
		Checks:  checks,
		Error:   herr.Error(),
	}, herr
}
