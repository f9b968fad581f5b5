package verifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/canonicalize"
	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/contracts"
	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/depgraph"
	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/merge"
)

type checkFunc func(ctx context.Context, a *contracts.MergedContract, opts VerifyOptions) contracts.VerificationCheckResult

type check struct {
	id  string
	run checkFunc
}

func pass(id, msg string) contracts.VerificationCheckResult {
	return contracts.VerificationCheckResult{CheckID: id, Status: contracts.CheckPass, Message: msg}
}

func fail(id, reason, msg string) contracts.VerificationCheckResult {
	return contracts.VerificationCheckResult{CheckID: id, Status: contracts.CheckFail, Reason: reason, Message: msg}
}

func skip(id, reason, msg string) contracts.VerificationCheckResult {
	return contracts.VerificationCheckResult{CheckID: id, Status: contracts.CheckSkip, Reason: reason, Message: msg}
}

// problems collects findings; the first reason labels the result.
type problems struct {
	reason string
	msgs   []string
}

func (p *problems) add(reason, format string, args ...any) {
	if p.reason == "" {
		p.reason = reason
	}
	p.msgs = append(p.msgs, fmt.Sprintf(format, args...))
}

func (p *problems) result(id, okMsg string) contracts.VerificationCheckResult {
	if len(p.msgs) == 0 {
		return pass(id, okMsg)
	}
	return fail(id, p.reason, strings.Join(p.msgs, "; "))
}

func (v *Verifier) battery() []check {
	return []check{
		{CheckSchemaConformance, v.checkSchema},
		{CheckCapabilityLint, v.checkCapabilities},
		{CheckFixturePresence, v.checkFixtures},
		{CheckOverlayMerge, v.checkOverlayMerge},
		{CheckDeterminism, v.checkDeterminism},
	}
}

func (v *Verifier) checkSchema(_ context.Context, a *contracts.MergedContract, _ VerifyOptions) contracts.VerificationCheckResult {
	b, err := json.Marshal(a.Contract)
	if err != nil {
		return fail(CheckSchemaConformance, ReasonEncodeFailed, err.Error())
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return fail(CheckSchemaConformance, ReasonEncodeFailed, err.Error())
	}
	if err := v.schema.Validate(doc); err != nil {
		return fail(CheckSchemaConformance, ReasonSchemaViolation, err.Error())
	}
	return pass(CheckSchemaConformance, "contract matches the profile schema")
}

func (v *Verifier) checkCapabilities(ctx context.Context, a *contracts.MergedContract, _ VerifyOptions) contracts.VerificationCheckResult {
	c := &a.Contract
	var p problems

	decls := slices.Clone(c.Capabilities)
	sort.SliceStable(decls, func(i, j int) bool { return decls[i].Name < decls[j].Name })

	declared := make(map[string]bool, len(decls))
	for _, d := range decls {
		if declared[d.Name] {
			p.add(ReasonCapabilityInvalid, "capability %s is declared more than once", d.Name)
			continue
		}
		declared[d.Name] = true
		if d.Version != "" {
			if _, err := semver.NewConstraint(d.Version); err != nil {
				p.add(ReasonCapabilityInvalid, "capability %s: invalid version constraint %q", d.Name, d.Version)
			}
		}
		if d.Effect && c.Kind == contracts.NodeCompute {
			p.add(ReasonEffectInCompute, "COMPUTE node declares effect capability %s", d.Name)
		}
	}

	nodes := make([]depgraph.Node, 0, len(decls))
	dangling := false
	for _, d := range decls {
		for _, dep := range d.DependsOn {
			if !declared[dep] {
				p.add(ReasonCapabilityUndeclared, "capability %s depends on undeclared capability %s", d.Name, dep)
				dangling = true
			}
		}
		nodes = append(nodes, depgraph.Node{ID: d.Name, DependsOn: d.DependsOn})
	}

	handlers := slices.Clone(c.Handlers)
	sort.SliceStable(handlers, func(i, j int) bool { return handlers[i].ID < handlers[j].ID })
	for _, h := range handlers {
		for _, req := range h.Requires {
			if !declared[req] {
				p.add(ReasonCapabilityUndeclared, "handler %s requires undeclared capability %s", h.ID, req)
			}
		}
	}

	if !dangling && len(declared) == len(decls) {
		if _, err := v.graph.Resolve(ctx, nodes); err != nil {
			var cycle depgraph.DependencyCycleError
			if errors.As(err, &cycle) {
				p.add(ReasonCapabilityCycle, "capability dependencies form a cycle: %s", strings.Join(cycle.Cycle, " -> "))
			} else {
				p.add(ReasonCapabilityInvalid, "capability graph: %v", err)
			}
		}
	}
	return p.result(CheckCapabilityLint, fmt.Sprintf("%d capabilities declared and resolvable", len(decls)))
}

func (v *Verifier) checkFixtures(ctx context.Context, a *contracts.MergedContract, opts VerifyOptions) contracts.VerificationCheckResult {
	refs := a.Contract.Fixtures
	if len(refs) == 0 {
		return skip(CheckFixturePresence, ReasonNoFixtures, "contract declares no fixtures")
	}
	if opts.Fixtures == nil {
		return fail(CheckFixturePresence, ReasonFixtureSourceAbsent, "contract declares fixtures but no fixture source was configured")
	}

	sorted := slices.Clone(refs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	var p problems
	for _, ref := range sorted {
		data, err := opts.Fixtures.Fixture(ctx, ref)
		if err != nil {
			p.add(ReasonFixtureMissing, "%v", err)
			continue
		}
		if ref.Digest != "" {
			if got := canonicalize.HashBytes(data); got != ref.Digest {
				p.add(ReasonFixtureDigest, "fixture %s: digest %s, declared %s", ref.Path, got, ref.Digest)
			}
		}
	}
	return p.result(CheckFixturePresence, fmt.Sprintf("%d fixtures present", len(sorted)))
}

func (v *Verifier) checkOverlayMerge(ctx context.Context, a *contracts.MergedContract, opts VerifyOptions) contracts.VerificationCheckResult {
	if len(a.Patches) == 0 {
		return skip(CheckOverlayMerge, ReasonNoOverlays, "contract has no overlay provenance")
	}

	re, _, err := v.engine.Merge(ctx, &a.Base, a.Patches, merge.WithCorrelationID("verify"), merge.Silent())
	if err != nil {
		return fail(CheckOverlayMerge, ReasonRemergeFailed, fmt.Sprintf("re-deriving the merge failed: %v", err))
	}
	if !slices.Equal(re.AppliedOrder, a.AppliedOrder) {
		return fail(CheckOverlayMerge, ReasonOrderMismatch, fmt.Sprintf("applied order %v, re-derived %v", a.AppliedOrder, re.AppliedOrder))
	}
	if opts.StrictOverlayOrdering {
		order, err := v.engine.Order(ctx, a.Patches)
		if err != nil {
			return fail(CheckOverlayMerge, ReasonRemergeFailed, err.Error())
		}
		if !order.Unique() {
			return fail(CheckOverlayMerge, ReasonOrderAmbiguous, "overlay order relies on name tie-breaking between unordered patches")
		}
	}
	if opts.SkipDigestCheck {
		return pass(CheckOverlayMerge, "merge re-derived; digest comparison skipped")
	}

	stored, err := canonicalize.Digest(a.Contract)
	if err != nil {
		return fail(CheckOverlayMerge, ReasonEncodeFailed, err.Error())
	}
	if stored != a.Digest {
		return fail(CheckOverlayMerge, ReasonDigestMismatch, fmt.Sprintf("contract digest %s does not match recorded %s", stored, a.Digest))
	}
	if re.Digest != a.Digest {
		return fail(CheckOverlayMerge, ReasonContractDivergent, fmt.Sprintf("re-derived digest %s, recorded %s", re.Digest, a.Digest))
	}
	return pass(CheckOverlayMerge, "re-derived merge matches "+a.Digest)
}

func (v *Verifier) checkDeterminism(_ context.Context, a *contracts.MergedContract, _ VerifyOptions) contracts.VerificationCheckResult {
	c := &a.Contract
	if c.Kind == contracts.NodeEffect {
		return skip(CheckDeterminism, ReasonEffectNode, "EFFECT nodes are replayed from recorded effects")
	}

	var p problems
	decls := slices.Clone(c.Capabilities)
	sort.SliceStable(decls, func(i, j int) bool { return decls[i].Name < decls[j].Name })
	for _, d := range decls {
		if d.Nondeterministic {
			p.add(ReasonNondeterministic, "capability %s is nondeterministic", d.Name)
		}
	}

	handlers := slices.Clone(c.Handlers)
	sort.SliceStable(handlers, func(i, j int) bool { return handlers[i].ID < handlers[j].ID })
	for _, h := range handlers {
		if h.Guard == "" {
			continue
		}
		issues, err := v.guards.Inspect(h.Guard)
		if err != nil {
			p.add(ReasonGuardUnparseable, "handler %s guard: %v", h.ID, err)
			continue
		}
		for _, is := range issues {
			p.add(ReasonNondeterministic, "handler %s guard: %s: %s", h.ID, is.Rule, is.Message)
		}
	}
	return p.result(CheckDeterminism, "no nondeterministic constructs found")
}
