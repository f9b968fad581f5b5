package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/canonicalize"
	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/contracts"
	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/depgraph"
	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/loader"
	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/planner"
	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/store"
	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/verifier"
)

// resolved is a loaded bundle and its merge outcome.
type resolved struct {
	bundle *loader.Bundle
	merged *contracts.MergedContract
	diff   *contracts.ContractDiff
}

// resolveBundle loads and merges dir. The exit code is 2 when the bundle
// cannot be read and 1 when the merge is rejected.
func resolveBundle(ctx context.Context, svc *Services, dir string, stderr io.Writer) (*resolved, int) {
	b, err := loader.LoadDir(ctx, dir)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return nil, 2
	}
	m, diff, err := svc.Engine.Merge(ctx, b.Base, b.Patches)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Merge rejected: %v\n", err)
		return nil, 1
	}
	return &resolved{bundle: b, merged: m, diff: diff}, 0
}

func writeJSON(w io.Writer, v any) int {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return 2
	}
	_, _ = fmt.Fprintln(w, string(data))
	return 0
}

// record appends a ledger entry when a ledger is configured. Ledger faults
// are logged, not fatal.
func record(ctx context.Context, svc *Services, m *contracts.MergedContract, plan *contracts.ExecutionPlan, report *contracts.VerificationReport) {
	if svc.Ledger == nil {
		return
	}
	r := store.NewRecord(m, plan, report, time.Now())
	if err := svc.Ledger.Append(ctx, r); err != nil {
		svc.Logger.WarnContext(ctx, "ledger append failed", "contract", r.Contract, "error", err)
		return
	}
	svc.Logger.DebugContext(ctx, "ledger record appended", "id", r.ID, "contract", r.Contract)
}

// runMergeCmd implements `omnibase merge`.
func runMergeCmd(ctx context.Context, svc *Services, args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("merge", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		bundle     string
		jsonOutput bool
		publish    bool
	)
	cmd.StringVar(&bundle, "bundle", "", "Path to contract bundle directory (REQUIRED)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output merged contract and diff as JSON")
	cmd.BoolVar(&publish, "publish", false, "Store the merged contract in the artifact store")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if bundle == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --bundle is required")
		return 2
	}

	res, code := resolveBundle(ctx, svc, bundle, stderr)
	if res == nil {
		return code
	}
	record(ctx, svc, res.merged, nil, nil)

	var published string
	if publish {
		st, err := svc.Artifacts(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: artifact store: %v\n", err)
			return 2
		}
		data, err := canonicalize.JCS(res.merged)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: encode merged contract: %v\n", err)
			return 2
		}
		if published, err = st.Store(ctx, data); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: publish: %v\n", err)
			return 2
		}
	}

	if jsonOutput {
		return writeJSON(stdout, struct {
			Merged    *contracts.MergedContract `json:"merged"`
			Diff      *contracts.ContractDiff   `json:"diff"`
			Published string                    `json:"published,omitempty"`
		}{res.merged, res.diff, published})
	}
	renderMerge(stdout, res.merged, res.diff)
	if published != "" {
		_, _ = fmt.Fprintf(stdout, "Published: %s\n", published)
	}
	return 0
}

// runPlanCmd implements `omnibase plan`.
func runPlanCmd(ctx context.Context, svc *Services, args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("plan", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		bundle     string
		jsonOutput bool
	)
	cmd.StringVar(&bundle, "bundle", "", "Path to contract bundle directory (REQUIRED)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output the plan as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if bundle == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --bundle is required")
		return 2
	}

	res, code := resolveBundle(ctx, svc, bundle, stderr)
	if res == nil {
		return code
	}
	plan, err := svc.Planner.Resolve(ctx, planner.ConstraintsFromContract(&res.merged.Contract))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Plan rejected: %v\n", err)
		if errors.Is(err, depgraph.ErrResourceExhausted) {
			return 2
		}
		return 1
	}
	record(ctx, svc, res.merged, plan, nil)

	if jsonOutput {
		return writeJSON(stdout, plan)
	}
	renderPlan(stdout, plan)
	return 0
}

// runVerifyCmd implements `omnibase verify`.
//
// Exit codes:
//
//	0 = verification passed
//	1 = merge rejected or a check failed
//	2 = harness error
func runVerifyCmd(ctx context.Context, svc *Services, args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		bundle       string
		jsonOutput   bool
		strict       bool
		skipDigest   bool
		fixtureStore bool
	)
	cmd.StringVar(&bundle, "bundle", "", "Path to contract bundle directory (REQUIRED)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output the report as JSON")
	cmd.BoolVar(&strict, "strict", false, "Require a fully determined overlay order")
	cmd.BoolVar(&skipDigest, "skip-digest", false, "Re-derive the merge without comparing digests")
	cmd.BoolVar(&fixtureStore, "fixture-store", false, "Resolve fixtures by digest from the artifact store")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if bundle == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --bundle is required")
		return 2
	}

	res, code := resolveBundle(ctx, svc, bundle, stderr)
	if res == nil {
		return code
	}

	opts := verifier.VerifyOptions{
		SkipDigestCheck:       skipDigest,
		StrictOverlayOrdering: strict || svc.Config.StrictOverlayOrdering,
		CheckTimeout:          svc.Config.VerifyCheckTimeout,
		Fixtures:              verifier.DirFixtures(res.bundle.Dir),
	}
	if fixtureStore {
		src, err := svc.FixtureStore(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: artifact store: %v\n", err)
			return 2
		}
		opts.Fixtures = src
	}

	report, err := svc.Verifier.Verify(ctx, res.merged, opts)
	if jsonOutput {
		writeJSON(stdout, report)
	} else {
		renderReport(stdout, report)
	}
	if err != nil {
		return 2
	}
	record(ctx, svc, res.merged, nil, report)
	if report.Overall != contracts.OverallPass {
		return 1
	}
	return 0
}

// runGraphCmd implements `omnibase graph`.
func runGraphCmd(ctx context.Context, svc *Services, args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("graph", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		bundle string
		of     string
		format string
	)
	cmd.StringVar(&bundle, "bundle", "", "Path to contract bundle directory (REQUIRED)")
	cmd.StringVar(&of, "of", "handlers", "Graph to render: handlers or patches")
	cmd.StringVar(&format, "format", "dot", "Output format: dot or mermaid")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if bundle == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --bundle is required")
		return 2
	}
	if format != "dot" && format != "mermaid" {
		_, _ = fmt.Fprintf(stderr, "Error: unknown format %q\n", format)
		return 2
	}

	var (
		g   *depgraph.Graph
		err error
	)
	switch of {
	case "patches":
		b, lerr := loader.LoadDir(ctx, bundle)
		if lerr != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", lerr)
			return 2
		}
		g, err = svc.Engine.Order(ctx, b.Patches)
	case "handlers":
		res, code := resolveBundle(ctx, svc, bundle, stderr)
		if res == nil {
			return code
		}
		nodes := make([]depgraph.Node, len(res.merged.Contract.Handlers))
		for i, h := range res.merged.Contract.Handlers {
			nodes[i] = depgraph.Node{ID: h.ID, DependsOn: h.DependsOn}
		}
		g, err = svc.Graph.Resolve(ctx, nodes)
	default:
		_, _ = fmt.Fprintf(stderr, "Error: unknown graph %q\n", of)
		return 2
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Graph rejected: %v\n", err)
		return 1
	}

	if format == "mermaid" {
		_, _ = fmt.Fprint(stdout, g.Mermaid())
	} else {
		_, _ = fmt.Fprint(stdout, g.DOT())
	}
	return 0
}

// runHistoryCmd implements `omnibase history`.
func runHistoryCmd(ctx context.Context, svc *Services, args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("history", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		contract   string
		jsonOutput bool
	)
	cmd.StringVar(&contract, "contract", "", "Contract name (REQUIRED)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output records as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if contract == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --contract is required")
		return 2
	}
	if svc.Ledger == nil {
		_, _ = fmt.Fprintln(stderr, "Error: no ledger configured (set LEDGER_DRIVER)")
		return 2
	}

	records, err := svc.Ledger.History(ctx, contract)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if jsonOutput {
		return writeJSON(stdout, records)
	}
	st := newStyles(stdout)
	_, _ = fmt.Fprintln(stdout, st.title.Render("History "+contract))
	for _, r := range records {
		status := "-"
		if r.Overall != "" {
			status = st.status(string(r.Overall))
		}
		_, _ = fmt.Fprintf(stdout, "  %s %s %s %s\n", r.CreatedAt.Format(time.RFC3339), r.Version, r.ContractDigest, status)
	}
	return 0
}
